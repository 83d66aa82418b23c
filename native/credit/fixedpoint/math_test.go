package fixedpoint

import (
	"errors"
	"math/rand"
	"testing"

	"github.com/holiman/uint256"
)

func TestMulDivRounding(t *testing.T) {
	down, err := MulDivDown(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
	if err != nil || down.Uint64() != 33 {
		t.Fatalf("mulDivDown: got %v err=%v", down, err)
	}
	up, err := MulDivUp(uint256.NewInt(10), uint256.NewInt(10), uint256.NewInt(3))
	if err != nil || up.Uint64() != 34 {
		t.Fatalf("mulDivUp: got %v err=%v", up, err)
	}
	exact, err := MulDivUp(uint256.NewInt(9), uint256.NewInt(10), uint256.NewInt(3))
	if err != nil || exact.Uint64() != 30 {
		t.Fatalf("mulDivUp exact: got %v err=%v", exact, err)
	}
	if _, err := MulDivDown(uint256.NewInt(1), uint256.NewInt(1), uint256.NewInt(0)); !errors.Is(err, ErrDivisionByZero) {
		t.Fatalf("expected division by zero, got %v", err)
	}
}

func TestMulDivFullPrecision(t *testing.T) {
	// MaxUint256 * MaxUint256 overflows 256 bits but the quotient fits.
	out, err := MulDivDown(MaxUint256, MaxUint256, MaxUint256)
	if err != nil {
		t.Fatalf("mulDiv: %v", err)
	}
	if !out.Eq(MaxUint256) {
		t.Fatalf("expected max uint256, got %s", out.Hex())
	}
	if _, err := MulDivDown(MaxUint256, uint256.NewInt(2), uint256.NewInt(1)); !errors.Is(err, ErrOverflow) {
		t.Fatalf("expected overflow, got %v", err)
	}
}

func TestAmountToWad(t *testing.T) {
	wad, err := AmountToWad(uint256.NewInt(5_000_000), 6)
	if err != nil {
		t.Fatalf("amountToWad: %v", err)
	}
	expected := new(uint256.Int).Mul(uint256.NewInt(5), Percent)
	if !wad.Eq(expected) {
		t.Fatalf("expected %s got %s", expected.Dec(), wad.Dec())
	}
	same, err := AmountToWad(uint256.NewInt(42), 18)
	if err != nil || same.Uint64() != 42 {
		t.Fatalf("expected identity for 18 decimals, got %v err=%v", same, err)
	}
	if _, err := AmountToWad(uint256.NewInt(1), 19); !errors.Is(err, ErrDecimalsTooHigh) {
		t.Fatalf("expected ErrDecimalsTooHigh, got %v", err)
	}
}

func TestBinarySearchExactMatches(t *testing.T) {
	sorted := []uint64{10, 20, 30, 40, 50}
	for i, v := range sorted {
		low, high := BinarySearch(sorted, v)
		if low != i || high != i {
			t.Fatalf("value %d: expected (%d,%d) got (%d,%d)", v, i, i, low, high)
		}
	}
}

func TestBinarySearchBracketing(t *testing.T) {
	sorted := []uint64{10, 20, 30, 40, 50}
	for v := uint64(11); v < 50; v++ {
		low, high := BinarySearch(sorted, v)
		if v%10 == 0 {
			continue
		}
		if high != low+1 || !(sorted[low] < v && v < sorted[high]) {
			t.Fatalf("value %d: bad bracket (%d,%d)", v, low, high)
		}
	}
}

func TestBinarySearchOutOfRange(t *testing.T) {
	sorted := []uint64{10, 20, 30}
	for _, v := range []uint64{0, 9, 31, 1 << 60} {
		low, high := BinarySearch(sorted, v)
		if low != NotFound || high != NotFound {
			t.Fatalf("value %d: expected not found, got (%d,%d)", v, low, high)
		}
	}
	if low, high := BinarySearch(nil, 1); low != NotFound || high != NotFound {
		t.Fatalf("empty slice should not match")
	}
}

func TestBinarySearchSingleElement(t *testing.T) {
	sorted := []uint64{7}
	if low, high := BinarySearch(sorted, 7); low != 0 || high != 0 {
		t.Fatalf("expected (0,0), got (%d,%d)", low, high)
	}
	if low, _ := BinarySearch(sorted, 8); low != NotFound {
		t.Fatalf("expected not found above single element")
	}
}

func TestBinarySearchRandomised(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for round := 0; round < 200; round++ {
		n := 1 + rng.Intn(20)
		sorted := make([]uint64, n)
		next := uint64(rng.Intn(5))
		for i := range sorted {
			next += 1 + uint64(rng.Intn(10))
			sorted[i] = next
		}
		probe := uint64(rng.Intn(int(sorted[n-1]) + 5))
		low, high := BinarySearch(sorted, probe)
		switch {
		case probe < sorted[0] || probe > sorted[n-1]:
			if low != NotFound || high != NotFound {
				t.Fatalf("round %d: expected not found for %d", round, probe)
			}
		case low == high:
			if sorted[low] != probe {
				t.Fatalf("round %d: match index %d holds %d not %d", round, low, sorted[low], probe)
			}
		default:
			if !(sorted[low] < probe && probe < sorted[high]) || high != low+1 {
				t.Fatalf("round %d: bad bracket (%d,%d) for %d", round, low, high, probe)
			}
		}
	}
}
