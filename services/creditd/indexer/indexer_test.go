package indexer

import (
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"fixedcredit/core/types"
)

type record struct{ evt *types.Event }

func (r record) EventType() string   { return r.evt.Type }
func (r record) Event() *types.Event { return r.evt }

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := Open("sqlite", fmt.Sprintf("file:%s?mode=memory&cache=shared", uuid.NewString()))
	require.NoError(t, err)
	return db
}

func emit(idx *Indexer, kind string, attrs map[string]string) {
	idx.Emit(record{evt: &types.Event{Type: kind, Attributes: attrs}})
}

func TestIndexerArchivesAndFilters(t *testing.T) {
	db := setupTestDB(t)
	idx, err := New(db, nil)
	require.NoError(t, err)

	alice := "0x00000000000000000000000000000000000A11CE"
	emit(idx, "credit.sell_credit_market", map[string]string{"debtPositionId": "0", "creditPositionId": "9223372036854775808", "borrower": alice, "lender": "0xB0B"})
	emit(idx, "credit.repay", map[string]string{"debtPositionId": "0", "borrower": alice})
	emit(idx, "credit.deposit", map[string]string{"to": "0xcafe"})

	debt := uint64(0)
	got, err := idx.Find(Query{DebtID: &debt})
	require.NoError(t, err)
	require.Len(t, got, 2)
	require.Equal(t, uint64(1), got[0].Sequence)
	require.Equal(t, "credit.repay", got[1].Type)

	got, err = idx.Find(Query{Account: alice})
	require.NoError(t, err)
	require.Len(t, got, 2)

	got, err = idx.Find(Query{Type: "credit.deposit"})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Nil(t, got[0].DebtID)

	got, err = idx.Find(Query{After: 2})
	require.NoError(t, err)
	require.Len(t, got, 1)

	resumed, err := New(db, nil)
	require.NoError(t, err)
	emit(resumed, "credit.claim", map[string]string{"creditPositionId": "9223372036854775808"})
	got, err = resumed.Find(Query{After: 3})
	require.NoError(t, err)
	require.Len(t, got, 1)
	require.Equal(t, uint64(4), got[0].Sequence)
}

func TestOpenRejectsUnknownDriver(t *testing.T) {
	_, err := Open("mysql", "x")
	require.Error(t, err)
}
