package observability

import (
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/require"

	"fixedcredit/core/types"
)

type liquidationEvent struct{ evt *types.Event }

func (l liquidationEvent) EventType() string   { return l.evt.Type }
func (l liquidationEvent) Event() *types.Event { return l.evt }

func TestCreditMetricsCountEvents(t *testing.T) {
	m := newCreditMetrics()
	m.Emit(liquidationEvent{evt: &types.Event{Type: "credit.liquidate", Attributes: map[string]string{"overdue": "true"}}})
	m.Emit(liquidationEvent{evt: &types.Event{Type: "credit.repay"}})

	require.Equal(t, 1.0, testutil.ToFloat64(m.events.WithLabelValues("credit.repay")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.liquidations.WithLabelValues("liquidate", "true")))
	require.Equal(t, 0.0, testutil.ToFloat64(m.liquidations.WithLabelValues("liquidate", "false")))
}

func TestCreditMetricsObserve(t *testing.T) {
	m := newCreditMetrics()
	m.Observe("repay", 200, 10*time.Millisecond)
	m.Observe("", 400, time.Millisecond)
	m.RecordThrottle("")
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("repay", "200")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.requests.WithLabelValues("unknown", "400")))
	require.Equal(t, 1.0, testutil.ToFloat64(m.throttles.WithLabelValues("unspecified")))

	var nilMetrics *CreditMetrics
	nilMetrics.Observe("repay", 200, time.Second)
}
