package metrics

import (
	"errors"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRecordLedgerDecision(t *testing.T) {
	tests := []struct {
		name    string
		allowed bool
		err     error
		result  string
	}{
		{name: "allowed", allowed: true, result: "allowed"},
		{name: "denied", allowed: false, result: "denied"},
		{name: "error wins over allowed flag", allowed: true, err: errors.New("boom"), result: "error"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			before := testutil.ToFloat64(LedgerDecisions.WithLabelValues("test-action", tt.result))
			RecordLedgerDecision("test-action", "memory", tt.allowed, time.Millisecond, tt.err)
			after := testutil.ToFloat64(LedgerDecisions.WithLabelValues("test-action", tt.result))
			if after-before != 1 {
				t.Fatalf("%s counter delta = %v, want 1", tt.result, after-before)
			}
		})
	}
}

func TestRecordSweep(t *testing.T) {
	beforeEntries := testutil.ToFloat64(SweptEntries)
	beforeErr := testutil.ToFloat64(SweepRuns.WithLabelValues("error"))

	RecordSweep(3, nil)
	RecordSweep(0, errors.New("scan failed"))

	if got := testutil.ToFloat64(SweptEntries) - beforeEntries; got != 3 {
		t.Errorf("swept delta = %v, want 3", got)
	}
	if got := testutil.ToFloat64(SweepRuns.WithLabelValues("error")) - beforeErr; got != 1 {
		t.Errorf("error runs delta = %v, want 1", got)
	}
}

func TestRecordStoreOperation(t *testing.T) {
	before := testutil.ToFloat64(StoreErrors.WithLabelValues("test_op"))
	RecordStoreOperation("test_op", time.Millisecond, nil)
	RecordStoreOperation("test_op", time.Millisecond, errors.New("timeout"))
	if got := testutil.ToFloat64(StoreErrors.WithLabelValues("test_op")) - before; got != 1 {
		t.Fatalf("store errors delta = %v, want 1", got)
	}
}
