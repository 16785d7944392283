package metrics

import (
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
)

func TestRefreshCycles_Labels(t *testing.T) {
	before := testutil.ToFloat64(RefreshCycles.WithLabelValues("manual", "success"))
	RefreshCycles.WithLabelValues("manual", "success").Inc()
	after := testutil.ToFloat64(RefreshCycles.WithLabelValues("manual", "success"))

	if after-before != 1 {
		t.Errorf("expected counter to increase by 1, got %v", after-before)
	}
}

func TestBoolGauge(t *testing.T) {
	if BoolGauge(true) != 1 || BoolGauge(false) != 0 {
		t.Error("BoolGauge should map true→1 and false→0")
	}
}
