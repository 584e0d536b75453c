package budget

import (
	"testing"
	"time"

	"github.com/forge-hdr/controlplane/internal/bus"
)

func TestLedger_RecordCost_AccumulatesDayAndMonth(t *testing.T) {
	b := bus.New(nil)
	l := NewLedger(b, 1000, 100, 80, 100, 1000)

	l.RecordCost(50)
	l.RecordCost(25)

	status := l.GetBudgetStatus()
	if status.CostIncurredMonth != 75 || status.CostIncurredDay != 75 {
		t.Errorf("expected day=75 month=75, got %+v", status)
	}
}

func TestLedger_AlertThresholdExceeded(t *testing.T) {
	b := bus.New(nil)
	alerted := make(chan struct{}, 1)
	b.Subscribe(TopicAlertThresholdExceeded, func(interface{}) { alerted <- struct{}{} })

	l := NewLedger(b, 1000, 100, 80, 100, 1000)
	l.RecordCost(850) // 85% of monthly budget

	select {
	case <-alerted:
	case <-time.After(time.Second):
		t.Fatal("expected budget:alertThresholdExceeded to be published")
	}
}

func TestLedger_HardLimitExceeded_DeniesAdmission(t *testing.T) {
	b := bus.New(nil)
	hardLimited := make(chan struct{}, 1)
	b.Subscribe(TopicHardLimitExceeded, func(interface{}) { hardLimited <- struct{}{} })

	l := NewLedger(b, 1000, 100, 80, 100, 1000)
	l.RecordCost(1000)

	select {
	case <-hardLimited:
	case <-time.After(time.Second):
		t.Fatal("expected budget:hardLimitExceeded to be published")
	}

	if l.AdmitCost() {
		t.Error("expected AdmitCost to be denied after hard limit crossed")
	}
}

func TestLedger_AlertArmedOncePerCrossing(t *testing.T) {
	b := bus.New(nil)
	var count int
	b.Subscribe(TopicAlertThresholdExceeded, func(interface{}) { count++ })

	l := NewLedger(b, 1000, 100, 80, 100, 1000)
	l.RecordCost(850)
	l.RecordCost(10)
	l.RecordCost(10)

	if count != 1 {
		t.Errorf("expected exactly one alert per crossing, got %d", count)
	}
}

func TestLedger_HistoryRecordsPercentUsedPerCall(t *testing.T) {
	b := bus.New(nil)
	l := NewLedger(b, 1000, 100, 80, 100, 1000)

	l.RecordCost(100)
	l.RecordCost(100)

	history := l.History()
	if len(history) != 2 {
		t.Fatalf("expected 2 history entries, got %d", len(history))
	}
	if history[0] != 10 || history[1] != 20 {
		t.Errorf("expected percent-used history [10, 20], got %v", history)
	}
}
