package budget

import (
	"sync"
	"time"

	"github.com/forge-hdr/controlplane/internal/bus"
)

const (
	TopicAlertThresholdExceeded = "budget:alertThresholdExceeded"
	TopicHardLimitExceeded      = "budget:hardLimitExceeded"
	TopicCostIncurred           = "cost:incurred"
)

// Status is a read-only snapshot of the ledger; callers must not mutate it.
type Status struct {
	MonthlyBudget    float64
	DailyBudget      float64
	CostIncurredDay  float64
	CostIncurredMonth float64
	AlertThreshold   float64
	HardLimit        float64
	AlertArmed       bool
	HardLimitReached bool
}

// Ledger is the Budget Enforcer (C5). It subscribes to cost:incurred
// events and tracks daily/monthly spend against configured thresholds.
type Ledger struct {
	bus *bus.Bus

	mu                sync.Mutex
	monthlyBudget     float64
	dailyBudget       float64
	alertThresholdPct float64
	hardLimitPct      float64

	costDay   float64
	costMonth float64

	lastResetDay   int
	lastResetMonth time.Month

	// alertArmed is true once an alert has fired for the current
	// month, re-armed only on monthly reset (spec: "once per crossing,
	// re-armed after reset").
	alertArmed bool
	hardLimitHit bool

	// history is the bounded cost-update history ring (percent of monthly
	// budget used at each RecordCost call), consumed by the Policy
	// Optimizer's cost-trend analysis.
	history          []float64
	historyRetention int
}

// NewLedger creates a Ledger. alertThresholdPct and hardLimitPct are
// percentages (e.g. 80, 100). historyRetention bounds the cost-update
// history ring; values below 1 fall back to 1000.
func NewLedger(b *bus.Bus, monthlyBudget, dailyBudget, alertThresholdPct, hardLimitPct float64, historyRetention int) *Ledger {
	if historyRetention < 1 {
		historyRetention = 1000
	}
	now := time.Now()
	return &Ledger{
		bus:               b,
		monthlyBudget:     monthlyBudget,
		dailyBudget:       dailyBudget,
		alertThresholdPct: alertThresholdPct,
		hardLimitPct:      hardLimitPct,
		lastResetDay:      now.YearDay(),
		lastResetMonth:    now.Month(),
		historyRetention:  historyRetention,
	}
}

// Subscribe wires the ledger to cost:incurred events on b. Call once
// during startup.
func (l *Ledger) Subscribe() {
	l.bus.Subscribe(TopicCostIncurred, func(payload interface{}) {
		event, ok := payload.(map[string]interface{})
		if !ok {
			return
		}
		cost, _ := event["cost"].(float64)
		l.RecordCost(cost)
	})
}

// RecordCost applies a cost event, resetting daily/monthly counters on
// date/month change first, then emitting threshold events as crossed.
func (l *Ledger) RecordCost(cost float64) {
	l.mu.Lock()
	defer l.mu.Unlock()

	now := time.Now()
	if now.YearDay() != l.lastResetDay {
		l.costDay = 0
		l.lastResetDay = now.YearDay()
	}
	if now.Month() != l.lastResetMonth {
		l.costMonth = 0
		l.lastResetMonth = now.Month()
		l.alertArmed = false
		l.hardLimitHit = false
	}

	l.costDay += cost
	l.costMonth += cost

	pctUsed := 0.0
	if l.monthlyBudget > 0 {
		pctUsed = (l.costMonth / l.monthlyBudget) * 100
	}

	if !l.hardLimitHit && pctUsed >= l.hardLimitPct {
		l.hardLimitHit = true
		l.bus.Publish(TopicHardLimitExceeded, map[string]interface{}{"percentUsed": pctUsed})
	} else if !l.alertArmed && pctUsed >= l.alertThresholdPct {
		l.alertArmed = true
		l.bus.Publish(TopicAlertThresholdExceeded, map[string]interface{}{"percentUsed": pctUsed})
	}

	l.history = append(l.history, pctUsed)
	if len(l.history) > l.historyRetention {
		l.history = l.history[len(l.history)-l.historyRetention:]
	}
}

// AdmitCost reports whether a cost-admission query is allowed: denied once
// the hard limit has been crossed for the current month, until reset.
func (l *Ledger) AdmitCost() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return !l.hardLimitHit
}

// GetBudgetStatus returns a snapshot of the ledger. Callers must not
// mutate it.
func (l *Ledger) GetBudgetStatus() Status {
	l.mu.Lock()
	defer l.mu.Unlock()
	return Status{
		MonthlyBudget:     l.monthlyBudget,
		DailyBudget:       l.dailyBudget,
		CostIncurredDay:   l.costDay,
		CostIncurredMonth: l.costMonth,
		AlertThreshold:    l.alertThresholdPct,
		HardLimit:         l.hardLimitPct,
		AlertArmed:        l.alertArmed,
		HardLimitReached:  l.hardLimitHit,
	}
}

// History returns a copy of the bounded percent-used history ring, one
// entry per RecordCost call, for the Policy Optimizer's cost-trend
// analysis.
func (l *Ledger) History() []float64 {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]float64, len(l.history))
	copy(out, l.history)
	return out
}
