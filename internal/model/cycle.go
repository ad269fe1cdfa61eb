package model

import (
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
)

// Source says where a cycle's chosen strategy came from.
type Source string

const (
	SourceAdvisory Source = "advisory"
	SourceFallback Source = "fallback-highest-apy"
	SourceNone     Source = "none"
)

// Trigger indicates what started a cycle.
type Trigger string

const (
	TriggerStartup  Trigger = "startup"
	TriggerSchedule Trigger = "schedule"
	TriggerManual   Trigger = "manual"
)

// Outcome is the operational state a cycle ended in.
type Outcome string

const (
	OutcomeExecuted        Outcome = "executed"
	OutcomeTxFailed        Outcome = "tx_failed"
	OutcomeChainReadFailed Outcome = "chain_read_failed"
	OutcomeNoStrategies    Outcome = "skipped_no_strategies"
	OutcomeBusy            Outcome = "skipped_busy"
	OutcomeCancelled       Outcome = "cancelled"
	OutcomePanicked        Outcome = "panicked"
)

// CycleResult records what one scheduler tick did. It lives for one cycle
// and is only handed to observers.
type CycleResult struct {
	ID         uuid.UUID
	Trigger    Trigger
	StartedAt  time.Time
	FinishedAt time.Time

	Snapshot *Snapshot
	Vault    *VaultOverview

	Source         Source
	Strategy       *Strategy
	AdvisoryChoice string
	AdvisoryReason string
	AdvisoryError  string

	TxHash  common.Hash
	Outcome Outcome
	Failure string
}

// Duration returns how long the cycle took.
func (r *CycleResult) Duration() time.Duration {
	if r.FinishedAt.IsZero() {
		return 0
	}
	return r.FinishedAt.Sub(r.StartedAt)
}

// Executed reports whether a harvest transaction was confirmed.
func (r *CycleResult) Executed() bool {
	return r.Outcome == OutcomeExecuted
}
