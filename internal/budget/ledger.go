// Package budget tracks tokens consumed against a fixed allowance.
//
// The ledger state is owned by a Store; nothing else mutates the persisted
// document. Stores serialize their read-modify-write cycle so that two
// concurrent RecordUsage calls never lose an increment.
package budget

import (
	"context"
	"math"
	"time"

	"go.uber.org/zap"
)

// HistoryLimit caps the retained usage history, newest first.
const HistoryLimit = 20

// UsageRecord is one billed increment against the allowance.
type UsageRecord struct {
	Timestamp time.Time `json:"timestamp"`
	Tokens    int       `json:"tokens"`
	Label     string    `json:"label"`
}

// State is the persisted ledger document.
type State struct {
	Used    int           `json:"used"`
	History []UsageRecord `json:"history,omitempty"`
}

// Snapshot is a point-in-time view of the ledger.
type Snapshot struct {
	Allowance int `json:"allowance"`
	Used      int `json:"used"`
	Remaining int `json:"remaining"`
}

// Store persists ledger state.
//
// Load returns the zero state when nothing has been persisted yet, or when
// the persisted document is unreadable: the ledger fails open to an empty
// history, never to an unlimited allowance. Update applies fn to the current
// state and persists the result; the whole read-modify-write cycle must be
// serialized against concurrent callers.
type Store interface {
	Load(ctx context.Context) (State, error)
	Update(ctx context.Context, fn func(*State)) (State, error)
	Close() error
}

// Ledger exposes snapshot and atomic-increment operations over a Store.
// The allowance is fixed for the process lifetime.
type Ledger struct {
	allowance int
	store     Store
	log       *zap.Logger
}

// NewLedger creates a ledger with the given allowance. A negative allowance
// is treated as zero.
func NewLedger(allowance int, store Store, log *zap.Logger) *Ledger {
	if allowance < 0 {
		allowance = 0
	}
	if log == nil {
		log = zap.NewNop()
	}
	return &Ledger{allowance: allowance, store: store, log: log}
}

// Allowance returns the fixed token allowance.
func (l *Ledger) Allowance() int {
	return l.allowance
}

// Snapshot returns the current allowance, used and remaining counts. It
// never fails: a store error reads as the zero state.
func (l *Ledger) Snapshot(ctx context.Context) Snapshot {
	st, err := l.store.Load(ctx)
	if err != nil {
		l.log.Warn("ledger load failed, treating as empty", zap.Error(err))
		st = State{}
	}
	return l.snapshotOf(st)
}

// History returns the retained usage records, newest first.
func (l *Ledger) History(ctx context.Context) []UsageRecord {
	st, err := l.store.Load(ctx)
	if err != nil {
		l.log.Warn("ledger load failed, treating as empty", zap.Error(err))
		return nil
	}
	return st.History
}

// RecordUsage bills amount tokens under label and returns the new snapshot.
//
// A non-positive or non-finite amount is a no-op that returns the current
// snapshot; callers pass an unconditional "usage so far" value that may be
// zero when every call failed before being billed. The amount is rounded to
// the nearest token; history entries always carry a positive token count.
func (l *Ledger) RecordUsage(ctx context.Context, amount float64, label string) Snapshot {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount <= 0 {
		return l.Snapshot(ctx)
	}
	tokens := int(math.Round(amount))
	if tokens <= 0 {
		return l.Snapshot(ctx)
	}

	st, err := l.store.Update(ctx, func(s *State) {
		s.Used += tokens
		rec := UsageRecord{Timestamp: time.Now().UTC(), Tokens: tokens, Label: label}
		s.History = append([]UsageRecord{rec}, s.History...)
		if len(s.History) > HistoryLimit {
			s.History = s.History[:HistoryLimit]
		}
	})
	if err != nil {
		l.log.Error("ledger update failed", zap.Error(err), zap.Int("tokens", tokens), zap.String("label", label))
		return l.Snapshot(ctx)
	}

	l.log.Debug("usage recorded",
		zap.Int("tokens", tokens),
		zap.String("label", label),
		zap.Int("used", st.Used))
	return l.snapshotOf(st)
}

func (l *Ledger) snapshotOf(st State) Snapshot {
	remaining := l.allowance - st.Used
	if remaining < 0 {
		remaining = 0
	}
	return Snapshot{Allowance: l.allowance, Used: st.Used, Remaining: remaining}
}
