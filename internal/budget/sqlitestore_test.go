package budget

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"go.uber.org/zap"
)

func newSQLiteLedger(t *testing.T, allowance int) *Ledger {
	t.Helper()
	store, err := NewSQLiteStore(filepath.Join(t.TempDir(), "ledger.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return NewLedger(allowance, store, zap.NewNop())
}

func TestSQLiteStore_RoundTrip(t *testing.T) {
	l := newSQLiteLedger(t, 1000)
	ctx := context.Background()

	snap := l.RecordUsage(ctx, 150, "first")
	if snap.Used != 150 || snap.Remaining != 850 {
		t.Fatalf("snapshot = %+v, want used=150 remaining=850", snap)
	}

	snap = l.RecordUsage(ctx, 50, "second")
	if snap.Used != 200 {
		t.Fatalf("used = %d, want 200", snap.Used)
	}

	h := l.History(ctx)
	if len(h) != 2 {
		t.Fatalf("history length = %d, want 2", len(h))
	}
	if h[0].Label != "second" || h[1].Label != "first" {
		t.Fatalf("history order = [%s %s], want newest first", h[0].Label, h[1].Label)
	}
}

func TestSQLiteStore_HistoryCap(t *testing.T) {
	l := newSQLiteLedger(t, 100000)
	ctx := context.Background()

	for i := 1; i <= HistoryLimit+5; i++ {
		l.RecordUsage(ctx, float64(i), fmt.Sprintf("call-%d", i))
	}

	h := l.History(ctx)
	if len(h) != HistoryLimit {
		t.Fatalf("history length = %d, want %d", len(h), HistoryLimit)
	}
	if h[0].Label != fmt.Sprintf("call-%d", HistoryLimit+5) {
		t.Fatalf("history[0] = %+v, want newest entry", h[0])
	}
}

func TestSQLiteStore_PersistsAcrossReopen(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "ledger.db")
	ctx := context.Background()

	store, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	l := NewLedger(500, store, zap.NewNop())
	l.RecordUsage(ctx, 75, "before restart")
	if err := store.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}

	store2, err := NewSQLiteStore(path)
	if err != nil {
		t.Fatalf("NewSQLiteStore (reopen): %v", err)
	}
	defer store2.Close()
	l2 := NewLedger(500, store2, zap.NewNop())
	snap := l2.Snapshot(ctx)
	if snap.Used != 75 || snap.Remaining != 425 {
		t.Fatalf("snapshot after reopen = %+v, want used=75 remaining=425", snap)
	}
}
