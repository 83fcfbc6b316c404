package audit

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/stationhq/cdregister/internal/domain/models"
	"github.com/stationhq/cdregister/internal/repository/memory"
)

type fakeSink struct {
	entries []models.AuditEntry
	err     error
}

func (s *fakeSink) Log(_ context.Context, entry models.AuditEntry) error {
	if s.err != nil {
		return s.err
	}
	s.entries = append(s.entries, entry)
	return nil
}

func sampleTx() models.Transaction {
	return models.Transaction{
		ID:           "tx1",
		Type:         models.TxWaste,
		ItemName:     "Morphine Sulphate",
		Quantity:     2,
		BalanceAfter: 18,
		ActingUser:   "Casey Bright",
		ActingUserID: "u1",
		WitnessName:  "Jordan Reeves",
		Notes:        "Damaged ampoule",
	}
}

func TestRecord_DeliversToSink(t *testing.T) {
	sink := &fakeSink{}
	store := memory.NewMemStore()
	ledger := NewLedger(sink, store, nil)

	if err := ledger.Record(context.Background(), sampleTx()); err != nil {
		t.Fatalf("Record: %v", err)
	}

	if len(sink.entries) != 1 {
		t.Fatalf("expected one sink entry, got %d", len(sink.entries))
	}
	entry := sink.entries[0]
	if entry.Category != models.CategoryDrug {
		t.Fatalf("category = %s, want %s", entry.Category, models.CategoryDrug)
	}
	if entry.TxID != "tx1" {
		t.Fatalf("txId = %q, want tx1", entry.TxID)
	}
	if entry.Timestamp.IsZero() {
		t.Fatalf("expected server-assigned timestamp")
	}
	for _, fragment := range []string{"Morphine Sulphate", "balance now 18", "witnessed by Jordan Reeves", "Damaged ampoule"} {
		if !strings.Contains(entry.Detail, fragment) {
			t.Fatalf("detail %q missing %q", entry.Detail, fragment)
		}
	}

	pending, _ := store.PendingAudits(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("delivered entry must not be queued, got %d", len(pending))
	}
}

func TestRecord_QueuesWhenSinkUnavailable(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink down")}
	store := memory.NewMemStore()
	ledger := NewLedger(sink, store, nil)

	if err := ledger.Record(context.Background(), sampleTx()); err != nil {
		t.Fatalf("Record with unavailable sink: %v", err)
	}

	pending, _ := store.PendingAudits(context.Background(), 10)
	if len(pending) != 1 {
		t.Fatalf("expected one queued entry, got %d", len(pending))
	}
}

func TestFlush_DrainsQueueOnceSinkRecovers(t *testing.T) {
	sink := &fakeSink{err: errors.New("sink down")}
	store := memory.NewMemStore()
	ledger := NewLedger(sink, store, nil)

	tx := sampleTx()
	for i := 0; i < 3; i++ {
		if err := ledger.Record(context.Background(), tx); err != nil {
			t.Fatalf("Record %d: %v", i, err)
		}
	}

	// Still down: flush keeps everything queued.
	if err := ledger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush while down: %v", err)
	}
	pending, _ := store.PendingAudits(context.Background(), 10)
	if len(pending) != 3 {
		t.Fatalf("expected 3 queued entries, got %d", len(pending))
	}

	sink.err = nil
	if err := ledger.Flush(context.Background()); err != nil {
		t.Fatalf("Flush after recovery: %v", err)
	}
	pending, _ = store.PendingAudits(context.Background(), 10)
	if len(pending) != 0 {
		t.Fatalf("expected drained queue, got %d entries", len(pending))
	}
	if len(sink.entries) != 3 {
		t.Fatalf("expected 3 delivered entries, got %d", len(sink.entries))
	}
}
