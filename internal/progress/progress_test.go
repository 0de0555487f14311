package progress

import (
	"context"
	"errors"
	"fmt"
	"testing"
)

func strPtr(s string) *string { return &s }
func intPtr(n int) *int       { return &n }

func TestMemoryStore_UpdateCreatesEntry(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	err := s.Update(ctx, "run-1", Update{
		Status: strPtr("processing"),
		Total:  intPtr(7),
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := s.Read(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Status != "processing" || entry.Total != 7 {
		t.Errorf("expected processing/7, got %s/%d", entry.Status, entry.Total)
	}
	if entry.StartedAt.IsZero() {
		t.Error("expected StartedAt set on first update")
	}
	if entry.UpdatedAt.IsZero() {
		t.Error("expected UpdatedAt set")
	}
}

func TestMemoryStore_PartialUpdateLeavesOtherFields(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Update(ctx, "run-1", Update{
		Status:           strPtr("processing"),
		Sent:             intPtr(3),
		Total:            intPtr(7),
		CurrentRecipient: strPtr("+5511000001"),
	}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Update(ctx, "run-1", Update{Sent: intPtr(4)}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	entry, err := s.Read(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if entry.Sent != 4 {
		t.Errorf("expected Sent 4, got %d", entry.Sent)
	}
	if entry.Status != "processing" || entry.Total != 7 || entry.CurrentRecipient != "+5511000001" {
		t.Errorf("expected untouched fields preserved, got %+v", entry)
	}
}

func TestMemoryStore_NextMessageAtSetAndCleared(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	at := int64(1700000000000)
	if err := s.Update(ctx, "run-1", Update{NextMessageAt: &at}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, _ := s.Read(ctx, "run-1")
	if entry.NextMessageAt == nil || *entry.NextMessageAt != at {
		t.Fatalf("expected NextMessageAt %d, got %v", at, entry.NextMessageAt)
	}

	if err := s.Update(ctx, "run-1", Update{ClearNextMessage: true}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	entry, _ = s.Read(ctx, "run-1")
	if entry.NextMessageAt != nil {
		t.Errorf("expected NextMessageAt cleared, got %v", *entry.NextMessageAt)
	}
}

func TestMemoryStore_LogRingEvictsOldest(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	for i := 0; i < 250; i++ {
		line := fmt.Sprintf("line %d", i)
		if err := s.Update(ctx, "run-1", Update{AppendLog: &line}); err != nil {
			t.Fatalf("unexpected error: %v", err)
		}
	}

	entry, err := s.Read(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(entry.Logs) != maxLogEntries {
		t.Fatalf("expected %d log lines, got %d", maxLogEntries, len(entry.Logs))
	}
	if entry.Logs[0].Message != "line 50" {
		t.Errorf("expected oldest retained line to be 'line 50', got %q", entry.Logs[0].Message)
	}
	if entry.Logs[len(entry.Logs)-1].Message != "line 249" {
		t.Errorf("expected newest line to be 'line 249', got %q", entry.Logs[len(entry.Logs)-1].Message)
	}
}

func TestMemoryStore_ReadReturnsIsolatedSnapshot(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	line := "first"
	if err := s.Update(ctx, "run-1", Update{AppendLog: &line}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	snapshot, err := s.Read(ctx, "run-1")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	snapshot.Logs[0].Message = "mutated"
	snapshot.Status = "mutated"

	entry, _ := s.Read(ctx, "run-1")
	if entry.Logs[0].Message != "first" {
		t.Errorf("expected the stored log untouched, got %q", entry.Logs[0].Message)
	}
	if entry.Status == "mutated" {
		t.Error("expected the stored status untouched")
	}
}

func TestMemoryStore_ReadMissingKey(t *testing.T) {
	s := NewMemoryStore()

	_, err := s.Read(context.Background(), "missing")
	if !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_Delete(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	if err := s.Update(ctx, "run-1", Update{Status: strPtr("completed")}); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if err := s.Delete(ctx, "run-1"); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := s.Read(ctx, "run-1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound after delete, got %v", err)
	}

	// Deleting a missing key is a no-op.
	if err := s.Delete(ctx, "missing"); err != nil {
		t.Errorf("unexpected error: %v", err)
	}
}
