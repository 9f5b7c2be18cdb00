package conversation

import (
	"context"
	"errors"
	"testing"
)

func TestInMemoryStoreAppendAndReset(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()

	for _, msg := range []string{"one", "two", "three"} {
		if _, err := s.Append(ctx, "p1", false, Turn{Role: RoleUser, Content: msg}); err != nil {
			t.Fatalf("Append() error = %v", err)
		}
	}
	got, err := s.Load(ctx, "p1")
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if len(got) != 3 {
		t.Fatalf("len(transcript) = %d, want 3", len(got))
	}

	got, err = s.Append(ctx, "p1", true, Turn{Role: RoleUser, Content: "restart"})
	if err != nil {
		t.Fatalf("Append(reset) error = %v", err)
	}
	if len(got) != 1 || got[0].Content != "restart" {
		t.Fatalf("transcript after reset = %+v, want single restart turn", got)
	}
}

func TestInMemoryStoreRejectsSystemTurn(t *testing.T) {
	s := NewInMemoryStore()
	_, err := s.Append(context.Background(), "p1", false, Turn{Role: RoleSystem, Content: "x"})
	if !errors.Is(err, ErrSystemTurn) {
		t.Fatalf("Append() error = %v, want ErrSystemTurn", err)
	}
	got, _ := s.Load(context.Background(), "p1")
	if len(got) != 0 {
		t.Fatalf("transcript should stay empty, got %+v", got)
	}
}

func TestInMemoryStoreLoadReturnsCopy(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	if _, err := s.Append(ctx, "p1", false, Turn{Role: RoleUser, Content: "hello"}); err != nil {
		t.Fatalf("Append() error = %v", err)
	}

	got, _ := s.Load(ctx, "p1")
	got[0].Content = "mutated"

	again, _ := s.Load(ctx, "p1")
	if again[0].Content != "hello" {
		t.Fatalf("stored turn was mutated through Load(): %q", again[0].Content)
	}
}

func TestInMemoryStoreDelete(t *testing.T) {
	ctx := context.Background()
	s := NewInMemoryStore()
	_, _ = s.Append(ctx, "p1", false, Turn{Role: RoleUser, Content: "hello"})
	if err := s.Delete(ctx, "p1"); err != nil {
		t.Fatalf("Delete() error = %v", err)
	}
	got, _ := s.Load(ctx, "p1")
	if got == nil || len(got) != 0 {
		t.Fatalf("Load() after delete = %#v, want empty non-nil transcript", got)
	}
}

func TestTranscriptLastUser(t *testing.T) {
	tr := Transcript{
		{Role: RoleUser, Content: "first"},
		{Role: RoleAssistant, Content: "reply"},
		{Role: RoleUser, Content: "second"},
		{Role: RoleAssistant, Content: "reply 2"},
	}
	got, ok := tr.LastUser()
	if !ok || got != "second" {
		t.Fatalf("LastUser() = %q, %v; want %q, true", got, ok, "second")
	}
	if _, ok := (Transcript{}).LastUser(); ok {
		t.Fatalf("LastUser() on empty transcript should report false")
	}
}
