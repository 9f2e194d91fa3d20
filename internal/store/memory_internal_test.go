package store

import (
	"context"
	"testing"
	"time"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

func frozenClock(at time.Time) func() time.Time {
	return func() time.Time { return at }
}

func TestNextStamp(t *testing.T) {
	base := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)

	if got := nextStamp(base, time.Time{}, time.Millisecond); !got.Equal(base) {
		t.Fatalf("expected %v with zero prev, got %v", base, got)
	}
	if got := nextStamp(base, base, time.Millisecond); !got.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("expected bump by resolution, got %v", got)
	}
	later := base.Add(time.Second)
	if got := nextStamp(later, base, time.Millisecond); !got.Equal(later) {
		t.Fatalf("expected wall clock when it advanced, got %v", got)
	}
	if got := nextStamp(base.Add(1500*time.Microsecond), time.Time{}, time.Millisecond); !got.Equal(base.Add(time.Millisecond)) {
		t.Fatalf("expected truncation to resolution, got %v", got)
	}
}

func TestMemoryStoreFrozenClockKeepsOrdering(t *testing.T) {
	s := NewMemoryStore()
	s.now = frozenClock(time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC))
	ctx := context.Background()

	first, err := s.CreateConversation(ctx, CreateInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	second, err := s.CreateConversation(ctx, CreateInput{})
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if !second.CreatedAt.After(first.CreatedAt) {
		t.Fatalf("expected distinct creation stamps under a frozen clock")
	}

	a, err := s.AddMessage(ctx, first.ID, "a", models.SenderUser)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	b, err := s.AddMessage(ctx, first.ID, "b", models.SenderAI)
	if err != nil {
		t.Fatalf("add: %v", err)
	}
	if !b.Timestamp.After(a.Timestamp) {
		t.Fatalf("expected strictly increasing timestamps, got %v then %v", a.Timestamp, b.Timestamp)
	}
	if !a.Timestamp.After(first.CreatedAt) {
		t.Fatalf("expected first message after creation")
	}

	title := "x"
	updated, err := s.UpdateConversation(ctx, first.ID, Update{Title: &title})
	if err != nil {
		t.Fatalf("update: %v", err)
	}
	if !updated.UpdatedAt.After(b.Timestamp) {
		t.Fatalf("expected updatedAt to move past the last message")
	}
}

func TestMemoryStoreListTiesKeepInsertionOrder(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	var ids []string
	for i := 0; i < 3; i++ {
		conv, err := s.CreateConversation(ctx, CreateInput{})
		if err != nil {
			t.Fatalf("create: %v", err)
		}
		ids = append(ids, conv.ID)
	}

	// force a tie between the first two records
	same := time.Date(2024, time.May, 1, 12, 0, 0, 0, time.UTC)
	s.conversations[ids[0]].CreatedAt = same
	s.conversations[ids[1]].CreatedAt = same
	s.conversations[ids[2]].CreatedAt = same.Add(-time.Hour)

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	for i, want := range []string{ids[0], ids[1], ids[2]} {
		if list[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
}

func TestMemoryStoreDeleteKeepsOrderIndex(t *testing.T) {
	s := NewMemoryStore()
	ctx := context.Background()

	a, _ := s.CreateConversation(ctx, CreateInput{})
	b, _ := s.CreateConversation(ctx, CreateInput{})
	if err := s.DeleteConversation(ctx, a.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}

	if s.Len() != 1 || len(s.order) != 1 || s.order[0] != b.ID {
		t.Fatalf("unexpected state after delete: len=%d order=%v", s.Len(), s.order)
	}
}
