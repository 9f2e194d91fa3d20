// Package storetest runs the behavioural contract of store.Store against any backend.
package storetest

import (
	"context"
	"encoding/json"
	"errors"
	"reflect"
	"testing"
	"time"

	"github.com/wuwenbin0122/lovelens/internal/models"
	"github.com/wuwenbin0122/lovelens/internal/store"
)

// Factory returns an empty store; cleanup is registered on t.
type Factory func(t *testing.T) store.Store

func Run(t *testing.T, newStore Factory) {
	t.Helper()

	cases := []struct {
		name string
		fn   func(*testing.T, store.Store)
	}{
		{"CreateAssignsUniqueIDs", testCreateAssignsUniqueIDs},
		{"CreateDefaultsTitle", testCreateDefaultsTitle},
		{"CreateExplicitIDConflict", testCreateExplicitIDConflict},
		{"GetMissing", testGetMissing},
		{"AddMessageSequential", testAddMessageSequential},
		{"AddMessageMissingConversation", testAddMessageMissingConversation},
		{"AddMessageInvalidSender", testAddMessageInvalidSender},
		{"UpdateMergesSuppliedFields", testUpdateMergesSuppliedFields},
		{"UpdateMissing", testUpdateMissing},
		{"DeleteIsIdempotent", testDeleteIsIdempotent},
		{"ListNewestFirst", testListNewestFirst},
		{"ReturnedValuesAreCopies", testReturnedValuesAreCopies},
	}

	for _, tc := range cases {
		tc := tc
		t.Run(tc.name, func(t *testing.T) {
			tc.fn(t, newStore(t))
		})
	}
}

func mustCreate(t *testing.T, s store.Store, input store.CreateInput) *models.Conversation {
	t.Helper()
	conv, err := s.CreateConversation(context.Background(), input)
	if err != nil {
		t.Fatalf("create conversation: %v", err)
	}
	return conv
}

func testCreateAssignsUniqueIDs(t *testing.T, s store.Store) {
	seen := make(map[string]struct{})
	for i := 0; i < 5; i++ {
		conv := mustCreate(t, s, store.CreateInput{Title: "t", Summary: "s"})
		if conv.ID == "" {
			t.Fatalf("expected generated id")
		}
		if _, dup := seen[conv.ID]; dup {
			t.Fatalf("duplicate id %s", conv.ID)
		}
		seen[conv.ID] = struct{}{}

		if !conv.CreatedAt.Equal(conv.UpdatedAt) {
			t.Fatalf("expected createdAt == updatedAt, got %v and %v", conv.CreatedAt, conv.UpdatedAt)
		}
		if len(conv.Messages) != 0 {
			t.Fatalf("expected empty message list, got %d", len(conv.Messages))
		}
	}
}

func testCreateDefaultsTitle(t *testing.T, s store.Store) {
	conv := mustCreate(t, s, store.CreateInput{})
	if conv.Title != models.DefaultTitle {
		t.Fatalf("expected default title, got %q", conv.Title)
	}

	fetched, err := s.GetConversation(context.Background(), conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if fetched.Title != models.DefaultTitle || fetched.Summary != "" {
		t.Fatalf("unexpected stored fields %+v", fetched)
	}
}

func testCreateExplicitIDConflict(t *testing.T, s store.Store) {
	conv := mustCreate(t, s, store.CreateInput{ID: "fixed-id", Title: "first"})
	if conv.ID != "fixed-id" {
		t.Fatalf("expected explicit id to be kept, got %s", conv.ID)
	}

	_, err := s.CreateConversation(context.Background(), store.CreateInput{ID: "fixed-id", Title: "second"})
	if !errors.Is(err, store.ErrConflict) {
		t.Fatalf("expected ErrConflict, got %v", err)
	}

	fetched, err := s.GetConversation(context.Background(), "fixed-id")
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if fetched.Title != "first" {
		t.Fatalf("conflicting create overwrote title: %q", fetched.Title)
	}
}

func testGetMissing(t *testing.T, s store.Store) {
	_, err := s.GetConversation(context.Background(), "missing")
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testAddMessageSequential(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreate(t, s, store.CreateInput{Title: "t"})

	const n = 5
	var last time.Time
	for i := 1; i <= n; i++ {
		sender := models.SenderUser
		if i%2 == 0 {
			sender = models.SenderAI
		}

		msg, err := s.AddMessage(ctx, conv.ID, "message", sender)
		if err != nil {
			t.Fatalf("add message %d: %v", i, err)
		}
		if msg.ID != i {
			t.Fatalf("expected message id %d, got %d", i, msg.ID)
		}
		if msg.ConversationID != conv.ID || msg.Sender != sender {
			t.Fatalf("unexpected message %+v", msg)
		}
		if !msg.Timestamp.After(last) {
			t.Fatalf("timestamp %v not after %v", msg.Timestamp, last)
		}
		last = msg.Timestamp
	}

	fetched, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if len(fetched.Messages) != n {
		t.Fatalf("expected %d messages, got %d", n, len(fetched.Messages))
	}
	for i, msg := range fetched.Messages {
		if msg.ID != i+1 {
			t.Fatalf("expected ordered ids, got %d at %d", msg.ID, i)
		}
	}
	if !fetched.UpdatedAt.Equal(last) {
		t.Fatalf("expected updatedAt %v to equal last message timestamp %v", fetched.UpdatedAt, last)
	}
	if fetched.UpdatedAt.Before(fetched.CreatedAt) {
		t.Fatalf("updatedAt before createdAt")
	}
}

func testAddMessageMissingConversation(t *testing.T, s store.Store) {
	ctx := context.Background()

	_, err := s.AddMessage(ctx, "missing", "hello", models.SenderUser)
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected no conversations after failed append, got %d", len(list))
	}
}

func testAddMessageInvalidSender(t *testing.T, s store.Store) {
	conv := mustCreate(t, s, store.CreateInput{})

	_, err := s.AddMessage(context.Background(), conv.ID, "hello", models.Sender("system"))
	if !errors.Is(err, store.ErrInvalidSender) {
		t.Fatalf("expected ErrInvalidSender, got %v", err)
	}
}

func testUpdateMergesSuppliedFields(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreate(t, s, store.CreateInput{Title: "original", Summary: "kept"})

	title := "renamed"
	updated, err := s.UpdateConversation(ctx, conv.ID, store.Update{Title: &title})
	if err != nil {
		t.Fatalf("update title: %v", err)
	}
	if updated.Title != "renamed" || updated.Summary != "kept" || updated.Insights != nil {
		t.Fatalf("unexpected merge result %+v", updated)
	}
	if !updated.UpdatedAt.After(conv.UpdatedAt) {
		t.Fatalf("expected updatedAt to increase: %v -> %v", conv.UpdatedAt, updated.UpdatedAt)
	}
	if !updated.CreatedAt.Equal(conv.CreatedAt) {
		t.Fatalf("createdAt changed on update")
	}

	insights := json.RawMessage(`{"reflectionQuestions":["why?"]}`)
	again, err := s.UpdateConversation(ctx, conv.ID, store.Update{Insights: insights})
	if err != nil {
		t.Fatalf("update insights: %v", err)
	}
	if again.Title != "renamed" || again.Summary != "kept" {
		t.Fatalf("unsupplied fields changed: %+v", again)
	}
	assertSameJSON(t, insights, again.Insights)
	if !again.UpdatedAt.After(updated.UpdatedAt) {
		t.Fatalf("expected updatedAt to increase: %v -> %v", updated.UpdatedAt, again.UpdatedAt)
	}

	noop, err := s.UpdateConversation(ctx, conv.ID, store.Update{})
	if err != nil {
		t.Fatalf("empty update: %v", err)
	}
	if !noop.UpdatedAt.After(again.UpdatedAt) {
		t.Fatalf("expected empty update to refresh updatedAt")
	}
}

func testUpdateMissing(t *testing.T, s store.Store) {
	title := "x"
	_, err := s.UpdateConversation(context.Background(), "missing", store.Update{Title: &title})
	if !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound, got %v", err)
	}
}

func testDeleteIsIdempotent(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreate(t, s, store.CreateInput{})
	if _, err := s.AddMessage(ctx, conv.ID, "hello", models.SenderUser); err != nil {
		t.Fatalf("add message: %v", err)
	}

	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if err := s.DeleteConversation(ctx, conv.ID); err != nil {
		t.Fatalf("second delete: %v", err)
	}
	if err := s.DeleteConversation(ctx, "never-existed"); err != nil {
		t.Fatalf("delete of unknown id: %v", err)
	}

	if _, err := s.GetConversation(ctx, conv.ID); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected ErrNotFound after delete, got %v", err)
	}
	if _, err := s.AddMessage(ctx, conv.ID, "again", models.SenderUser); !errors.Is(err, store.ErrNotFound) {
		t.Fatalf("expected append to deleted conversation to fail, got %v", err)
	}
}

func testListNewestFirst(t *testing.T, s store.Store) {
	ctx := context.Background()

	list, err := s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list empty store: %v", err)
	}
	if len(list) != 0 {
		t.Fatalf("expected empty list, got %d", len(list))
	}

	var ids []string
	for i := 0; i < 3; i++ {
		ids = append(ids, mustCreate(t, s, store.CreateInput{}).ID)
		// keep creation stamps distinct on millisecond-precision backends
		time.Sleep(2 * time.Millisecond)
	}
	if _, err := s.AddMessage(ctx, ids[0], "bump", models.SenderUser); err != nil {
		t.Fatalf("add message: %v", err)
	}

	list, err = s.ListConversations(ctx)
	if err != nil {
		t.Fatalf("list conversations: %v", err)
	}
	if len(list) != 3 {
		t.Fatalf("expected 3 conversations, got %d", len(list))
	}
	for i, want := range []string{ids[2], ids[1], ids[0]} {
		if list[i].ID != want {
			t.Fatalf("position %d: expected %s, got %s", i, want, list[i].ID)
		}
	}
	if len(list[2].Messages) != 1 {
		t.Fatalf("expected listed conversation to include messages")
	}
}

func testReturnedValuesAreCopies(t *testing.T, s store.Store) {
	ctx := context.Background()
	conv := mustCreate(t, s, store.CreateInput{Title: "t"})
	if _, err := s.AddMessage(ctx, conv.ID, "original", models.SenderUser); err != nil {
		t.Fatalf("add message: %v", err)
	}

	fetched, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	fetched.Title = "mutated"
	fetched.Messages[0].Content = "mutated"

	again, err := s.GetConversation(ctx, conv.ID)
	if err != nil {
		t.Fatalf("get conversation: %v", err)
	}
	if again.Title != "t" || again.Messages[0].Content != "original" {
		t.Fatalf("store state changed through returned value: %+v", again)
	}
}

func assertSameJSON(t *testing.T, want, got json.RawMessage) {
	t.Helper()
	var w, g any
	if err := json.Unmarshal(want, &w); err != nil {
		t.Fatalf("decode expected json: %v", err)
	}
	if err := json.Unmarshal(got, &g); err != nil {
		t.Fatalf("decode stored json %q: %v", got, err)
	}
	if !reflect.DeepEqual(w, g) {
		t.Fatalf("expected %s, got %s", want, got)
	}
}
