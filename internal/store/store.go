// Package store holds conversations and their ordered message lists.
package store

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

var (
	ErrNotFound      = errors.New("store: conversation not found")
	ErrConflict      = errors.New("store: conversation already exists")
	ErrInvalidSender = errors.New("store: invalid message sender")
)

// Store is the access contract for conversations. Every call is atomic with
// respect to other calls on the same store, and returned values are copies.
type Store interface {
	// ListConversations returns all conversations, newest createdAt first.
	ListConversations(ctx context.Context) ([]models.Conversation, error)
	GetConversation(ctx context.Context, id string) (*models.Conversation, error)
	CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error)
	// UpdateConversation changes only the supplied fields and always refreshes updatedAt.
	UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error)
	// DeleteConversation succeeds whether or not the conversation exists.
	DeleteConversation(ctx context.Context, id string) error
	// AddMessage appends the next sequential message; it fails with ErrNotFound
	// without side effects when the conversation is unknown.
	AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error)
	Close() error
}

// CreateInput describes a new conversation. An empty ID is replaced by a fresh
// uuid and an empty title by models.DefaultTitle.
type CreateInput struct {
	ID      string
	Title   string
	Summary string
}

// Update carries the optional fields of a partial update. Nil pointers and a
// nil Insights leave the stored value untouched.
type Update struct {
	Title    *string
	Summary  *string
	Insights json.RawMessage
}

// IsEmpty reports whether no field is supplied.
func (u Update) IsEmpty() bool {
	return u.Title == nil && u.Summary == nil && u.Insights == nil
}

func (u Update) apply(conv *models.Conversation) {
	if u.Title != nil {
		conv.Title = *u.Title
	}
	if u.Summary != nil {
		conv.Summary = *u.Summary
	}
	if u.Insights != nil {
		conv.Insights = append(json.RawMessage(nil), u.Insights...)
	}
}

func normalizeCreate(input CreateInput, newID func() string) CreateInput {
	input.ID = strings.TrimSpace(input.ID)
	if input.ID == "" {
		input.ID = newID()
	}
	if strings.TrimSpace(input.Title) == "" {
		input.Title = models.DefaultTitle
	}
	return input
}

// nextStamp returns now at the given resolution, pushed past prev when the clock
// has not advanced beyond it. It keeps per-conversation timestamps strictly
// increasing.
func nextStamp(now, prev time.Time, resolution time.Duration) time.Time {
	if resolution <= 0 {
		resolution = time.Nanosecond
	}
	stamp := now.UTC().Truncate(resolution)
	if !prev.IsZero() && !stamp.After(prev) {
		stamp = prev.UTC().Add(resolution)
	}
	return stamp
}

// sortNewestFirst orders by createdAt descending; input order breaks ties.
func sortNewestFirst(conversations []models.Conversation) {
	sort.SliceStable(conversations, func(i, j int) bool {
		return conversations[i].CreatedAt.After(conversations[j].CreatedAt)
	})
}

func newMessage(conv *models.Conversation, content string, sender models.Sender, now time.Time, resolution time.Duration) models.Message {
	prev := conv.UpdatedAt
	if n := len(conv.Messages); n > 0 && conv.Messages[n-1].Timestamp.After(prev) {
		prev = conv.Messages[n-1].Timestamp
	}

	msg := models.Message{
		ID:             len(conv.Messages) + 1,
		ConversationID: conv.ID,
		Content:        content,
		Sender:         sender,
		Timestamp:      nextStamp(now, prev, resolution),
	}
	conv.Messages = append(conv.Messages, msg)
	conv.UpdatedAt = msg.Timestamp
	return msg
}
