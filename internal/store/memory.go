package store

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

// MemoryStore keeps conversations in a process-local map. Nothing survives a restart.
type MemoryStore struct {
	mu            sync.RWMutex
	conversations map[string]*models.Conversation
	order         []string
	lastCreated   time.Time

	now   func() time.Time
	newID func() string
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		conversations: make(map[string]*models.Conversation),
		now:           time.Now,
		newID:         uuid.NewString,
	}
}

func (s *MemoryStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	result := make([]models.Conversation, 0, len(s.order))
	for _, id := range s.order {
		result = append(result, s.conversations[id].Clone())
	}
	sortNewestFirst(result)

	return result, nil
}

func (s *MemoryStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	out := conv.Clone()
	return &out, nil
}

func (s *MemoryStore) CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error) {
	input = normalizeCreate(input, s.newID)

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.conversations[input.ID]; exists {
		return nil, ErrConflict
	}

	created := nextStamp(s.now(), s.lastCreated, time.Nanosecond)
	s.lastCreated = created

	conv := &models.Conversation{
		ID:        input.ID,
		Title:     input.Title,
		Summary:   input.Summary,
		CreatedAt: created,
		UpdatedAt: created,
		Messages:  []models.Message{},
	}
	s.conversations[conv.ID] = conv
	s.order = append(s.order, conv.ID)

	out := conv.Clone()
	return &out, nil
}

func (s *MemoryStore) UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[id]
	if !ok {
		return nil, ErrNotFound
	}

	update.apply(conv)
	conv.UpdatedAt = nextStamp(s.now(), conv.UpdatedAt, time.Nanosecond)

	out := conv.Clone()
	return &out, nil
}

func (s *MemoryStore) DeleteConversation(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.conversations[id]; !ok {
		return nil
	}

	delete(s.conversations, id)
	for i, existing := range s.order {
		if existing == id {
			s.order = append(s.order[:i], s.order[i+1:]...)
			break
		}
	}

	return nil
}

func (s *MemoryStore) AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	conv, ok := s.conversations[conversationID]
	if !ok {
		return nil, ErrNotFound
	}

	msg := newMessage(conv, content, sender, s.now(), time.Nanosecond)
	return &msg, nil
}

func (s *MemoryStore) Close() error { return nil }

// Len returns the number of stored conversations.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.conversations)
}
