package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

const (
	redisKeyPrefix  = "lovelens:conversation:"
	redisIndexKey   = "lovelens:conversations"
	redisSeqKey     = "lovelens:conversations:seq"
	redisMaxRetries = 5
	redisResolution = time.Nanosecond
)

// RedisStore keeps each conversation as a JSON string and an insertion-ordered
// sorted set of ids. Mutations run as WATCH/MULTI transactions.
type RedisStore struct {
	client *redis.Client

	now   func() time.Time
	newID func() string
}

func NewRedisStore(client *redis.Client) *RedisStore {
	return &RedisStore{client: client, now: time.Now, newID: uuid.NewString}
}

func redisKey(id string) string { return redisKeyPrefix + id }

func (s *RedisStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	ids, err := s.client.ZRange(ctx, redisIndexKey, 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: list ids: %w", err)
	}

	result := make([]models.Conversation, 0, len(ids))
	if len(ids) == 0 {
		return result, nil
	}

	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = redisKey(id)
	}

	values, err := s.client.MGet(ctx, keys...).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: load conversations: %w", err)
	}

	for i, value := range values {
		raw, ok := value.(string)
		if !ok {
			continue
		}
		conv, err := decodeRedisConversation([]byte(raw))
		if err != nil {
			return nil, fmt.Errorf("redis: decode %s: %w", ids[i], err)
		}
		result = append(result, conv)
	}
	sortNewestFirst(result)

	return result, nil
}

func (s *RedisStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	raw, err := s.client.Get(ctx, redisKey(id)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("redis: get conversation: %w", err)
	}

	conv, err := decodeRedisConversation(raw)
	if err != nil {
		return nil, fmt.Errorf("redis: decode %s: %w", id, err)
	}
	return &conv, nil
}

func (s *RedisStore) CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error) {
	input = normalizeCreate(input, s.newID)

	created := nextStamp(s.now(), time.Time{}, redisResolution)
	conv := models.Conversation{
		ID:        input.ID,
		Title:     input.Title,
		Summary:   input.Summary,
		CreatedAt: created,
		UpdatedAt: created,
		Messages:  []models.Message{},
	}

	enc, err := json.Marshal(conv)
	if err != nil {
		return nil, err
	}

	ok, err := s.client.SetNX(ctx, redisKey(conv.ID), enc, 0).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: create conversation: %w", err)
	}
	if !ok {
		return nil, ErrConflict
	}

	seq, err := s.client.Incr(ctx, redisSeqKey).Result()
	if err != nil {
		return nil, fmt.Errorf("redis: next sequence: %w", err)
	}
	if err := s.client.ZAdd(ctx, redisIndexKey, redis.Z{Score: float64(seq), Member: conv.ID}).Err(); err != nil {
		return nil, fmt.Errorf("redis: index conversation: %w", err)
	}

	return &conv, nil
}

func (s *RedisStore) UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error) {
	var updated models.Conversation
	err := s.mutate(ctx, id, func(conv *models.Conversation) {
		update.apply(conv)
		conv.UpdatedAt = nextStamp(s.now(), conv.UpdatedAt, redisResolution)
		updated = *conv
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

func (s *RedisStore) DeleteConversation(ctx context.Context, id string) error {
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Del(ctx, redisKey(id))
		pipe.ZRem(ctx, redisIndexKey, id)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis: delete conversation: %w", err)
	}
	return nil
}

func (s *RedisStore) AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}

	var msg models.Message
	err := s.mutate(ctx, conversationID, func(conv *models.Conversation) {
		msg = newMessage(conv, content, sender, s.now(), redisResolution)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *RedisStore) Close() error {
	return s.client.Close()
}

// mutate applies fn to the stored conversation inside an optimistic transaction,
// retrying when another client touched the key.
func (s *RedisStore) mutate(ctx context.Context, id string, fn func(*models.Conversation)) error {
	key := redisKey(id)

	txf := func(tx *redis.Tx) error {
		raw, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}

		conv, err := decodeRedisConversation(raw)
		if err != nil {
			return err
		}
		fn(&conv)

		enc, err := json.Marshal(conv)
		if err != nil {
			return err
		}

		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, enc, 0)
			return nil
		})
		return err
	}

	for attempt := 0; attempt < redisMaxRetries; attempt++ {
		err := s.client.Watch(ctx, txf, key)
		if errors.Is(err, redis.TxFailedErr) {
			continue
		}
		if err != nil && !errors.Is(err, ErrNotFound) {
			return fmt.Errorf("redis: update %s: %w", id, err)
		}
		return err
	}

	return fmt.Errorf("redis: update %s: too many concurrent writers", id)
}

func decodeRedisConversation(raw []byte) (models.Conversation, error) {
	var conv models.Conversation
	if err := json.Unmarshal(raw, &conv); err != nil {
		return models.Conversation{}, err
	}
	if conv.Messages == nil {
		conv.Messages = []models.Message{}
	}
	return conv, nil
}
