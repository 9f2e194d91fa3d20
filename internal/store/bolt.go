package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"time"

	"github.com/google/uuid"
	bolt "go.etcd.io/bbolt"

	"github.com/wuwenbin0122/lovelens/internal/models"
)

var conversationsBucket = []byte("conversations")

// BoltStore persists each conversation as one JSON record in a bbolt file.
type BoltStore struct {
	db *bolt.DB

	now   func() time.Time
	newID func() string
}

type boltRecord struct {
	Seq uint64 `json:"seq"`
	models.Conversation
}

// OpenBoltStore opens (creating if needed) the database file at path.
func OpenBoltStore(path string) (*BoltStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("bolt: create dir: %w", err)
	}

	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: 2 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", path, err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, errCreate := tx.CreateBucketIfNotExists(conversationsBucket)
		return errCreate
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("bolt: ensure bucket: %w", err)
	}

	return &BoltStore{db: db, now: time.Now, newID: uuid.NewString}, nil
}

func (s *BoltStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	var records []boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).ForEach(func(k, v []byte) error {
			rec, err := decodeBoltRecord(v)
			if err != nil {
				return fmt.Errorf("decode %s: %w", k, err)
			}
			records = append(records, rec)
			return nil
		})
	})
	if err != nil {
		return nil, fmt.Errorf("bolt: list conversations: %w", err)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Seq < records[j].Seq })

	result := make([]models.Conversation, 0, len(records))
	for _, rec := range records {
		result = append(result, rec.Conversation)
	}
	sortNewestFirst(result)

	return result, nil
}

func (s *BoltStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var rec boltRecord
	err := s.db.View(func(tx *bolt.Tx) error {
		var err error
		rec, err = getBoltRecord(tx.Bucket(conversationsBucket), id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return &rec.Conversation, nil
}

func (s *BoltStore) CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error) {
	input = normalizeCreate(input, s.newID)

	var rec boltRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		if b.Get([]byte(input.ID)) != nil {
			return ErrConflict
		}

		seq, err := b.NextSequence()
		if err != nil {
			return err
		}

		created := nextStamp(s.now(), time.Time{}, time.Nanosecond)
		rec = boltRecord{
			Seq: seq,
			Conversation: models.Conversation{
				ID:        input.ID,
				Title:     input.Title,
				Summary:   input.Summary,
				CreatedAt: created,
				UpdatedAt: created,
				Messages:  []models.Message{},
			},
		}
		return putBoltRecord(b, rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec.Conversation, nil
}

func (s *BoltStore) UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error) {
	var rec boltRecord
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		var err error
		if rec, err = getBoltRecord(b, id); err != nil {
			return err
		}

		update.apply(&rec.Conversation)
		rec.UpdatedAt = nextStamp(s.now(), rec.UpdatedAt, time.Nanosecond)
		return putBoltRecord(b, rec)
	})
	if err != nil {
		return nil, err
	}
	return &rec.Conversation, nil
}

func (s *BoltStore) DeleteConversation(ctx context.Context, id string) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		return tx.Bucket(conversationsBucket).Delete([]byte(id))
	})
}

func (s *BoltStore) AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}

	var msg models.Message
	err := s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(conversationsBucket)
		rec, err := getBoltRecord(b, conversationID)
		if err != nil {
			return err
		}

		msg = newMessage(&rec.Conversation, content, sender, s.now(), time.Nanosecond)
		return putBoltRecord(b, rec)
	})
	if err != nil {
		return nil, err
	}
	return &msg, nil
}

func (s *BoltStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func getBoltRecord(b *bolt.Bucket, id string) (boltRecord, error) {
	raw := b.Get([]byte(id))
	if raw == nil {
		return boltRecord{}, ErrNotFound
	}
	return decodeBoltRecord(raw)
}

// decodeBoltRecord copies out of the mmap'd value; bbolt memory is only valid
// inside the transaction.
func decodeBoltRecord(raw []byte) (boltRecord, error) {
	var rec boltRecord
	if err := json.Unmarshal(raw, &rec); err != nil {
		return boltRecord{}, err
	}
	if rec.Messages == nil {
		rec.Messages = []models.Message{}
	}
	return rec, nil
}

func putBoltRecord(b *bolt.Bucket, rec boltRecord) error {
	enc, err := json.Marshal(rec)
	if err != nil {
		return err
	}
	return b.Put([]byte(rec.ID), enc)
}
