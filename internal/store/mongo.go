package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/wuwenbin0122/lovelens/internal/db"
	"github.com/wuwenbin0122/lovelens/internal/models"
)

const (
	// BSON dates carry millisecond precision.
	mongoResolution = time.Millisecond
	mongoMaxRetries = 5
)

var errConcurrentUpdate = errors.New("store: conversation changed concurrently")

// MongoStore keeps one document per conversation with an embedded message array.
// Mutations are optimistic: they match on the previously read updated_at.
type MongoStore struct {
	mongo *db.Mongo

	now   func() time.Time
	newID func() string
}

type mongoConversation struct {
	ID        string         `bson:"_id"`
	Seq       int64          `bson:"seq"`
	Title     string         `bson:"title"`
	Summary   string         `bson:"summary"`
	Insights  string         `bson:"insights,omitempty"`
	CreatedAt time.Time      `bson:"created_at"`
	UpdatedAt time.Time      `bson:"updated_at"`
	Messages  []mongoMessage `bson:"messages"`
}

type mongoMessage struct {
	ID        int       `bson:"id"`
	Content   string    `bson:"content"`
	Sender    string    `bson:"sender"`
	Timestamp time.Time `bson:"timestamp"`
}

func NewMongoStore(m *db.Mongo) *MongoStore {
	return &MongoStore{mongo: m, now: time.Now, newID: uuid.NewString}
}

func (s *MongoStore) ListConversations(ctx context.Context) ([]models.Conversation, error) {
	opts := options.Find().SetSort(bson.D{{Key: "created_at", Value: -1}, {Key: "seq", Value: 1}})
	cursor, err := s.mongo.Conversations.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, fmt.Errorf("mongo: list conversations: %w", err)
	}

	var docs []mongoConversation
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo: decode conversations: %w", err)
	}

	result := make([]models.Conversation, 0, len(docs))
	for _, doc := range docs {
		result = append(result, doc.toModel())
	}
	return result, nil
}

func (s *MongoStore) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	doc, err := s.find(ctx, id)
	if err != nil {
		return nil, err
	}
	conv := doc.toModel()
	return &conv, nil
}

func (s *MongoStore) CreateConversation(ctx context.Context, input CreateInput) (*models.Conversation, error) {
	input = normalizeCreate(input, s.newID)

	seq, err := s.nextSeq(ctx)
	if err != nil {
		return nil, err
	}

	created := nextStamp(s.now(), time.Time{}, mongoResolution)
	doc := mongoConversation{
		ID:        input.ID,
		Seq:       seq,
		Title:     input.Title,
		Summary:   input.Summary,
		CreatedAt: created,
		UpdatedAt: created,
		Messages:  []mongoMessage{},
	}

	if _, err := s.mongo.Conversations.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return nil, ErrConflict
		}
		return nil, fmt.Errorf("mongo: create conversation: %w", err)
	}

	conv := doc.toModel()
	return &conv, nil
}

func (s *MongoStore) UpdateConversation(ctx context.Context, id string, update Update) (*models.Conversation, error) {
	for attempt := 0; attempt < mongoMaxRetries; attempt++ {
		doc, err := s.find(ctx, id)
		if err != nil {
			return nil, err
		}

		set := bson.M{"updated_at": nextStamp(s.now(), doc.UpdatedAt, mongoResolution)}
		if update.Title != nil {
			set["title"] = *update.Title
		}
		if update.Summary != nil {
			set["summary"] = *update.Summary
		}
		if update.Insights != nil {
			set["insights"] = string(update.Insights)
		}

		res, err := s.mongo.Conversations.UpdateOne(ctx,
			bson.M{"_id": id, "updated_at": doc.UpdatedAt},
			bson.M{"$set": set},
		)
		if err != nil {
			return nil, fmt.Errorf("mongo: update conversation: %w", err)
		}
		if res.MatchedCount == 1 {
			return s.GetConversation(ctx, id)
		}
	}

	return nil, fmt.Errorf("mongo: update conversation %s: %w", id, errConcurrentUpdate)
}

func (s *MongoStore) DeleteConversation(ctx context.Context, id string) error {
	if _, err := s.mongo.Conversations.DeleteOne(ctx, bson.M{"_id": id}); err != nil {
		return fmt.Errorf("mongo: delete conversation: %w", err)
	}
	return nil
}

func (s *MongoStore) AddMessage(ctx context.Context, conversationID, content string, sender models.Sender) (*models.Message, error) {
	if !sender.Valid() {
		return nil, ErrInvalidSender
	}

	for attempt := 0; attempt < mongoMaxRetries; attempt++ {
		doc, err := s.find(ctx, conversationID)
		if err != nil {
			return nil, err
		}

		msg := mongoMessage{
			ID:        len(doc.Messages) + 1,
			Content:   content,
			Sender:    string(sender),
			Timestamp: nextStamp(s.now(), doc.UpdatedAt, mongoResolution),
		}

		res, err := s.mongo.Conversations.UpdateOne(ctx,
			bson.M{"_id": conversationID, "updated_at": doc.UpdatedAt},
			bson.M{
				"$push": bson.M{"messages": msg},
				"$set":  bson.M{"updated_at": msg.Timestamp},
			},
		)
		if err != nil {
			return nil, fmt.Errorf("mongo: add message: %w", err)
		}
		if res.MatchedCount == 1 {
			out := msg.toModel(conversationID)
			return &out, nil
		}
	}

	return nil, fmt.Errorf("mongo: add message to %s: %w", conversationID, errConcurrentUpdate)
}

func (s *MongoStore) Close() error {
	return s.mongo.Close(context.Background())
}

func (s *MongoStore) find(ctx context.Context, id string) (mongoConversation, error) {
	var doc mongoConversation
	if err := s.mongo.Conversations.FindOne(ctx, bson.M{"_id": id}).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return mongoConversation{}, ErrNotFound
		}
		return mongoConversation{}, fmt.Errorf("mongo: get conversation: %w", err)
	}
	return doc, nil
}

func (s *MongoStore) nextSeq(ctx context.Context) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.mongo.Counters.FindOneAndUpdate(ctx,
		bson.M{"_id": "conversations"},
		bson.M{"$inc": bson.M{"seq": 1}},
		opts,
	).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("mongo: next sequence: %w", err)
	}
	return counter.Seq, nil
}

func (d mongoConversation) toModel() models.Conversation {
	conv := models.Conversation{
		ID:        d.ID,
		Title:     d.Title,
		Summary:   d.Summary,
		CreatedAt: d.CreatedAt.UTC(),
		UpdatedAt: d.UpdatedAt.UTC(),
		Messages:  make([]models.Message, 0, len(d.Messages)),
	}
	if d.Insights != "" {
		conv.Insights = json.RawMessage(d.Insights)
	}
	for _, m := range d.Messages {
		conv.Messages = append(conv.Messages, m.toModel(d.ID))
	}
	return conv
}

func (m mongoMessage) toModel(conversationID string) models.Message {
	return models.Message{
		ID:             m.ID,
		ConversationID: conversationID,
		Content:        m.Content,
		Sender:         models.Sender(m.Sender),
		Timestamp:      m.Timestamp.UTC(),
	}
}
