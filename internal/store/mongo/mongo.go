package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/tokligence/docchat/internal/extract"
	"github.com/tokligence/docchat/internal/store"
)

const (
	DefaultDatabase = "docchat"

	documentsCollection = "documents"
	messagesCollection  = "messages"
)

var _ store.Store = (*Store)(nil)

type documentRecord struct {
	ID        string           `bson:"_id"`
	Name      string           `bson:"name"`
	Kind      string           `bson:"kind"`
	Body      string           `bson:"body,omitempty"`
	Preview   string           `bson:"preview"`
	Summary   string           `bson:"summary,omitempty"`
	Challenge []extract.QAPair `bson:"challenge,omitempty"`
	CreatedAt time.Time        `bson:"created_at"`
	UpdatedAt time.Time        `bson:"updated_at"`
}

type messageRecord struct {
	OID        primitive.ObjectID `bson:"_id,omitempty"`
	ID         string             `bson:"id"`
	DocumentID string             `bson:"document_id"`
	Sender     string             `bson:"sender"`
	Body       string             `bson:"body"`
	CreatedAt  time.Time          `bson:"created_at"`
}

// Store implements store.Store backed by MongoDB.
type Store struct {
	client    *mongo.Client
	documents *mongo.Collection
	messages  *mongo.Collection
}

// New connects to uri and prepares the collections in database.
func New(ctx context.Context, uri, database string) (*Store, error) {
	if database == "" {
		database = DefaultDatabase
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	db := client.Database(database)
	s := &Store{
		client:    client,
		documents: db.Collection(documentsCollection),
		messages:  db.Collection(messagesCollection),
	}
	if err := s.initIndexes(ctx); err != nil {
		_ = s.Close()
		return nil, err
	}
	return s, nil
}

func (s *Store) initIndexes(ctx context.Context) error {
	_, err := s.messages.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "document_id", Value: 1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "id", Value: 1}}, Options: options.Index().SetUnique(true)},
	})
	if err != nil {
		return fmt.Errorf("create message indexes: %w", err)
	}
	_, err = s.documents.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "created_at", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create document indexes: %w", err)
	}
	return nil
}

// Close disconnects from the server.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping verifies the primary is reachable.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// CreateDocument inserts a new document.
func (s *Store) CreateDocument(ctx context.Context, doc store.Document) (store.Document, error) {
	doc, err := store.PrepareDocument(doc)
	if err != nil {
		return store.Document{}, err
	}
	// Mongo keeps millisecond precision
	doc.CreatedAt = doc.CreatedAt.Truncate(time.Millisecond)
	doc.UpdatedAt = doc.UpdatedAt.Truncate(time.Millisecond)
	rec := documentRecord{
		ID:        doc.ID,
		Name:      doc.Name,
		Kind:      doc.Kind,
		Body:      doc.Text,
		Preview:   doc.Preview,
		Summary:   doc.Summary,
		Challenge: doc.Challenge,
		CreatedAt: doc.CreatedAt,
		UpdatedAt: doc.UpdatedAt,
	}
	if _, err := s.documents.InsertOne(ctx, rec); err != nil {
		return store.Document{}, fmt.Errorf("insert document: %w", err)
	}
	return doc, nil
}

// GetDocument returns the document with the given id.
func (s *Store) GetDocument(ctx context.Context, id string) (store.Document, error) {
	var rec documentRecord
	if err := s.documents.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Document{}, store.ErrNotFound
		}
		return store.Document{}, err
	}
	return rec.toDocument(), nil
}

// ListDocuments returns all documents newest first, without their text.
func (s *Store) ListDocuments(ctx context.Context) ([]store.Document, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "created_at", Value: -1}}).
		SetProjection(bson.M{"body": 0, "challenge": 0})
	cur, err := s.documents.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	var recs []documentRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	docs := make([]store.Document, 0, len(recs))
	for _, rec := range recs {
		docs = append(docs, rec.toDocument())
	}
	return docs, nil
}

// DeleteDocument removes a document together with its chat history.
func (s *Store) DeleteDocument(ctx context.Context, id string) error {
	res, err := s.documents.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return store.ErrNotFound
	}
	_, err = s.messages.DeleteMany(ctx, bson.M{"document_id": id})
	return err
}

// SetSummary stores the generated summary of a document.
func (s *Store) SetSummary(ctx context.Context, id, summary string) error {
	return s.set(ctx, id, bson.M{"summary": summary})
}

// SetChallenge stores the challenge questions of a document.
func (s *Store) SetChallenge(ctx context.Context, id string, pairs []extract.QAPair) error {
	return s.set(ctx, id, bson.M{"challenge": pairs})
}

func (s *Store) set(ctx context.Context, id string, fields bson.M) error {
	fields["updated_at"] = time.Now().UTC()
	res, err := s.documents.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": fields})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return store.ErrNotFound
	}
	return nil
}

// AppendMessage adds a message to the history of an existing document.
func (s *Store) AppendMessage(ctx context.Context, msg store.Message) error {
	msg, err := store.PrepareMessage(msg)
	if err != nil {
		return err
	}
	n, err := s.documents.CountDocuments(ctx, bson.M{"_id": msg.DocumentID}, options.Count().SetLimit(1))
	if err != nil {
		return err
	}
	if n == 0 {
		return store.ErrNotFound
	}
	_, err = s.messages.InsertOne(ctx, messageRecord{
		ID:         msg.ID,
		DocumentID: msg.DocumentID,
		Sender:     string(msg.Sender),
		Body:       msg.Text,
		CreatedAt:  msg.CreatedAt,
	})
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

// ListMessages returns the latest messages of a document, oldest first.
func (s *Store) ListMessages(ctx context.Context, documentID string, limit int) ([]store.Message, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: -1}})
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.messages.Find(ctx, bson.M{"document_id": documentID}, opts)
	if err != nil {
		return nil, err
	}
	var recs []messageRecord
	if err := cur.All(ctx, &recs); err != nil {
		return nil, err
	}
	msgs := make([]store.Message, len(recs))
	for i, rec := range recs {
		// newest first from the cursor
		msgs[len(recs)-1-i] = store.Message{
			ID:         rec.ID,
			DocumentID: rec.DocumentID,
			Sender:     store.Sender(rec.Sender),
			Text:       rec.Body,
			CreatedAt:  rec.CreatedAt,
		}
	}
	return msgs, nil
}

func (rec documentRecord) toDocument() store.Document {
	return store.Document{
		ID:        rec.ID,
		Name:      rec.Name,
		Kind:      rec.Kind,
		Text:      rec.Body,
		Preview:   rec.Preview,
		Summary:   rec.Summary,
		Challenge: rec.Challenge,
		CreatedAt: rec.CreatedAt.UTC(),
		UpdatedAt: rec.UpdatedAt.UTC(),
	}
}
