// Package mongostore persists rank entries in a MongoDB collection.
package mongostore

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/vaulted/rankkey/ordering"
)

// DefaultCollection is used when no collection name is configured.
const DefaultCollection = "rank_entries"

type document struct {
	ContextID string    `bson:"context_id"`
	UserID    string    `bson:"user_id"`
	ItemID    string    `bson:"item_id"`
	Rank      string    `bson:"rank"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Store implements ordering.Store on one collection.
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	owned  bool
}

var _ ordering.Store = (*Store)(nil)

// Connect dials uri, verifies the connection and prepares the collection.
// The returned Store owns the client and disconnects it on Close.
func Connect(ctx context.Context, uri, dbName, collName string) (*Store, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s, err := New(ctx, client.Database(dbName), collName)
	if err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	s.client, s.owned = client, true
	return s, nil
}

// New uses collName in db, creating its indexes. The caller keeps ownership
// of the client.
func New(ctx context.Context, db *mongo.Database, collName string) (*Store, error) {
	if collName == "" {
		collName = DefaultCollection
	}
	s := &Store{client: db.Client(), coll: db.Collection(collName)}
	if err := s.EnsureIndexes(ctx); err != nil {
		return nil, fmt.Errorf("create indexes on %s: %w", collName, err)
	}
	return s, nil
}

// EnsureIndexes creates the unique entry index and the scope listing index.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "context_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "item_id", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "context_id", Value: 1}, {Key: "user_id", Value: 1}, {Key: "rank", Value: 1}},
		},
	})
	return err
}

func filter(contextID, userID, itemID string) bson.M {
	return bson.M{"context_id": contextID, "user_id": userID, "item_id": itemID}
}

func (s *Store) Upsert(ctx context.Context, e ordering.Entry) error {
	update := bson.M{"$set": bson.M{"rank": e.Rank, "updated_at": time.Now().UTC()}}
	_, err := s.coll.UpdateOne(ctx, filter(e.ContextID, e.UserID, e.ItemID), update, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// a concurrent upsert inserted the document first
		_, err = s.coll.UpdateOne(ctx, filter(e.ContextID, e.UserID, e.ItemID), update)
	}
	if err != nil {
		return fmt.Errorf("upsert %s/%s: %w", e.ContextID, e.ItemID, err)
	}
	return nil
}

// ListEntries returns the entries of one scope in rank order.
func (s *Store) ListEntries(ctx context.Context, contextID, userID string) ([]ordering.Entry, error) {
	opts := options.Find().SetSort(bson.D{{Key: "rank", Value: 1}, {Key: "item_id", Value: 1}})
	cur, err := s.coll.Find(ctx, bson.M{"context_id": contextID, "user_id": userID}, opts)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", contextID, err)
	}
	var docs []document
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode %s: %w", contextID, err)
	}
	entries := make([]ordering.Entry, len(docs))
	for i, d := range docs {
		entries[i] = ordering.Entry{ContextID: d.ContextID, ItemID: d.ItemID, UserID: d.UserID, Rank: d.Rank}
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, contextID, itemID, userID string) error {
	if _, err := s.coll.DeleteOne(ctx, filter(contextID, userID, itemID)); err != nil {
		return fmt.Errorf("delete %s/%s: %w", contextID, itemID, err)
	}
	return nil
}

// Close disconnects the client if the store owns it.
func (s *Store) Close(ctx context.Context) error {
	if !s.owned {
		return nil
	}
	return s.client.Disconnect(ctx)
}
