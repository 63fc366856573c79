package cache

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoCloseTimeout = 5 * time.Second

// MongoStore keeps the cache in MongoDB.
type MongoStore struct {
	client     *mongo.Client
	collection *mongo.Collection
}

func NewMongoStore(ctx context.Context, uri, database, collection string) (*MongoStore, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		return nil, errors.New("mongo database name is required")
	}
	if collection == "" {
		collection = "summary_cache"
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, err
	}
	return &MongoStore{
		client:     client,
		collection: client.Database(database).Collection(collection),
	}, nil
}

func (ms *MongoStore) Get(ctx context.Context, emailID string) (Entry, bool, error) {
	if ms == nil || ms.collection == nil {
		return Entry{}, false, nil
	}
	var entry Entry
	err := ms.collection.FindOne(ctx, bson.M{"email_id": emailID}).Decode(&entry)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Entry{}, false, nil
	}
	if err != nil {
		return Entry{}, false, err
	}
	return entry, true, nil
}

func (ms *MongoStore) Put(ctx context.Context, entry Entry) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	if entry.CreatedAt.IsZero() {
		entry.CreatedAt = time.Now().UTC()
	}
	_, err := ms.collection.ReplaceOne(ctx,
		bson.M{"email_id": entry.EmailID},
		entry,
		options.Replace().SetUpsert(true),
	)
	return err
}

func (ms *MongoStore) Delete(ctx context.Context, emailID string) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.DeleteOne(ctx, bson.M{"email_id": emailID})
	return err
}

func (ms *MongoStore) Clear(ctx context.Context) error {
	if ms == nil || ms.collection == nil {
		return nil
	}
	_, err := ms.collection.DeleteMany(ctx, bson.M{})
	return err
}

// Close disconnects the client with a bounded timeout.
func (ms *MongoStore) Close() error {
	if ms == nil || ms.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoCloseTimeout)
	defer cancel()
	return ms.client.Disconnect(ctx)
}

var _ Store = (*MongoStore)(nil)
