package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/boddenberg/security-assessment-go/internal/port"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const mongoCollection = "kv_entries"

type mongoEntry struct {
	Key       string    `bson:"_id"`
	Value     string    `bson:"value"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// Mongo stores entries as documents keyed by _id.
type Mongo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoClient connects and pings the server.
func NewMongoClient(ctx context.Context, uri string) (*mongo.Client, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo: connect: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo: ping: %w", err)
	}
	return client, nil
}

// NewMongo uses the kv_entries collection of database. The store owns
// client and disconnects it on Close.
func NewMongo(client *mongo.Client, database string) *Mongo {
	return &Mongo{client: client, coll: client.Database(database).Collection(mongoCollection)}
}

func (m *Mongo) Get(ctx context.Context, key string) ([]byte, error) {
	var e mongoEntry
	err := m.coll.FindOne(ctx, bson.M{"_id": key}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, port.ErrKeyNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("mongo: get %s: %w", key, err)
	}
	return []byte(e.Value), nil
}

func (m *Mongo) Put(ctx context.Context, key string, value []byte) error {
	e := mongoEntry{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	_, err := m.coll.ReplaceOne(ctx, bson.M{"_id": key}, e, options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("mongo: put %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) PutIfAbsent(ctx context.Context, key string, value []byte) error {
	e := mongoEntry{Key: key, Value: string(value), UpdatedAt: time.Now().UTC()}
	if _, err := m.coll.InsertOne(ctx, e); err != nil {
		if isDuplicateKey(err) {
			return port.ErrKeyExists
		}
		return fmt.Errorf("mongo: put-if-absent %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) Delete(ctx context.Context, key string) error {
	if _, err := m.coll.DeleteOne(ctx, bson.M{"_id": key}); err != nil {
		return fmt.Errorf("mongo: delete %s: %w", key, err)
	}
	return nil
}

func (m *Mongo) Ping(ctx context.Context) error {
	return m.client.Ping(ctx, readpref.Primary())
}

func (m *Mongo) Close(ctx context.Context) error {
	return m.client.Disconnect(ctx)
}

func isDuplicateKey(err error) bool {
	var we mongo.WriteException
	if errors.As(err, &we) {
		for _, e := range we.WriteErrors {
			if e.Code == 11000 {
				return true
			}
		}
	}
	return false
}
