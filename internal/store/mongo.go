package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const mongoTimeout = 5 * time.Second

// MongoBackend stores principal records in one collection, one document per
// principal. The record body travels as JSON so the wire shape matches the
// file backend exactly.
type MongoBackend struct {
	uri    string
	dbName string

	client     *mongo.Client
	collection *mongo.Collection
}

type mongoDoc struct {
	Principal int64  `bson:"_id"`
	Record    []byte `bson:"record"`
}

// NewMongoBackend creates a MongoDB-backed store.
func NewMongoBackend(uri, dbName string) *MongoBackend {
	if dbName == "" {
		dbName = "numrelay"
	}
	return &MongoBackend{uri: uri, dbName: dbName}
}

func withMongoTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, mongoTimeout)
}

func (m *MongoBackend) Initialize(ctx context.Context) error {
	ctx, cancel := withMongoTimeout(ctx)
	defer cancel()

	clientOptions := options.Client().ApplyURI(m.uri)
	clientOptions.SetMaxPoolSize(10)
	clientOptions.SetServerSelectionTimeout(5 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		return fmt.Errorf("ping MongoDB: %w", err)
	}

	m.client = client
	m.collection = client.Database(m.dbName).Collection("principals")
	return nil
}

func (m *MongoBackend) Close() error {
	if m.client == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), mongoTimeout)
	defer cancel()
	return m.client.Disconnect(ctx)
}

func (m *MongoBackend) Health(ctx context.Context) error {
	if m.client == nil {
		return fmt.Errorf("mongodb client not initialized")
	}
	ctx, cancel := withMongoTimeout(ctx)
	defer cancel()
	return m.client.Ping(ctx, nil)
}

func (m *MongoBackend) LoadPrincipals(ctx context.Context) (map[int64]*PrincipalRecord, error) {
	ctx, cancel := withMongoTimeout(ctx)
	defer cancel()

	cursor, err := m.collection.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("find principals: %w", err)
	}
	defer cursor.Close(ctx)

	records := make(map[int64]*PrincipalRecord)
	for cursor.Next(ctx) {
		var doc mongoDoc
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("decode principal document: %w", err)
		}
		var rec PrincipalRecord
		if err := json.Unmarshal(doc.Record, &rec); err != nil {
			return nil, fmt.Errorf("decode principal %d: %w", doc.Principal, err)
		}
		records[doc.Principal] = &rec
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("iterate principals: %w", err)
	}
	return records, nil
}

func (m *MongoBackend) SavePrincipals(ctx context.Context, records map[int64]*PrincipalRecord) error {
	for _, rec := range records {
		if err := m.SavePrincipal(ctx, rec); err != nil {
			return err
		}
	}
	return nil
}

func (m *MongoBackend) SavePrincipal(ctx context.Context, rec *PrincipalRecord) error {
	payload, err := json.Marshal(rec)
	if err != nil {
		return fmt.Errorf("encode principal %d: %w", rec.Principal, err)
	}

	ctx, cancel := withMongoTimeout(ctx)
	defer cancel()

	filter := bson.D{{Key: "_id", Value: rec.Principal}}
	update := bson.D{{Key: "$set", Value: bson.D{{Key: "record", Value: payload}}}}
	_, err = m.collection.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert principal %d: %w", rec.Principal, err)
	}
	return nil
}

func (m *MongoBackend) DeletePrincipal(ctx context.Context, principal int64) error {
	ctx, cancel := withMongoTimeout(ctx)
	defer cancel()
	_, err := m.collection.DeleteOne(ctx, bson.D{{Key: "_id", Value: principal}})
	return err
}
