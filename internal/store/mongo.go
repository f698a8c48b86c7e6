package store

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// MongoStore implements Store on top of a MongoDB database. Each logical
// collection maps 1:1 to a Mongo collection; balances use the owner name
// as _id, everything else gets a generated ObjectID.
//
// Subscribe uses change streams, which require a replica set (Atlas and
// most hosted deployments qualify).
type MongoStore struct {
	client *mongo.Client
	db     *mongo.Database
}

func NewMongoStore(ctx context.Context, uri, dbName string) (*MongoStore, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect: %w", errors.Join(ErrUnavailable, err))
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("ping: %w", errors.Join(ErrUnavailable, err))
	}
	return &MongoStore{client: client, db: client.Database(dbName)}, nil
}

func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) Insert(ctx context.Context, collection string, rec Record) (string, error) {
	res, err := s.db.Collection(collection).InsertOne(ctx, bson.M(rec))
	if err != nil {
		return "", fmt.Errorf("insert %s: %w", collection, errors.Join(ErrUnavailable, err))
	}
	if oid, ok := res.InsertedID.(primitive.ObjectID); ok {
		return oid.Hex(), nil
	}
	return fmt.Sprintf("%v", res.InsertedID), nil
}

func (s *MongoStore) Update(ctx context.Context, collection, key string, patch Record) error {
	_, err := s.db.Collection(collection).UpdateOne(
		ctx,
		bson.M{"_id": key},
		bson.M{"$set": bson.M(patch)},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return fmt.Errorf("update %s/%s: %w", collection, key, errors.Join(ErrUnavailable, err))
	}
	return nil
}

func (s *MongoStore) Get(ctx context.Context, collection, key string) (Record, error) {
	var doc bson.M
	err := s.db.Collection(collection).FindOne(ctx, bson.M{"_id": key}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get %s/%s: %w", collection, key, errors.Join(ErrUnavailable, err))
	}
	return normalize(doc), nil
}

func (s *MongoStore) QueryByField(ctx context.Context, collection, field string, value any) ([]Record, error) {
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.db.Collection(collection).Find(ctx, bson.M{field: value}, opts)
	if err != nil {
		return nil, fmt.Errorf("query %s by %s: %w", collection, field, errors.Join(ErrUnavailable, err))
	}
	defer cursor.Close(ctx)

	var out []Record
	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			slog.WarnContext(ctx, "Skipping undecodable document", "collection", collection, "error", err)
			continue
		}
		out = append(out, normalize(doc))
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("cursor %s: %w", collection, errors.Join(ErrUnavailable, err))
	}
	return out, nil
}

func (s *MongoStore) Subscribe(ctx context.Context, collection, field string, value any, onChange func()) (CancelFunc, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"fullDocument." + field: value}}},
	}
	streamCtx, cancel := context.WithCancel(ctx)
	stream, err := s.db.Collection(collection).Watch(
		streamCtx,
		pipeline,
		options.ChangeStream().SetFullDocument(options.UpdateLookup),
	)
	if err != nil {
		cancel()
		return nil, fmt.Errorf("watch %s: %w", collection, errors.Join(ErrUnavailable, err))
	}

	go func() {
		defer stream.Close(context.Background())
		for stream.Next(streamCtx) {
			onChange()
		}
		if err := stream.Err(); err != nil && streamCtx.Err() == nil {
			slog.Error("Change stream terminated", "collection", collection, "error", err)
		}
	}()

	return func() { cancel() }, nil
}

// normalize converts BSON-specific value types back into the Record vocabulary.
func normalize(doc bson.M) Record {
	rec := make(Record, len(doc))
	for k, v := range doc {
		switch t := v.(type) {
		case primitive.ObjectID:
			rec[k] = t.Hex()
		case primitive.DateTime:
			rec[k] = t.Time().UTC()
		case time.Time:
			rec[k] = t.UTC()
		default:
			rec[k] = v
		}
	}
	return rec
}
