package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const connectTimeout = 10 * time.Second

// MongoRepo implements Repository on a single MongoDB collection keyed by _id.
type MongoRepo struct {
	client *mongo.Client
	coll   *mongo.Collection
}

// NewMongoRepo connects to uri and pings the deployment before returning.
func NewMongoRepo(ctx context.Context, uri, database, collection string) (*MongoRepo, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongodb: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongodb: %w", err)
	}

	return &MongoRepo{
		client: client,
		coll:   client.Database(database).Collection(collection),
	}, nil
}

// Insert stores a new record document.
func (r *MongoRepo) Insert(ctx context.Context, rec *Record) error {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	if _, err := r.coll.InsertOne(ctx, rec); err != nil {
		return mapMongoError("insert", err)
	}
	return nil
}

// FindByID retrieves a record by _id.
func (r *MongoRepo) FindByID(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rec Record
	if err := r.coll.FindOne(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return nil, mapMongoError("findByID", err)
	}
	rec.Metadata = normalizeDocument(rec.Metadata)
	return &rec, nil
}

// FindAll retrieves every record in the collection's natural order.
func (r *MongoRepo) FindAll(ctx context.Context) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.find(ctx, "findAll", bson.M{})
}

// FindByContentPath retrieves the documents whose content_path matches.
func (r *MongoRepo) FindByContentPath(ctx context.Context, contentPath string) ([]*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	return r.find(ctx, "findByContentPath", bson.M{"content_path": contentPath})
}

func (r *MongoRepo) find(ctx context.Context, op string, filter bson.M) ([]*Record, error) {
	cursor, err := r.coll.Find(ctx, filter)
	if err != nil {
		return nil, mapMongoError(op, err)
	}
	defer cursor.Close(ctx)

	records := make([]*Record, 0)
	for cursor.Next(ctx) {
		var rec Record
		if err := cursor.Decode(&rec); err != nil {
			return nil, fmt.Errorf("repo %s decode: %w", op, err)
		}
		rec.Metadata = normalizeDocument(rec.Metadata)
		records = append(records, &rec)
	}
	if err := cursor.Err(); err != nil {
		return nil, mapMongoError(op, err)
	}
	return records, nil
}

// DeleteByID removes the document with the given _id and returns it.
func (r *MongoRepo) DeleteByID(ctx context.Context, id string) (*Record, error) {
	ctx, cancel := context.WithTimeout(ctx, dbTimeout)
	defer cancel()

	var rec Record
	if err := r.coll.FindOneAndDelete(ctx, bson.M{"_id": id}).Decode(&rec); err != nil {
		return nil, mapMongoError("deleteByID", err)
	}
	rec.Metadata = normalizeDocument(rec.Metadata)
	return &rec, nil
}

// Ping checks that the deployment is reachable.
func (r *MongoRepo) Ping(ctx context.Context) error {
	if err := r.client.Ping(ctx, nil); err != nil {
		return mapMongoError("ping", err)
	}
	return nil
}

// Close disconnects the client.
func (r *MongoRepo) Close(ctx context.Context) error {
	return r.client.Disconnect(ctx)
}

// mapMongoError converts driver errors to the package sentinels.
func mapMongoError(op string, err error) error {
	switch {
	case errors.Is(err, mongo.ErrNoDocuments):
		return fmt.Errorf("repo %s: %w", op, ErrNotFound)
	case mongo.IsDuplicateKeyError(err):
		return fmt.Errorf("repo %s: %w", op, ErrDuplicate)
	case errors.Is(err, mongo.ErrClientDisconnected), mongo.IsNetworkError(err), mongo.IsTimeout(err):
		return fmt.Errorf("repo %s: %w: %v", op, ErrUnavailable, err)
	default:
		return fmt.Errorf("repo %s: %w", op, err)
	}
}

// normalizeDocument turns the driver's embedded document and array types into
// plain maps and slices so records serialize back to the JSON they came from.
func normalizeDocument(doc map[string]interface{}) map[string]interface{} {
	if doc == nil {
		return nil
	}
	out := make(map[string]interface{}, len(doc))
	for k, v := range doc {
		out[k] = normalizeValue(v)
	}
	return out
}

func normalizeValue(v interface{}) interface{} {
	switch t := v.(type) {
	case primitive.D:
		m := make(map[string]interface{}, len(t))
		for _, e := range t {
			m[e.Key] = normalizeValue(e.Value)
		}
		return m
	case primitive.M:
		return normalizeDocument(t)
	case map[string]interface{}:
		return normalizeDocument(t)
	case primitive.A:
		return normalizeSlice(t)
	case []interface{}:
		return normalizeSlice(t)
	default:
		return v
	}
}

func normalizeSlice(s []interface{}) []interface{} {
	out := make([]interface{}, len(s))
	for i, v := range s {
		out[i] = normalizeValue(v)
	}
	return out
}
