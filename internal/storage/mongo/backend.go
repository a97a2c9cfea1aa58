// Package mongo implements the storage backend on MongoDB. Rows of all
// namespaces live in a single collection keyed by (namespace, id); id
// sequences, the namespace registry and the trigger firing log each get
// their own collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/rguptar/motion/internal/storage"
)

const (
	rowsCollection       = "rows"
	countersCollection   = "counters"
	namespacesCollection = "namespaces"
	logsCollection       = "trigger_logs"
)

// Backend is a MongoDB-backed storage.Backend.
type Backend struct {
	client *mongo.Client
	db     *mongo.Database
}

// NewBackend connects to MongoDB and prepares the database indexes.
func NewBackend(ctx context.Context, uri string, dbName string) (*Backend, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}
	if err := client.Ping(ctx, nil); err != nil {
		return nil, err
	}

	b := &Backend{
		client: client,
		db:     client.Database(dbName),
	}
	if err := b.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return b, nil
}

func (b *Backend) ensureIndexes(ctx context.Context) error {
	_, err := b.db.Collection(rowsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "namespace", Value: 1}, {Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("ensure rows index: %w", err)
	}
	_, err = b.db.Collection(logsCollection).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "trigger_name", Value: 1}, {Key: "trigger_version", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("ensure log index: %w", err)
	}
	return nil
}

type namespaceDoc struct {
	Name   string         `bson:"_id"`
	Schema []storageField `bson:"schema"`
}

type storageField struct {
	Name string `bson:"name"`
	Type string `bson:"type"`
}

func (b *Backend) CreateNamespace(ctx context.Context, name string, schema storage.Schema) error {
	if err := schema.Validate(); err != nil {
		return fmt.Errorf("namespace %q: %w", name, err)
	}

	fields := make([]storageField, len(schema))
	for i, f := range schema {
		fields[i] = storageField{Name: f.Name, Type: string(f.Type)}
	}

	_, err := b.db.Collection(namespacesCollection).InsertOne(ctx, namespaceDoc{
		Name:   name,
		Schema: fields,
	})
	if mongo.IsDuplicateKeyError(err) {
		slog.Warn("Namespace already exists, doing nothing", "namespace", name)
		return nil
	}
	return err
}

func (b *Backend) DropNamespace(ctx context.Context, name string) error {
	res, err := b.db.Collection(namespacesCollection).DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	if _, err := b.db.Collection(rowsCollection).DeleteMany(ctx, bson.M{"namespace": name}); err != nil {
		return err
	}
	_, err = b.db.Collection(countersCollection).DeleteOne(ctx, bson.M{"_id": name})
	return err
}

func (b *Backend) Namespaces(ctx context.Context) (map[string]storage.Schema, error) {
	cur, err := b.db.Collection(namespacesCollection).Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	out := make(map[string]storage.Schema)
	for cur.Next(ctx) {
		var doc namespaceDoc
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		schema := make(storage.Schema, len(doc.Schema))
		for i, f := range doc.Schema {
			schema[i] = storage.Field{Name: f.Name, Type: storage.FieldType(f.Type)}
		}
		out[doc.Name] = schema
	}
	return out, cur.Err()
}

func (b *Backend) schema(ctx context.Context, name string) (storage.Schema, error) {
	var doc namespaceDoc
	err := b.db.Collection(namespacesCollection).FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s", storage.ErrUnknownNamespace, name)
	}
	if err != nil {
		return nil, err
	}
	schema := make(storage.Schema, len(doc.Schema))
	for i, f := range doc.Schema {
		schema[i] = storage.Field{Name: f.Name, Type: storage.FieldType(f.Type)}
	}
	return schema, nil
}

func (b *Backend) NewID(ctx context.Context, name string) (int64, error) {
	if _, err := b.schema(ctx, name); err != nil {
		return 0, err
	}

	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := b.db.Collection(countersCollection).FindOneAndUpdate(ctx,
		bson.M{"_id": name},
		bson.M{"$inc": bson.M{"seq": 1}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, err
	}
	return counter.Seq, nil
}

func (b *Backend) Set(ctx context.Context, name string, id int64, values map[string]any) error {
	schema, err := b.schema(ctx, name)
	if err != nil {
		return err
	}

	set := bson.M{"updated_at": time.Now().UnixMilli()}
	for field, value := range values {
		decl, ok := schema.Field(field)
		if !ok {
			return fmt.Errorf("%w: %s.%s", storage.ErrUnknownField, name, field)
		}
		if err := storage.CheckValue(decl.Type, value); err != nil {
			return fmt.Errorf("%s.%s: %w", name, field, err)
		}
		set["data."+field] = storage.Normalize(decl.Type, value)
	}

	_, err = b.db.Collection(rowsCollection).UpdateOne(ctx,
		bson.M{"namespace": name, "id": id},
		bson.M{"$set": set, "$setOnInsert": bson.M{"created_at": time.Now().UnixMilli()}},
		options.Update().SetUpsert(true),
	)
	return err
}

func (b *Backend) Get(ctx context.Context, name string, id int64, fields []string) (map[string]any, error) {
	var doc struct {
		Data map[string]any `bson:"data"`
	}
	err := b.db.Collection(rowsCollection).FindOne(ctx, bson.M{"namespace": name, "id": id}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %s/%d", storage.ErrNotFound, name, id)
	}
	if err != nil {
		return nil, err
	}

	out := make(map[string]any, len(fields))
	for _, field := range fields {
		if value, ok := doc.Data[field]; ok {
			out[field] = normalizeDecoded(value)
		}
	}
	return out, nil
}

func (b *Backend) IDsBefore(ctx context.Context, name string, id int64) ([]int64, error) {
	cur, err := b.db.Collection(rowsCollection).Find(ctx,
		bson.M{"namespace": name, "id": bson.M{"$lt": id}},
		options.Find().SetSort(bson.D{{Key: "id", Value: 1}}).SetProjection(bson.M{"id": 1}),
	)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	var ids []int64
	for cur.Next(ctx) {
		var doc struct {
			ID int64 `bson:"id"`
		}
		if err := cur.Decode(&doc); err != nil {
			return nil, err
		}
		ids = append(ids, doc.ID)
	}
	return ids, cur.Err()
}

func (b *Backend) AppendLog(ctx context.Context, entry *storage.LogEntry) error {
	_, err := b.db.Collection(logsCollection).InsertOne(ctx, entry)
	return err
}

func (b *Backend) MaxTriggerVersion(ctx context.Context, name string) (int, error) {
	var doc struct {
		TriggerVersion int `bson:"trigger_version"`
	}
	err := b.db.Collection(logsCollection).FindOne(ctx,
		bson.M{"trigger_name": name},
		options.FindOne().SetSort(bson.D{{Key: "trigger_version", Value: -1}}),
	).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}
	return doc.TriggerVersion, nil
}

func (b *Backend) Close(ctx context.Context) error {
	return b.client.Disconnect(ctx)
}

// normalizeDecoded maps BSON decode artifacts back to the canonical
// value types the schema layer hands out.
func normalizeDecoded(v any) any {
	switch n := v.(type) {
	case int32:
		return int64(n)
	case bson.A:
		out := make([]any, len(n))
		for i, item := range n {
			out[i] = normalizeDecoded(item)
		}
		return out
	case bson.M:
		out := make(map[string]any, len(n))
		for k, item := range n {
			out[k] = normalizeDecoded(item)
		}
		return out
	}
	return v
}
