// Package mongostore implements leasekeeper.Store on a MongoDB collection, one document per
// resource keyed by name. Compare-and-set is an UpdateOne filtered on the expected lease.
package mongostore

import (
	"context"
	"errors"
	"fmt"

	leasekeeper "go-leasekeeper"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// document is the BSON representation of a resource.
type document struct {
	Name          string            `bson:"_id"`
	Description   string            `bson:"description"`
	OtherFields   map[string]string `bson:"other_fields"`
	ReservedBy    string            `bson:"reserved_by"`
	ReservedUntil int64             `bson:"reserved_until"`
}

// Store implements leasekeeper.Store using MongoDB.
type Store struct {
	collection *mongo.Collection
}

// New creates a Store over collection.
func New(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// Connect dials uri and returns a Store over dbName.collectionName together with the client,
// which the caller must Disconnect.
func Connect(ctx context.Context, uri, dbName, collectionName string) (*Store, *mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, nil, fmt.Errorf("mongo ping: %w", err)
	}
	return New(client.Database(dbName).Collection(collectionName)), client, nil
}

func (s *Store) Get(ctx context.Context, name string) (leasekeeper.Resource, error) {
	var doc document
	err := s.collection.FindOne(ctx, bson.M{"_id": name}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return leasekeeper.Resource{}, leasekeeper.ErrNotFound
	}
	if err != nil {
		return leasekeeper.Resource{}, fmt.Errorf("mongo find %s: %w", name, err)
	}
	return doc.resource(), nil
}

func (s *Store) List(ctx context.Context) ([]leasekeeper.Resource, error) {
	cursor, err := s.collection.Find(ctx, bson.M{}, options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("mongo find: %w", err)
	}

	var docs []document
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("mongo decode: %w", err)
	}

	var resources = make([]leasekeeper.Resource, len(docs))
	for i, doc := range docs {
		resources[i] = doc.resource()
	}
	return resources, nil
}

func (s *Store) CompareAndSet(ctx context.Context, name string, expected, next leasekeeper.Lease) error {
	var filter = bson.M{
		"_id":            name,
		"reserved_by":    expected.ReservedBy,
		"reserved_until": expected.ReservedUntil,
	}
	var update = bson.M{"$set": bson.M{
		"reserved_by":    next.ReservedBy,
		"reserved_until": next.ReservedUntil,
	}}

	res, err := s.collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return fmt.Errorf("mongo update %s: %w", name, err)
	}
	if res.MatchedCount == 1 {
		return nil
	}

	count, err := s.collection.CountDocuments(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("mongo count %s: %w", name, err)
	}
	if count == 0 {
		return leasekeeper.ErrNotFound
	}
	return leasekeeper.ErrConflict
}

func (s *Store) Create(ctx context.Context, res leasekeeper.Resource) error {
	if res.Name == "" {
		return fmt.Errorf("%w: name is required", leasekeeper.ErrInvalidRequest)
	}

	var doc = document{
		Name:          res.Name,
		Description:   res.Description,
		OtherFields:   res.OtherFields,
		ReservedBy:    res.ReservedBy,
		ReservedUntil: res.ReservedUntil,
	}
	if doc.OtherFields == nil {
		doc.OtherFields = map[string]string{}
	}

	_, err := s.collection.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		return leasekeeper.ErrAlreadyExists
	}
	if err != nil {
		return fmt.Errorf("mongo insert %s: %w", res.Name, err)
	}
	return nil
}

func (s *Store) Delete(ctx context.Context, name string) error {
	res, err := s.collection.DeleteOne(ctx, bson.M{"_id": name})
	if err != nil {
		return fmt.Errorf("mongo delete %s: %w", name, err)
	}
	if res.DeletedCount == 0 {
		return leasekeeper.ErrNotFound
	}
	return nil
}

func (d document) resource() leasekeeper.Resource {
	var fields = d.OtherFields
	if fields == nil {
		fields = map[string]string{}
	}
	return leasekeeper.Resource{
		Name:        d.Name,
		Description: d.Description,
		OtherFields: fields,
		Lease: leasekeeper.Lease{
			ReservedBy:    d.ReservedBy,
			ReservedUntil: d.ReservedUntil,
		},
	}
}
