package session

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

type mongoRecord struct {
	ID               string    `bson:"_id"`
	IdentityID       string    `bson:"identity_id"`
	AccessTokenHash  string    `bson:"access_token_hash"`
	RefreshTokenHash string    `bson:"refresh_token_hash"`
	UserAgent        string    `bson:"user_agent,omitempty"`
	IP               string    `bson:"ip,omitempty"`
	CreatedAt        time.Time `bson:"created_at"`
	ExpiresAt        time.Time `bson:"expires_at"`
}

func toMongo(r Record) mongoRecord { return mongoRecord(r) }

func (m mongoRecord) record() Record {
	r := Record(m)
	r.CreatedAt = r.CreatedAt.UTC()
	r.ExpiresAt = r.ExpiresAt.UTC()
	return r
}

// MongoStore keeps one document per record. Unique indexes on both digests
// back ErrRecordConflict and a TTL index on expires_at lets the server drop
// dead records.
//
// Rotate claims the old document with FindOneAndDelete, so of concurrent
// rotations only the caller that deleted it inserts a replacement.
type MongoStore struct {
	coll *mongo.Collection
}

var _ Store = (*MongoStore)(nil)

// NewMongoStore uses the "sessions" collection of db.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{coll: db.Collection("sessions")}
}

// EnsureIndexes creates the digest, identity and TTL indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "access_token_hash", Value: 1}},
			Options: options.Index().SetName("uq_sessions_access_token_hash").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "refresh_token_hash", Value: 1}},
			Options: options.Index().SetName("uq_sessions_refresh_token_hash").SetUnique(true),
		},
		{
			Keys:    bson.D{{Key: "identity_id", Value: 1}},
			Options: options.Index().SetName("idx_sessions_identity_id"),
		},
		{
			Keys:    bson.D{{Key: "expires_at", Value: 1}},
			Options: options.Index().SetName("ttl_sessions_expires_at").SetExpireAfterSeconds(0),
		},
	})
	return err
}

func mongoFilter(f Filter) bson.D {
	field := f.String()
	if f.key == keyID {
		field = "_id"
	}
	return bson.D{{Key: field, Value: f.value}}
}

func (s *MongoStore) Create(ctx context.Context, r Record) (string, error) {
	if err := prepare(&r); err != nil {
		return "", err
	}
	if _, err := s.coll.InsertOne(ctx, toMongo(r)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrRecordConflict
		}
		return "", err
	}
	return r.ID, nil
}

func (s *MongoStore) FindOne(ctx context.Context, f Filter) (Record, error) {
	if !f.valid() {
		return Record{}, ErrInvalidFilter
	}
	var doc mongoRecord
	err := s.coll.FindOne(ctx, mongoFilter(f)).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Record{}, ErrRecordNotFound
	}
	if err != nil {
		return Record{}, err
	}
	return doc.record(), nil
}

func (s *MongoStore) DeleteOne(ctx context.Context, f Filter) (int64, error) {
	if !f.valid() {
		return 0, ErrInvalidFilter
	}
	res, err := s.coll.DeleteOne(ctx, mongoFilter(f))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) DeleteAll(ctx context.Context, f Filter) (int64, error) {
	if f.key != keyIdentity || !f.valid() {
		return 0, ErrInvalidFilter
	}
	res, err := s.coll.DeleteMany(ctx, mongoFilter(f))
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

func (s *MongoStore) Rotate(ctx context.Context, refreshHash string, next Record) (string, error) {
	if refreshHash == "" {
		return "", ErrInvalidFilter
	}
	if err := prepare(&next); err != nil {
		return "", err
	}

	var old mongoRecord
	err := s.coll.FindOneAndDelete(ctx, bson.D{{Key: "refresh_token_hash", Value: refreshHash}}).Decode(&old)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return "", ErrRecordNotFound
	}
	if err != nil {
		return "", err
	}

	if _, err := s.coll.InsertOne(ctx, toMongo(next)); err != nil {
		// Put the claimed record back so the caller's token stays usable.
		_, _ = s.coll.InsertOne(context.WithoutCancel(ctx), old)
		if mongo.IsDuplicateKeyError(err) {
			return "", ErrRecordConflict
		}
		return "", err
	}
	return old.ID, nil
}
