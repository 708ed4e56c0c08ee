package identity

import (
	"context"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"

	"sessiond/cmd/identity/ids"
)

const mongoIdentities = "identities"

type mongoIdentity struct {
	ID           string    `bson:"_id"`
	Email        string    `bson:"email"`
	Name         string    `bson:"name"`
	Role         string    `bson:"role"`
	PasswordHash string    `bson:"password_hash"`
	CreatedAt    time.Time `bson:"created_at"`
}

func (m mongoIdentity) identity() Identity {
	return Identity{
		ID:           m.ID,
		Email:        m.Email,
		Name:         m.Name,
		Role:         Role(m.Role),
		PasswordHash: m.PasswordHash,
		CreatedAt:    m.CreatedAt.UTC(),
	}
}

// MongoDirectory implements Directory over a MongoDB collection with a
// unique index on email.
type MongoDirectory struct {
	coll *mongo.Collection
	pw   Passwords
}

var _ Directory = (*MongoDirectory)(nil)

// NewMongoDirectory uses the "identities" collection of db.
func NewMongoDirectory(db *mongo.Database, pw Passwords) *MongoDirectory {
	return &MongoDirectory{coll: db.Collection(mongoIdentities), pw: pw}
}

// EnsureIndexes creates the unique email index. Safe to call on every start.
func (d *MongoDirectory) EnsureIndexes(ctx context.Context) error {
	_, err := d.coll.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("uq_identities_email").SetUnique(true),
	})
	return err
}

func (d *MongoDirectory) FindByEmail(ctx context.Context, email string) (Identity, error) {
	var doc mongoIdentity
	err := d.coll.FindOne(ctx, bson.D{{Key: "email", Value: email}}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return Identity{}, NotFoundError{Op: "identity.FindByEmail", Resource: "identity"}
	}
	if err != nil {
		return Identity{}, err
	}
	return doc.identity(), nil
}

func (d *MongoDirectory) Create(ctx context.Context, draft Draft) (Identity, error) {
	const op = "identity.Create"

	draft = draft.Normalize()
	if err := draft.Validate(); err != nil {
		return Identity{}, err
	}
	hash, err := d.pw.Hash(draft.Password)
	if err != nil {
		return Identity{}, err
	}
	// BSON dates carry millisecond precision.
	now := time.Now().UTC().Truncate(time.Millisecond)
	id, err := ids.NewULID(now)
	if err != nil {
		return Identity{}, err
	}

	doc := mongoIdentity{
		ID:           id,
		Email:        draft.Email,
		Name:         draft.Name,
		Role:         string(draft.Role),
		PasswordHash: hash,
		CreatedAt:    now,
	}
	if _, err := d.coll.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return Identity{}, ConflictError{Op: op, Field: "email"}
		}
		return Identity{}, err
	}
	return doc.identity(), nil
}

func (d *MongoDirectory) VerifyPassword(plain, hash string) (bool, error) {
	return d.pw.Verify(plain, hash)
}
