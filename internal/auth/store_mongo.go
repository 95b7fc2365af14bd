package auth

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
	"go.mongodb.org/mongo-driver/v2/mongo/readpref"
)

const (
	usersCollection = "users"
	filesCollection = "files"
)

type mongoUser struct {
	ID       bson.ObjectID `bson:"_id,omitempty"`
	Email    string        `bson:"email"`
	Password string        `bson:"password"`
}

func (m mongoUser) user() User {
	return User{ID: m.ID.Hex(), Email: m.Email, PasswordHash: m.Password}
}

// MongoUserStore reads and writes the users and files collections of one
// database. A unique index on users.email backs Create.
type MongoUserStore struct {
	client *mongo.Client
	users  *mongo.Collection
	files  *mongo.Collection
}

func NewMongoUserStore(ctx context.Context, client *mongo.Client, database string) (*MongoUserStore, error) {
	if client == nil {
		return nil, fmt.Errorf("mongo client is required")
	}
	if database == "" {
		return nil, fmt.Errorf("mongo database name is required")
	}
	db := client.Database(database)
	s := &MongoUserStore{
		client: client,
		users:  db.Collection(usersCollection),
		files:  db.Collection(filesCollection),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		return nil, err
	}
	return s, nil
}

func (s *MongoUserStore) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetUnique(true).SetName("users_email_unique"),
	})
	if err != nil {
		return fmt.Errorf("ensure users email index: %w", err)
	}
	return nil
}

func (s *MongoUserStore) Exists(ctx context.Context, email string) (bool, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{{Key: "email", Value: email}}, options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("%w: count users by email: %v", ErrStoreUnavailable, err)
	}
	return n > 0, nil
}

func (s *MongoUserStore) GetByEmail(ctx context.Context, email string) (User, error) {
	return s.findOne(ctx, bson.D{{Key: "email", Value: email}})
}

func (s *MongoUserStore) GetByID(ctx context.Context, id string) (User, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return User{}, ErrUserNotFound
	}
	return s.findOne(ctx, bson.D{{Key: "_id", Value: oid}})
}

func (s *MongoUserStore) findOne(ctx context.Context, filter bson.D) (User, error) {
	var doc mongoUser
	if err := s.users.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return User{}, ErrUserNotFound
		}
		return User{}, fmt.Errorf("%w: find user: %v", ErrStoreUnavailable, err)
	}
	return doc.user(), nil
}

func (s *MongoUserStore) Create(ctx context.Context, email, passwordHash string) (User, error) {
	if email == "" || passwordHash == "" {
		return User{}, fmt.Errorf("email and password hash are required")
	}

	res, err := s.users.InsertOne(ctx, mongoUser{Email: email, Password: passwordHash})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return User{}, ErrUserExists
		}
		return User{}, fmt.Errorf("%w: insert user: %v", ErrStoreUnavailable, err)
	}
	oid, ok := res.InsertedID.(bson.ObjectID)
	if !ok {
		return User{}, fmt.Errorf("unexpected inserted id type %T", res.InsertedID)
	}
	return User{ID: oid.Hex(), Email: email, PasswordHash: passwordHash}, nil
}

func (s *MongoUserStore) CountUsers(ctx context.Context) (int64, error) {
	n, err := s.users.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("%w: count users: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *MongoUserStore) CountFiles(ctx context.Context) (int64, error) {
	n, err := s.files.CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, fmt.Errorf("%w: count files: %v", ErrStoreUnavailable, err)
	}
	return n, nil
}

func (s *MongoUserStore) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, readpref.Primary()); err != nil {
		return fmt.Errorf("%w: %v", ErrStoreUnavailable, err)
	}
	return nil
}
