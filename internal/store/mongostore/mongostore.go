// Package mongostore implements store.Store on MongoDB.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/dromkey/todolist/internal/apperr"
	"github.com/dromkey/todolist/internal/store"
)

type userDoc struct {
	ID           primitive.ObjectID `bson:"_id,omitempty"`
	Username     string             `bson:"username"`
	PasswordHash string             `bson:"password"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

type taskDoc struct {
	ID        primitive.ObjectID `bson:"_id,omitempty"`
	UserID    primitive.ObjectID `bson:"userId"`
	Text      string             `bson:"text"`
	Completed bool               `bson:"completed"`
	CreatedAt time.Time          `bson:"createdAt"`
}

func (d userDoc) user() store.User {
	return store.User{
		ID:           d.ID.Hex(),
		Username:     d.Username,
		PasswordHash: d.PasswordHash,
		CreatedAt:    d.CreatedAt,
	}
}

func (d taskDoc) task() store.Task {
	return store.Task{
		ID:        d.ID.Hex(),
		OwnerID:   d.UserID.Hex(),
		Title:     d.Text,
		Completed: d.Completed,
		CreatedAt: d.CreatedAt,
	}
}

type Store struct {
	client *mongo.Client
	users  *mongo.Collection
	tasks  *mongo.Collection
}

// Connect dials uri, pings the primary and makes sure the indexes exist.
func Connect(ctx context.Context, uri, dbName string) (*Store, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("mongo connect: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("mongo ping: %w", err)
	}

	db := client.Database(dbName)
	s := &Store{
		client: client,
		users:  db.Collection("users"),
		tasks:  db.Collection("tasks"),
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	log.Printf("connected to MongoDB database %q", dbName)
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "username", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("users index: %w", err)
	}
	_, err = s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "_id", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("tasks index: %w", err)
	}
	return nil
}

func (s *Store) CreateUser(ctx context.Context, u store.User) (store.User, error) {
	doc := userDoc{
		ID:           primitive.NewObjectID(),
		Username:     u.Username,
		PasswordHash: u.PasswordHash,
		CreatedAt:    u.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := s.users.InsertOne(ctx, doc); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return store.User{}, apperr.Conflict("username %q is already taken", u.Username)
		}
		return store.User{}, classify("create user", err)
	}
	return doc.user(), nil
}

func (s *Store) UserByUsername(ctx context.Context, username string) (store.User, error) {
	var doc userDoc
	err := s.users.FindOne(ctx, bson.M{"username": username}).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.User{}, apperr.NotFound("user")
		}
		return store.User{}, classify("find user", err)
	}
	return doc.user(), nil
}

func (s *Store) CreateTask(ctx context.Context, t store.Task) (store.Task, error) {
	uid, err := primitive.ObjectIDFromHex(t.OwnerID)
	if err != nil {
		return store.Task{}, fmt.Errorf("create task: owner id %q: %w", t.OwnerID, err)
	}
	doc := taskDoc{
		ID:        primitive.NewObjectID(),
		UserID:    uid,
		Text:      t.Title,
		Completed: t.Completed,
		CreatedAt: t.CreatedAt,
	}
	if doc.CreatedAt.IsZero() {
		doc.CreatedAt = time.Now().UTC()
	}
	if _, err := s.tasks.InsertOne(ctx, doc); err != nil {
		return store.Task{}, classify("create task", err)
	}
	return doc.task(), nil
}

func (s *Store) ListTasks(ctx context.Context, ownerID string) ([]store.Task, error) {
	uid, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return []store.Task{}, nil
	}
	// ObjectIDs grow with insertion time, so sorting on _id keeps insertion order.
	opts := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := s.tasks.Find(ctx, bson.M{"userId": uid}, opts)
	if err != nil {
		return nil, classify("list tasks", err)
	}
	defer cursor.Close(ctx)

	var docs []taskDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, classify("decode tasks", err)
	}
	out := make([]store.Task, len(docs))
	for i, d := range docs {
		out[i] = d.task()
	}
	return out, nil
}

func (s *Store) GetTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return store.Task{}, apperr.NotFound("task")
	}
	var doc taskDoc
	if err := s.tasks.FindOne(ctx, filter).Decode(&doc); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Task{}, apperr.NotFound("task")
		}
		return store.Task{}, classify("get task", err)
	}
	return doc.task(), nil
}

func (s *Store) UpdateTaskTitle(ctx context.Context, ownerID, id, title string) (store.Task, error) {
	return s.findAndSet(ctx, "update task", ownerID, id, bson.M{"text": title})
}

func (s *Store) CompleteTask(ctx context.Context, ownerID, id string) (store.Task, error) {
	return s.findAndSet(ctx, "complete task", ownerID, id, bson.M{"completed": true})
}

func (s *Store) DeleteTask(ctx context.Context, ownerID, id string) error {
	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return apperr.NotFound("task")
	}
	res, err := s.tasks.DeleteOne(ctx, filter)
	if err != nil {
		return classify("delete task", err)
	}
	if res.DeletedCount == 0 {
		return apperr.NotFound("task")
	}
	return nil
}

func (s *Store) Ping(ctx context.Context) error {
	if err := s.client.Ping(ctx, nil); err != nil {
		return classify("ping", err)
	}
	return nil
}

func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// findAndSet is a single server-side update matched on (_id, userId), so it
// cannot recreate a task deleted concurrently.
func (s *Store) findAndSet(ctx context.Context, op, ownerID, id string, set bson.M) (store.Task, error) {
	filter, ok := ownedFilter(ownerID, id)
	if !ok {
		return store.Task{}, apperr.NotFound("task")
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc taskDoc
	err := s.tasks.FindOneAndUpdate(ctx, filter, bson.M{"$set": set}, opts).Decode(&doc)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return store.Task{}, apperr.NotFound("task")
		}
		return store.Task{}, classify(op, err)
	}
	return doc.task(), nil
}

func ownedFilter(ownerID, id string) (bson.M, bool) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return nil, false
	}
	uid, err := primitive.ObjectIDFromHex(ownerID)
	if err != nil {
		return nil, false
	}
	return bson.M{"_id": oid, "userId": uid}, true
}

func classify(op string, err error) error {
	if mongo.IsNetworkError(err) || mongo.IsTimeout(err) ||
		errors.Is(err, context.DeadlineExceeded) || errors.Is(err, mongo.ErrClientDisconnected) {
		return apperr.Unavailable(op, err)
	}
	var sse mongo.ServerError
	if errors.As(err, &sse) && sse.HasErrorLabel("RetryableWriteError") {
		return apperr.Unavailable(op, err)
	}
	return fmt.Errorf("%s: %w", op, err)
}
