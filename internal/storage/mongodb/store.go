// Package mongodb stores users and district messages in MongoDB. Message
// appends run in a multi-document transaction, so the server must be a
// replica set or sharded cluster.
package mongodb

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/hongminglow/barrio-seguro-be/internal/models"
	"github.com/hongminglow/barrio-seguro-be/internal/storage"
)

var _ storage.Store = (*Store)(nil)

const (
	usersCollection    = "users"
	messagesCollection = "district_messages"
	countersCollection = "district_counters"
)

// Store provides MongoDB-backed persistence.
type Store struct {
	client   *mongo.Client
	users    *mongo.Collection
	messages *mongo.Collection
	counters *mongo.Collection
}

type counter struct {
	District  string `bson:"_id"`
	LastOrder int64  `bson:"last_order"`
}

// NewStore connects, ensures indexes and reconciles district counters with
// messages that may have been written before counters existed.
func NewStore(ctx context.Context, uri, database string) (*Store, error) {
	connectCtx, cancel := context.WithTimeout(ctx, 30*time.Second)
	defer cancel()

	opts := options.Client().ApplyURI(uri).SetServerSelectionTimeout(10 * time.Second)
	client, err := mongo.Connect(connectCtx, opts)
	if err != nil {
		return nil, fmt.Errorf("connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:   client,
		users:    db.Collection(usersCollection),
		messages: db.Collection(messagesCollection),
		counters: db.Collection(countersCollection),
	}
	if err := s.ensureIndexes(connectCtx); err != nil {
		s.Close()
		return nil, err
	}
	if err := s.syncCounters(connectCtx); err != nil {
		s.Close()
		return nil, err
	}
	return s, nil
}

// Close disconnects the client.
func (s *Store) Close() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	_ = s.client.Disconnect(ctx)
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.users.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "email", Value: 1}},
		Options: options.Index().SetName("idx_users_email").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create users index: %w", err)
	}
	_, err = s.messages.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "district", Value: 1}, {Key: "order", Value: -1}},
		Options: options.Index().SetName("idx_district_order").SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create messages index: %w", err)
	}
	return nil
}

// syncCounters raises each counter to the highest stored order of its district.
func (s *Store) syncCounters(ctx context.Context) error {
	pipeline := mongo.Pipeline{
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$district"},
			{Key: "last_order", Value: bson.D{{Key: "$max", Value: "$order"}}},
		}}},
	}
	cur, err := s.messages.Aggregate(ctx, pipeline)
	if err != nil {
		return fmt.Errorf("aggregate max order: %w", err)
	}
	var maxima []counter
	if err := cur.All(ctx, &maxima); err != nil {
		return fmt.Errorf("decode max order: %w", err)
	}
	for _, c := range maxima {
		_, err := s.counters.UpdateOne(ctx,
			bson.M{"_id": c.District},
			bson.M{"$max": bson.M{"last_order": c.LastOrder}},
			options.Update().SetUpsert(true),
		)
		if err != nil {
			return fmt.Errorf("sync counter %q: %w", c.District, err)
		}
	}
	return nil
}

// CreateUser inserts the user document.
func (s *Store) CreateUser(ctx context.Context, user models.User) (models.User, error) {
	if user.CreatedAt.IsZero() {
		user.CreatedAt = time.Now().UTC()
	}
	if _, err := s.users.InsertOne(ctx, user); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.User{}, storage.ErrAlreadyExists
		}
		return models.User{}, err
	}
	return user, nil
}

// FindByEmail fetches a user by email address.
func (s *Store) FindByEmail(ctx context.Context, email string) (models.User, error) {
	return s.findOne(ctx, bson.M{"email": email})
}

// FindByID fetches a user by id.
func (s *Store) FindByID(ctx context.Context, id string) (models.User, error) {
	return s.findOne(ctx, bson.M{"_id": id})
}

func (s *Store) findOne(ctx context.Context, filter bson.M) (models.User, error) {
	var user models.User
	if err := s.users.FindOne(ctx, filter).Decode(&user); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return models.User{}, storage.ErrNotFound
		}
		return models.User{}, err
	}
	return user, nil
}

// Append increments the district counter and inserts the message inside one
// transaction. Concurrent increments of the same counter conflict and are
// retried by the driver, so each committed append observes a distinct value.
func (s *Store) Append(ctx context.Context, msg models.Message) (models.Message, error) {
	sess, err := s.client.StartSession()
	if err != nil {
		return models.Message{}, fmt.Errorf("start session: %w", err)
	}
	defer sess.EndSession(ctx)

	_, err = sess.WithTransaction(ctx, func(sc mongo.SessionContext) (any, error) {
		var c counter
		err := s.counters.FindOneAndUpdate(sc,
			bson.M{"_id": msg.District},
			bson.M{"$inc": bson.M{"last_order": int64(1)}},
			options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
		).Decode(&c)
		if err != nil {
			return nil, fmt.Errorf("next order: %w", err)
		}
		msg.Order = c.LastOrder
		if _, err := s.messages.InsertOne(sc, msg); err != nil {
			return nil, fmt.Errorf("insert message: %w", err)
		}
		return nil, nil
	})
	if err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return models.Message{}, storage.ErrAlreadyExists
		}
		return models.Message{}, err
	}
	return msg, nil
}

// Recent returns the newest limit messages of district in ascending order.
func (s *Store) Recent(ctx context.Context, district string, limit int) ([]models.Message, error) {
	out := []models.Message{}
	if limit <= 0 {
		return out, nil
	}
	opts := options.Find().
		SetSort(bson.D{{Key: "order", Value: -1}}).
		SetLimit(int64(limit))
	cur, err := s.messages.Find(ctx, bson.M{"district": district}, opts)
	if err != nil {
		return nil, fmt.Errorf("find recent messages: %w", err)
	}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode messages: %w", err)
	}
	if out == nil {
		out = []models.Message{}
	}
	slices.Reverse(out)
	return out, nil
}
