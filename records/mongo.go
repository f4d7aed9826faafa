package records

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

const (
	RefreshCollection  = "refresh_tokens"
	OneTimeCollection  = "one_time_tokens"
	CountersCollection = "token_counters"
)

type mongoRecord struct {
	ID        int64     `bson:"_id"`
	TokenHash string    `bson:"token_hash"`
	JTI       string    `bson:"jti"`
	UserID    int64     `bson:"user_id"`
	Subject   string    `bson:"subject"`
	Purpose   string    `bson:"purpose,omitempty"`
	ExpiresAt time.Time `bson:"expires_at"`
	Used      bool      `bson:"used"`
	Revoked   bool      `bson:"revoked"`
	CreatedAt time.Time `bson:"created_at"`
}

func (m *mongoRecord) record() *Record {
	return &Record{
		ID:        m.ID,
		TokenHash: m.TokenHash,
		JTI:       m.JTI,
		UserID:    m.UserID,
		Subject:   m.Subject,
		ExpiresAt: m.ExpiresAt,
		Used:      m.Used,
		Revoked:   m.Revoked,
		CreatedAt: m.CreatedAt,
	}
}

func (m *mongoRecord) oneTime() *OneTimeRecord {
	return &OneTimeRecord{
		ID:        m.ID,
		TokenHash: m.TokenHash,
		JTI:       m.JTI,
		UserID:    m.UserID,
		Subject:   m.Subject,
		Purpose:   m.Purpose,
		ExpiresAt: m.ExpiresAt,
		Used:      m.Used,
		CreatedAt: m.CreatedAt,
	}
}

// MongoStore is a Store and OneTimeStore backed by MongoDB collections.
//
// It does not implement Rotator: multi-document transactions need a replica set,
// so rotation goes through Insert + ConditionalMarkUsed (FindOneAndUpdate).
type MongoStore struct {
	refresh  *mongo.Collection
	oneTime  *mongo.Collection
	counters *mongo.Collection
}

// NewMongoStore binds the store to db. Call EnsureIndexes once at startup.
func NewMongoStore(db *mongo.Database) *MongoStore {
	return &MongoStore{
		refresh:  db.Collection(RefreshCollection),
		oneTime:  db.Collection(OneTimeCollection),
		counters: db.Collection(CountersCollection),
	}
}

// ConnectMongo opens a client for uri and pings the primary.
func ConnectMongo(ctx context.Context, uri string) (*mongo.Client, error) {
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(ctx)
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return client, nil
}

// EnsureIndexes creates the unique token-hash indexes and the lookup indexes.
func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	unique := options.Index().SetUnique(true)
	if _, err := s.refresh.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "user_id", Value: 1}}},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	if _, err := s.oneTime.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "token_hash", Value: 1}}, Options: unique},
		{Keys: bson.D{{Key: "expires_at", Value: 1}}},
	}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) nextID(ctx context.Context, name string) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	opts := options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After)
	err := s.counters.FindOneAndUpdate(ctx, bson.M{"_id": name}, bson.M{"$inc": bson.M{"seq": 1}}, opts).Decode(&counter)
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return counter.Seq, nil
}

func mongoWriteError(err error) error {
	if mongo.IsDuplicateKeyError(err) {
		return ErrDuplicate
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func mongoReadError(err error) error {
	if errors.Is(err, mongo.ErrNoDocuments) {
		return ErrNotFound
	}
	return fmt.Errorf("%w: %v", ErrUnavailable, err)
}

func (s *MongoStore) Insert(ctx context.Context, rec *Record) error {
	id, err := s.nextID(ctx, RefreshCollection)
	if err != nil {
		return err
	}
	doc := mongoRecord{
		ID:        id,
		TokenHash: rec.TokenHash,
		JTI:       rec.JTI,
		UserID:    rec.UserID,
		Subject:   rec.Subject,
		ExpiresAt: rec.ExpiresAt.UTC(),
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if _, err := s.refresh.InsertOne(ctx, doc); err != nil {
		return mongoWriteError(err)
	}
	rec.ID = id
	return nil
}

func (s *MongoStore) findRecord(ctx context.Context, filter bson.M) (*Record, error) {
	var doc mongoRecord
	if err := s.refresh.FindOne(ctx, filter).Decode(&doc); err != nil {
		return nil, mongoReadError(err)
	}
	return doc.record(), nil
}

func (s *MongoStore) FindByToken(ctx context.Context, tokenHash string) (*Record, error) {
	return s.findRecord(ctx, bson.M{"token_hash": tokenHash})
}

func (s *MongoStore) FindByID(ctx context.Context, id int64) (*Record, error) {
	return s.findRecord(ctx, bson.M{"_id": id})
}

func (s *MongoStore) ConditionalMarkUsed(ctx context.Context, tokenHash string, now time.Time) (bool, error) {
	filter := bson.M{
		"token_hash": tokenHash,
		"used":       false,
		"revoked":    false,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	err := s.refresh.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"used": true}}).Err()
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return false, nil
		}
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return true, nil
}

func (s *MongoStore) MarkRevoked(ctx context.Context, tokenHash string) (bool, error) {
	res, err := s.refresh.UpdateOne(ctx,
		bson.M{"token_hash": tokenHash, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return false, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return res.ModifiedCount == 1, nil
}

func (s *MongoStore) RevokeAllForUser(ctx context.Context, userID int64) (int, error) {
	res, err := s.refresh.UpdateMany(ctx,
		bson.M{"user_id": userID, "revoked": false},
		bson.M{"$set": bson.M{"revoked": true}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res.ModifiedCount), nil
}

func (s *MongoStore) DeleteExpired(ctx context.Context, before time.Time) (int, error) {
	res, err := s.refresh.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res.DeletedCount), nil
}

func (s *MongoStore) Delete(ctx context.Context, tokenHash string) error {
	if _, err := s.refresh.DeleteOne(ctx, bson.M{"token_hash": tokenHash}); err != nil {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return nil
}

func (s *MongoStore) InsertOneTime(ctx context.Context, rec *OneTimeRecord) error {
	id, err := s.nextID(ctx, OneTimeCollection)
	if err != nil {
		return err
	}
	doc := mongoRecord{
		ID:        id,
		TokenHash: rec.TokenHash,
		JTI:       rec.JTI,
		UserID:    rec.UserID,
		Subject:   rec.Subject,
		Purpose:   rec.Purpose,
		ExpiresAt: rec.ExpiresAt.UTC(),
		CreatedAt: rec.CreatedAt.UTC(),
	}
	if _, err := s.oneTime.InsertOne(ctx, doc); err != nil {
		return mongoWriteError(err)
	}
	rec.ID = id
	return nil
}

func (s *MongoStore) FindOneTime(ctx context.Context, tokenHash string) (*OneTimeRecord, error) {
	var doc mongoRecord
	if err := s.oneTime.FindOne(ctx, bson.M{"token_hash": tokenHash}).Decode(&doc); err != nil {
		return nil, mongoReadError(err)
	}
	return doc.oneTime(), nil
}

func (s *MongoStore) ConsumeOneTime(ctx context.Context, tokenHash, purpose string, now time.Time) (*OneTimeRecord, error) {
	filter := bson.M{
		"token_hash": tokenHash,
		"purpose":    purpose,
		"used":       false,
		"expires_at": bson.M{"$gt": now.UTC()},
	}
	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	var doc mongoRecord
	err := s.oneTime.FindOneAndUpdate(ctx, filter, bson.M{"$set": bson.M{"used": true}}, opts).Decode(&doc)
	if err == nil {
		return doc.oneTime(), nil
	}
	if !errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}

	existing, err := s.FindOneTime(ctx, tokenHash)
	if err != nil {
		return nil, err
	}
	if existing.Purpose != purpose {
		return nil, ErrPurposeMismatch
	}
	return nil, ErrNotValid
}

func (s *MongoStore) DeleteExpiredOneTime(ctx context.Context, before time.Time) (int, error) {
	res, err := s.oneTime.DeleteMany(ctx, bson.M{"expires_at": bson.M{"$lte": before.UTC()}})
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return int(res.DeletedCount), nil
}

var (
	_ Store        = (*MongoStore)(nil)
	_ OneTimeStore = (*MongoStore)(nil)
)
