package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

const emailLogsCollection = "email_logs"

// mongoEmailLog is the document shape of an EmailLog.
type mongoEmailLog struct {
	ID          bson.ObjectID `bson:"_id,omitempty"`
	ToEmail     string        `bson:"toEmail"`
	Subject     string        `bson:"subject"`
	HTMLPreview string        `bson:"htmlPreview"`
	Attachments []Attachment  `bson:"attachments"`
	Status      Status        `bson:"status"`
	Error       *string       `bson:"error,omitempty"`
	CreatedAt   time.Time     `bson:"createdAt"`
	UpdatedAt   time.Time     `bson:"updatedAt"`
}

func toMongo(e EmailLog) mongoEmailLog {
	return mongoEmailLog{
		ToEmail:     e.ToEmail,
		Subject:     e.Subject,
		HTMLPreview: e.HTMLPreview,
		Attachments: e.Attachments,
		Status:      e.Status,
		Error:       e.Error,
		CreatedAt:   e.CreatedAt,
		UpdatedAt:   e.UpdatedAt,
	}
}

func (d mongoEmailLog) entry() EmailLog {
	attachments := d.Attachments
	if attachments == nil {
		attachments = []Attachment{}
	}
	return EmailLog{
		ID:          d.ID.Hex(),
		ToEmail:     d.ToEmail,
		Subject:     d.Subject,
		HTMLPreview: d.HTMLPreview,
		Attachments: attachments,
		Status:      d.Status,
		Error:       d.Error,
		CreatedAt:   d.CreatedAt,
		UpdatedAt:   d.UpdatedAt,
	}
}

// MongoStore keeps email logs in a MongoDB collection.
type MongoStore struct {
	client *mongo.Client
	coll   *mongo.Collection
	now    func() time.Time
}

// NewMongoStore connects to MongoDB and pings it before returning.
func NewMongoStore(ctx context.Context, uri, dbName string, connectTimeout time.Duration) (*MongoStore, error) {
	opts := options.Client().ApplyURI(uri)
	if connectTimeout > 0 {
		opts.SetConnectTimeout(connectTimeout).SetServerSelectionTimeout(connectTimeout)
	}

	client, err := mongo.Connect(opts)
	if err != nil {
		return nil, fmt.Errorf("failed to open mongo connection: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}

	slog.InfoContext(ctx, "Successfully connected to MongoDB", slog.String("database", dbName))
	return &MongoStore{
		client: client,
		coll:   client.Database(dbName).Collection(emailLogsCollection),
		now:    time.Now,
	}, nil
}

// Create inserts entry under a new ObjectID.
func (s *MongoStore) Create(ctx context.Context, entry EmailLog) (EmailLog, error) {
	entry, err := entry.prepare(s.now())
	if err != nil {
		return EmailLog{}, err
	}

	doc := toMongo(entry)
	doc.ID = bson.NewObjectID()
	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return EmailLog{}, fmt.Errorf("failed to insert email log: %w", err)
	}
	return doc.entry(), nil
}

// FindByID looks up an entry by its hex ObjectID.
func (s *MongoStore) FindByID(ctx context.Context, id string) (EmailLog, error) {
	oid, err := bson.ObjectIDFromHex(id)
	if err != nil {
		return EmailLog{}, ErrNotFound
	}

	var doc mongoEmailLog
	err = s.coll.FindOne(ctx, bson.M{"_id": oid}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return EmailLog{}, ErrNotFound
	}
	if err != nil {
		return EmailLog{}, fmt.Errorf("failed to find email log: %w", err)
	}
	return doc.entry(), nil
}

// FindRecent sorts on _id, whose leading timestamp gives creation order.
func (s *MongoStore) FindRecent(ctx context.Context, limit int) ([]EmailLog, error) {
	opts := options.Find().
		SetSort(bson.D{{Key: "_id", Value: -1}}).
		SetLimit(int64(limit))

	cursor, err := s.coll.Find(ctx, bson.D{}, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query email logs: %w", err)
	}

	var docs []mongoEmailLog
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode email logs: %w", err)
	}

	logs := make([]EmailLog, 0, len(docs))
	for _, d := range docs {
		logs = append(logs, d.entry())
	}
	return logs, nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}
