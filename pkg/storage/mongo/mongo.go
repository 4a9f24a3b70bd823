// Package mongo stores audit entries as documents in a MongoDB collection.
package mongo

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/platinummonkey/medtrail/pkg/audit"
	"github.com/platinummonkey/medtrail/pkg/observability"
)

// Config holds MongoDB connection settings
type Config struct {
	URI        string
	Database   string
	Collection string
	Timeout    time.Duration
}

// document is the stored shape of an AuditEntry
type document struct {
	ID           primitive.ObjectID `bson:"_id"`
	Action       string             `bson:"action"`
	Entity       string             `bson:"entity"`
	ActorDisplay string             `bson:"actorDisplay"`
	Details      bson.M             `bson:"details"`
	CreatedAt    time.Time          `bson:"createdAt"`
}

// Store is the MongoDB audit log
type Store struct {
	client *mongo.Client
	coll   *mongo.Collection
	logger *observability.Logger
	now    func() time.Time
}

// NewStore connects to MongoDB and pings the primary
func NewStore(ctx context.Context, cfg Config, logger *observability.Logger) (*Store, error) {
	if cfg.URI == "" {
		return nil, errors.New("mongo URI is required")
	}
	if cfg.Database == "" || cfg.Collection == "" {
		return nil, errors.New("mongo database and collection are required")
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 5 * time.Second
	}

	connectCtx, cancel := context.WithTimeout(ctx, cfg.Timeout)
	defer cancel()

	client, err := mongo.Connect(connectCtx, options.Client().ApplyURI(cfg.URI).SetTimeout(cfg.Timeout))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to mongo: %w", err)
	}
	if err := client.Ping(connectCtx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("failed to ping mongo: %w", err)
	}

	logger.WithFields(map[string]interface{}{
		"database":   cfg.Database,
		"collection": cfg.Collection,
	}).Info("Mongo audit store initialized")

	s := NewStoreFromCollection(client.Database(cfg.Database).Collection(cfg.Collection), logger)
	s.client = client
	return s, nil
}

// NewStoreFromCollection wraps an existing collection
func NewStoreFromCollection(coll *mongo.Collection, logger *observability.Logger) *Store {
	return &Store{coll: coll, logger: logger, now: time.Now}
}

// EnsureIndexes creates the indexes list queries rely on
func (s *Store) EnsureIndexes(ctx context.Context) error {
	_, err := s.coll.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{Keys: bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}},
		{Keys: bson.D{{Key: "action", Value: 1}}},
	})
	if err != nil {
		return fmt.Errorf("failed to create audit indexes: %w", err)
	}
	return nil
}

// Append inserts the entry with a fresh ObjectID and the current time,
// truncated to the millisecond precision BSON dates carry
func (s *Store) Append(ctx context.Context, entry audit.AuditEntry) (audit.AuditEntry, error) {
	doc := document{
		ID:           primitive.NewObjectID(),
		Action:       entry.Action,
		Entity:       entry.Entity,
		ActorDisplay: entry.ActorDisplay,
		Details:      bson.M(entry.Details),
		CreatedAt:    s.now().UTC().Truncate(time.Millisecond),
	}
	if doc.Details == nil {
		doc.Details = bson.M{}
	}

	if _, err := s.coll.InsertOne(ctx, doc); err != nil {
		return audit.AuditEntry{}, fmt.Errorf("failed to insert audit entry: %w", err)
	}
	return doc.entry(), nil
}

// Find returns matching entries newest first
func (s *Store) Find(ctx context.Context, filter audit.Filter, window audit.Window) ([]audit.AuditEntry, error) {
	query, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(window.Skip)).
		SetLimit(int64(window.Limit))

	cursor, err := s.coll.Find(ctx, query, opts)
	if err != nil {
		return nil, fmt.Errorf("failed to query audit logs: %w", err)
	}
	defer cursor.Close(ctx)

	entries := []audit.AuditEntry{}
	for cursor.Next(ctx) {
		var doc document
		if err := cursor.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to decode audit entry: %w", err)
		}
		entries = append(entries, doc.entry())
	}
	if err := cursor.Err(); err != nil {
		return nil, fmt.Errorf("failed to read audit logs: %w", err)
	}
	return entries, nil
}

// Count returns the number of matching entries
func (s *Store) Count(ctx context.Context, filter audit.Filter) (int64, error) {
	query, err := buildFilter(filter)
	if err != nil {
		return 0, err
	}
	total, err := s.coll.CountDocuments(ctx, query)
	if err != nil {
		return 0, fmt.Errorf("failed to count audit logs: %w", err)
	}
	return total, nil
}

// HealthCheck pings the primary
func (s *Store) HealthCheck(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Ping(ctx, readpref.Primary())
}

// Close disconnects the client when the store owns it
func (s *Store) Close(ctx context.Context) error {
	if s.client == nil {
		return nil
	}
	return s.client.Disconnect(ctx)
}

// buildFilter renders filter as a query document. Every clause goes in an
// $and so the action and search matches never collide on a key.
func buildFilter(filter audit.Filter) (bson.D, error) {
	var clauses bson.A

	if filter.From != nil || filter.To != nil {
		bounds := bson.D{}
		if filter.From != nil {
			bounds = append(bounds, bson.E{Key: "$gte", Value: *filter.From})
		}
		if filter.To != nil {
			bounds = append(bounds, bson.E{Key: "$lte", Value: *filter.To})
		}
		clauses = append(clauses, bson.D{{Key: "createdAt", Value: bounds}})
	}

	for _, m := range []*audit.Match{filter.Action, filter.Search} {
		if m == nil {
			continue
		}
		clause, err := matchClause(m)
		if err != nil {
			return nil, err
		}
		clauses = append(clauses, clause)
	}

	if len(clauses) == 0 {
		return bson.D{}, nil
	}
	return bson.D{{Key: "$and", Value: clauses}}, nil
}

func matchClause(m *audit.Match) (bson.D, error) {
	or := make(bson.A, 0, len(m.Fields))
	for _, field := range m.Fields {
		switch field {
		case audit.FieldAction, audit.FieldEntity, audit.FieldActorDisplay:
		default:
			return nil, fmt.Errorf("%w: %q", audit.ErrUnknownField, field)
		}
		or = append(or, bson.D{{Key: field, Value: primitive.Regex{Pattern: m.Pattern, Options: "i"}}})
	}
	if len(or) == 1 {
		return or[0].(bson.D), nil
	}
	return bson.D{{Key: "$or", Value: or}}, nil
}

func (d document) entry() audit.AuditEntry {
	return audit.AuditEntry{
		ID:           d.ID.Hex(),
		Action:       d.Action,
		Entity:       d.Entity,
		ActorDisplay: d.ActorDisplay,
		Details:      toDetails(d.Details),
		CreatedAt:    d.CreatedAt,
	}
}

// toDetails converts decoded BSON into plain maps and slices
func toDetails(m bson.M) audit.Details {
	out := make(audit.Details, len(m))
	for k, v := range m {
		out[k] = plain(v)
	}
	return out
}

func plain(v interface{}) interface{} {
	switch val := v.(type) {
	case bson.M:
		return toDetails(val)
	case bson.D:
		return toDetails(val.Map())
	case bson.A:
		out := make([]interface{}, len(val))
		for i, item := range val {
			out[i] = plain(item)
		}
		return out
	case audit.Details:
		return toDetails(bson.M(val))
	default:
		return val
	}
}

var _ audit.Store = (*Store)(nil)
