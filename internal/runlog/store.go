package runlog

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codepr/topicscraper/internal/scraperrors"
)

// ttl is the 30-day retention of §3 after which a run log is evicted by a
// MongoDB TTL index on endedAt.
const ttl = 30 * 24 * time.Hour

// Store persists RunLog snapshots to a MongoDB collection.
type Store struct {
	collection *mongo.Collection
}

// NewStore wraps a *mongo.Collection as a runlog Store.
func NewStore(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// EnsureIndexes creates the filters used by the paginated log listing and
// the 30-day TTL index on endedAt.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "adapterName", Value: 1}}},
		{Keys: bson.D{{Key: "sourceLabel", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{Keys: bson.D{{Key: "startedAt", Value: -1}}},
		{
			Keys:    bson.D{{Key: "endedAt", Value: 1}},
			Options: options.Index().SetExpireAfterSeconds(int32(ttl.Seconds())),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		return &scraperrors.StoreError{Op: "EnsureIndexes", Err: err}
	}
	return nil
}

// Save upserts a run log snapshot. The orchestrator calls it once per run,
// after the run log has reached its terminal state.
func (s *Store) Save(ctx context.Context, data Data) error {
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": data.SessionID},
		bson.M{"$set": data},
		options.Update().SetUpsert(true),
	)
	if err != nil {
		return &scraperrors.StoreError{Op: "Save", Err: err}
	}
	return nil
}

// Get fetches a single run log by session id.
func (s *Store) Get(ctx context.Context, sessionID string) (*Data, error) {
	var data Data
	err := s.collection.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&data)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "Get", Err: err}
	}
	return &data, nil
}

// ListFilter narrows a paginated log listing.
type ListFilter struct {
	AdapterName string
	Source      string
	Status      Status
	Start       time.Time
	End         time.Time
	Page        int
	Limit       int
}

// Page is a page of paginated run log results.
type Page struct {
	Items []Data
	Total int64
	Page  int
	Limit int
}

// List returns a paginated, most-recent-first listing of run logs
// matching f, per GET /api/scraper/logs.
func (s *Store) List(ctx context.Context, f ListFilter) (*Page, error) {
	filter := bson.M{}
	if f.AdapterName != "" {
		filter["adapterName"] = f.AdapterName
	}
	if f.Source != "" {
		filter["sourceLabel"] = f.Source
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if !f.Start.IsZero() || !f.End.IsZero() {
		rng := bson.M{}
		if !f.Start.IsZero() {
			rng["$gte"] = f.Start
		}
		if !f.End.IsZero() {
			rng["$lte"] = f.End
		}
		filter["startedAt"] = rng
	}

	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "List.count", Err: err}
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "startedAt", Value: -1}}).
		SetSkip(int64((page - 1) * limit)).
		SetLimit(int64(limit))
	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "List", Err: err}
	}
	defer cur.Close(ctx)

	var items []Data
	if err := cur.All(ctx, &items); err != nil {
		return nil, &scraperrors.StoreError{Op: "List.decode", Err: err}
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}
