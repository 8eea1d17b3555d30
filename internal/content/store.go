package content

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/codepr/topicscraper/internal/scraperrors"
)

// UpsertSummary reports the outcome of a BulkUpsert call, per §4.5.
type UpsertSummary struct {
	Inserted   int
	Modified   int
	Duplicates int
	Total      int
}

// Store is the deduplicated content store described in §4.5, backed by a
// MongoDB collection keyed uniquely on contentHash.
type Store struct {
	collection *mongo.Collection
}

// NewStore wraps a *mongo.Collection as a content Store.
func NewStore(collection *mongo.Collection) *Store {
	return &Store{collection: collection}
}

// EnsureIndexes creates the unique contentHash index, the secondary lookup
// indexes, the expiresAt TTL index, and the weighted free-text index
// required by §4.5.
func (s *Store) EnsureIndexes(ctx context.Context) error {
	models := []mongo.IndexModel{
		{Keys: bson.D{{Key: "contentHash", Value: 1}}, Options: options.Index().SetUnique(true)},
		{Keys: bson.D{{Key: "expiresAt", Value: 1}}, Options: options.Index().SetExpireAfterSeconds(0)},
		{Keys: bson.D{{Key: "category", Value: 1}}},
		{Keys: bson.D{{Key: "sourceHost", Value: 1}}},
		{Keys: bson.D{{Key: "scrapedAt", Value: 1}}},
		{Keys: bson.D{{Key: "publishedAt", Value: 1}}},
		{Keys: bson.D{{Key: "status", Value: 1}}},
		{
			Keys: bson.D{
				{Key: "title", Value: "text"},
				{Key: "description", Value: "text"},
				{Key: "tags", Value: "text"},
				{Key: "keywordHits", Value: "text"},
				{Key: "body", Value: "text"},
			},
			Options: options.Index().SetWeights(bson.D{
				{Key: "title", Value: 10},
				{Key: "description", Value: 5},
				{Key: "tags", Value: 3},
				{Key: "keywordHits", Value: 3},
				{Key: "body", Value: 1},
			}).SetName("content_text_search"),
		},
	}
	_, err := s.collection.Indexes().CreateMany(ctx, models)
	if err != nil {
		return &scraperrors.StoreError{Op: "EnsureIndexes", Err: err}
	}
	return nil
}

// BulkUpsert inserts new records and updates the non-identity fields of
// existing ones, unordered so one bad record never blocks the batch. A
// duplicate-key error racing a concurrent upsert of the same hash is
// folded into "modified", per §4.5 and §7.
func (s *Store) BulkUpsert(ctx context.Context, records []*ContentRecord) (UpsertSummary, error) {
	summary := UpsertSummary{Total: len(records)}
	if len(records) == 0 {
		return summary, nil
	}

	now := time.Now()
	models := make([]mongo.WriteModel, 0, len(records))
	for _, r := range records {
		if r.ContentHash == "" {
			r.ApplyHash()
		}
		filter := bson.M{"contentHash": r.ContentHash}
		update := bson.M{
			"$set": recordUpdateFields(r, now),
			"$setOnInsert": bson.M{
				"contentHash": r.ContentHash,
				"scrapedAt":   now,
			},
		}
		models = append(models, mongo.NewUpdateOneModel().
			SetFilter(filter).SetUpdate(update).SetUpsert(true))
	}

	opts := options.BulkWrite().SetOrdered(false)
	res, err := s.collection.BulkWrite(ctx, models, opts)
	if err != nil {
		bwe, ok := err.(mongo.BulkWriteException)
		if !ok {
			return summary, &scraperrors.StoreError{Op: "BulkUpsert", Err: err}
		}
		for _, we := range bwe.WriteErrors {
			if !isDuplicateKeyCode(we.Code) {
				return summary, &scraperrors.StoreError{Op: "BulkUpsert", Err: we}
			}
			// A duplicate-key race on the upsert means a concurrent writer
			// already created the document; treat it as a modification of
			// the existing record rather than a separate "duplicate,
			// untouched" bucket, per Open Question (a)'s resolution.
			summary.Modified++
		}
		if res == nil {
			return summary, nil
		}
	}

	if res != nil {
		summary.Inserted = int(res.UpsertedCount)
		summary.Modified += int(res.ModifiedCount)
		matchedUnchanged := int(res.MatchedCount) - int(res.ModifiedCount)
		summary.Duplicates += matchedUnchanged
	}
	return summary, nil
}

// isDuplicateKeyCode reports whether a MongoDB write-error code is the
// well-known duplicate-key code, expected under concurrent upserts per §7.
func isDuplicateKeyCode(code int) bool {
	return code == 11000 || code == 11001 || code == 12582
}

// recordUpdateFields builds the $set document for an upsert: every
// supplied field except scrapedAt and contentHash, which are insertion-only
// (or untouched on update), per §4.5.
func recordUpdateFields(r *ContentRecord, now time.Time) bson.M {
	set := bson.M{
		"category":       r.Category,
		"title":          r.Title,
		"description":    r.Description,
		"body":           r.Body,
		"url":            r.URL,
		"imageUrl":       r.ImageURL,
		"sourceHost":     r.SourceHost,
		"sourceName":     r.SourceName,
		"tags":           r.Tags,
		"keywordHits":    r.KeywordHits,
		"relevanceScore": r.RelevanceScore,
		"scrapedBy":      r.ScrapedBy,
		"status":         r.Status,
		"updatedAt":      now,
	}
	if r.Author != nil {
		set["author"] = r.Author
	}
	if r.PublishedAt != nil {
		set["publishedAt"] = r.PublishedAt
	}
	if r.JobDetail != nil {
		set["jobDetail"] = r.JobDetail
	}
	if r.ExpiresAt != nil {
		set["expiresAt"] = r.ExpiresAt
	}
	return set
}

// Cleanup physically deletes records older than maxAgeDays whose status is
// not "flagged", leaving per-record expiresAt expiry to MongoDB's own TTL
// index. Returns the number of records deleted.
func (s *Store) Cleanup(ctx context.Context, maxAgeDays int) (int64, error) {
	cutoff := time.Now().AddDate(0, 0, -maxAgeDays)
	filter := bson.M{
		"scrapedAt": bson.M{"$lt": cutoff},
		"status":    bson.M{"$ne": string(StatusFlagged)},
	}
	res, err := s.collection.DeleteMany(ctx, filter)
	if err != nil {
		return 0, &scraperrors.StoreError{Op: "Cleanup", Err: err}
	}
	return res.DeletedCount, nil
}

// Page is a page of paginated results.
type Page struct {
	Items []*ContentRecord
	Total int64
	Page  int
	Limit int
}

// ListFilter narrows a ByType / Search call.
type ListFilter struct {
	Category       Category
	SourceHost     string
	Tags           []string
	Keywords       []string
	Status         Status
	MinRelevance   float64
	MaxAgeDays     int
	Search         string
	SortField      string
	SortDescending bool
	Page           int
	Limit          int
}

// ByType lists records filtered by category and the other ListFilter
// fields, sorted by the named field. f.Search is ignored here; free-text
// ranking is done by Search.
func (s *Store) ByType(ctx context.Context, f ListFilter) (*Page, error) {
	filter := f.toMongoFilter()
	return s.find(ctx, filter, f, nil)
}

// Search performs a free-text ranked search over the weighted index of
// §4.5 (title x10, description x5, tags x3, keywords x3, body x1).
func (s *Store) Search(ctx context.Context, f ListFilter) (*Page, error) {
	filter := f.toMongoFilter()
	filter["$text"] = bson.M{"$search": f.Search}
	projection := bson.M{"score": bson.M{"$meta": "textScore"}}
	return s.find(ctx, filter, f, projection)
}

func (f ListFilter) toMongoFilter() bson.M {
	filter := bson.M{}
	if f.Category != "" {
		filter["category"] = f.Category
	}
	if f.SourceHost != "" {
		filter["sourceHost"] = f.SourceHost
	}
	if len(f.Tags) > 0 {
		filter["tags"] = bson.M{"$in": f.Tags}
	}
	if len(f.Keywords) > 0 {
		filter["keywordHits"] = bson.M{"$in": f.Keywords}
	}
	if f.Status != "" {
		filter["status"] = f.Status
	}
	if f.MinRelevance > 0 {
		filter["relevanceScore"] = bson.M{"$gte": f.MinRelevance}
	}
	if f.MaxAgeDays > 0 {
		filter["scrapedAt"] = bson.M{"$gte": time.Now().AddDate(0, 0, -f.MaxAgeDays)}
	}
	return filter
}

func (s *Store) find(ctx context.Context, filter bson.M, f ListFilter, projection bson.M) (*Page, error) {
	page, limit := f.Page, f.Limit
	if page < 1 {
		page = 1
	}
	if limit <= 0 {
		limit = 20
	}

	opts := options.Find().SetSkip(int64((page - 1) * limit)).SetLimit(int64(limit))
	if projection != nil {
		opts.SetProjection(projection)
		opts.SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}})
	} else {
		sortField := f.SortField
		if sortField == "" {
			sortField = "scrapedAt"
		}
		dir := 1
		if f.SortDescending {
			dir = -1
		}
		opts.SetSort(bson.D{{Key: sortField, Value: dir}})
	}

	total, err := s.collection.CountDocuments(ctx, filter)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "find.count", Err: err}
	}

	cur, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "find", Err: err}
	}
	defer cur.Close(ctx)

	var items []*ContentRecord
	if err := cur.All(ctx, &items); err != nil {
		return nil, &scraperrors.StoreError{Op: "find.decode", Err: err}
	}
	return &Page{Items: items, Total: total, Page: page, Limit: limit}, nil
}

// Get fetches a single record by hash and increments its view counter, per
// the Admin API's GET /api/content/{id} side effect.
func (s *Store) Get(ctx context.Context, hash string) (*ContentRecord, error) {
	var record ContentRecord
	err := s.collection.FindOneAndUpdate(ctx,
		bson.M{"contentHash": hash},
		bson.M{"$inc": bson.M{"views": 1}},
		options.FindOneAndUpdate().SetReturnDocument(options.After),
	).Decode(&record)
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "Get", Err: err}
	}
	return &record, nil
}

// Delete hard-deletes a record by hash.
func (s *Store) Delete(ctx context.Context, hash string) error {
	_, err := s.collection.DeleteOne(ctx, bson.M{"contentHash": hash})
	if err != nil {
		return &scraperrors.StoreError{Op: "Delete", Err: err}
	}
	return nil
}

// SetStatus transitions a record's status, validating against the closed
// enum.
func (s *Store) SetStatus(ctx context.Context, hash string, status Status) error {
	if !ValidStatuses[status] {
		return errInvalidStatus
	}
	_, err := s.collection.UpdateOne(ctx,
		bson.M{"contentHash": hash},
		bson.M{"$set": bson.M{"status": status, "updatedAt": time.Now()}},
	)
	if err != nil {
		return &scraperrors.StoreError{Op: "SetStatus", Err: err}
	}
	return nil
}

// Stats aggregates overview counters for the admin surface: totals, a
// breakdown by category, and the top-10 source hosts.
type Stats struct {
	Total    int64
	ByType   map[Category]int64
	BySource []SourceCount
}

// SourceCount is one entry of the top-10 by-source breakdown.
type SourceCount struct {
	SourceHost string
	Count      int64
}

// Overview computes the aggregate stats exposed by
// GET /api/content/stats/overview.
func (s *Store) Overview(ctx context.Context) (*Stats, error) {
	total, err := s.collection.CountDocuments(ctx, bson.M{})
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "Overview.count", Err: err}
	}

	byType := map[Category]int64{}
	typeCur, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$category"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
	})
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "Overview.byType", Err: err}
	}
	defer typeCur.Close(ctx)
	for typeCur.Next(ctx) {
		var row struct {
			ID    Category `bson:"_id"`
			Count int64    `bson:"count"`
		}
		if err := typeCur.Decode(&row); err == nil {
			byType[row.ID] = row.Count
		}
	}

	var bySource []SourceCount
	sourceCur, err := s.collection.Aggregate(ctx, mongo.Pipeline{
		{{Key: "$group", Value: bson.D{{Key: "_id", Value: "$sourceHost"}, {Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}}}},
		{{Key: "$limit", Value: 10}},
	})
	if err != nil {
		return nil, &scraperrors.StoreError{Op: "Overview.bySource", Err: err}
	}
	defer sourceCur.Close(ctx)
	for sourceCur.Next(ctx) {
		var row struct {
			ID    string `bson:"_id"`
			Count int64  `bson:"count"`
		}
		if err := sourceCur.Decode(&row); err == nil {
			bySource = append(bySource, SourceCount{SourceHost: row.ID, Count: row.Count})
		}
	}

	return &Stats{Total: total, ByType: byType, BySource: bySource}, nil
}
