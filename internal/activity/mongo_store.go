package activity

import (
	"context"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// DefaultCollection holds the activity log documents.
const DefaultCollection = "activity_logs"

// MongoStore persists entries in a MongoDB collection.
type MongoStore struct {
	col       *mongo.Collection
	retention time.Duration
}

type entryDoc struct {
	ID    primitive.ObjectID `bson:"_id,omitempty"`
	Entry `bson:",inline"`
}

// NewMongoStore uses collection name in db. retention drives the TTL index
// created by EnsureIndexes (0 means 90 days).
func NewMongoStore(db *mongo.Database, name string, retention time.Duration) *MongoStore {
	if name == "" {
		name = DefaultCollection
	}
	if retention <= 0 {
		retention = 90 * 24 * time.Hour
	}
	return &MongoStore{col: db.Collection(name), retention: retention}
}

func (s *MongoStore) EnsureIndexes(ctx context.Context) error {
	_, err := s.col.Indexes().CreateMany(ctx, []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("activity_timestamp_ttl").SetExpireAfterSeconds(int32(s.retention / time.Second)),
		},
		{
			Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "timestamp", Value: -1}},
			Options: options.Index().SetName("activity_user"),
		},
		{
			Keys:    bson.D{{Key: "action", Value: 1}},
			Options: options.Index().SetName("activity_action"),
		},
		{
			Keys:    bson.D{{Key: "level", Value: 1}},
			Options: options.Index().SetName("activity_level"),
		},
		{
			Keys:    bson.D{{Key: "resource", Value: 1}},
			Options: options.Index().SetName("activity_resource"),
		},
	})
	if err != nil {
		return fmt.Errorf("activity indexes: %w", err)
	}
	return nil
}

func (s *MongoStore) Insert(ctx context.Context, e Entry) error {
	if _, err := s.col.InsertOne(ctx, entryDoc{Entry: e}); err != nil {
		return fmt.Errorf("insert activity: %w", err)
	}
	return nil
}

func mongoFilter(f Filter) bson.M {
	q := bson.M{}
	if f.UserID != "" {
		q["userId"] = f.UserID
	}
	if f.Action != "" {
		q["action"] = primitive.Regex{Pattern: regexp.QuoteMeta(f.Action), Options: "i"}
	}
	if f.Resource != "" {
		q["resource"] = f.Resource
	}
	if f.Level != "" {
		q["level"] = f.Level
	}
	ts := bson.M{}
	if !f.From.IsZero() {
		ts["$gte"] = f.From
	}
	if !f.To.IsZero() {
		ts["$lt"] = f.To
	}
	if len(ts) > 0 {
		q["timestamp"] = ts
	}
	return q
}

func (s *MongoStore) Find(ctx context.Context, f Filter, skip, limit int) ([]Entry, int64, error) {
	q := mongoFilter(f)
	total, err := s.col.CountDocuments(ctx, q)
	if err != nil {
		return nil, 0, fmt.Errorf("count activity: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "timestamp", Value: -1}, {Key: "_id", Value: -1}}).
		SetSkip(int64(skip))
	if limit > 0 {
		opts.SetLimit(int64(limit))
	}
	cur, err := s.col.Find(ctx, q, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("find activity: %w", err)
	}
	defer cur.Close(ctx)

	out := []Entry{}
	for cur.Next(ctx) {
		var d entryDoc
		if err := cur.Decode(&d); err != nil {
			return nil, 0, fmt.Errorf("decode activity: %w", err)
		}
		d.Entry.ID = d.ID.Hex()
		out = append(out, d.Entry)
	}
	if err := cur.Err(); err != nil {
		return nil, 0, fmt.Errorf("iterate activity: %w", err)
	}
	return out, total, nil
}

type statsFacet struct {
	Totals []struct {
		Total  int64 `bson:"total"`
		Errors int64 `bson:"errors"`
		Users  int64 `bson:"users"`
	} `bson:"totals"`
	Top   []ActionCount `bson:"top"`
	Daily []DailyCount  `bson:"daily"`
}

func (s *MongoStore) Stats(ctx context.Context, since time.Time, topN int) (Stats, error) {
	one := func(cond bson.M) bson.M {
		return bson.M{"$sum": bson.M{"$cond": bson.A{cond, 1, 0}}}
	}
	top := bson.A{
		bson.M{"$group": bson.M{"_id": "$action", "count": bson.M{"$sum": 1}}},
		bson.M{"$sort": bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}},
	}
	if topN > 0 {
		top = append(top, bson.M{"$limit": topN})
	}
	pipeline := mongo.Pipeline{
		{{Key: "$match", Value: bson.M{"timestamp": bson.M{"$gte": since}}}},
		{{Key: "$facet", Value: bson.M{
			"totals": bson.A{bson.M{"$group": bson.M{
				"_id":    nil,
				"total":  bson.M{"$sum": 1},
				"errors": one(bson.M{"$eq": bson.A{"$level", LevelError}}),
				"users":  one(bson.M{"$gt": bson.A{bson.M{"$ifNull": bson.A{"$userId", ""}}, ""}}),
			}}},
			"top": top,
			"daily": bson.A{
				bson.M{"$group": bson.M{
					"_id":   bson.M{"$dateToString": bson.M{"format": "%Y-%m-%d", "date": "$timestamp"}},
					"count": bson.M{"$sum": 1},
				}},
				bson.M{"$sort": bson.M{"_id": 1}},
			},
		}}},
	}

	cur, err := s.col.Aggregate(ctx, pipeline)
	if err != nil {
		return Stats{}, fmt.Errorf("aggregate activity: %w", err)
	}
	defer cur.Close(ctx)

	var rows []statsFacet
	if err := cur.All(ctx, &rows); err != nil {
		return Stats{}, fmt.Errorf("decode activity stats: %w", err)
	}
	st := Stats{Since: since, TopActions: []ActionCount{}, DailyActivity: []DailyCount{}}
	if len(rows) == 0 {
		return st, nil
	}
	r := rows[0]
	if len(r.Totals) > 0 {
		st.TotalLogs = r.Totals[0].Total
		st.ErrorCount = r.Totals[0].Errors
		st.UserActions = r.Totals[0].Users
		st.SystemActions = st.TotalLogs - st.UserActions
	}
	if r.Top != nil {
		st.TopActions = r.Top
	}
	if r.Daily != nil {
		st.DailyActivity = r.Daily
	}
	return st, nil
}

func (s *MongoStore) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	res, err := s.col.DeleteMany(ctx, bson.M{"timestamp": bson.M{"$lt": cutoff}})
	if err != nil {
		return 0, fmt.Errorf("delete activity: %w", err)
	}
	return res.DeletedCount, nil
}
