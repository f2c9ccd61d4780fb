package models

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/TheClusterFlux/replay-hub/database"
)

const queryTimeout = 5 * time.Second

// Video is the durable record of one completed ingestion. Counters are
// mutated by the view/reaction endpoints; the pipeline itself only patches
// AssetURL after a deferred conversion.
type Video struct {
	ID          primitive.ObjectID `json:"id,omitempty" bson:"_id,omitempty"`
	ShortID     string             `json:"short_id" bson:"short_id"`
	Title       string             `json:"title" bson:"title"`
	Description string             `json:"description,omitempty" bson:"description,omitempty"`
	AssetURL    string             `json:"asset_url" bson:"asset_url"`
	ThumbnailID string             `json:"thumbnail_id,omitempty" bson:"thumbnail_id,omitempty"`
	Duration    float64            `json:"duration" bson:"duration"`
	Resolution  string             `json:"resolution" bson:"resolution"`
	FPS         float64            `json:"fps,omitempty" bson:"fps,omitempty"`
	Codec       string             `json:"codec,omitempty" bson:"codec,omitempty"`
	FileHash    string             `json:"file_hash,omitempty" bson:"file_hash,omitempty"`
	Uploader    string             `json:"uploader" bson:"uploader"`
	UploaderID  string             `json:"uploader_id,omitempty" bson:"uploader_id,omitempty"`
	Players     []string           `json:"players,omitempty" bson:"players,omitempty"`
	Extra       map[string]string  `json:"extra,omitempty" bson:"extra,omitempty"`
	Views       int64              `json:"views" bson:"views"`
	Likes       int64              `json:"likes" bson:"likes"`
	Dislikes    int64              `json:"dislikes" bson:"dislikes"`
	UploadedAt  time.Time          `json:"uploaded_at" bson:"uploaded_at"`
}

// IDFilter normalizes a caller-supplied identifier into one canonical lookup
// filter: a 24-hex string addresses the primary id, anything else the short
// id. Callers never probe both formats themselves.
func IDFilter(raw string) bson.M {
	if oid, err := primitive.ObjectIDFromHex(raw); err == nil {
		return bson.M{"_id": oid}
	}
	return bson.M{"short_id": raw}
}

// VideoStore performs record-level operations on the video collection. All
// updates are targeted $set / $inc patches, never whole-document overwrites.
type VideoStore struct {
	c *mongo.Collection
}

func NewVideoStore(db *database.Database) *VideoStore {
	return &VideoStore{c: db.Videos}
}

func (s *VideoStore) Insert(ctx context.Context, v *Video) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if v.ID.IsZero() {
		v.ID = primitive.NewObjectID()
	}

	_, err := s.c.InsertOne(ctx, v)
	return err
}

// Get looks a record up by primary or short id.
func (s *VideoStore) Get(ctx context.Context, raw string) (*Video, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	var v Video
	if err := s.c.FindOne(ctx, IDFilter(raw)).Decode(&v); err != nil {
		return nil, err
	}

	return &v, nil
}

// List returns records matching the given field filters, newest first.
func (s *VideoStore) List(ctx context.Context, filter bson.M, limit int64) ([]Video, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	if filter == nil {
		filter = bson.M{}
	}

	opts := options.Find().SetSort(bson.D{{Key: "uploaded_at", Value: -1}})
	if limit > 0 {
		opts.SetLimit(limit)
	}

	cur, err := s.c.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)

	videos := []Video{}
	if err := cur.All(ctx, &videos); err != nil {
		return nil, err
	}

	return videos, nil
}

// SetAssetURL patches only the asset_url field, leaving concurrent counter
// updates untouched.
func (s *VideoStore) SetAssetURL(ctx context.Context, id primitive.ObjectID, url string) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	_, err := s.c.UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": bson.M{"asset_url": url}})
	return err
}

// IncCounter bumps one of the views/likes/dislikes counters.
func (s *VideoStore) IncCounter(ctx context.Context, raw, field string, delta int64) error {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	res, err := s.c.UpdateOne(ctx, IDFilter(raw), bson.M{"$inc": bson.M{field: delta}})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return mongo.ErrNoDocuments
	}

	return nil
}

// ShortIDExists reports whether a short id is already taken.
func (s *VideoStore) ShortIDExists(ctx context.Context, shortID string) (bool, error) {
	ctx, cancel := context.WithTimeout(ctx, queryTimeout)
	defer cancel()

	n, err := s.c.CountDocuments(ctx, bson.M{"short_id": shortID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}

	return n > 0, nil
}
