package database

import (
	"context"
	"io"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/gridfs"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"
)

const (
	VideoCollection = "videos"

	thumbnailBucket = "thumbnails"
	connectTimeout  = 10 * time.Second
	gridfsDeadline  = 30 * time.Second
)

// Database wraps the mongo client plus the handles the service uses: the
// video record collection and the GridFS bucket holding thumbnails.
type Database struct {
	client *mongo.Client
	db     *mongo.Database
	Videos *mongo.Collection
	thumbs *gridfs.Bucket
}

// Connect dials mongo, pings the primary and prepares collection handles.
func Connect(ctx context.Context, uri, name string) (*Database, error) {
	ctx, cancel := context.WithTimeout(ctx, connectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, err
	}

	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, err
	}

	mdb := client.Database(name)
	thumbs, err := gridfs.NewBucket(mdb, options.GridFSBucket().SetName(thumbnailBucket))
	if err != nil {
		return nil, err
	}

	log.Info().Str("database", name).Msg("mongodb connected")

	return &Database{
		client: client,
		db:     mdb,
		Videos: mdb.Collection(VideoCollection),
		thumbs: thumbs,
	}, nil
}

func (d *Database) Close(ctx context.Context) error {
	return d.client.Disconnect(ctx)
}

// SaveThumbnail stores a thumbnail in GridFS and returns its hex object id.
func (d *Database) SaveThumbnail(name string, r io.Reader) (string, error) {
	if err := d.thumbs.SetWriteDeadline(time.Now().Add(gridfsDeadline)); err != nil {
		return "", err
	}

	id, err := d.thumbs.UploadFromStream(name, r)
	if err != nil {
		return "", err
	}

	return id.Hex(), nil
}

// ReadThumbnail copies a stored thumbnail to w.
func (d *Database) ReadThumbnail(id string, w io.Writer) error {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return err
	}

	if err := d.thumbs.SetReadDeadline(time.Now().Add(gridfsDeadline)); err != nil {
		return err
	}

	_, err = d.thumbs.DownloadToStream(oid, w)
	return err
}
