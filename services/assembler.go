package services

import (
	"context"
	"crypto/rand"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/transcoder"
	"github.com/TheClusterFlux/replay-hub/types"
)

const (
	shortIDAlphabet    = "abcdefghijklmnopqrstuvwxyzABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	shortIDLength      = 8
	shortIDMaxAttempts = 10

	anonymousUploader = "anonymous"
)

// ShortIDChecker answers whether a candidate short id is already in use.
type ShortIDChecker interface {
	ShortIDExists(ctx context.Context, shortID string) (bool, error)
}

// Assembler merges probe output and caller-supplied fields into the video
// record that gets persisted.
type Assembler struct {
	videos ShortIDChecker
}

func NewAssembler(videos ShortIDChecker) *Assembler {
	return &Assembler{videos: videos}
}

// GenerateShortID draws 8-character URL-safe ids until one is free.
// Persistent collision is fatal: it means the id space is effectively
// exhausted or the store is misbehaving.
func (a *Assembler) GenerateShortID(ctx context.Context) (string, error) {
	for attempt := 0; attempt < shortIDMaxAttempts; attempt++ {
		id, err := randomShortID()
		if err != nil {
			return "", err
		}

		taken, err := a.videos.ShortIDExists(ctx, id)
		if err != nil {
			return "", err
		}
		if !taken {
			return id, nil
		}
	}

	return "", fmt.Errorf("%w after %d attempts", types.ErrIDGenerationFailed, shortIDMaxAttempts)
}

func randomShortID() (string, error) {
	buf := make([]byte, shortIDLength)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}

	for i, b := range buf {
		buf[i] = shortIDAlphabet[int(b)%len(shortIDAlphabet)]
	}

	return string(buf), nil
}

// Assemble builds the record for one completed ingestion. Uploader identity
// comes from the authenticated caller when present, then from the declared
// form field, and is otherwise anonymous.
func (a *Assembler) Assemble(ctx context.Context, probe transcoder.ProbeResult, fields types.UploadFields, identity *types.Identity, assetURL, thumbnailID, fileHash string) (*models.Video, error) {
	shortID, err := a.GenerateShortID(ctx)
	if err != nil {
		return nil, err
	}

	v := &models.Video{
		ID:          primitive.NewObjectID(),
		ShortID:     shortID,
		Title:       fields.Title,
		Description: fields.Description,
		AssetURL:    assetURL,
		ThumbnailID: thumbnailID,
		Duration:    probe.Duration,
		Resolution:  probe.Resolution(),
		FPS:         probe.FPS,
		Codec:       probe.Codec,
		FileHash:    fileHash,
		Uploader:    anonymousUploader,
		Players:     fields.Players,
		Extra:       fields.Extra,
		UploadedAt:  time.Now().UTC(),
	}

	if v.Title == "" {
		v.Title = "Untitled"
	}

	switch {
	case identity != nil:
		v.Uploader = identity.DisplayName
		v.UploaderID = identity.UserID
	case fields.Uploader != "":
		v.Uploader = fields.Uploader
	}

	return v, nil
}
