package services

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TheClusterFlux/replay-hub/transcoder"
)

// ConversionEngine is the part of the transcode engine the coordinator and
// ingestor need.
type ConversionEngine interface {
	NeedsConversion(codec string) bool
	Convert(ctx context.Context, path string, opts transcoder.Options) (string, transcoder.ProbeResult, error)
}

// AssetPlacer hands a finished asset to storage.
type AssetPlacer interface {
	Place(ctx context.Context, localPath string, preferRemote bool) (string, bool, error)
	LocalURL(localPath string) string
}

// RecordPatcher applies the single field-level update the pipeline performs
// after creation.
type RecordPatcher interface {
	SetAssetURL(ctx context.Context, id primitive.ObjectID, url string) error
}

// Coordinator runs conversion work that was deferred past the upload
// response. Units are detached from the originating request: they hold no
// request state and a crash before completion just leaves the record
// pointing at the playable original.
type Coordinator struct {
	engine  ConversionEngine
	storage AssetPlacer
	videos  RecordPatcher
	reaper  *Reaper
	opts    transcoder.Options

	originalGrace  time.Duration
	localRetention time.Duration

	wg sync.WaitGroup
}

func NewCoordinator(engine ConversionEngine, storage AssetPlacer, videos RecordPatcher, reaper *Reaper, opts transcoder.Options, originalGrace, localRetention time.Duration) *Coordinator {
	return &Coordinator{
		engine:         engine,
		storage:        storage,
		videos:         videos,
		reaper:         reaper,
		opts:           opts,
		originalGrace:  originalGrace,
		localRetention: localRetention,
	}
}

// ScheduleNormalization converts localPath in the background, re-places the
// result and patches the record's asset URL. Every failure is logged and
// leaves the record at the original asset; nothing propagates to the request
// that scheduled it, which has long since returned.
func (c *Coordinator) ScheduleNormalization(videoID primitive.ObjectID, localPath string, preferRemote bool) {
	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.normalize(videoID, localPath, preferRemote)
	}()
}

func (c *Coordinator) normalize(videoID primitive.ObjectID, localPath string, preferRemote bool) {
	ctx := context.Background()

	logger := log.With().Str("video_id", videoID.Hex()).Str("path", localPath).Logger()
	logger.Info().Msg("background normalization started")

	converted, _, err := c.engine.Convert(ctx, localPath, c.opts)
	if err != nil {
		logger.Warn().Err(err).Msg("background conversion failed, record keeps original asset")
		c.reaper.Schedule(localPath, c.localRetention)
		return
	}

	url, remote, err := c.storage.Place(ctx, converted, preferRemote)
	if err != nil {
		logger.Warn().Err(err).Msg("re-upload of converted asset failed, record keeps original asset")
		c.reaper.Schedule(converted, c.localRetention)
		c.reaper.Schedule(localPath, c.localRetention)
		return
	}

	if err := c.videos.SetAssetURL(ctx, videoID, url); err != nil {
		logger.Error().Err(err).Msg("patching asset url failed, record keeps original asset")
		c.reaper.Schedule(converted, c.localRetention)
		c.reaper.Schedule(localPath, c.localRetention)
		return
	}

	c.reaper.Schedule(localPath, c.originalGrace)
	if remote {
		c.reaper.Schedule(converted, c.originalGrace)
	} else {
		c.reaper.Schedule(converted, c.localRetention)
	}

	logger.Info().Str("url", url).Bool("remote", remote).Msg("background normalization finished")
}

// Shutdown waits for in-flight units when draining; otherwise it returns
// immediately and pending units are abandoned with the process.
func (c *Coordinator) Shutdown(drain bool) {
	if drain {
		c.wg.Wait()
	}
}
