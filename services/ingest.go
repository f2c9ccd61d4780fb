package services

import (
	"context"
	"io"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TheClusterFlux/replay-hub/config"
	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/transcoder"
	"github.com/TheClusterFlux/replay-hub/types"
	"github.com/TheClusterFlux/replay-hub/utils"
)

// MediaProber is the part of the codec inspector the pipeline needs.
type MediaProber interface {
	Probe(ctx context.Context, path string) (transcoder.ProbeResult, error)
	CaptureThumbnail(ctx context.Context, path string, atSeconds float64) (string, error)
}

// VideoInserter persists new records.
type VideoInserter interface {
	Insert(ctx context.Context, v *models.Video) error
}

// ThumbnailSaver stores a thumbnail and returns its reference.
type ThumbnailSaver interface {
	SaveThumbnail(name string, r io.Reader) (string, error)
}

// BackgroundNormalizer defers conversion work past the response.
type BackgroundNormalizer interface {
	ScheduleNormalization(videoID primitive.ObjectID, localPath string, preferRemote bool)
}

// Ingestor runs the synchronous half of the pipeline: probe the staged file,
// convert it now or defer the conversion, place the asset, persist the
// thumbnail and record. Probing, conversion and remote placement failures
// all degrade; only record persistence and id generation can fail an
// ingestion that got this far.
type Ingestor struct {
	cfg         config.Config
	prober      MediaProber
	engine      ConversionEngine
	storage     AssetPlacer
	assembler   *Assembler
	videos      VideoInserter
	thumbs      ThumbnailSaver
	coordinator BackgroundNormalizer
	reaper      *Reaper
}

func NewIngestor(cfg config.Config, prober MediaProber, engine ConversionEngine, storage AssetPlacer, assembler *Assembler, videos VideoInserter, thumbs ThumbnailSaver, coordinator BackgroundNormalizer, reaper *Reaper) *Ingestor {
	return &Ingestor{
		cfg:         cfg,
		prober:      prober,
		engine:      engine,
		storage:     storage,
		assembler:   assembler,
		videos:      videos,
		thumbs:      thumbs,
		coordinator: coordinator,
		reaper:      reaper,
	}
}

func (ing *Ingestor) conversionOptions() transcoder.Options {
	return transcoder.Options{
		Lossless: ing.cfg.LosslessMode,
		CRF:      ing.cfg.ConversionCRF,
		Preset:   ing.cfg.ConversionPreset,
	}
}

// Ingest takes ownership of the staged file at localPath and returns the
// persisted record.
func (ing *Ingestor) Ingest(ctx context.Context, localPath string, fields types.UploadFields, identity *types.Identity) (*models.Video, error) {
	logger := log.With().Str("path", localPath).Logger()

	fileHash, err := utils.FileHash(localPath)
	if err != nil {
		logger.Warn().Err(err).Msg("could not hash staged file")
	}

	probe, err := ing.prober.Probe(ctx, localPath)
	if err != nil {
		// Fail open: an inconclusive inspection must not block the upload.
		logger.Warn().Err(err).Msg("probe failed, assuming compatible codec")
		probe = transcoder.ProbeResult{Codec: transcoder.CodecUnknown}
	}

	assetPath := localPath
	deferConversion := false

	if ing.cfg.EnableConversion && ing.engine.NeedsConversion(probe.Codec) {
		if ing.cfg.AsyncConversion {
			// Conversion can take minutes to hours; keep it out of the
			// request path and patch the record afterwards.
			deferConversion = true
		} else {
			converted, convProbe, err := ing.engine.Convert(ctx, localPath, ing.conversionOptions())
			if err != nil {
				logger.Warn().Err(err).Msg("conversion failed, serving original file")
			} else {
				assetPath = converted
				if convProbe.Codec != "" {
					probe = convProbe
				} else {
					// Verification probe was inconclusive; record the encode
					// target rather than the input codec.
					probe.Codec = "h264"
				}
				ing.reaper.Schedule(localPath, ing.cfg.OriginalGrace)
			}
		}
	}

	thumbnailID := ing.persistThumbnail(ctx, assetPath)

	preferRemote := fields.PreferRemote
	url, remote, err := ing.storage.Place(ctx, assetPath, preferRemote)
	if err != nil {
		logger.Warn().Err(err).Msg("remote placement failed, falling back to local serving")
		url, remote = ing.storage.LocalURL(assetPath), false
	}

	v, err := ing.assembler.Assemble(ctx, probe, fields, identity, url, thumbnailID, fileHash)
	if err != nil {
		ing.reaper.Schedule(assetPath, ing.cfg.LocalRetention)
		return nil, err
	}

	if err := ing.videos.Insert(ctx, v); err != nil {
		// The record never existed, so nothing references the asset; hand it
		// to the reaper instead of leaking it.
		ing.reaper.Schedule(assetPath, ing.cfg.LocalRetention)
		return nil, err
	}

	if deferConversion {
		// The coordinator owns the staged file's lifetime from here.
		ing.coordinator.ScheduleNormalization(v.ID, assetPath, preferRemote)
	} else if remote {
		ing.reaper.Schedule(assetPath, ing.cfg.OriginalGrace)
	} else {
		ing.reaper.Schedule(assetPath, ing.cfg.LocalRetention)
	}

	logger.Info().
		Str("video_id", v.ID.Hex()).
		Str("short_id", v.ShortID).
		Str("url", url).
		Bool("remote", remote).
		Bool("deferred_conversion", deferConversion).
		Msg("ingestion complete")

	return v, nil
}

// persistThumbnail captures, shrinks and stores a frame. Entirely
// best-effort: any failure leaves the record without a thumbnail reference.
func (ing *Ingestor) persistThumbnail(ctx context.Context, assetPath string) string {
	framePath, err := ing.prober.CaptureThumbnail(ctx, assetPath, 0)
	if err != nil {
		return ""
	}

	if err := transcoder.ShrinkThumbnail(framePath); err != nil {
		log.Warn().Str("path", framePath).Err(err).Msg("thumbnail resize failed, storing raw frame")
	}

	f, err := os.Open(framePath)
	if err != nil {
		ing.reaper.Schedule(framePath, 0)
		return ""
	}

	id, err := ing.thumbs.SaveThumbnail(filepath.Base(framePath), f)
	f.Close()
	_ = os.Remove(framePath)
	if err != nil {
		log.Warn().Str("path", framePath).Err(err).Msg("thumbnail persistence failed")
		return ""
	}

	return id
}
