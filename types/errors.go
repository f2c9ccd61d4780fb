package types

import (
	"errors"
	"fmt"
)

// Failure classes of the ingestion pipeline. Probe and conversion errors are
// recovered inside the pipeline (the upload degrades to serving the original
// file); session-protocol and id-generation errors surface to the caller.
var (
	ErrSessionNotFound    = errors.New("upload session not found")
	ErrProbeUnavailable   = errors.New("ffprobe is not available")
	ErrProbeTimeout       = errors.New("probe timed out")
	ErrProbeFailed        = errors.New("probe failed")
	ErrEncoderUnavailable = errors.New("ffmpeg is not available")
	ErrConversionTimeout  = errors.New("conversion timed out")
	ErrConversionFailed   = errors.New("conversion failed")
	ErrUploadFailed       = errors.New("remote upload failed")
	ErrIDGenerationFailed = errors.New("could not generate a unique short id")
)

// InvalidArgumentError reports bad caller input on the upload boundary.
type InvalidArgumentError struct {
	Reason string
}

func (e *InvalidArgumentError) Error() string {
	return "invalid argument: " + e.Reason
}

// InvalidArgumentf builds an InvalidArgumentError from a format string.
func InvalidArgumentf(format string, args ...interface{}) error {
	return &InvalidArgumentError{Reason: fmt.Sprintf(format, args...)}
}

// IncompleteUploadError is returned by finalize when not every declared chunk
// has been received.
type IncompleteUploadError struct {
	Received int
	Total    int
}

func (e *IncompleteUploadError) Error() string {
	return fmt.Sprintf("incomplete upload: received %d of %d chunks", e.Received, e.Total)
}

// MissingChunkError is returned by finalize when a chunk was counted as
// received but its file is absent at concatenation time.
type MissingChunkError struct {
	Index int
}

func (e *MissingChunkError) Error() string {
	return fmt.Sprintf("chunk %d is missing", e.Index)
}
