package models

import (
	"encoding/json"
	"time"

	"github.com/TheClusterFlux/replay-hub/types"
)

// SessionStatus tracks the chunked-upload state machine:
// initialized -> receiving -> combined, with failed as the terminal error
// state. Session directories are reaped on a timer regardless of outcome.
type SessionStatus string

const (
	SessionInitialized SessionStatus = "initialized"
	SessionReceiving   SessionStatus = "receiving"
	SessionCombined    SessionStatus = "combined"
	SessionFailed      SessionStatus = "failed"
)

// UploadSession is the persisted state of one chunked upload.
type UploadSession struct {
	SessionID    string             `json:"session_id"`
	Filename     string             `json:"filename"`
	DeclaredSize int64              `json:"declared_size"`
	TotalChunks  int                `json:"total_chunks"`
	Received     map[int]bool       `json:"received,omitempty"`
	Status       SessionStatus      `json:"status"`
	Fields       types.UploadFields `json:"fields"`
	CreatedAt    time.Time          `json:"created_at"`
}

// ChunksReceived counts distinct chunk indexes, so duplicate re-sends of the
// same index stay idempotent and never exceed TotalChunks.
func (s *UploadSession) ChunksReceived() int {
	return len(s.Received)
}

// MarkReceived records one chunk index and advances the state machine.
func (s *UploadSession) MarkReceived(index int) {
	if s.Received == nil {
		s.Received = make(map[int]bool)
	}
	s.Received[index] = true
	if s.Status == SessionInitialized {
		s.Status = SessionReceiving
	}
}

func (s *UploadSession) Marshal() ([]byte, error) {
	return json.Marshal(s)
}

func UnmarshalSession(data []byte) (*UploadSession, error) {
	var s UploadSession
	if err := json.Unmarshal(data, &s); err != nil {
		return nil, err
	}
	return &s, nil
}
