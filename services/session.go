package services

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/TheClusterFlux/replay-hub/database"
	"github.com/TheClusterFlux/replay-hub/models"
	"github.com/TheClusterFlux/replay-hub/types"
)

const sessionKeyPrefix = "session/"

// combinedDirReapDelay gives the finalize caller time to pick the assembled
// file up out of band before the session directory goes away.
const combinedDirReapDelay = time.Minute

// SessionManager owns chunked-upload sessions: a badger record plus an
// exclusively-owned working directory per session. Chunks arrive in any
// order; finalize serializes them back into one file.
type SessionManager struct {
	ds        *database.Ds
	root      string
	assembled string
	reaper    *Reaper
	retention time.Duration

	locks sync.Map // session id -> *sync.Mutex
}

// NewSessionManager creates the session root and the directory assembled
// files land in.
func NewSessionManager(ds *database.Ds, root, assembledDir string, reaper *Reaper, retention time.Duration) (*SessionManager, error) {
	for _, dir := range []string{root, assembledDir} {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, err
		}
	}

	return &SessionManager{
		ds:        ds,
		root:      root,
		assembled: assembledDir,
		reaper:    reaper,
		retention: retention,
	}, nil
}

func (m *SessionManager) lock(sessionID string) *sync.Mutex {
	mu, _ := m.locks.LoadOrStore(sessionID, &sync.Mutex{})
	return mu.(*sync.Mutex)
}

func (m *SessionManager) dir(sessionID string) string {
	return filepath.Join(m.root, sessionID)
}

func chunkFile(dir string, index int) string {
	return filepath.Join(dir, fmt.Sprintf("chunk_%d", index))
}

func sessionKey(sessionID string) []byte {
	return []byte(sessionKeyPrefix + sessionID)
}

func validSessionID(id string) bool {
	return id != "" && id == filepath.Base(id) && !strings.ContainsAny(id, "/\\") && id != "." && id != ".."
}

// Init registers a new session and creates its working directory. The
// directory is scheduled for reaping up front so abandoned uploads cannot
// accumulate on disk.
func (m *SessionManager) Init(sessionID, filename string, declaredSize int64, totalChunks int, fields types.UploadFields) (*models.UploadSession, error) {
	if !validSessionID(sessionID) {
		return nil, types.InvalidArgumentf("bad session id %q", sessionID)
	}
	if totalChunks < 1 {
		return nil, types.InvalidArgumentf("total_chunks must be >= 1, got %d", totalChunks)
	}

	dir := m.dir(sessionID)
	if _, err := os.Stat(dir); err == nil {
		return nil, types.InvalidArgumentf("session %q already active", sessionID)
	}
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, err
	}

	session := &models.UploadSession{
		SessionID:    sessionID,
		Filename:     SanitizeFilename(filename),
		DeclaredSize: declaredSize,
		TotalChunks:  totalChunks,
		Status:       models.SessionInitialized,
		Fields:       fields,
		CreatedAt:    time.Now().UTC(),
	}

	if err := m.save(session); err != nil {
		_ = os.RemoveAll(dir)
		return nil, err
	}

	m.reaper.Schedule(dir, m.retention)
	m.reaper.ScheduleFunc(m.retention, func() {
		_ = m.ds.Delete(sessionKey(sessionID))
	})

	log.Info().
		Str("session_id", sessionID).
		Str("filename", session.Filename).
		Int("total_chunks", totalChunks).
		Msg("upload session initialized")

	return session, nil
}

func (m *SessionManager) save(s *models.UploadSession) error {
	data, err := s.Marshal()
	if err != nil {
		return err
	}
	return m.ds.SetAndCommit(sessionKey(s.SessionID), data)
}

// load fetches session state, treating a missing working directory as the
// session not existing regardless of any stale record.
func (m *SessionManager) load(sessionID string) (*models.UploadSession, error) {
	if !validSessionID(sessionID) {
		return nil, types.ErrSessionNotFound
	}
	if _, err := os.Stat(m.dir(sessionID)); err != nil {
		return nil, types.ErrSessionNotFound
	}

	data, err := m.ds.Get(sessionKey(sessionID))
	if err != nil {
		return nil, err
	}
	if data == nil {
		return nil, types.ErrSessionNotFound
	}

	return models.UnmarshalSession(data)
}

// Get returns a snapshot of session state for status queries.
func (m *SessionManager) Get(sessionID string) (*models.UploadSession, error) {
	mu := m.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	return m.load(sessionID)
}

// PutChunk stores one chunk and returns how many distinct chunks have been
// received. Re-sending an index overwrites the earlier bytes; delivery order
// is unconstrained.
func (m *SessionManager) PutChunk(sessionID string, index int, r io.Reader) (int, error) {
	mu := m.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.load(sessionID)
	if err != nil {
		return 0, err
	}

	if index < 0 || index >= session.TotalChunks {
		return 0, types.InvalidArgumentf("chunk index %d out of range [0,%d)", index, session.TotalChunks)
	}

	out, err := os.Create(chunkFile(m.dir(sessionID), index))
	if err != nil {
		return 0, err
	}
	if _, err := io.Copy(out, r); err != nil {
		out.Close()
		return 0, err
	}
	if err := out.Close(); err != nil {
		return 0, err
	}

	session.MarkReceived(index)
	if err := m.save(session); err != nil {
		return 0, err
	}

	log.Debug().
		Str("session_id", sessionID).
		Int("index", index).
		Int("received", session.ChunksReceived()).
		Int("total", session.TotalChunks).
		Msg("chunk stored")

	return session.ChunksReceived(), nil
}

// Finalize concatenates chunks 0..N-1 in index order into one file and
// consumes the session. The per-session lock keeps two finalize calls from
// racing on the same output path.
func (m *SessionManager) Finalize(sessionID, filename string) (string, error) {
	mu := m.lock(sessionID)
	mu.Lock()
	defer mu.Unlock()

	session, err := m.load(sessionID)
	if err != nil {
		return "", err
	}

	if got, want := session.ChunksReceived(), session.TotalChunks; got != want {
		return "", &types.IncompleteUploadError{Received: got, Total: want}
	}

	if filename == "" {
		filename = session.Filename
	}
	outPath := filepath.Join(m.assembled, sessionID+"_"+SanitizeFilename(filename))

	if err := m.assemble(session, outPath); err != nil {
		session.Status = models.SessionFailed
		_ = m.save(session)
		return "", err
	}

	session.Status = models.SessionCombined
	_ = m.save(session)

	// Consume the session: drop the record now, reap the chunk directory
	// shortly after.
	_ = m.ds.Delete(sessionKey(sessionID))
	m.reaper.Schedule(m.dir(sessionID), combinedDirReapDelay)
	m.locks.Delete(sessionID)

	log.Info().
		Str("session_id", sessionID).
		Str("path", outPath).
		Int("chunks", session.TotalChunks).
		Msg("session combined")

	return outPath, nil
}

func (m *SessionManager) assemble(session *models.UploadSession, outPath string) error {
	dir := m.dir(session.SessionID)

	out, err := os.Create(outPath)
	if err != nil {
		return err
	}

	for i := 0; i < session.TotalChunks; i++ {
		chunk, err := os.Open(chunkFile(dir, i))
		if err != nil {
			// The counter said the chunk arrived but the file never made
			// it to disk.
			out.Close()
			_ = os.Remove(outPath)
			if os.IsNotExist(err) {
				return &types.MissingChunkError{Index: i}
			}
			return err
		}

		_, err = io.Copy(out, chunk)
		chunk.Close()
		if err != nil {
			out.Close()
			_ = os.Remove(outPath)
			return err
		}
	}

	return out.Close()
}
