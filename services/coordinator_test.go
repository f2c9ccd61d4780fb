package services

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/TheClusterFlux/replay-hub/transcoder"
)

type fakeEngine struct {
	convertErr error
	out        string
	verified   transcoder.ProbeResult
	calls      int
}

func (f *fakeEngine) NeedsConversion(codec string) bool {
	return codec == "hevc"
}

func (f *fakeEngine) Convert(ctx context.Context, path string, opts transcoder.Options) (string, transcoder.ProbeResult, error) {
	f.calls++
	if f.convertErr != nil {
		return "", transcoder.ProbeResult{}, f.convertErr
	}
	out := f.out
	if out == "" {
		out = path + "_converted.mp4"
	}
	return out, f.verified, nil
}

type fakePlacer struct {
	placeErr error
	remote   bool

	mu     sync.Mutex
	placed []string
}

func (f *fakePlacer) Place(ctx context.Context, localPath string, preferRemote bool) (string, bool, error) {
	f.mu.Lock()
	f.placed = append(f.placed, localPath)
	f.mu.Unlock()

	if f.placeErr != nil {
		return "", false, f.placeErr
	}
	if preferRemote && f.remote {
		return "https://bucket.s3.us-east-1.amazonaws.com/" + localPath, true, nil
	}
	return f.LocalURL(localPath), false, nil
}

func (f *fakePlacer) LocalURL(localPath string) string {
	return "/files/" + localPath
}

type fakePatcher struct {
	patchErr error

	mu      sync.Mutex
	patches map[primitive.ObjectID]string
}

func (f *fakePatcher) SetAssetURL(ctx context.Context, id primitive.ObjectID, url string) error {
	if f.patchErr != nil {
		return f.patchErr
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	if f.patches == nil {
		f.patches = make(map[primitive.ObjectID]string)
	}
	f.patches[id] = url
	return nil
}

func (f *fakePatcher) get(id primitive.ObjectID) (string, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	url, ok := f.patches[id]
	return url, ok
}

func newTestCoordinator(engine *fakeEngine, placer *fakePlacer, patcher *fakePatcher) (*Coordinator, *Reaper) {
	reaper := NewReaper()
	c := NewCoordinator(engine, placer, patcher, reaper, transcoder.Options{CRF: 18, Preset: "medium"}, time.Hour, time.Hour)
	return c, reaper
}

func TestCoordinatorPatchesRecordOnce(t *testing.T) {
	engine := &fakeEngine{out: "clip_converted.mp4"}
	placer := &fakePlacer{remote: true}
	patcher := &fakePatcher{}

	c, reaper := newTestCoordinator(engine, placer, patcher)
	defer reaper.Shutdown(false)

	id := primitive.NewObjectID()
	c.ScheduleNormalization(id, "clip.mkv", true)
	c.Shutdown(true)

	require.Equal(t, 1, engine.calls)
	require.Equal(t, []string{"clip_converted.mp4"}, placer.placed)

	url, ok := patcher.get(id)
	require.True(t, ok)
	require.Equal(t, "https://bucket.s3.us-east-1.amazonaws.com/clip_converted.mp4", url)
}

func TestCoordinatorConversionFailureLeavesRecord(t *testing.T) {
	engine := &fakeEngine{convertErr: errors.New("encoder exploded")}
	placer := &fakePlacer{}
	patcher := &fakePatcher{}

	c, reaper := newTestCoordinator(engine, placer, patcher)
	defer reaper.Shutdown(false)

	c.ScheduleNormalization(primitive.NewObjectID(), "clip.mkv", true)
	c.Shutdown(true)

	require.Empty(t, placer.placed)
	require.Empty(t, patcher.patches)
}

func TestCoordinatorPlacementFailureLeavesRecord(t *testing.T) {
	engine := &fakeEngine{}
	placer := &fakePlacer{placeErr: errors.New("bucket rejected us")}
	patcher := &fakePatcher{}

	c, reaper := newTestCoordinator(engine, placer, patcher)
	defer reaper.Shutdown(false)

	c.ScheduleNormalization(primitive.NewObjectID(), "clip.mkv", true)
	c.Shutdown(true)

	require.Empty(t, patcher.patches)
}

func TestCoordinatorPatchFailureIsSwallowed(t *testing.T) {
	engine := &fakeEngine{}
	placer := &fakePlacer{remote: true}
	patcher := &fakePatcher{patchErr: errors.New("no such record")}

	c, reaper := newTestCoordinator(engine, placer, patcher)
	defer reaper.Shutdown(false)

	// Nothing to assert beyond "does not panic and does not block": the unit
	// is detached and failures only log.
	c.ScheduleNormalization(primitive.NewObjectID(), "clip.mkv", true)
	c.Shutdown(true)
}

func TestCoordinatorLocalPlacement(t *testing.T) {
	engine := &fakeEngine{out: "clip_converted.mp4"}
	placer := &fakePlacer{}
	patcher := &fakePatcher{}

	c, reaper := newTestCoordinator(engine, placer, patcher)
	defer reaper.Shutdown(false)

	id := primitive.NewObjectID()
	c.ScheduleNormalization(id, "clip.mkv", false)
	c.Shutdown(true)

	url, ok := patcher.get(id)
	require.True(t, ok)
	require.Equal(t, "/files/clip_converted.mp4", url)
}
