package enlifecycle

import (
	"context"
	"io"
	"math/rand"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	httpAdapter "github.com/exposure-kit/enlifecycle/internal/adapters/http"
	"github.com/exposure-kit/enlifecycle/internal/config"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

type backend struct {
	configHits atomic.Int32
	dummies    atomic.Int32
	tokens     atomic.Int32
}

func (b *backend) handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc(httpAdapter.ConfigEndpoint, func(w http.ResponseWriter, r *http.Request) {
		b.configHits.Add(1)
		io.WriteString(w, `{"min_version":"1.0.0"}`)
	})
	mux.HandleFunc(httpAdapter.DummyEndpoint, func(w http.ResponseWriter, r *http.Request) {
		b.dummies.Add(1)
		w.WriteHeader(http.StatusAccepted)
	})
	mux.HandleFunc(httpAdapter.TokenEndpoint, func(w http.ResponseWriter, r *http.Request) {
		b.tokens.Add(1)
		io.WriteString(w, `{"token":"tok","expires_at":"2099-01-01T00:00:00Z"}`)
	})
	return mux
}

type fixedClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fixedClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fixedClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type recordingHandler struct {
	BaseEventHandler

	mu        sync.Mutex
	sequences []string
}

func (h *recordingHandler) OnSequenceComplete(out SequenceOutcome) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.sequences = append(h.sequences, out.Sequence)
}

func newTestConfig(t *testing.T, srv *httptest.Server) Config {
	t.Helper()
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.ServiceURL = srv.URL
	cfg.AppVersion = "2.0.0"
	return cfg
}

func TestOrchestrator_FirstLaunchPersists(t *testing.T) {
	b := &backend{}
	srv := httptest.NewServer(b.handler())
	defer srv.Close()
	cfg := newTestConfig(t, srv)
	clock := &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}
	handler := &recordingHandler{}

	o, err := New(cfg,
		WithHTTPClient(srv.Client()),
		WithClock(clock),
		WithRand(rand.New(rand.NewSource(1))),
		WithEventHandler(handler),
	)
	require.NoError(t, err)

	out, err := o.HandleSignal(context.Background(), "start", "")
	require.NoError(t, err)
	require.NoError(t, out.Err)

	st := o.State()
	assert.True(t, st.Toggles.FirstLaunchSetupPerformed)
	assert.False(t, st.Window(WindowIngestionDummy).IsUnset())
	assert.EqualValues(t, 1, b.configHits.Load())
	assert.EqualValues(t, 1, b.tokens.Load())
	assert.FileExists(t, filepath.Join(cfg.StateDir, httpAdapter.AppConfigFileName))
	assert.Equal(t, []string{"start"}, handler.sequences)
	require.NoError(t, o.Close())

	reopened, err := New(cfg, WithHTTPClient(srv.Client()), WithClock(clock))
	require.NoError(t, err)
	defer reopened.Close()

	assert.True(t, reopened.State().Toggles.FirstLaunchSetupPerformed)
	assert.Equal(t, st.Window(WindowIngestionDummy).End.Unix(), reopened.State().Window(WindowIngestionDummy).End.Unix())

	_, err = reopened.HandleSignal(context.Background(), "start", "")
	require.NoError(t, err)
	assert.EqualValues(t, 1, b.configHits.Load(), "first launch setup must not run twice")
}

func TestOrchestrator_SQLiteStore(t *testing.T) {
	b := &backend{}
	srv := httptest.NewServer(b.handler())
	defer srv.Close()
	cfg := newTestConfig(t, srv)
	cfg.Store = config.StoreSQLite

	o, err := New(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)

	_, err = o.HandleSignal(context.Background(), "start", "")
	require.NoError(t, err)
	_, err = o.HandleSignal(context.Background(), "did-enter-background", "")
	require.NoError(t, err)
	require.NoError(t, o.Close())

	assert.FileExists(t, filepath.Join(cfg.StateDir, SQLiteFileName))

	reopened, err := New(cfg, WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer reopened.Close()
	assert.True(t, reopened.State().Toggles.FirstLaunchSetupPerformed)
	assert.False(t, reopened.State().Toggles.ForegroundSessionActive)
}

func TestOrchestrator_BackgroundWakeSendsExpiredDummies(t *testing.T) {
	b := &backend{}
	srv := httptest.NewServer(b.handler())
	defer srv.Close()
	clock := &fixedClock{now: time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)}

	o, err := New(newTestConfig(t, srv), WithHTTPClient(srv.Client()), WithClock(clock))
	require.NoError(t, err)
	defer o.Close()

	ctx := context.Background()
	_, err = o.HandleSignal(ctx, "start", "")
	require.NoError(t, err)
	_, err = o.HandleSignal(ctx, "did-enter-background", "")
	require.NoError(t, err)

	clock.Advance(365 * 24 * time.Hour)
	out, err := o.HandleSignal(ctx, "background-task-wake", "refresh-1")
	require.NoError(t, err)
	require.NoError(t, out.Err)

	require.Eventually(t, func() bool { return b.dummies.Load() == 4 }, 5*time.Second, 10*time.Millisecond)
}

func TestOrchestrator_UnknownSignal(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler())
	defer srv.Close()

	o, err := New(newTestConfig(t, srv), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer o.Close()

	_, err = o.HandleSignal(context.Background(), "application-will-terminate", "")
	assert.ErrorIs(t, err, ErrUnknownSignal)

	_, err = o.HandleSignal(context.Background(), "background-task-wake", "")
	assert.ErrorIs(t, err, ErrUnknownSignal, "background wakes need a task")
}

func TestOrchestrator_Metrics(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler())
	defer srv.Close()
	reg := prometheus.NewRegistry()

	o, err := New(newTestConfig(t, srv), WithHTTPClient(srv.Client()), WithMetrics(reg))
	require.NoError(t, err)
	defer o.Close()

	_, err = o.HandleSignal(context.Background(), "will-resign-active", "")
	require.NoError(t, err)

	n, err := testutil.GatherAndCount(reg, "enlifecycle_sequences_total")
	require.NoError(t, err)
	assert.Equal(t, 1, n)
}

type stubEngine struct {
	status  ports.ExposureStatus
	started atomic.Bool
}

func (s *stubEngine) Status(context.Context) (ports.ExposureStatus, error) { return s.status, nil }
func (s *stubEngine) StartIfAuthorized(context.Context) error {
	s.started.Store(true)
	return nil
}

func TestOrchestrator_WithCollaborators(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler())
	defer srv.Close()
	engine := &stubEngine{status: ports.ExposureStatusRestricted}

	o, err := New(newTestConfig(t, srv), WithHTTPClient(srv.Client()), WithCollaborators(Collaborators{Engine: engine}))
	require.NoError(t, err)
	defer o.Close()

	out, err := o.HandleSignal(context.Background(), "start", "")
	require.NoError(t, err)
	require.NoError(t, out.Err)

	assert.False(t, engine.started.Load(), "restricted engine must not be started")
	assert.Equal(t, ports.ExposureStatusRestricted, o.Auth().Exposure)
}

func TestOrchestrator_SetSchedules(t *testing.T) {
	srv := httptest.NewServer((&backend{}).handler())
	defer srv.Close()

	o, err := New(newTestConfig(t, srv), WithHTTPClient(srv.Client()))
	require.NoError(t, err)
	defer o.Close()

	err = o.SetSchedules(map[WindowKind]ScheduleConfig{
		WindowIngestionDummy: {Mean: time.Millisecond},
	})
	assert.ErrorIs(t, err, ErrInvalidConfig)

	err = o.SetSchedules(map[WindowKind]ScheduleConfig{
		WindowIngestionDummy: {Mean: time.Hour, Distribution: "uniform", Jitter: 0.1},
	})
	assert.NoError(t, err)
}

func TestNew_InvalidConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	cfg.Store = "etcd"

	_, err := New(cfg)
	assert.ErrorIs(t, err, ErrInvalidConfig)
}

func TestNew_UnreadableState(t *testing.T) {
	cfg := DefaultConfig()
	cfg.StateDir = t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(cfg.StateDir, "lifecycle.json"), []byte("garbage"), 0o600))

	_, err := New(cfg)
	assert.Error(t, err)
}
