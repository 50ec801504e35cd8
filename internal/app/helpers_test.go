package app

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/exposure-kit/enlifecycle/internal/domain"
	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// mockLogger implements ports.Logger for testing.
type mockLogger struct{}

func (mockLogger) Debug(msg string, fields ...ports.Field) {}
func (mockLogger) Info(msg string, fields ...ports.Field)  {}
func (mockLogger) Warn(msg string, fields ...ports.Field)  {}
func (mockLogger) Error(msg string, fields ...ports.Field) {}

var epoch = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

// fakeClock is a settable clock.
type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func newFakeClock() *fakeClock { return &fakeClock{now: epoch} }

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

// memRepo is an in-memory StateRepository.
type memRepo struct {
	mu      sync.Mutex
	state   domain.State
	saves   int
	saveErr error
}

func (r *memRepo) Load(ctx context.Context) (domain.State, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), nil
}

func (r *memRepo) Save(ctx context.Context, st domain.State) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.saveErr != nil {
		return r.saveErr
	}
	r.saves++
	r.state = st.Clone()
	return nil
}

func (r *memRepo) Saved() (domain.State, int) {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state.Clone(), r.saves
}

// calls records collaborator invocations in order.
type calls struct {
	mu    sync.Mutex
	names []string
}

func (c *calls) add(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.names = append(c.names, name)
}

func (c *calls) list() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]string{}, c.names...)
}

func (c *calls) count(name string) int {
	n := 0
	for _, v := range c.list() {
		if v == name {
			n++
		}
	}
	return n
}

// fakeHost implements every collaborator port and records calls.
type fakeHost struct {
	calls calls

	exposureStatus ports.ExposureStatus
	statusErr      error
	startErr       error
	configDelay    time.Duration
	configErr      error
	forceUpdate    bool
	forceUpdateErr error
	tokenErr       error
	overlayErr     error
	foreground     bool

	mu         sync.Mutex
	detections []ports.DetectionKind
}

func newFakeHost() *fakeHost {
	return &fakeHost{exposureStatus: ports.ExposureStatusAuthorized, foreground: true}
}

func (h *fakeHost) Status(ctx context.Context) (ports.ExposureStatus, error) {
	h.calls.add("engine.status")
	return h.exposureStatus, h.statusErr
}

func (h *fakeHost) StartIfAuthorized(ctx context.Context) error {
	h.calls.add("engine.start")
	return h.startErr
}

func (h *fakeHost) AuthorizationStatus(ctx context.Context) (ports.PushStatus, error) {
	h.calls.add("push.status")
	return ports.PushStatusAuthorized, nil
}

func (h *fakeHost) DownloadAndUpdate(ctx context.Context) error {
	h.calls.add("config.download")
	if h.configDelay > 0 {
		select {
		case <-time.After(h.configDelay):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
	return h.configErr
}

func (h *fakeHost) PerformIfNecessary(ctx context.Context, kind ports.DetectionKind) {
	h.calls.add("detection")
	h.mu.Lock()
	defer h.mu.Unlock()
	h.detections = append(h.detections, kind)
}

func (h *fakeHost) Detections() []ports.DetectionKind {
	h.mu.Lock()
	defer h.mu.Unlock()
	return append([]ports.DetectionKind{}, h.detections...)
}

func (h *fakeHost) RefreshIfExpired(ctx context.Context) error {
	h.calls.add("analytics.token")
	return h.tokenErr
}

func (h *fakeHost) RemoveRiskReminder(ctx context.Context) error {
	h.calls.add("notifications.remove")
	return nil
}

func (h *fakeHost) Show(ctx context.Context) error {
	h.calls.add("overlay.show")
	return h.overlayErr
}

func (h *fakeHost) Hide(ctx context.Context) error {
	h.calls.add("overlay.hide")
	return h.overlayErr
}

func (h *fakeHost) Preload(ctx context.Context) error {
	h.calls.add("assets.preload")
	return errors.New("asset catalog missing")
}

func (h *fakeHost) Language() string   { return "de" }
func (h *fakeHost) AppName() string    { return "Exposure" }
func (h *fakeHost) AppVersion() string { return "" }

func (h *fakeHost) SetLanguage(lang string) error {
	h.calls.add("appinfo.language")
	return nil
}

func (h *fakeHost) SetAppName(name string) error {
	h.calls.add("appinfo.name")
	return nil
}

func (h *fakeHost) SetAppVersion(version string) error {
	h.calls.add("appinfo.version")
	return nil
}

func (h *fakeHost) ClearOutdated(ctx context.Context, before time.Time) error {
	h.calls.add("exposures.clear")
	return nil
}

func (h *fakeHost) Check(ctx context.Context) (bool, error) {
	h.calls.add("forceupdate.check")
	return h.forceUpdate, h.forceUpdateErr
}

func (h *fakeHost) IsForeground() bool { return h.foreground }

func (h *fakeHost) collaborators() Collaborators {
	return Collaborators{
		Engine:        h,
		Push:          h,
		Config:        h,
		Detection:     h,
		Notifications: h,
		Overlay:       h,
		Assets:        h,
		Environment:   h,
		AppInfo:       h,
		Exposures:     h,
		ForceUpdate:   h,
		AppState:      h,
	}
}

// fakeTransport counts dummy requests.
type fakeTransport struct {
	mu   sync.Mutex
	sent []ports.DummyRequest
	err  error
}

func (f *fakeTransport) SendDummy(ctx context.Context, req ports.DummyRequest) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.sent = append(f.sent, req)
	return f.err
}

func (f *fakeTransport) Sent() []ports.DummyRequest {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]ports.DummyRequest{}, f.sent...)
}

type fixture struct {
	host      *fakeHost
	repo      *memRepo
	clock     *fakeClock
	transport *fakeTransport
	d         *Dispatcher
}

func newFixture(t *testing.T, mutate ...func(*DispatcherConfig)) *fixture {
	t.Helper()

	f := &fixture{
		host:      newFakeHost(),
		repo:      &memRepo{},
		clock:     newFakeClock(),
		transport: &fakeTransport{},
	}
	cfg := DispatcherConfig{
		Collaborators:   f.host.collaborators(),
		Sequences:       SequenceConfig{ConfigDownloadTimeout: 50 * time.Millisecond},
		AnalyticsTokens: f.host,
		Rand:            rand.New(rand.NewSource(7)),
		Transport:       f.transport,
		Clock:           f.clock,
		Logger:          &mockLogger{},
	}
	for _, m := range mutate {
		m(&cfg)
	}

	f.d = NewDispatcher(f.repo, cfg)
	require.NoError(t, f.d.Load(context.Background()))
	t.Cleanup(func() { _ = f.d.Close(time.Second) })
	return f
}

func (f *fixture) dispatch(kind domain.TriggerKind) domain.SequenceOutcome {
	return f.d.Dispatch(context.Background(), domain.Trigger{Kind: kind})
}
