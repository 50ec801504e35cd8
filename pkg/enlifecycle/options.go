package enlifecycle

import (
	"math/rand"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/exposure-kit/enlifecycle/internal/ports"
)

// Option configures optional behavior of an Orchestrator.
type Option func(*options)

type options struct {
	httpClient    ports.HTTPClient
	logger        ports.Logger
	clock         ports.Clock
	rand          *rand.Rand
	eventHandler  EventHandler
	registerer    prometheus.Registerer
	repo          ports.StateRepository
	collaborators Collaborators
	transport     ports.DummyTransport
	tokens        ports.AnalyticsTokens
}

// WithHTTPClient sets the client for backend calls. By default an
// *http.Client with cfg.HTTPTimeout is used.
func WithHTTPClient(client HTTPClient) Option {
	return func(o *options) {
		o.httpClient = client
	}
}

// WithLogger sets the logger. By default nothing is logged.
func WithLogger(logger Logger) Option {
	return func(o *options) {
		o.logger = logger
	}
}

// WithClock replaces the wall clock, mainly for tests.
func WithClock(clock Clock) Option {
	return func(o *options) {
		o.clock = clock
	}
}

// WithRand seeds window draws. Production code should leave the default,
// which is seeded from the current time.
func WithRand(r *rand.Rand) Option {
	return func(o *options) {
		o.rand = r
	}
}

// WithEventHandler sets a handler for orchestration events.
func WithEventHandler(handler EventHandler) Option {
	return func(o *options) {
		o.eventHandler = handler
	}
}

// WithMetrics registers Prometheus collectors with reg.
func WithMetrics(reg prometheus.Registerer) Option {
	return func(o *options) {
		o.registerer = reg
	}
}

// WithStateRepository replaces the store selected by cfg.Store.
func WithStateRepository(repo StateRepository) Option {
	return func(o *options) {
		o.repo = repo
	}
}

// WithCollaborators replaces host services. Nil members keep the default.
func WithCollaborators(c Collaborators) Option {
	return func(o *options) {
		o.collaborators = c
	}
}

// WithDummyTransport replaces the HTTP dummy request transport.
func WithDummyTransport(t ports.DummyTransport) Option {
	return func(o *options) {
		o.transport = t
	}
}

// WithAnalyticsTokens replaces the HTTP analytics token source.
func WithAnalyticsTokens(t ports.AnalyticsTokens) Option {
	return func(o *options) {
		o.tokens = t
	}
}
