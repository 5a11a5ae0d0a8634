package session

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowkeep/apiclient/apierr"
	"github.com/flowkeep/apiclient/bridge"
	"github.com/flowkeep/apiclient/client"
	"github.com/flowkeep/apiclient/internal/config"
	"github.com/flowkeep/apiclient/internal/metrics"
	"github.com/flowkeep/apiclient/tabstore"
	"github.com/flowkeep/apiclient/token"
)

// refreshAhead is how close to expiry a restored credential may be before
// bootstrap refreshes it up front instead of waiting for the first 401.
const refreshAhead = 30 * time.Second

// Manager is the session lifecycle for one tab.
type Manager struct {
	cfg        config.Config
	api        *client.Client
	store      *token.Store
	identity   *token.Identity
	bridge     *bridge.Bridge
	durable    tabstore.DurableStore
	classifier *apierr.SignOutClassifier
	log        zerolog.Logger
	metrics    *metrics.Collector
	now        func() time.Time

	mu          sync.Mutex
	snapshot    *Snapshot
	lastResync  time.Time
	handlers    []func(Event)
	cancelWatch func()

	bootstrapStarted atomic.Bool
}

// Option configures a Manager.
type Option func(*Manager)

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(m *Manager) { m.log = log }
}

// WithMetrics attaches a telemetry collector.
func WithMetrics(c *metrics.Collector) Option {
	return func(m *Manager) { m.metrics = c }
}

// WithNowTime sets the clock (primarily for testing).
func WithNowTime(now func() time.Time) Option {
	return func(m *Manager) { m.now = now }
}

// NewManager wires the lifecycle for one tab and starts observing cross-tab
// auth transitions. Call Close when the tab goes away.
func NewManager(
	cfg config.Config,
	api *client.Client,
	store *token.Store,
	identity *token.Identity,
	br *bridge.Bridge,
	durable tabstore.DurableStore,
	options ...Option,
) *Manager {
	m := &Manager{
		cfg:        cfg,
		api:        api,
		store:      store,
		identity:   identity,
		bridge:     br,
		durable:    durable,
		classifier: apierr.NewSignOutClassifier(cfg.HardSignOutCodes),
		log:        zerolog.Nop(),
		now:        time.Now,
	}
	for _, opt := range options {
		opt(m)
	}
	m.bridge.Start()
	m.cancelWatch = durable.Watch(m.onDurableChange)
	return m
}

// Close detaches the manager from the bridge and the durable store.
func (m *Manager) Close() {
	m.mu.Lock()
	cancel := m.cancelWatch
	m.cancelWatch = nil
	m.mu.Unlock()
	if cancel != nil {
		cancel()
	}
	m.bridge.Stop()
}

// OnEvent registers a same-tab listener for session transitions.
func (m *Manager) OnEvent(fn func(Event)) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.handlers = append(m.handlers, fn)
}

// Snapshot returns the current user snapshot, or nil when signed out.
func (m *Manager) Snapshot() *Snapshot {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.snapshot
}

// SignIn authenticates, stores the credential, locks the user identity and
// organization scope, marks the cross-tab auth hint and emits signed_in.
func (m *Manager) SignIn(ctx context.Context, creds Credentials) (*Snapshot, error) {
	resp, err := m.api.Do(ctx, client.Post(m.cfg.AuthPathPrefix+"sign-in", creds))
	if err != nil {
		return nil, err
	}
	var payload signInPayload
	if err := resp.Decode(&payload); err != nil {
		return nil, err
	}
	if payload.Access == "" || payload.User.ID == "" {
		return nil, apierr.ErrMalformedBody
	}

	m.store.Set(payload.Access)
	m.identity.LockUser(payload.User.ID)
	m.identity.SetOrgID(payload.Org.ExternalID)
	m.durable.Set(tabstore.KeyAuthActive, "1")

	snap := &Snapshot{User: payload.User, Org: payload.Org}
	m.mu.Lock()
	m.snapshot = snap
	m.lastResync = m.now()
	m.mu.Unlock()

	m.log.Info().Str("user", payload.User.ID).Msg("signed in")
	m.emit(EventSignedIn)
	return snap, nil
}

// SignOut calls the sign-out endpoint best-effort, then unconditionally
// clears every piece of session state and emits signed_out. The cross-tab
// hint removal tells sibling tabs to clear locally without another call.
func (m *Manager) SignOut(ctx context.Context) {
	if _, err := m.api.Do(ctx, client.Post(m.cfg.AuthPathPrefix+"sign-out", nil)); err != nil {
		m.log.Debug().Err(err).Msg("sign-out endpoint failed, clearing anyway")
	}
	m.metrics.SignOut("user")
	m.clearLocal()
	m.durable.Delete(tabstore.KeyAuthActive)
	m.emit(EventSignedOut)
}

// Bootstrap restores the session when a tab loads: bridge first, then the
// backend snapshot. It runs at most once per tab regardless of how many
// times the UI mounts. A hard auth failure signs the session out; any other
// failure leaves this tab signed out while keeping the durable hint so a
// reload can retry.
func (m *Manager) Bootstrap(ctx context.Context) {
	if !m.bootstrapStarted.CompareAndSwap(false, true) {
		return
	}
	if m.durable.Get(tabstore.KeyAuthActive) == "" {
		return
	}
	if m.Snapshot() != nil {
		return
	}

	if m.store.Get() == "" {
		if access := m.bridge.Request(ctx); access != "" {
			m.metrics.BridgeRequest("hit")
		} else {
			m.metrics.BridgeRequest("timeout")
		}
	}
	if access := m.store.Get(); access != "" && token.ExpiresWithin(access, refreshAhead) {
		// The bridged or restored credential is about to lapse; refreshing
		// now avoids a guaranteed 401 on the snapshot fetch.
		if err := m.api.Refresh(ctx); err != nil {
			m.log.Debug().Err(err).Msg("bootstrap pre-refresh failed")
		}
	}

	if err := m.fetchSnapshot(ctx); err != nil {
		if m.classifier.MustSignOut(err) {
			m.log.Warn().Err(err).Msg("bootstrap hit a terminal auth failure")
			m.metrics.SignOut("bootstrap")
			m.SignOut(ctx)
			return
		}
		m.log.Debug().Err(err).Msg("bootstrap could not restore the session")
	}
}

// Resync refetches the current-user snapshot. Non-forced resyncs are
// throttled; forced ones (right after a cross-tab sign-in) always run.
func (m *Manager) Resync(ctx context.Context, force bool) {
	m.mu.Lock()
	if !force && m.now().Sub(m.lastResync) < m.cfg.ResyncThrottle {
		m.mu.Unlock()
		return
	}
	m.lastResync = m.now()
	m.mu.Unlock()

	if err := m.fetchSnapshot(ctx); err != nil {
		if m.classifier.MustSignOut(err) {
			m.metrics.SignOut("resync")
			m.SignOut(ctx)
			return
		}
		m.log.Debug().Err(err).Msg("resync failed")
	}
}

// fetchSnapshot loads /auth/me and applies it to the tab state.
func (m *Manager) fetchSnapshot(ctx context.Context) error {
	resp, err := m.api.Do(ctx, client.Get(m.cfg.AuthPathPrefix+"me", nil))
	if err != nil {
		return err
	}
	var snap Snapshot
	if err := resp.Decode(&snap); err != nil {
		return err
	}
	if snap.User.ID == "" {
		return apierr.ErrUserMissing
	}
	if locked := m.identity.UserID(); locked != "" && locked != snap.User.ID {
		return apierr.ErrUserMismatch
	}

	m.identity.LockUser(snap.User.ID)
	m.identity.SetOrgID(snap.Org.ExternalID)

	m.mu.Lock()
	first := m.snapshot == nil
	m.snapshot = &snap
	m.mu.Unlock()

	if first {
		m.emit(EventSignedIn)
	}
	return nil
}

// onDurableChange reacts to sibling tabs toggling the auth hint. Becoming
// active forces a resync; going inactive clears local state only, without a
// second sign-out call against the backend.
func (m *Manager) onDurableChange(key, value string) {
	if key != tabstore.KeyAuthActive {
		return
	}
	if value == "" {
		m.metrics.SignOut("cross_tab")
		m.log.Info().Msg("sign-out detected in another tab")
		m.clearLocal()
		m.emit(EventSignedOut)
		return
	}
	m.Resync(context.Background(), true)
}

// clearLocal wipes everything this tab holds: credential, identity lock,
// org scope, micro-cache, in-flight map and the pause window.
func (m *Manager) clearLocal() {
	m.store.Clear()
	m.identity.ClearUser()
	m.api.Reset()
	m.mu.Lock()
	m.snapshot = nil
	m.mu.Unlock()
}

func (m *Manager) emit(e Event) {
	m.mu.Lock()
	handlers := make([]func(Event), len(m.handlers))
	copy(handlers, m.handlers)
	m.mu.Unlock()
	for _, fn := range handlers {
		fn(e)
	}
}
