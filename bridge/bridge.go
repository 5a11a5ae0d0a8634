package bridge

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/flowkeep/apiclient/token"
)

// DefaultTimeout bounds how long a requesting tab waits for a sibling reply
// before falling back to whatever credential state it already has.
const DefaultTimeout = 800 * time.Millisecond

// Bridge wires one tab into the cross-tab token protocol. It answers
// sibling requests when this tab holds a credential, and can request one
// when this tab does not.
type Bridge struct {
	store    *token.Store
	identity *token.Identity
	channel  Channel
	timeout  time.Duration
	log      zerolog.Logger

	mu        sync.Mutex
	pending   chan struct{}
	cancelSub func()
}

// Option configures a Bridge.
type Option func(*Bridge)

// WithTimeout overrides the reply timeout.
func WithTimeout(d time.Duration) Option {
	return func(b *Bridge) {
		if d > 0 {
			b.timeout = d
		}
	}
}

// WithLogger attaches a logger; the default discards everything.
func WithLogger(log zerolog.Logger) Option {
	return func(b *Bridge) { b.log = log }
}

// New creates a Bridge for a tab. Call Start to join the channel.
func New(store *token.Store, identity *token.Identity, channel Channel, options ...Option) *Bridge {
	b := &Bridge{
		store:    store,
		identity: identity,
		channel:  channel,
		timeout:  DefaultTimeout,
		log:      zerolog.Nop(),
	}
	for _, opt := range options {
		opt(b)
	}
	return b
}

// Start subscribes to the broadcast channel. Idempotent.
func (b *Bridge) Start() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelSub != nil {
		return
	}
	b.cancelSub = b.channel.Subscribe(b.handle)
}

// Stop leaves the channel and abandons any outstanding request.
func (b *Bridge) Stop() {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.cancelSub != nil {
		b.cancelSub()
		b.cancelSub = nil
	}
}

// Request broadcasts a token request and waits for an acceptable reply, the
// timeout, or ctx cancellation, whichever comes first. It returns the
// credential state at that moment, which may still be empty; the caller then
// falls back to cookie-based refresh. Only one broadcast is outstanding per
// tab: reentrant calls join the existing wait.
func (b *Bridge) Request(ctx context.Context) string {
	b.mu.Lock()
	wait := b.pending
	owner := false
	if wait == nil {
		wait = make(chan struct{})
		b.pending = wait
		owner = true
	}
	b.mu.Unlock()

	if owner {
		b.channel.Publish(TokenRequest{From: b.identity.TabID()})
	}

	timer := time.NewTimer(b.timeout)
	defer timer.Stop()

	select {
	case <-wait:
	case <-timer.C:
		b.log.Debug().Str("tab", b.identity.TabID()).Msg("bridge request timed out")
	case <-ctx.Done():
	}

	if owner {
		b.mu.Lock()
		if b.pending == wait {
			b.pending = nil
		}
		b.mu.Unlock()
	}
	return b.store.Get()
}

func (b *Bridge) handle(m Message) {
	switch msg := m.(type) {
	case TokenRequest:
		b.respond(msg)
	case TokenReply:
		b.accept(msg)
	}
}

// respond answers a sibling's request, but only once this tab's user
// identity is locked. A tab that has not confirmed who it belongs to must
// not hand out credentials.
func (b *Bridge) respond(req TokenRequest) {
	if req.From == "" || req.From == b.identity.TabID() {
		return
	}
	access := b.store.Get()
	userID := b.identity.UserID()
	if access == "" || userID == "" {
		return
	}
	b.channel.Publish(TokenReply{
		To:            req.From,
		Access:        access,
		OrgExternalID: b.identity.OrgID(),
		UserID:        userID,
	})
}

// accept applies a reply addressed to this tab. A reply for a different
// user than the one already locked here is discarded unconditionally; a tab
// must never end up holding another user's credential.
func (b *Bridge) accept(reply TokenReply) {
	if reply.To != b.identity.TabID() {
		return
	}
	if reply.Access == "" || reply.UserID == "" {
		return
	}
	if locked := b.identity.UserID(); locked != "" && locked != reply.UserID {
		b.log.Warn().
			Str("tab", b.identity.TabID()).
			Str("locked_user", locked).
			Str("reply_user", reply.UserID).
			Msg("discarding bridged credential for a different user")
		return
	}

	b.identity.LockUser(reply.UserID)
	b.store.Set(reply.Access)
	if reply.OrgExternalID != "" {
		b.identity.SetOrgID(reply.OrgExternalID)
	}

	b.mu.Lock()
	if b.pending != nil {
		close(b.pending)
		b.pending = nil
	}
	b.mu.Unlock()
}
