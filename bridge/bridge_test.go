package bridge_test

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/flowkeep/apiclient/bridge"
	"github.com/flowkeep/apiclient/tabstore"
	"github.com/flowkeep/apiclient/token"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

// testTab bundles the per-tab state a bridge needs.
type testTab struct {
	storage  *tabstore.MemoryStorage
	store    *token.Store
	identity *token.Identity
	bridge   *bridge.Bridge
}

func newTestTab(t *testing.T, channel *bridge.MemChannel, opts ...bridge.Option) *testTab {
	t.Helper()
	storage := tabstore.NewMemoryStorage()
	store := token.NewStore(storage)
	identity := token.NewIdentity(storage)
	b := bridge.New(store, identity, channel.Join(), opts...)
	b.Start()
	t.Cleanup(b.Stop)
	return &testTab{storage: storage, store: store, identity: identity, bridge: b}
}

func TestRequestReceivesSiblingCredential(t *testing.T) {
	channel := bridge.NewMemChannel()

	tabA := newTestTab(t, channel)
	tabA.store.Set("tok-A")
	tabA.identity.LockUser("42")
	tabA.identity.SetOrgID("org-acme")

	tabB := newTestTab(t, channel)
	access := tabB.bridge.Request(context.Background())

	require.Equal(t, "tok-A", access)
	require.Equal(t, "42", tabB.identity.UserID())
	require.Equal(t, "org-acme", tabB.identity.OrgID())
}

func TestRequestTimesOutWithoutSiblings(t *testing.T) {
	channel := bridge.NewMemChannel()
	tabB := newTestTab(t, channel, bridge.WithTimeout(30*time.Millisecond))

	start := time.Now()
	access := tabB.bridge.Request(context.Background())

	require.Empty(t, access)
	require.GreaterOrEqual(t, time.Since(start), 30*time.Millisecond)
}

func TestResponderStaysSilentWithoutUserLock(t *testing.T) {
	channel := bridge.NewMemChannel()

	// Tab A holds a credential but its user identity was never confirmed.
	tabA := newTestTab(t, channel)
	tabA.store.Set("tok-A")

	tabB := newTestTab(t, channel, bridge.WithTimeout(30*time.Millisecond))
	require.Empty(t, tabB.bridge.Request(context.Background()))
}

func TestReplyForDifferentUserIsDiscarded(t *testing.T) {
	channel := bridge.NewMemChannel()

	tabA := newTestTab(t, channel)
	tabA.store.Set("tok-A")
	tabA.identity.LockUser("42")

	// Tab C is already signed in as a different user.
	tabC := newTestTab(t, channel, bridge.WithTimeout(50*time.Millisecond))
	tabC.store.Set("tok-C")
	tabC.identity.LockUser("99")

	access := tabC.bridge.Request(context.Background())

	require.Equal(t, "tok-C", access)
	require.Equal(t, "99", tabC.identity.UserID())
}

func TestReplyAddressedElsewhereIsIgnored(t *testing.T) {
	channel := bridge.NewMemChannel()
	tabB := newTestTab(t, channel)

	endpoint := channel.Join()
	endpoint.Publish(bridge.TokenReply{To: "someone-else", Access: "tok-X", UserID: "7"})

	require.Empty(t, tabB.store.Get())
	require.Empty(t, tabB.identity.UserID())
}

func TestReplyWithoutUserIDIsIgnored(t *testing.T) {
	channel := bridge.NewMemChannel()
	tabB := newTestTab(t, channel)

	endpoint := channel.Join()
	endpoint.Publish(bridge.TokenReply{To: tabB.identity.TabID(), Access: "tok-X"})

	require.Empty(t, tabB.store.Get())
}

func TestReentrantRequestsShareOneBroadcast(t *testing.T) {
	channel := bridge.NewMemChannel()
	tabB := newTestTab(t, channel, bridge.WithTimeout(60*time.Millisecond))

	var requests int
	var mu sync.Mutex
	observer := channel.Join()
	cancel := observer.Subscribe(func(m bridge.Message) {
		if _, ok := m.(bridge.TokenRequest); ok {
			mu.Lock()
			requests++
			mu.Unlock()
		}
	})
	defer cancel()

	var wg sync.WaitGroup
	for i := 0; i < 4; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tabB.bridge.Request(context.Background())
		}()
	}
	wg.Wait()

	mu.Lock()
	defer mu.Unlock()
	require.Equal(t, 1, requests)
}

func TestMessageRoundTrip(t *testing.T) {
	data, err := bridge.Encode(bridge.TokenRequest{From: "tab-1"})
	require.NoError(t, err)
	msg, err := bridge.Decode(data)
	require.NoError(t, err)
	require.Equal(t, bridge.TokenRequest{From: "tab-1"}, msg)

	data, err = bridge.Encode(bridge.TokenReply{To: "tab-1", Access: "tok", UserID: "42", OrgExternalID: "org"})
	require.NoError(t, err)
	msg, err = bridge.Decode(data)
	require.NoError(t, err)
	require.Equal(t, bridge.TokenReply{To: "tab-1", Access: "tok", UserID: "42", OrgExternalID: "org"}, msg)

	_, err = bridge.Decode([]byte(`{"type":"SOMETHING_ELSE"}`))
	require.Error(t, err)
}
