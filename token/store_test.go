package token_test

import (
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/require"

	"github.com/flowkeep/apiclient/tabstore"
	"github.com/flowkeep/apiclient/token"
)

func TestStoreReadAfterWrite(t *testing.T) {
	storage := tabstore.NewMemoryStorage()
	store := token.NewStore(storage)

	require.Empty(t, store.Get())

	store.Set("tok-A")
	require.Equal(t, "tok-A", store.Get())
	require.Equal(t, "tok-A", storage.Get(tabstore.KeyAccessToken))

	store.Clear()
	require.Empty(t, store.Get())
	require.Empty(t, storage.Get(tabstore.KeyAccessToken))
}

func TestStoreSurvivesReloadWithinTab(t *testing.T) {
	storage := tabstore.NewMemoryStorage()
	token.NewStore(storage).Set("tok-A")

	// A new Store over the same tab storage simulates a page reload.
	reloaded := token.NewStore(storage)
	require.Equal(t, "tok-A", reloaded.Get())
}

func TestStoreEmptySetRemovesPersistedEntry(t *testing.T) {
	storage := tabstore.NewMemoryStorage()
	store := token.NewStore(storage)
	store.Set("tok-A")
	store.Set("")
	require.Empty(t, storage.Get(tabstore.KeyAccessToken))
}

func TestIdentityTabIDStable(t *testing.T) {
	storage := tabstore.NewMemoryStorage()
	first := token.NewIdentity(storage)
	require.NotEmpty(t, first.TabID())

	reloaded := token.NewIdentity(storage)
	require.Equal(t, first.TabID(), reloaded.TabID())
}

func TestIdentityLockAndClear(t *testing.T) {
	storage := tabstore.NewMemoryStorage()
	identity := token.NewIdentity(storage)

	identity.LockUser("42")
	identity.SetOrgID("org-1")
	require.Equal(t, "42", identity.UserID())
	require.Equal(t, "org-1", identity.OrgID())

	// Empty lock attempts are ignored.
	identity.LockUser("")
	require.Equal(t, "42", identity.UserID())

	identity.ClearUser()
	require.Empty(t, identity.UserID())
	require.Empty(t, identity.OrgID())
	require.Empty(t, storage.Get(tabstore.KeyUserID))
}

func TestExpiresWithin(t *testing.T) {
	mint := func(exp time.Time) string {
		raw, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.MapClaims{
			"sub": "42",
			"exp": jwt.NewNumericDate(exp),
		}).SignedString([]byte("secret"))
		require.NoError(t, err)
		return raw
	}

	require.True(t, token.ExpiresWithin(mint(time.Now().Add(10*time.Second)), time.Minute))
	require.False(t, token.ExpiresWithin(mint(time.Now().Add(time.Hour)), time.Minute))
	require.False(t, token.ExpiresWithin("", time.Minute))
	require.False(t, token.ExpiresWithin("not-a-jwt", time.Minute))
}
