package token

import (
	"sync"

	"github.com/google/uuid"

	"github.com/flowkeep/apiclient/tabstore"
)

// Identity tracks who this tab belongs to: the tab's own id, the locked
// user identity, and the active organization scope. All three persist in
// the tab slot so a reload keeps them; none are visible to sibling tabs.
type Identity struct {
	mu      sync.RWMutex
	tabID   string
	userID  string
	orgID   string
	storage tabstore.Storage
}

// NewIdentity loads any persisted identity from the tab slot and generates
// the tab id on first use. The tab id is never regenerated while the tab
// lives.
func NewIdentity(storage tabstore.Storage) *Identity {
	id := &Identity{
		tabID:   storage.Get(tabstore.KeyTabID),
		userID:  storage.Get(tabstore.KeyUserID),
		orgID:   storage.Get(tabstore.KeyOrgID),
		storage: storage,
	}
	if id.tabID == "" {
		id.tabID = uuid.New().String()
		storage.Set(tabstore.KeyTabID, id.tabID)
	}
	return id
}

// TabID returns this tab's stable identifier.
func (i *Identity) TabID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.tabID
}

// UserID returns the locked user identity, or "" when none is locked yet.
func (i *Identity) UserID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.userID
}

// LockUser records the authenticated user's external id. Once locked, the
// lock only changes through ClearUser (sign-out); callers enforce that a
// different user id is never accepted while a lock is held.
func (i *Identity) LockUser(userID string) {
	if userID == "" {
		return
	}
	i.mu.Lock()
	defer i.mu.Unlock()
	i.userID = userID
	i.storage.Set(tabstore.KeyUserID, userID)
}

// ClearUser drops the user lock together with the organization scope.
func (i *Identity) ClearUser() {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.userID = ""
	i.orgID = ""
	i.storage.Delete(tabstore.KeyUserID)
	i.storage.Delete(tabstore.KeyOrgID)
}

// OrgID returns the active organization scope id, or "".
func (i *Identity) OrgID() string {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.orgID
}

// SetOrgID updates the organization scope attached to outgoing requests.
func (i *Identity) SetOrgID(orgID string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.orgID = orgID
	if orgID == "" {
		i.storage.Delete(tabstore.KeyOrgID)
		return
	}
	i.storage.Set(tabstore.KeyOrgID, orgID)
}
