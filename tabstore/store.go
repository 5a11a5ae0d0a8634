// Package tabstore abstracts the two kinds of browser-side storage the
// session layer depends on: a per-tab slot that survives reloads within one
// tab but is invisible to siblings, and a durable cross-tab slot whose
// changes are observable by every tab of the same origin.
package tabstore

// Well-known per-tab keys.
const (
	KeyAccessToken = "fk.access"
	KeyTabID       = "fk.tab_id"
	KeyUserID      = "fk.user_id"
	KeyOrgID       = "fk.org_external_id"
)

// KeyAuthActive is the single durable cross-tab key: a hint that some tab
// holds an authenticated session. It never carries a credential.
const KeyAuthActive = "fk.auth_active"

// Storage is the per-tab persisted slot. Implementations must be safe for
// concurrent use. Get returns "" for missing keys; Set with an empty value
// removes the entry.
type Storage interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
}

// DurableStore is the cross-tab storage with change notifications. Watch
// callbacks fire on every change made by *other* tabs (mirroring the
// browser storage event, which does not fire in the mutating tab).
type DurableStore interface {
	Get(key string) string
	Set(key, value string)
	Delete(key string)
	Watch(fn func(key, value string)) (cancel func())
}
