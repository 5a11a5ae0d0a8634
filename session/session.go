// Package session owns the signed-in/signed-out boundary: sign-in,
// sign-out, per-tab bootstrap and cross-tab propagation of both. Nothing
// else in the module is allowed to decide that a session has ended.
package session

// User is the authenticated user snapshot returned by the backend.
type User struct {
	ID    string `json:"id"`
	Email string `json:"email"`
	Name  string `json:"name"`
}

// Org is the active organization scope of the session.
type Org struct {
	ExternalID string `json:"externalId"`
	Name       string `json:"name"`
}

// Snapshot is the current-user state a tab holds while signed in.
type Snapshot struct {
	User User `json:"user"`
	Org  Org  `json:"org"`
}

// Credentials are the sign-in inputs.
type Credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

// Event marks a same-tab session transition.
type Event string

const (
	EventSignedIn  Event = "signed_in"
	EventSignedOut Event = "signed_out"
)

type signInPayload struct {
	Access string `json:"access"`
	User   User   `json:"user"`
	Org    Org    `json:"org"`
}
