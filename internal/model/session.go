package model

import "errors"

// ErrNoSession is returned when the session artifacts (token and user
// profile) are not both present. Callers treat it as an auth failure.
var ErrNoSession = errors.New("no active session")

// UserProfile is the cached profile of the signed-in user.
type UserProfile struct {
	ID       string `json:"id"`
	Username string `json:"username"`
	Email    string `json:"email,omitempty"`
}

// Session bundles the two artifacts the notification client needs before
// it may talk to the backend.
type Session struct {
	Token   string
	Profile UserProfile
}

// Valid reports whether both artifacts are usable.
func (s Session) Valid() bool {
	return s.Token != "" && s.Profile.Username != ""
}
