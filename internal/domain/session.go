package domain

// SessionStatus is the tag of SessionState.
type SessionStatus int

const (
	SessionUninitialized SessionStatus = iota
	SessionAuthenticated
	SessionUnauthenticated
)

func (s SessionStatus) String() string {
	switch s {
	case SessionAuthenticated:
		return "authenticated"
	case SessionUnauthenticated:
		return "unauthenticated"
	default:
		return "uninitialized"
	}
}

// LogoutReason explains why a session became unauthenticated.
type LogoutReason string

const (
	LogoutNone     LogoutReason = ""
	LogoutUser     LogoutReason = "user"
	LogoutExpired  LogoutReason = "expired"
	LogoutNoTokens LogoutReason = "no_credentials"
)

// SessionState is a snapshot of the logical session. Profile is set only
// when Status is SessionAuthenticated.
//
// Uninitialized means "decision pending"; it must not be read as logged out.
type SessionState struct {
	Status  SessionStatus
	Profile *Profile
	Reason  LogoutReason
}

func (s SessionState) IsAuthenticated() bool {
	return s.Status == SessionAuthenticated && s.Profile != nil
}

func (s SessionState) IsInitialized() bool {
	return s.Status != SessionUninitialized
}
