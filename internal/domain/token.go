package domain

// TokenPair represents the access and refresh credentials of a session.
// Either half may be empty.
type TokenPair struct {
	AccessToken  string `json:"accessToken"`
	RefreshToken string `json:"refreshToken,omitempty"`
}

// Present reports whether at least one credential is available.
func (p TokenPair) Present() bool {
	return p.AccessToken != "" || p.RefreshToken != ""
}

// HandshakeToken returns the credential used to open the real-time channel:
// the access token, falling back to the refresh token.
func (p TokenPair) HandshakeToken() string {
	if p.AccessToken != "" {
		return p.AccessToken
	}
	return p.RefreshToken
}
