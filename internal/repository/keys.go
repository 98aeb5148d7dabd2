package repository

// StorageKeys is the registry of well-known slot names. No other package
// spells a slot name out.
var StorageKeys = struct {
	AccessToken  string
	RefreshToken string
	UserProfile  string
}{
	AccessToken:  "accessToken",
	RefreshToken: "refreshToken",
	UserProfile:  "userProfile",
}
