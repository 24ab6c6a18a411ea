package cache

import "time"

// TokenRefLength is the number of leading session-token characters used to
// key revocation markers. Markers for distinct sessions sharing a prefix
// collide, which over-revokes but never under-revokes.
const TokenRefLength = 8

// TokenRef derives the revocation-marker key fragment from a session token.
func TokenRef(sessionToken string) string {
	if len(sessionToken) < TokenRefLength {
		return sessionToken
	}
	return sessionToken[:TokenRefLength]
}

// SecondsToExpire returns how many whole seconds remain until the newest
// access token the session could have minted (at lastUseAt) expires.
// Negative when already expired.
func SecondsToExpire(lastUseAt, now time.Time, accessTTL time.Duration) int64 {
	return int64(lastUseAt.Add(accessTTL).Sub(now).Seconds())
}
