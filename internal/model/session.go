package model

// Session identifies one login of one account.  It is resolved from the
// access token on every request and handed explicitly to the lock gate,
// which scopes unlock state to ID.
type Session struct {
	ID        string // session id carried in the access token's sid claim
	AccountID uint64 // authenticated user id (sub claim)
}

// Valid reports whether the session carries both identifiers.
func (s Session) Valid() bool { return s.ID != "" && s.AccountID != 0 }
