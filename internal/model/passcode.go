package model

import "time"

// Passcode is the image-sequence credential of one web app (one row per
// app, enforced by a unique key on app_id).  Only the digest of the
// canonical sequence is stored; the sequence itself never is.
//
// Fields:
//  AppID     – protected web app (unique).
//  Category  – category the real passcode images are drawn from.
//  Digest    – salted one-way digest of the canonical sequence.
//  Hint      – optional recovery hint, stored in clear text.
//  UpdatedAt – last time the passcode was set.
type Passcode struct {
	AppID     uint64    // image_passcodes.app_id
	Category  string    // image_passcodes.category
	Digest    string    // image_passcodes.sequence_hash
	Hint      string    // image_passcodes.hint
	UpdatedAt time.Time // image_passcodes.updated_at
}
