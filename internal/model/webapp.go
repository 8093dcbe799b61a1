package model

import "time"

// WebApp is an uploaded HTML app owned by exactly one user. It is the
// resource an image passcode protects.
//
// Fields:
//  ID         – primary key identifier.
//  OwnerID    – user ID of the uploader.
//  Filename   – sanitized display name of the uploaded file.
//  StorageKey – key of the payload in the configured storage backend.
//  Locked     – whether a passcode is set (derived, not a column).
//  CreatedAt  – upload timestamp.
type WebApp struct {
	ID         uint64    `json:"id"`          // webapps.id
	OwnerID    uint64    `json:"-"`           // webapps.owner_id
	Filename   string    `json:"filename"`    // webapps.filename
	StorageKey string    `json:"-"`           // webapps.storage_key
	Locked     bool      `json:"locked"`      // EXISTS(image_passcodes)
	CreatedAt  time.Time `json:"created_at"`  // webapps.created_at
}
