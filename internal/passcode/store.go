// Package passcode keeps at most one image-sequence credential per web app
// and verifies attempts against it.
package passcode

import (
	"context"
	"errors"

	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/sequence"
)

// ErrNoPasscodeSet is returned when an operation needs a passcode and the
// resource has none.
var ErrNoPasscodeSet = errors.New("no passcode set")

// Repository is the persistence the store needs. *repository.PasscodeRepo
// satisfies it; Upsert must be a single atomic write.
type Repository interface {
	Upsert(ctx context.Context, p model.Passcode) error
	Get(ctx context.Context, appID uint64) (*model.Passcode, error)
	Delete(ctx context.Context, appID uint64) error
}

// Store derives digests with a sequence.Codec and persists them through a
// Repository. The canonical sequence itself is never stored.
type Store struct {
	repo  Repository
	codec sequence.Codec
}

func NewStore(repo Repository, codec sequence.Codec) *Store {
	return &Store{repo: repo, codec: codec}
}

// Upsert replaces the passcode of resourceID. The old digest stops
// verifying as soon as the write lands.
func (s *Store) Upsert(ctx context.Context, resourceID uint64, category string, seq []string, hint string) error {
	digest, err := s.codec.Digest(seq, category)
	if err != nil {
		return err
	}
	return s.repo.Upsert(ctx, model.Passcode{
		AppID:    resourceID,
		Category: category,
		Digest:   digest,
		Hint:     hint,
	})
}

// Get returns the stored passcode or ErrNoPasscodeSet.
func (s *Store) Get(ctx context.Context, resourceID uint64) (*model.Passcode, error) {
	p, err := s.repo.Get(ctx, resourceID)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrNoPasscodeSet
	}
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (s *Store) Delete(ctx context.Context, resourceID uint64) error {
	return s.repo.Delete(ctx, resourceID)
}

// Verify checks attempt against the stored passcode, qualifying bare tokens
// with the passcode's category. It fails closed: a missing passcode yields
// ErrNoPasscodeSet, any other mismatch yields false with no detail.
func (s *Store) Verify(ctx context.Context, resourceID uint64, attempt []string) (bool, error) {
	p, err := s.Get(ctx, resourceID)
	if err != nil {
		return false, err
	}
	if p.AppID != resourceID {
		return false, nil
	}
	return s.codec.Verify(p.Digest, attempt, p.Category), nil
}
