// Package sequence turns an ordered selection of images into the canonical
// string that backs an image-sequence passcode, and derives/verifies the
// one-way digest stored for it.
//
// A submitted token is either a bare image id ("cat.png") or an already
// qualified reference ("animals/cat.png"). Bare tokens are qualified with the
// passcode's category before joining, so both spellings of the same image
// produce the same canonical string. Order is significant.
package sequence

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"strings"

	"golang.org/x/crypto/bcrypt"
)

const (
	// Separator splits a category from an image id inside a reference.
	Separator = "/"
	// Delimiter joins qualified references into the canonical string. Image
	// ids containing it are rejected so the join stays unambiguous.
	Delimiter = "|"
	// MinLength is the smallest accepted number of images in a sequence.
	MinLength = 1
)

// ErrInvalidSequence is returned for empty or malformed submissions.
var ErrInvalidSequence = errors.New("invalid sequence")

// Normalize qualifies every bare token with defaultCategory and keeps
// qualified tokens as they are. The result preserves input order.
func Normalize(tokens []string, defaultCategory string) ([]string, error) {
	if err := Validate(tokens); err != nil {
		return nil, err
	}
	out := make([]string, 0, len(tokens))
	for _, t := range tokens {
		if strings.Contains(t, Separator) {
			out = append(out, t)
			continue
		}
		out = append(out, defaultCategory+Separator+t)
	}
	return out, nil
}

// Validate checks the shape of a submission without qualifying it: at least
// MinLength tokens, none empty, none containing Delimiter.
func Validate(tokens []string) error {
	if len(tokens) < MinLength {
		return ErrInvalidSequence
	}
	for _, t := range tokens {
		if t == "" || strings.Contains(t, Delimiter) {
			return ErrInvalidSequence
		}
	}
	return nil
}

// Canonical returns the joined, normalized form of tokens.
func Canonical(tokens []string, defaultCategory string) (string, error) {
	norm, err := Normalize(tokens, defaultCategory)
	if err != nil {
		return "", err
	}
	return strings.Join(norm, Delimiter), nil
}

// Codec derives and checks digests of canonical strings. The canonical string
// is pre-hashed with SHA-256 so long sequences fit bcrypt's 72-byte input.
type Codec struct {
	Cost int
}

// NewCodec returns a Codec using cost, falling back to bcrypt.DefaultCost for
// values outside bcrypt's accepted range.
func NewCodec(cost int) Codec {
	if cost < bcrypt.MinCost || cost > bcrypt.MaxCost {
		cost = bcrypt.DefaultCost
	}
	return Codec{Cost: cost}
}

// Digest returns a salted digest for tokens qualified with category.
func (c Codec) Digest(tokens []string, category string) (string, error) {
	canon, err := Canonical(tokens, category)
	if err != nil {
		return "", err
	}
	b, err := bcrypt.GenerateFromPassword(prehash(canon), c.Cost)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

// Verify reports whether tokens, qualified with category, reproduce digest.
// Malformed input and mismatches are both reported as false.
func (c Codec) Verify(digest string, tokens []string, category string) bool {
	canon, err := Canonical(tokens, category)
	if err != nil {
		return false
	}
	return bcrypt.CompareHashAndPassword([]byte(digest), prehash(canon)) == nil
}

func prehash(canon string) []byte {
	sum := sha256.Sum256([]byte(canon))
	out := make([]byte, hex.EncodedLen(len(sum)))
	hex.Encode(out, sum[:])
	return out
}
