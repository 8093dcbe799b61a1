// Package lockgate decides, per login session and web app, whether access
// must be challenged with an image board, and checks submitted attempts.
//
// Every operation first checks that the session owns the app. The state of
// a (session, app) pair is derived on each call from the passcode store and
// the unlock cache; the gate itself holds nothing.
package lockgate

import (
	"context"
	"errors"
	"fmt"
	"math/rand"
	"strconv"

	"github.com/iliyamo/imagelock/internal/catalog"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/queue"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/sequence"
	"github.com/iliyamo/imagelock/internal/session"
	"github.com/iliyamo/imagelock/internal/unlock"
)

// State of one (session, app) pair.
type State int

const (
	NoPasscode State = iota
	Locked
	Unlocked
)

func (s State) String() string {
	switch s {
	case NoPasscode:
		return "no_passcode"
	case Locked:
		return "locked"
	case Unlocked:
		return "unlocked"
	}
	return "unknown"
}

// Resources looks up the apps the gate protects.
type Resources interface {
	GetByID(ctx context.Context, id uint64) (*model.WebApp, error)
}

// Passcodes is the passcode store as the gate uses it.
type Passcodes interface {
	Upsert(ctx context.Context, resourceID uint64, category string, seq []string, hint string) error
	Get(ctx context.Context, resourceID uint64) (*model.Passcode, error)
	Verify(ctx context.Context, resourceID uint64, attempt []string) (bool, error)
}

// Board is the challenge shown for a locked app: every image of every
// category, qualified and shuffled.
type Board struct {
	ResourceID       uint64   `json:"resourceId"`
	MixedImages      []string `json:"mixedImages"`
	PasswordCategory string   `json:"passwordCategory"`
}

// Challenge is the outcome of opening an app. URL is set for NoPasscode and
// Unlocked, Board for Locked.
type Challenge struct {
	State State
	URL   string
	Board *Board
}

// Deps are the gate's collaborators. Ended, Lockout, Events and Log are
// optional; without Ended every well-formed session counts as live.
type Deps struct {
	Ended     session.Revocations
	Apps      Resources
	Passcodes Passcodes
	Catalog   catalog.Provider
	Unlocked  unlock.Cache
	Lockout   Lockout
	Events    queue.Publisher
	Log       logging.Logger
}

type Gate struct {
	ended     session.Revocations
	apps      Resources
	passcodes Passcodes
	catalog   catalog.Provider
	unlocked  unlock.Cache
	lockout   Lockout
	events    queue.Publisher
	log       logging.Logger

	shuffle func(n int, swap func(i, j int))
}

func New(d Deps) *Gate {
	g := &Gate{
		ended:     d.Ended,
		apps:      d.Apps,
		passcodes: d.Passcodes,
		catalog:   d.Catalog,
		unlocked:  d.Unlocked,
		lockout:   d.Lockout,
		events:    d.Events,
		log:       d.Log,
		shuffle:   rand.Shuffle,
	}
	if g.log == nil {
		g.log = logging.Nop{}
	}
	if g.lockout == nil {
		g.lockout = NoLockout{}
	}
	if g.events == nil {
		g.events = queue.LogPublisher{Log: g.log}
	}
	return g
}

// ContentURL is where an opened app is served.
func ContentURL(id uint64) string { return fmt.Sprintf("/apps/%d/content", id) }

// live reports whether sess is well formed and was not ended by logout. A
// failed lookup counts as ended.
func (g *Gate) live(ctx context.Context, sess model.Session) bool {
	if !sess.Valid() {
		return false
	}
	if g.ended == nil {
		return true
	}
	gone, err := g.ended.IsRevoked(ctx, sess.ID)
	if err != nil {
		g.log.Warn(ctx, "session liveness check failed", "err", err)
		return false
	}
	return !gone
}

// authorize resolves the app and checks ownership. A missing app and a
// foreign one are reported the same way.
func (g *Gate) authorize(ctx context.Context, sess model.Session, id uint64) (*model.WebApp, error) {
	if !g.live(ctx, sess) {
		return nil, ErrUnauthenticated
	}
	app, err := g.apps.GetByID(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return nil, ErrUnauthorized
	}
	if err != nil {
		return nil, err
	}
	if app.OwnerID != sess.AccountID {
		return nil, ErrUnauthorized
	}
	return app, nil
}

// state derives the pair's state. The passcode is returned when one exists.
func (g *Gate) state(ctx context.Context, sess model.Session, id uint64) (State, *model.Passcode, error) {
	p, err := g.passcodes.Get(ctx, id)
	if errors.Is(err, ErrNoPasscodeSet) {
		return NoPasscode, nil, nil
	}
	if err != nil {
		return 0, nil, err
	}
	ok, err := g.unlocked.IsUnlocked(ctx, sess.ID, id)
	if err != nil {
		// a lost record only re-triggers the challenge
		g.log.Warn(ctx, "unlock cache read failed", "app_id", id, "err", err)
		return Locked, p, nil
	}
	if ok {
		return Unlocked, p, nil
	}
	return Locked, p, nil
}

// State reports the state of (sess, id) after the ownership check.
func (g *Gate) State(ctx context.Context, sess model.Session, id uint64) (State, error) {
	if _, err := g.authorize(ctx, sess, id); err != nil {
		return 0, err
	}
	st, _, err := g.state(ctx, sess, id)
	return st, err
}

// Open returns the content URL when the gate is transparent and a freshly
// shuffled board when the app is locked.
func (g *Gate) Open(ctx context.Context, sess model.Session, id uint64) (Challenge, error) {
	if _, err := g.authorize(ctx, sess, id); err != nil {
		return Challenge{}, err
	}
	st, p, err := g.state(ctx, sess, id)
	if err != nil {
		return Challenge{}, err
	}
	if st != Locked {
		return Challenge{State: st, URL: ContentURL(id)}, nil
	}
	images, err := catalog.All(ctx, g.catalog)
	if err != nil {
		return Challenge{}, err
	}
	g.shuffle(len(images), func(i, j int) { images[i], images[j] = images[j], images[i] })
	return Challenge{
		State: Locked,
		Board: &Board{ResourceID: id, MixedImages: images, PasswordCategory: p.Category},
	}, nil
}

// SetPasscode creates or replaces the app's passcode. Existing unlock
// records for the app are dropped so the new sequence is asked for.
func (g *Gate) SetPasscode(ctx context.Context, sess model.Session, id uint64, category string, seq []string, hint string) error {
	if _, err := g.authorize(ctx, sess, id); err != nil {
		return err
	}
	if err := g.checkCategory(ctx, category); err != nil {
		return err
	}
	if err := sequence.Validate(seq); err != nil {
		return err
	}
	if err := g.passcodes.Upsert(ctx, id, category, seq, hint); err != nil {
		return err
	}
	if err := g.unlocked.Forget(ctx, id); err != nil {
		g.log.Warn(ctx, "unlock cache forget failed", "app_id", id, "err", err)
	}
	_ = g.lockout.Reset(ctx, lockoutKey(sess.AccountID, id))
	g.publish(ctx, queue.NewAuditEvent(queue.EventPasscodeSet, id, sess.AccountID, sess.ID))
	return nil
}

func (g *Gate) checkCategory(ctx context.Context, category string) error {
	if !catalog.ValidCategory(category) {
		return ErrInvalidCategory
	}
	cats, err := g.catalog.ListCategories(ctx)
	if err != nil {
		return err
	}
	for _, c := range cats {
		if c == category {
			return nil
		}
	}
	return ErrInvalidCategory
}

// Unlock verifies attempt and, on success, records the unlock for the
// session and returns the content URL. Failures count towards the lockout.
func (g *Gate) Unlock(ctx context.Context, sess model.Session, id uint64, attempt []string) (string, error) {
	if _, err := g.authorize(ctx, sess, id); err != nil {
		return "", err
	}
	if err := sequence.Validate(attempt); err != nil {
		return "", err
	}
	key := lockoutKey(sess.AccountID, id)
	if wait, err := g.lockout.Check(ctx, key); err != nil {
		g.log.Warn(ctx, "lockout check failed", "app_id", id, "err", err)
	} else if wait > 0 {
		return "", &LockedOutError{RetryAfter: wait}
	}

	before, err := g.passcodes.Get(ctx, id)
	if err != nil {
		return "", err
	}
	ok, err := g.passcodes.Verify(ctx, id, attempt)
	if err != nil {
		return "", err
	}
	if !ok {
		return "", g.failed(ctx, sess, id, key)
	}

	if err := g.lockout.Reset(ctx, key); err != nil {
		g.log.Warn(ctx, "lockout reset failed", "app_id", id, "err", err)
	}
	if err := g.unlocked.MarkUnlocked(ctx, sess.ID, id); err != nil {
		// the attempt was correct; the next visit asks again
		g.log.Warn(ctx, "unlock cache write failed", "app_id", id, "err", err)
	}
	if err := g.confirmUnlock(ctx, sess, id, before); err != nil {
		return "", err
	}
	g.log.Info(ctx, "unlock succeeded", "app_id", id, "user_id", sess.AccountID)
	g.publish(ctx, queue.NewAuditEvent(queue.EventUnlockSucceeded, id, sess.AccountID, sess.ID))
	return ContentURL(id), nil
}

// confirmUnlock re-reads the passcode and the session after the unlock was
// recorded. SetPasscode, ResourceDeleted and logout change their store first
// and then drop unlock records, so if either changed since the attempt was
// verified the record just written may have outlived that drop and is
// withdrawn here.
func (g *Gate) confirmUnlock(ctx context.Context, sess model.Session, id uint64, verified *model.Passcode) error {
	var reason error
	now, err := g.passcodes.Get(ctx, id)
	switch {
	case errors.Is(err, ErrNoPasscodeSet):
		reason = ErrUnauthorized
	case err != nil:
		reason = err
	case now.Digest != verified.Digest:
		reason = ErrVerificationFailed
	case !g.live(ctx, sess):
		reason = ErrUnauthenticated
	default:
		return nil
	}
	if err := g.unlocked.Remove(ctx, sess.ID, id); err != nil {
		g.log.Error(ctx, "unlock cache withdraw failed", "app_id", id, "err", err)
	}
	g.log.Info(ctx, "unlock withdrawn, passcode or session changed", "app_id", id, "user_id", sess.AccountID)
	return reason
}

func (g *Gate) failed(ctx context.Context, sess model.Session, id uint64, key string) error {
	g.log.Info(ctx, "unlock failed", "app_id", id, "user_id", sess.AccountID)
	g.publish(ctx, queue.NewAuditEvent(queue.EventUnlockFailed, id, sess.AccountID, sess.ID))

	wait, err := g.lockout.Failure(ctx, key)
	if err != nil {
		g.log.Warn(ctx, "lockout record failed", "app_id", id, "err", err)
		return ErrVerificationFailed
	}
	if wait > 0 {
		ev := queue.NewAuditEvent(queue.EventUnlockLocked, id, sess.AccountID, sess.ID)
		ev.RetryAfter = int(wait.Seconds())
		g.publish(ctx, ev)
	}
	return ErrVerificationFailed
}

// Hint returns the app's recovery hint to its owner.
func (g *Gate) Hint(ctx context.Context, sess model.Session, id uint64) (string, error) {
	if _, err := g.authorize(ctx, sess, id); err != nil {
		return "", err
	}
	p, err := g.passcodes.Get(ctx, id)
	if err != nil {
		return "", err
	}
	return p.Hint, nil
}

// Content returns the app when the session may see it right now, and
// ErrLocked when the board has to be passed first.
func (g *Gate) Content(ctx context.Context, sess model.Session, id uint64) (*model.WebApp, error) {
	app, err := g.authorize(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	st, _, err := g.state(ctx, sess, id)
	if err != nil {
		return nil, err
	}
	if st == Locked {
		return nil, ErrLocked
	}
	return app, nil
}

// ResourceDeleted drops every unlock record and lockout counter of an app
// whose row and passcode were already removed.
func (g *Gate) ResourceDeleted(ctx context.Context, sess model.Session, id uint64) {
	if err := g.unlocked.Forget(ctx, id); err != nil {
		g.log.Warn(ctx, "unlock cache forget failed", "app_id", id, "err", err)
	}
	_ = g.lockout.Reset(ctx, lockoutKey(sess.AccountID, id))
	g.publish(ctx, queue.NewAuditEvent(queue.EventAppDeleted, id, sess.AccountID, sess.ID))
}

// Categories lists the image categories.
func (g *Gate) Categories(ctx context.Context) ([]string, error) {
	return g.catalog.ListCategories(ctx)
}

// Images lists one category. Path-escaping names yield an empty list.
func (g *Gate) Images(ctx context.Context, category string) ([]string, error) {
	if !catalog.ValidCategory(category) {
		return []string{}, nil
	}
	return g.catalog.ListImages(ctx, category)
}

func (g *Gate) publish(ctx context.Context, ev queue.AuditEvent) {
	if err := g.events.Publish(ctx, ev); err != nil {
		g.log.Warn(ctx, "audit publish failed", "type", ev.Type, "app_id", ev.AppID, "err", err)
	}
}

func lockoutKey(accountID, id uint64) string {
	return strconv.FormatUint(accountID, 10) + ":" + strconv.FormatUint(id, 10)
}
