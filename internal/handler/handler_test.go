package handler_test

import (
	"bytes"
	"context"
	"encoding/json"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/require"

	"github.com/iliyamo/imagelock/internal/catalog"
	"github.com/iliyamo/imagelock/internal/config"
	"github.com/iliyamo/imagelock/internal/handler"
	"github.com/iliyamo/imagelock/internal/lockgate"
	"github.com/iliyamo/imagelock/internal/logging"
	"github.com/iliyamo/imagelock/internal/model"
	"github.com/iliyamo/imagelock/internal/passcode"
	"github.com/iliyamo/imagelock/internal/repository"
	"github.com/iliyamo/imagelock/internal/router"
	"github.com/iliyamo/imagelock/internal/sequence"
	"github.com/iliyamo/imagelock/internal/session"
	"github.com/iliyamo/imagelock/internal/storage"
	"github.com/iliyamo/imagelock/internal/unlock"
	"github.com/iliyamo/imagelock/internal/utils"
)

const secret = "test-secret"

// ----- fakes -----

type memApps struct {
	mu     sync.Mutex
	nextID uint64
	rows   map[uint64]*model.WebApp
}

func newMemApps() *memApps { return &memApps{nextID: 1, rows: map[uint64]*model.WebApp{}} }

func (m *memApps) Create(_ context.Context, a *model.WebApp) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	a.ID = m.nextID
	a.CreatedAt = time.Now().UTC()
	m.nextID++
	cp := *a
	m.rows[a.ID] = &cp
	return nil
}

func (m *memApps) GetByID(_ context.Context, id uint64) (*model.WebApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (m *memApps) ListByOwner(_ context.Context, owner uint64) ([]*model.WebApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := []*model.WebApp{}
	for id := uint64(1); id < m.nextID; id++ {
		if a, ok := m.rows[id]; ok && a.OwnerID == owner {
			cp := *a
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memApps) DeleteByIDAndOwner(_ context.Context, id, owner uint64) (*model.WebApp, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	a, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	if a.OwnerID != owner {
		return nil, repository.ErrForbidden
	}
	delete(m.rows, id)
	return a, nil
}

type memPasscodes struct {
	mu   sync.Mutex
	rows map[uint64]model.Passcode
}

func (m *memPasscodes) Upsert(_ context.Context, p model.Passcode) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[p.AppID] = p
	return nil
}

func (m *memPasscodes) Get(_ context.Context, id uint64) (*model.Passcode, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	p, ok := m.rows[id]
	if !ok {
		return nil, repository.ErrNotFound
	}
	return &p, nil
}

func (m *memPasscodes) Delete(_ context.Context, id uint64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.rows, id)
	return nil
}

type memUsers struct {
	mu    sync.Mutex
	users map[uint64]model.User
}

func (m *memUsers) Create(_ context.Context, name, mobile, password, hint string, cost int) (uint64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Mobile == mobile {
			return 0, repository.ErrMobileExists
		}
	}
	hash, err := utils.HashPassword(password, cost)
	if err != nil {
		return 0, err
	}
	id := uint64(len(m.users) + 1)
	m.users[id] = model.User{ID: id, Name: name, Mobile: mobile, PasswordHash: hash, Hint: hint}
	return id, nil
}

func (m *memUsers) GetByMobile(_ context.Context, mobile string) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, u := range m.users {
		if u.Mobile == mobile {
			return u, nil
		}
	}
	return model.User{}, repository.ErrNotFound
}

func (m *memUsers) GetByID(_ context.Context, id uint64) (model.User, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	u, ok := m.users[id]
	if !ok {
		return model.User{}, repository.ErrNotFound
	}
	return u, nil
}

type refreshRow struct {
	uid     uint64
	sid     string
	exp     time.Time
	revoked bool
}

type memTokens struct {
	mu   sync.Mutex
	rows map[string]*refreshRow
}

func (m *memTokens) StoreRefresh(_ context.Context, uid uint64, sid, hash string, exp time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[hash] = &refreshRow{uid: uid, sid: sid, exp: exp}
	return nil
}

func (m *memTokens) ValidateRefresh(_ context.Context, hash string) (uint64, string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	r, ok := m.rows[hash]
	if !ok || r.revoked || time.Now().After(r.exp) {
		return 0, "", repository.ErrNotFound
	}
	return r.uid, r.sid, nil
}

func (m *memTokens) RevokeByHash(_ context.Context, hash string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if r, ok := m.rows[hash]; ok {
		r.revoked = true
	}
	return nil
}

func (m *memTokens) RevokeSession(_ context.Context, uid uint64, sid string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows {
		if r.uid == uid && r.sid == sid {
			r.revoked = true
		}
	}
	return nil
}

// ----- server -----

type server struct {
	e      *echo.Echo
	apps   *memApps
	users  *memUsers
	tokens *memTokens
	cache  *unlock.MemoryCache
	ended  *session.MemoryRevocations
	store  storage.Store
}

func writeCatalog(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	for cat, imgs := range map[string][]string{
		"animals": {"cat.png", "dog.png", "bird.png"},
		"cars":    {"red.png", "blue.png"},
	} {
		require.NoError(t, os.MkdirAll(filepath.Join(root, cat), 0o755))
		for _, img := range imgs {
			require.NoError(t, os.WriteFile(filepath.Join(root, cat, img), []byte("x"), 0o644))
		}
	}
	// a secret file outside any category
	require.NoError(t, os.WriteFile(filepath.Join(root, "secrets.txt"), []byte("x"), 0o644))
	return root
}

func newServer(t *testing.T, lockout lockgate.Lockout) *server {
	t.Helper()
	store, err := storage.NewLocalStore(t.TempDir())
	require.NoError(t, err)

	s := &server{
		e:      echo.New(),
		apps:   newMemApps(),
		users:  &memUsers{users: map[uint64]model.User{}},
		tokens: &memTokens{rows: map[string]*refreshRow{}},
		cache:  unlock.NewMemoryCache(),
		ended:  session.NewMemoryRevocations(),
		store:  store,
	}
	gate := lockgate.New(lockgate.Deps{
		Ended:     s.ended,
		Apps:      s.apps,
		Passcodes: passcode.NewStore(&memPasscodes{rows: map[uint64]model.Passcode{}}, sequence.NewCodec(4)),
		Catalog:   catalog.NewDirProvider(writeCatalog(t)),
		Unlocked:  s.cache,
		Lockout:   lockout,
	})
	cfg := config.Config{JWTSecret: secret, AccessTTLMin: 5, RefreshTTLDays: 1, BcryptCost: 4}
	log := logging.Nop{}
	pass := func(next echo.HandlerFunc) echo.HandlerFunc { return next }

	router.RegisterRoutes(s.e)
	router.RegisterAuth(s.e, handler.NewAuthHandler(cfg, s.users, s.tokens, s.cache, s.ended, log), secret, s.ended)
	router.RegisterApps(s.e, handler.NewWebAppHandler(s.apps, store, gate, 1<<20, log), secret, s.ended)
	router.RegisterLock(s.e, handler.NewLockHandler(gate, log), secret, s.ended, pass, pass)
	return s
}

// token issues an access token for a fresh session of account uid.
func token(t *testing.T, uid uint64) string {
	t.Helper()
	tok, err := utils.NewAccessToken(secret, uid, utils.NewSessionID(), 5)
	require.NoError(t, err)
	return tok.Token
}

func (s *server) do(method, target, tok string, body any) *httptest.ResponseRecorder {
	var rdr *bytes.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		rdr = bytes.NewReader(b)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req := httptest.NewRequest(method, target, rdr)
	if body != nil {
		req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	}
	if tok != "" {
		req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	}
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func (s *server) upload(t *testing.T, tok, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	fw, err := mw.CreateFormFile("file", filename)
	require.NoError(t, err)
	_, err = fw.Write([]byte(content))
	require.NoError(t, err)
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/apps", &buf)
	req.Header.Set(echo.HeaderContentType, mw.FormDataContentType())
	req.Header.Set(echo.HeaderAuthorization, "Bearer "+tok)
	rec := httptest.NewRecorder()
	s.e.ServeHTTP(rec, req)
	return rec
}

func decode[T any](t *testing.T, rec *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &v))
	return v
}
