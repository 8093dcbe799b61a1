package handler_test

import (
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type authJSON struct {
	User struct {
		ID     uint64 `json:"id"`
		Mobile string `json:"mobile"`
	} `json:"user"`
	Access struct {
		Token string `json:"token"`
	} `json:"access"`
	Refresh struct {
		Token string `json:"token"`
	} `json:"refresh"`
}

func (s *server) register(t *testing.T) {
	t.Helper()
	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{
		"name": "Ann", "mobile": "0123456789", "password": "hunter22", "hint": "the usual",
	})
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestRegisterLogin(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)

	rec := s.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "Bob", "mobile": "0123456789", "password": "x"})
	assert.Equal(t, http.StatusConflict, rec.Code)
	rec = s.do(http.MethodPost, "/auth/register", "", map[string]string{"name": "Bob", "mobile": "12345", "password": "x"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"mobile": "0123456789", "password": "wrong"})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"mobile": "0123456789", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	auth := decode[authJSON](t, rec)
	assert.NotEmpty(t, auth.Access.Token)
	assert.Len(t, auth.Refresh.Token, 96)

	rec = s.do(http.MethodGet, "/me", auth.Access.Token, nil)
	require.Equal(t, http.StatusOK, rec.Code)
	me := decode[map[string]any](t, rec)
	assert.Equal(t, "0123456789", me["mobile"])
	assert.NotEmpty(t, me["session_id"])
}

func TestRefreshRotates(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)
	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"mobile": "0123456789", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	first := decode[authJSON](t, rec)

	rec = s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": first.Refresh.Token})
	require.Equal(t, http.StatusOK, rec.Code)
	second := decode[authJSON](t, rec)
	assert.NotEqual(t, first.Refresh.Token, second.Refresh.Token)

	// the old token is spent
	rec = s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": first.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestLogoutEndsSession(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)
	rec := s.do(http.MethodPost, "/auth/login", "", map[string]string{"mobile": "0123456789", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	auth := decode[authJSON](t, rec)
	tok := auth.Access.Token
	id := itoa(s.ownedApp(t, auth.User.ID))

	rec = s.do(http.MethodPost, "/passcode/"+id, tok, map[string]any{"category": "animals", "sequence": []string{"cat.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	rec = s.do(http.MethodPost, "/unlock/"+id, tok, map[string]any{"sequence": []string{"animals/cat.png"}})
	require.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, http.StatusSeeOther, s.do(http.MethodGet, "/lock/"+id, tok, nil).Code)

	rec = s.do(http.MethodPost, "/auth/logout", tok, nil)
	require.Equal(t, http.StatusNoContent, rec.Code)

	// the access token is still signed and unexpired but its session is over
	rec = s.do(http.MethodGet, "/lock/"+id, tok, nil)
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, "Not authenticated", decode[reply](t, rec).Msg)
	rec = s.do(http.MethodPost, "/unlock/"+id, tok, map[string]any{"sequence": []string{"animals/cat.png"}})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/me", tok, nil).Code)
	assert.Equal(t, http.StatusUnauthorized, s.do(http.MethodGet, "/apps/"+id+"/content", tok, nil).Code)
	rec = s.do(http.MethodPost, "/auth/refresh", "", map[string]string{"refresh_token": auth.Refresh.Token})
	assert.Equal(t, http.StatusUnauthorized, rec.Code)

	// a fresh login still works
	rec = s.do(http.MethodPost, "/auth/login", "", map[string]string{"mobile": "0123456789", "password": "hunter22"})
	require.Equal(t, http.StatusOK, rec.Code)
	again := decode[authJSON](t, rec)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/lock/"+id, again.Access.Token, nil).Code)
}

func TestForgotPassword(t *testing.T) {
	s := newServer(t, nil)
	s.register(t)

	rec := s.do(http.MethodPost, "/auth/forgot-password", "", map[string]string{"mobile": "0123456789"})
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "the usual")

	rec = s.do(http.MethodPost, "/auth/forgot-password", "", map[string]string{"mobile": "9999999999"})
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newServer(t, nil)
	assert.Equal(t, http.StatusOK, s.do(http.MethodGet, "/healthz", "", nil).Code)
}
