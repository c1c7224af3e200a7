package httpapi

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/dmitrijs2005/authgate/internal/common"
	"github.com/dmitrijs2005/authgate/internal/dbx"
	"github.com/dmitrijs2005/authgate/internal/logging"
	"github.com/dmitrijs2005/authgate/internal/server/config"
	"github.com/dmitrijs2005/authgate/internal/server/models"
	refreshtokensrepo "github.com/dmitrijs2005/authgate/internal/server/repositories/refreshtokens"
	usersrepo "github.com/dmitrijs2005/authgate/internal/server/repositories/users"
	"github.com/dmitrijs2005/authgate/internal/server/services"
)

func init() {
	gin.SetMode(gin.TestMode)
}

// --- in-memory repositories ---

type memUsersRepo struct {
	byID map[string]*models.User
	seq  int
}

func newMemUsersRepo() *memUsersRepo {
	return &memUsersRepo{byID: map[string]*models.User{}}
}

func (m *memUsersRepo) Create(ctx context.Context, u *models.User) (*models.User, error) {
	for _, existing := range m.byID {
		if existing.Username == u.Username || existing.Email == u.Email {
			return nil, common.ErrorAlreadyExists
		}
	}
	m.seq++
	u.ID = fmt.Sprintf("u%d", m.seq)
	u.Active = true
	u.CreatedAt = time.Now()
	m.byID[u.ID] = u
	return u, nil
}

func (m *memUsersRepo) GetByEmail(ctx context.Context, email string) (*models.User, error) {
	for _, u := range m.byID {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, common.ErrorNotFound
}

func (m *memUsersRepo) GetByID(ctx context.Context, id string) (*models.User, error) {
	if u, ok := m.byID[id]; ok {
		return u, nil
	}
	return nil, common.ErrorNotFound
}

type memRefreshRepo struct {
	byToken map[string]*models.RefreshToken
	seq     int
}

func newMemRefreshRepo() *memRefreshRepo {
	return &memRefreshRepo{byToken: map[string]*models.RefreshToken{}}
}

func (m *memRefreshRepo) Create(ctx context.Context, userID string, token string, validity time.Duration) error {
	m.seq++
	m.byToken[token] = &models.RefreshToken{
		ID:      fmt.Sprintf("rt%d", m.seq),
		UserID:  userID,
		Token:   token,
		Expires: time.Now().Add(validity),
	}
	return nil
}

func (m *memRefreshRepo) Find(ctx context.Context, token string) (*models.RefreshToken, error) {
	if rt, ok := m.byToken[token]; ok {
		return rt, nil
	}
	return nil, common.ErrorNotFound
}

func (m *memRefreshRepo) DeleteByID(ctx context.Context, id string) error {
	for token, rt := range m.byToken {
		if rt.ID == id {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memRefreshRepo) DeleteByUser(ctx context.Context, userID string) error {
	for token, rt := range m.byToken {
		if rt.UserID == userID {
			delete(m.byToken, token)
		}
	}
	return nil
}

func (m *memRefreshRepo) count(userID string) int {
	n := 0
	for _, rt := range m.byToken {
		if rt.UserID == userID {
			n++
		}
	}
	return n
}

type memRepoManager struct {
	u *memUsersRepo
	r *memRefreshRepo
}

func (m *memRepoManager) RunMigrations(context.Context, *sql.DB) error           { return nil }
func (m *memRepoManager) Users(db dbx.DBTX) usersrepo.Repository                 { return m.u }
func (m *memRepoManager) RefreshTokens(db dbx.DBTX) refreshtokensrepo.Repository { return m.r }

// --- test server ---

type testEnv struct {
	router  *gin.Engine
	users   *memUsersRepo
	refresh *memRefreshRepo
	mock    sqlmock.Sqlmock
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()

	db, mock, err := sqlmock.New()
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	// logins run delete+insert inside a transaction against the mem repos
	mock.MatchExpectationsInOrder(false)

	cfg := &config.Config{
		EndpointAddrHTTP:             ":0",
		SecretKey:                    "test-secret",
		BcryptCost:                   10,
		AccessTokenValidityDuration:  15 * time.Minute,
		RefreshTokenValidityDuration: 7 * 24 * time.Hour,
		QueryTimeout:                 time.Second,
	}

	logger := logging.NewSlogLogger(slog.New(slog.NewTextHandler(io.Discard, nil)))
	rm := &memRepoManager{u: newMemUsersRepo(), r: newMemRefreshRepo()}
	us := services.NewUserService(db, rm, logger, cfg)
	srv := NewHTTPServer(logger, us, cfg)

	return &testEnv{router: srv.Router(), users: rm.u, refresh: rm.r, mock: mock}
}

func (e *testEnv) expectLoginTx() {
	e.mock.ExpectBegin()
	e.mock.ExpectCommit()
}

func (e *testEnv) do(t *testing.T, method, path string, body any, mod func(*http.Request)) *httptest.ResponseRecorder {
	t.Helper()
	var r io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		require.NoError(t, err)
		r = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	if mod != nil {
		mod(req)
	}
	w := httptest.NewRecorder()
	e.router.ServeHTTP(w, req)
	return w
}

func registerBody(username, email, role string) map[string]any {
	return map[string]any{
		"username": username,
		"email":    email,
		"password": "Secret123!",
		"role":     role,
	}
}

func refreshCookie(t *testing.T, w *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range w.Result().Cookies() {
		if c.Name == RefreshTokenCookieName {
			return c
		}
	}
	t.Fatalf("no %s cookie in response", RefreshTokenCookieName)
	return nil
}

// --- tests ---

func TestHealthcheck(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodGet, "/api/healthcheck", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestRegister_CreatedWithoutPasswordField(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())

	assert.NotContains(t, w.Body.String(), "password")
	assert.NotContains(t, w.Body.String(), "Secret123!")

	var resp struct {
		User models.PublicUser `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.Equal(t, "alice", resp.User.Username)
	assert.Equal(t, models.RoleUser, resp.User.Role)
}

func TestRegister_Validation(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{"email": "a@x.com"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestRegister_DuplicateEmailConflict(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	w = e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice2", "a@x.com", "user"), nil)
	assert.Equal(t, http.StatusConflict, w.Code)
	assert.Contains(t, w.Body.String(), "already exists")
}

func TestLogin_SetsRefreshCookieAndSingleSession(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	e.expectLoginTx()
	w = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	cookie := refreshCookie(t, w)
	assert.True(t, cookie.HttpOnly, "refresh cookie must be HTTP-only")
	assert.True(t, cookie.Secure, "refresh cookie must be secure")
	assert.Equal(t, http.SameSiteStrictMode, cookie.SameSite)
	assert.Equal(t, refreshCookiePath, cookie.Path)
	assert.NotEmpty(t, cookie.Value)

	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	assert.Equal(t, 1, e.refresh.count(resp.User.ID))

	// second login keeps exactly one live refresh token, the newest
	e.expectLoginTx()
	w2 := e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	require.Equal(t, http.StatusOK, w2.Code)
	cookie2 := refreshCookie(t, w2)

	assert.Equal(t, 1, e.refresh.count(resp.User.ID))
	if _, err := e.refresh.Find(context.Background(), cookie.Value); err == nil {
		t.Fatalf("first refresh token must be invalidated by the second login")
	}
	if _, err := e.refresh.Find(context.Background(), cookie2.Value); err != nil {
		t.Fatalf("second refresh token must be live: %v", err)
	}
}

func TestLogin_BadCredentials_SameMessage(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	wGhost := e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "ghost@x.com", "password": "whatever"}, nil)
	wWrong := e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "wrong"}, nil)

	assert.Equal(t, http.StatusUnauthorized, wGhost.Code)
	assert.Equal(t, http.StatusUnauthorized, wWrong.Code)
	assert.Equal(t, wGhost.Body.String(), wWrong.Body.String(), "responses must not distinguish the failures")
}

func TestLogin_SuspendedAccount(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	for _, u := range e.users.byID {
		u.Active = false
	}

	w = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Contains(t, w.Body.String(), "suspended")
}

func TestRefresh_FlowAndExpiry(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	e.expectLoginTx()
	w = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := refreshCookie(t, w)

	// no cookie → unauthorized
	wNone := e.do(t, http.MethodPost, "/api/auth/refresh", nil, nil)
	assert.Equal(t, http.StatusUnauthorized, wNone.Code)

	// with cookie → new access token
	wOK := e.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: cookie.Value})
	})
	require.Equal(t, http.StatusOK, wOK.Code, wOK.Body.String())
	assert.Contains(t, wOK.Body.String(), "accessToken")

	// refresh is idempotent until the token's own expiry
	wAgain := e.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: cookie.Value})
	})
	assert.Equal(t, http.StatusOK, wAgain.Code)

	// expire the stored token: first use reports the expiry and removes the
	// row, the next one sees an unknown token
	e.refresh.byToken[cookie.Value].Expires = time.Now().Add(-time.Minute)

	wExp := e.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: cookie.Value})
	})
	assert.Equal(t, http.StatusUnauthorized, wExp.Code)
	assert.Contains(t, wExp.Body.String(), "expired")

	wGone := e.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: cookie.Value})
	})
	assert.Equal(t, http.StatusUnauthorized, wGone.Code)
	assert.Contains(t, wGone.Body.String(), "invalid")
}

func TestLogout_RevokesTokensAndClearsCookie(t *testing.T) {
	e := newTestEnv(t)

	w := e.do(t, http.MethodPost, "/api/auth/register", registerBody("alice", "a@x.com", "user"), nil)
	require.Equal(t, http.StatusCreated, w.Code)

	e.expectLoginTx()
	w = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	require.Equal(t, http.StatusOK, w.Code)

	var resp struct {
		AccessToken string `json:"accessToken"`
		User        struct {
			ID string `json:"id"`
		} `json:"user"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))

	wOut := e.do(t, http.MethodPost, "/api/auth/logout", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	require.Equal(t, http.StatusOK, wOut.Code, wOut.Body.String())

	assert.Equal(t, 0, e.refresh.count(resp.User.ID))

	cookie := refreshCookie(t, wOut)
	assert.Empty(t, cookie.Value)
	assert.Less(t, cookie.MaxAge, 0, "logout must expire the cookie")
}

func TestEndToEnd_RegisterLoginDeniedRefresh(t *testing.T) {
	e := newTestEnv(t)

	// register
	w := e.do(t, http.MethodPost, "/api/auth/register", map[string]any{
		"username": "alice", "email": "a@x.com", "password": "Secret123!", "role": "user",
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	require.NotContains(t, w.Body.String(), "password")

	// login
	e.expectLoginTx()
	w = e.do(t, http.MethodPost, "/api/auth/login", map[string]any{"email": "a@x.com", "password": "Secret123!"}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	cookie := refreshCookie(t, w)

	var resp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	require.NotEmpty(t, resp.AccessToken)
	require.NotEmpty(t, cookie.Value)

	// admin-gated operation is denied to role "user"
	wAdmin := e.do(t, http.MethodGet, "/api/admin/overview", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+resp.AccessToken)
	})
	assert.Equal(t, http.StatusForbidden, wAdmin.Code)

	// the refresh token yields a new access token with the same role claim
	wRef := e.do(t, http.MethodPost, "/api/auth/refresh", nil, func(r *http.Request) {
		r.AddCookie(&http.Cookie{Name: RefreshTokenCookieName, Value: cookie.Value})
	})
	require.Equal(t, http.StatusOK, wRef.Code)

	var refResp struct {
		AccessToken string `json:"accessToken"`
	}
	require.NoError(t, json.Unmarshal(wRef.Body.Bytes(), &refResp))
	require.NotEmpty(t, refResp.AccessToken)

	// the fresh token authenticates but is still denied the admin route
	wMe := e.do(t, http.MethodGet, "/api/auth/me", nil, func(r *http.Request) {
		r.Header.Set("Authorization", "Bearer "+refResp.AccessToken)
	})
	require.Equal(t, http.StatusOK, wMe.Code)
	assert.Contains(t, wMe.Body.String(), `"role":"user"`)
}
