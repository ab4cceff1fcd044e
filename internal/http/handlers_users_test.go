package httpx

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/target/ldap-user-collection/internal/domain/credential"
	"github.com/target/ldap-user-collection/internal/domain/model"
	mockauth "github.com/target/ldap-user-collection/internal/mocks/auth"
	"github.com/target/ldap-user-collection/internal/observability/metrics"
	"github.com/target/ldap-user-collection/internal/service"
)

const (
	testRootKey = "root-key"
	usersPath   = "/users"
)

type routerOpts struct {
	maxBody int64
}

type testEnv struct {
	store    *mockauth.MemoryUserStore
	dir      *mockauth.StaticDirectory
	sessions *mockauth.MemorySessionStore
}

func newTestRouter(t *testing.T, opts routerOpts) (http.Handler, *testEnv) {
	t.Helper()
	env := &testEnv{
		store:    mockauth.NewMemoryUserStore(),
		dir:      mockauth.NewStaticDirectory(map[string]string{"alice": "secret"}),
		sessions: mockauth.NewMemorySessionStore(),
	}
	reg := prometheus.NewRegistry()
	rec, err := metrics.NewAuthRecorder(metrics.AuthRecorderOptions{Registerer: reg})
	require.NoError(t, err)

	users := service.NewUserCollection(service.UserCollectionOptions{
		Store:     env.store,
		Directory: env.dir,
		Config:    service.UserCollectionConfig{Path: usersPath, LocalHashing: true},
		Metrics:   rec,
	})
	h := NewRouter(RouterServices{
		Users:        users,
		Sessions:     service.NewSessionService(service.SessionServiceOptions{Store: env.sessions}),
		RootKey:      testRootKey,
		MaxBodyBytes: opts.maxBody,
		Metrics:      rec,
		Gatherer:     reg,
		Logger:       slogDiscard(),
	})
	return h, env
}

func serve(h http.Handler, req *http.Request) *httptest.ResponseRecorder {
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func jsonRequest(method, target, body string) *http.Request {
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	return req
}

func sessionCookie(t *testing.T, rec *httptest.ResponseRecorder) *http.Cookie {
	t.Helper()
	for _, c := range rec.Result().Cookies() {
		if c.Name == SessionCookieName {
			return c
		}
	}
	t.Fatalf("response carries no %s cookie", SessionCookieName)
	return nil
}

func decodeMap(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), rec.Body.String())
	return out
}

func seedUser(t *testing.T, env *testEnv, username, password string) *model.User {
	t.Helper()
	enc, err := credential.Hasher{}.Encode(password)
	require.NoError(t, err)
	u, err := env.store.Create(context.Background(), model.UserInput{Username: &username, Password: &enc})
	require.NoError(t, err)
	return u
}

func TestUsers_LoginSetsCookieAndMeResolvesUser(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})

	rec := serve(h, jsonRequest(http.MethodPost, "/users/login", `{"username":"alice","password":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())

	cookie := sessionCookie(t, rec)
	assert.NotEmpty(t, cookie.Value)
	assert.True(t, cookie.HttpOnly)
	assert.Equal(t, http.SameSiteLaxMode, cookie.SameSite)

	sess := decodeMap(t, rec)
	assert.NotContains(t, sess, "id")
	assert.NotContains(t, rec.Body.String(), cookie.Value)
	assert.Equal(t, usersPath, sess["path"])
	assert.NotEmpty(t, sess["uid"])
	assert.Equal(t, 1, env.sessions.Len())

	me := jsonRequest(http.MethodGet, "/users/me", "")
	me.AddCookie(cookie)
	rec = serve(h, me)
	require.Equal(t, http.StatusOK, rec.Code)
	body := decodeMap(t, rec)
	assert.Equal(t, "alice", body["username"])
	assert.Equal(t, sess["uid"], body["id"])
	assert.NotContains(t, body, "password")
}

func TestUsers_LoginRotatesPlantedSessionID(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})
	seedUser(t, env, "bob", "bob-pw")

	rec := serve(h, jsonRequest(http.MethodPost, "/users/login", `{"username":"alice","password":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	planted := sessionCookie(t, rec)

	login := jsonRequest(http.MethodPost, "/users/login", `{"username":"bob","password":"bob-pw"}`)
	login.AddCookie(planted)
	rec = serve(h, login)
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	issued := sessionCookie(t, rec)
	assert.NotEqual(t, planted.Value, issued.Value)
	assert.Equal(t, 1, env.sessions.Len())

	me := jsonRequest(http.MethodGet, "/users/me", "")
	me.AddCookie(planted)
	rec = serve(h, me)
	assert.Equal(t, http.StatusNoContent, rec.Code)

	me = jsonRequest(http.MethodGet, "/users/me", "")
	me.AddCookie(issued)
	rec = serve(h, me)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "bob", decodeMap(t, rec)["username"])
}

func TestUsers_HeadIsServedLikeGet(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})
	seedUser(t, env, "carol", "pw")

	for _, path := range []string{"/users", "/users/count"} {
		rec := serve(h, jsonRequest(http.MethodHead, path, ""))
		assert.Equal(t, http.StatusOK, rec.Code, path)
		assert.Empty(t, rec.Header().Get("Allow"), path)
	}
}

func TestUsers_LoginBadCredentials(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})

	for _, body := range []string{
		`{"username":"alice","password":"wrong"}`,
		`{"username":"alice"}`,
		`{"username":"mallory","password":"secret"}`,
	} {
		rec := serve(h, jsonRequest(http.MethodPost, "/users/login", body))
		require.Equal(t, http.StatusUnauthorized, rec.Code, body)
		got := decodeMap(t, rec)
		assert.Equal(t, "unauthorized", got["error"])
		assert.Equal(t, "bad credentials", got["message"])
		assert.Empty(t, rec.Result().Cookies())
	}
	assert.Equal(t, 0, env.sessions.Len())
}

func TestUsers_LogoutClearsCookie(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})

	rec := serve(h, jsonRequest(http.MethodPost, "/users/login", `{"username":"alice","password":"secret"}`))
	require.Equal(t, http.StatusOK, rec.Code)
	cookie := sessionCookie(t, rec)

	for _, method := range []string{http.MethodGet, http.MethodPost} {
		req := jsonRequest(method, "/users/logout", "")
		req.AddCookie(cookie)
		rec = serve(h, req)
		require.Equal(t, http.StatusOK, rec.Code)
		cleared := sessionCookie(t, rec)
		assert.Empty(t, cleared.Value)
		assert.Negative(t, cleared.MaxAge)
	}
	assert.Equal(t, 0, env.sessions.Len())

	me := jsonRequest(http.MethodGet, "/users/me", "")
	me.AddCookie(cookie)
	rec = serve(h, me)
	assert.Equal(t, http.StatusNoContent, rec.Code)
}

func TestUsers_CreateValidation(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})
	seedUser(t, env, "taken", "pw")

	tests := []struct {
		name       string
		body       string
		wantFields map[string]any
	}{
		{
			name:       "missing username and password",
			body:       `{"team":"red"}`,
			wantFields: map[string]any{"username": "is required", "password": "is required"},
		},
		{
			name:       "username in use",
			body:       `{"username":"taken","password":"pw"}`,
			wantFields: map[string]any{"username": "is already in use"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := serve(h, jsonRequest(http.MethodPost, usersPath, tt.body))
			require.Equal(t, http.StatusBadRequest, rec.Code, rec.Body.String())
			got := decodeMap(t, rec)
			assert.Equal(t, "validation", got["error"])
			assert.Equal(t, tt.wantFields, got["errors"])
		})
	}
}

func TestUsers_CreateListCountIndex(t *testing.T) {
	h, _ := newTestRouter(t, routerOpts{})

	var ids []string
	for _, name := range []string{"carol", "dave"} {
		rec := serve(h, jsonRequest(http.MethodPost, usersPath, `{"username":"`+name+`","password":"pw","team":"red"}`))
		require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
		created := decodeMap(t, rec)
		assert.NotContains(t, created, "password")
		assert.Equal(t, "red", created["team"])
		ids = append(ids, created["id"].(string))
	}

	params := url.Values{
		"$sort":   {`{"username":-1}`},
		"$fields": {`{"password":1,"username":1}`},
	}
	rec := serve(h, jsonRequest(http.MethodGet, "/users?"+params.Encode(), ""))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	var list []map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	require.Len(t, list, 2)
	assert.Equal(t, "dave", list[0]["username"])
	for _, u := range list {
		assert.NotContains(t, u, "password")
		assert.NotContains(t, u, "team")
	}

	rec = serve(h, jsonRequest(http.MethodGet, "/users?team=red&$limit=1", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &list))
	assert.Len(t, list, 1)

	rec = serve(h, jsonRequest(http.MethodGet, "/users/count?team=red", ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"count":2}`, rec.Body.String())

	rec = serve(h, jsonRequest(http.MethodGet, "/users/index-of/"+ids[1], ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"index":1}`, rec.Body.String())

	rec = serve(h, jsonRequest(http.MethodGet, "/users/"+ids[0], ""))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "carol", decodeMap(t, rec)["username"])
}

func TestUsers_UpdateIdentityFieldsRequireAuthority(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})
	u := seedUser(t, env, "erin", "pw")

	rec := serve(h, jsonRequest(http.MethodPut, "/users/"+u.ID, `{"username":"mallory","team":"blue"}`))
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	got := decodeMap(t, rec)
	assert.Equal(t, "erin", got["username"])
	assert.Equal(t, "blue", got["team"])

	req := jsonRequest(http.MethodPut, "/users/"+u.ID, `{"username":"erin2"}`)
	req.Header.Set(RootKeyHeader, testRootKey)
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "erin2", decodeMap(t, rec)["username"])

	req = jsonRequest(http.MethodPut, "/users/"+u.ID, `{"username":"erin3"}`)
	req.Header.Set(RootKeyHeader, "wrong")
	rec = serve(h, req)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "erin2", decodeMap(t, rec)["username"])
}

func TestUsers_Remove(t *testing.T) {
	h, env := newTestRouter(t, routerOpts{})
	u := seedUser(t, env, "frank", "pw")

	rec := serve(h, jsonRequest(http.MethodDelete, "/users/"+u.ID, ""))
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Empty(t, rec.Body.String())

	rec = serve(h, jsonRequest(http.MethodDelete, "/users/"+u.ID, ""))
	assert.Equal(t, http.StatusNotFound, rec.Code)

	rec = serve(h, jsonRequest(http.MethodDelete, usersPath, ""))
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestUsers_RequestErrors(t *testing.T) {
	h, _ := newTestRouter(t, routerOpts{maxBody: 32})

	rec := serve(h, jsonRequest(http.MethodPatch, usersPath, ""))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)
	assert.NotEmpty(t, rec.Header().Get("Allow"))

	rec = serve(h, jsonRequest(http.MethodGet, "/users?$limit=-1&$bogus=1", ""))
	require.Equal(t, http.StatusBadRequest, rec.Code)
	errs := decodeMap(t, rec)["errors"].(map[string]any)
	assert.Contains(t, errs, "$limit")
	assert.Contains(t, errs, "$bogus")

	rec = serve(h, jsonRequest(http.MethodPost, usersPath, `{"username":`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, jsonRequest(http.MethodPost, usersPath, `["not","an","object"]`))
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = serve(h, jsonRequest(http.MethodPost, usersPath, `{"username":"`+strings.Repeat("x", 64)+`"}`))
	assert.Equal(t, http.StatusRequestEntityTooLarge, rec.Code)
}
