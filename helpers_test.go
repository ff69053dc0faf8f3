package questauth

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const testRedirect = "https://app.example.com/callback"

// recordingObserver counts lifecycle notifications.
type recordingObserver struct {
	BaseObserver
	mu              sync.Mutex
	authorized      int
	signedOut       int
	refreshed       int
	authorizeFailed []error
	requestFailed   []error
}

func (o *recordingObserver) OnAuthorized() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authorized++
}

func (o *recordingObserver) OnAuthorizeFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.authorizeFailed = append(o.authorizeFailed, err)
}

func (o *recordingObserver) OnSignedOut() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.signedOut++
}

func (o *recordingObserver) OnRefreshed() {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.refreshed++
}

func (o *recordingObserver) OnRequestFailed(err error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.requestFailed = append(o.requestFailed, err)
}

func (o *recordingObserver) counts() (authorized, signedOut, refreshed, failed int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.authorized, o.signedOut, o.refreshed, len(o.requestFailed)
}

// fakeAPI is an authorization server plus resource server on one listener.
// Resource requests go to /v1/..., the auth endpoints live under /oauth2/.
type fakeAPI struct {
	*httptest.Server

	resourceCalls atomic.Int32
	refreshCalls  atomic.Int32
	revokeCalls   atomic.Int32

	mu               sync.Mutex
	resource         http.HandlerFunc
	token            http.HandlerFunc
	lastRefreshToken string
	lastRefreshAuthz string
	lastRevokeMethod string
	lastRevokeAuthz  string
}

func newFakeAPI(t *testing.T) *fakeAPI {
	t.Helper()
	f := &fakeAPI{}
	f.resource = func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"time": "2024-01-02T03:04:05.000-05:00"})
	}
	f.token = issueToken("A1", "R1")

	mux := http.NewServeMux()
	mux.HandleFunc("/v1/", func(w http.ResponseWriter, r *http.Request) {
		f.resourceCalls.Add(1)
		f.mu.Lock()
		h := f.resource
		f.mu.Unlock()
		h(w, r)
	})
	mux.HandleFunc("/oauth2/token", func(w http.ResponseWriter, r *http.Request) {
		f.refreshCalls.Add(1)
		f.mu.Lock()
		f.lastRefreshToken = r.URL.Query().Get("refresh_token")
		f.lastRefreshAuthz = r.Header.Get("Authorization")
		h := f.token
		f.mu.Unlock()
		h(w, r)
	})
	mux.HandleFunc("/oauth2/revoke", func(w http.ResponseWriter, r *http.Request) {
		f.revokeCalls.Add(1)
		f.mu.Lock()
		f.lastRevokeMethod = r.Method
		f.lastRevokeAuthz = r.Header.Get("Authorization")
		f.mu.Unlock()
		w.WriteHeader(http.StatusOK)
	})

	f.Server = httptest.NewServer(mux)
	t.Cleanup(f.Close)
	return f
}

func (f *fakeAPI) setResource(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.resource = h
}

func (f *fakeAPI) setToken(h http.HandlerFunc) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.token = h
}

// lastRefresh returns the refresh token and Authorization header of the most
// recent refresh grant.
func (f *fakeAPI) lastRefresh() (token, authz string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRefreshToken, f.lastRefreshAuthz
}

func (f *fakeAPI) lastRevoke() (method, authz string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.lastRevokeMethod, f.lastRevokeAuthz
}

func (f *fakeAPI) authBase() string { return f.URL + "/oauth2/" }
func (f *fakeAPI) apiServer() string { return f.URL + "/" }

func issueToken(access, refresh string) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]any{
			"access_token":  access,
			"refresh_token": refresh,
			"api_server":    "http://" + r.Host + "/",
			"token_type":    "Bearer",
			"expires_in":    1800,
		})
	}
}

func status(code int) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(code)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(v)
}

func newTestSession(t *testing.T, authBase string, opts ...SessionOption) (*Session, *recordingObserver) {
	t.Helper()
	obs := &recordingObserver{}
	opts = append([]SessionOption{WithObserver(obs)}, opts...)
	s, err := NewSession(Config{
		ClientID:    "test-client",
		RedirectURL: testRedirect,
		AuthBaseURL: authBase,
	}, opts...)
	require.NoError(t, err)
	return s, obs
}

func seedCredential(s *Session, apiServer string) *Credential {
	cred := &Credential{
		AccessToken:  "A0",
		RefreshToken: "R0",
		APIServer:    apiServer,
		TokenType:    "Bearer",
		Expiry:       time.Now().Add(time.Hour),
	}
	s.Cache().Set(context.Background(), cred)
	return cred
}

type serverTime struct {
	Time string `json:"time"`
}
