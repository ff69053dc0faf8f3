package authserver

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"sync"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/panyam/questauth"
)

const (
	testClientID    = "client-1"
	testRedirectURL = "https://app.example.com/cb"
)

type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func (c *fakeClock) now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.t = c.t.Add(d)
}

// noRedirect is a client that hands back the 302 instead of following it.
var noRedirect = &http.Client{
	CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
}

func authorize(sess *questauth.Session) string {
	resp, err := noRedirect.Get(sess.AuthorizationURL())
	Expect(err).NotTo(HaveOccurred())
	defer resp.Body.Close()
	Expect(resp.StatusCode).To(Equal(http.StatusFound))
	return resp.Header.Get("Location")
}

var _ = Describe("Server", func() {
	var (
		clock  *fakeClock
		server *Server
		ts     *httptest.Server
		sess   *questauth.Session
		ctx    context.Context
	)

	BeforeEach(func() {
		ctx = context.Background()
		clock = &fakeClock{t: time.Now()}

		var err error
		server, err = New(Config{
			ClientID:     testClientID,
			RedirectURLs: []string{testRedirectURL},
			Issuer:       "questauth-test",
		}, WithClock(clock.now))
		Expect(err).NotTo(HaveOccurred())

		ts = httptest.NewServer(server)
		DeferCleanup(ts.Close)

		sess, err = questauth.NewSession(questauth.Config{
			ClientID:    testClientID,
			RedirectURL: testRedirectURL,
			AuthBaseURL: ts.URL + "/oauth2/",
		})
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("New", func() {
		It("requires a client id", func() {
			s, err := New(Config{})
			Expect(err).To(HaveOccurred())
			Expect(s).To(BeNil())
		})
	})

	Describe("authorize", func() {
		It("redirects with the credential in the fragment", func() {
			location := authorize(sess)
			Expect(location).To(HavePrefix(testRedirectURL + "#"))

			u, err := url.Parse(location)
			Expect(err).NotTo(HaveOccurred())
			fragment, err := url.ParseQuery(u.Fragment)
			Expect(err).NotTo(HaveOccurred())
			for _, key := range []string{"access_token", "refresh_token", "api_server", "expires_in", "token_type"} {
				Expect(fragment.Get(key)).NotTo(BeEmpty(), key)
			}
			Expect(fragment.Get("api_server")).To(Equal(ts.URL + "/"))
			Expect(fragment.Get("expires_in")).To(Equal("1800"))
			Expect(server.Authorizations()).To(Equal(int64(1)))
		})

		DescribeTable("rejects bad requests",
			func(query url.Values, wantError string) {
				resp, err := noRedirect.Get(ts.URL + "/oauth2/authorize?" + query.Encode())
				Expect(err).NotTo(HaveOccurred())
				defer resp.Body.Close()
				Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

				var body map[string]string
				Expect(json.NewDecoder(resp.Body).Decode(&body)).To(Succeed())
				Expect(body["error"]).To(Equal(wantError))
				Expect(server.Authorizations()).To(BeZero())
			},
			Entry("code flow", url.Values{"response_type": {"code"}, "client_id": {testClientID}, "redirect_uri": {testRedirectURL}}, "unsupported_response_type"),
			Entry("unknown client", url.Values{"response_type": {"token"}, "client_id": {"other"}, "redirect_uri": {testRedirectURL}}, "unauthorized_client"),
			Entry("unregistered redirect", url.Values{"response_type": {"token"}, "client_id": {testClientID}, "redirect_uri": {"https://evil.example.com/"}}, "invalid_request"),
			Entry("missing redirect", url.Values{"response_type": {"token"}, "client_id": {testClientID}}, "invalid_request"),
		)
	})

	Describe("protected API", func() {
		It("rejects requests without a bearer token", func() {
			resp, err := http.Get(ts.URL + "/v1/time")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(resp.Header.Get("WWW-Authenticate")).To(ContainSubstring(`realm="api"`))
		})

		It("rejects tokens signed with another key", func() {
			other, err := New(Config{ClientID: testClientID})
			Expect(err).NotTo(HaveOccurred())
			tok, err := other.createAccessToken(&family{id: "f", subject: "user"})
			Expect(err).NotTo(HaveOccurred())

			_, err = server.validateAccessToken(tok)
			Expect(err).To(HaveOccurred())
		})
	})

	Describe("with a questauth session", func() {
		BeforeEach(func() {
			Expect(sess.Authorize(ctx, authorize(sess))).To(Succeed())
		})

		It("executes calls without refreshing a fresh credential", func() {
			body, err := sess.Execute(ctx, questauth.Get("v1/time"))
			Expect(err).NotTo(HaveOccurred())

			var out map[string]string
			Expect(json.Unmarshal(body, &out)).To(Succeed())
			Expect(out).To(HaveKey("time"))
			Expect(server.Refreshes()).To(BeZero())
		})

		It("sends request bodies", func() {
			req := questauth.Post("v1/echo", []byte(`{"n":1}`))
			req.Header = http.Header{"Content-Type": {"application/json"}}

			body, err := sess.Execute(ctx, req)
			Expect(err).NotTo(HaveOccurred())
			Expect(string(body)).To(Equal(`{"n":1}`))
		})

		It("refreshes once when the access token expires", func() {
			before := sess.Credential(ctx)
			clock.advance(DefaultAccessTokenExpiry + time.Minute)

			_, err := sess.Execute(ctx, questauth.Get("v1/time"))
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Refreshes()).To(Equal(int64(1)))

			after := sess.Credential(ctx)
			Expect(after.AccessToken).NotTo(Equal(before.AccessToken))
			Expect(after.RefreshToken).NotTo(Equal(before.RefreshToken))
		})

		It("works through the session HTTP client", func() {
			clock.advance(DefaultAccessTokenExpiry + time.Minute)

			resp, err := sess.HTTPClient().Get(ts.URL + "/v1/time")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusOK))
			Expect(server.Refreshes()).To(Equal(int64(1)))
		})

		It("revokes the family when a refresh token is reused", func() {
			stale := sess.Credential(ctx).RefreshToken
			Expect(sess.Refresh(ctx)).To(Succeed())

			resp, err := http.Get(ts.URL + "/oauth2/token?grant_type=refresh_token&refresh_token=" + stale)
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))

			_, err = sess.Execute(ctx, questauth.Get("v1/time"))
			var statusErr *questauth.HTTPStatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusBadRequest))
			Expect(string(statusErr.Body)).To(ContainSubstring("invalid_grant"))
			Expect(sess.IsAuthorized(ctx)).To(BeFalse())
		})

		It("revokes the credential and signs out", func() {
			access := sess.Credential(ctx).AccessToken

			Expect(sess.Revoke(ctx)).To(Succeed())
			Expect(server.Revokes()).To(Equal(int64(1)))
			Expect(sess.IsAuthorized(ctx)).To(BeFalse())

			req, _ := http.NewRequest(http.MethodGet, ts.URL+"/v1/time", nil)
			req.Header.Set("Authorization", "Bearer "+access)
			resp, err := http.DefaultClient.Do(req)
			Expect(err).NotTo(HaveOccurred())
			body, _ := io.ReadAll(resp.Body)
			resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusUnauthorized))
			Expect(strings.TrimSpace(string(body))).To(ContainSubstring("1017"))
		})
	})

	Describe("token endpoint", func() {
		It("rejects unknown grant types", func() {
			resp, err := http.Get(ts.URL + "/oauth2/token?grant_type=password")
			Expect(err).NotTo(HaveOccurred())
			defer resp.Body.Close()
			Expect(resp.StatusCode).To(Equal(http.StatusBadRequest))
			Expect(resp.Header.Get("Cache-Control")).To(Equal("no-store"))
		})

		It("rejects expired refresh tokens", func() {
			Expect(sess.Authorize(ctx, authorize(sess))).To(Succeed())
			clock.advance(DefaultRefreshTokenExpiry + time.Hour)

			err := sess.Refresh(ctx)
			Expect(questauth.IsUnauthorized(err)).To(BeFalse())
			var statusErr *questauth.HTTPStatusError
			Expect(errors.As(err, &statusErr)).To(BeTrue())
			Expect(statusErr.Code).To(Equal(http.StatusBadRequest))
		})
	})
})
