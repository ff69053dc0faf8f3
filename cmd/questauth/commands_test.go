package main

import (
	"bytes"
	"context"
	"fmt"
	"net"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/panyam/questauth"
	"github.com/panyam/questauth/authserver"
	"github.com/panyam/questauth/stores/fs"
)

func run(args ...string) (string, error) {
	cmd := newRootCmd()
	out := &bytes.Buffer{}
	cmd.SetOut(out)
	cmd.SetErr(out)
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(context.Background())
	return out.String(), err
}

func writeConfig(dir, body string) string {
	path := filepath.Join(dir, "config.yaml")
	Expect(os.WriteFile(path, []byte(body), 0o600)).To(Succeed())
	return path
}

var _ = Describe("questauth command", func() {
	var tmpDir string

	BeforeEach(func() {
		var err error
		tmpDir, err = os.MkdirTemp("", "questauth-cmd-*")
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(os.RemoveAll, tmpDir)
	})

	Describe("newRootCmd", func() {
		It("registers the subcommands and global flags", func() {
			cmd := newRootCmd()
			for _, name := range []string{"auth-url", "login", "status", "refresh", "revoke", "get", "stub-server"} {
				sub, _, err := cmd.Find([]string{name})
				Expect(err).NotTo(HaveOccurred())
				Expect(sub.Name()).To(Equal(name))
			}
			Expect(cmd.PersistentFlags().Lookup("config")).NotTo(BeNil())
			Expect(cmd.PersistentFlags().Lookup("verbose")).NotTo(BeNil())
		})
	})

	Describe("against the stub server", func() {
		var (
			server     *authserver.Server
			configPath string
		)

		BeforeEach(func() {
			var err error
			server, err = authserver.New(authserver.Config{ClientID: "cli"})
			Expect(err).NotTo(HaveOccurred())
			ts := httptest.NewServer(server)
			DeferCleanup(ts.Close)

			configPath = writeConfig(tmpDir, fmt.Sprintf(`
client_id: cli
redirect_url: https://app.example.com/cb
auth_base_url: %s/oauth2/
store:
  kind: file
  dir: %s
`, ts.URL, filepath.Join(tmpDir, "store")))
		})

		login := func() {
			authURL, err := run("--config", configPath, "auth-url")
			Expect(err).NotTo(HaveOccurred())
			Expect(authURL).To(ContainSubstring("response_type=token"))

			client := &http.Client{CheckRedirect: func(*http.Request, []*http.Request) error {
				return http.ErrUseLastResponse
			}}
			resp, err := client.Get(authURL[:len(authURL)-1])
			Expect(err).NotTo(HaveOccurred())
			resp.Body.Close()

			out, err := run("--config", configPath, "login", resp.Header.Get("Location"))
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(HavePrefix("authorized"))
		}

		It("runs the credential lifecycle", func() {
			out, err := run("--config", configPath, "status")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("not authorized\n"))

			login()

			out, err = run("--config", configPath, "status")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("(valid)"))
			Expect(out).NotTo(ContainSubstring("eyJ"), "tokens are not printed")

			out, err = run("--config", configPath, "get", "v1/time")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring(`"time"`))

			_, err = run("--config", configPath, "refresh")
			Expect(err).NotTo(HaveOccurred())
			Expect(server.Refreshes()).To(Equal(int64(1)))

			out, err = run("--config", configPath, "revoke")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(Equal("not authorized\n"))
			Expect(server.Revokes()).To(Equal(int64(1)))

			_, err = run("--config", configPath, "get", "v1/time")
			Expect(err).To(MatchError(questauth.ErrMissingCredential))
		})

		It("rejects a bad redirect", func() {
			_, err := run("--config", configPath, "login", "https://app.example.com/cb#access_token=x")
			var parseErr *questauth.URLParsingError
			Expect(err).To(BeAssignableToTypeOf(parseErr))
		})
	})

	Describe("mock mode", func() {
		It("answers calls from fixtures", func() {
			storeDir := filepath.Join(tmpDir, "store")
			store, err := fs.NewFileStore(storeDir)
			Expect(err).NotTo(HaveOccurred())
			questauth.NewCredentialCache(store, "", nil).Set(context.Background(), &questauth.Credential{
				AccessToken: "a", RefreshToken: "r", APIServer: "https://api.example.com/",
				TokenType: "Bearer", Expiry: time.Now().Add(time.Hour),
			})

			configPath := writeConfig(tmpDir, fmt.Sprintf(`
client_id: cli
redirect_url: https://app.example.com/cb
mock: true
store:
  kind: file
  dir: %s
`, storeDir))

			out, err := run("--config", configPath, "get", "v1/accounts")
			Expect(err).NotTo(HaveOccurred())
			Expect(out).To(ContainSubstring("Margin"))
		})
	})

	Describe("serve", func() {
		It("stops when the context is cancelled", func() {
			srv, err := authserver.New(authserver.Config{ClientID: "cli"})
			Expect(err).NotTo(HaveOccurred())
			lis, err := net.Listen("tcp", "127.0.0.1:0")
			Expect(err).NotTo(HaveOccurred())

			ctx, cancel := context.WithCancel(context.Background())
			out := &bytes.Buffer{}
			cmd := &cobra.Command{}
			cmd.SetOut(out)

			errCh := make(chan error, 1)
			go func() { errCh <- serve(ctx, cmd, lis, srv, zap.NewNop()) }()

			Eventually(func() int {
				resp, err := http.Get("http://" + lis.Addr().String() + "/v1/time")
				if err != nil {
					return 0
				}
				resp.Body.Close()
				return resp.StatusCode
			}).Should(Equal(http.StatusUnauthorized))

			cancel()
			Eventually(errCh).Should(Receive(BeNil()))
			Expect(out.String()).To(ContainSubstring("/oauth2/"))
		})
	})
})
