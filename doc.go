// Package questauth manages a bearer credential obtained through an OAuth
// implicit grant and executes authenticated requests against the API server
// the credential names.
//
// A Session owns one Credential. It is created by parsing the authorization
// redirect, persisted through a KeyValueStore, and replaced by the refresh
// grant whenever the API answers 401. Every logical call delivers exactly one
// result, however many physical requests it took.
//
// # Authorizing
//
//	store, _ := fs.NewFileStore("") // os.UserConfigDir()/questauth
//	s, err := questauth.NewSession(questauth.Config{
//	    ClientID:    "my-client",
//	    RedirectURL: "https://example.com/callback",
//	    Store:       store,
//	}, questauth.WithLogger(logger))
//
//	fmt.Println(s.AuthorizationURL())
//	// ... user consents, browser lands on the redirect URL ...
//	err = s.Authorize(ctx, redirectURL)
//
// # Calling the API
//
//	type serverTime struct {
//	    Time string `json:"time"`
//	}
//	t, err := questauth.Execute[serverTime](ctx, s, questauth.Get("v1/time"))
//
// Paths are resolved against the credential's API server. A 401 triggers one
// refresh and a retry, up to the attempt bound (DefaultMaxAttempts). Refresh
// failure signs the session out.
//
// Errors are typed: *NetworkError, *HTTPStatusError, *DecodeError,
// *AttemptsExhaustedError and ErrMissingCredential.
//
// # Stores
//
// Store implementations live in subpackages:
//
//   - stores/fs: JSON files, with a watcher for changes made by other processes
//   - stores/gorm: any GORM database
//   - stores/gae: Google Cloud Datastore
//   - stores/redis: Redis
//   - stores/keyring: the OS keychain
//   - stores/sealed: encrypts values for any other store
//
// For tests and offline work, fixture serves canned responses as a Transport
// and authserver runs a local authorization server.
package questauth
