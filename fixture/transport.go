// Package fixture provides a questauth.Transport that answers requests with
// canned JSON files instead of calling the network.
//
// A request for /v1/accounts is answered from v1/accounts.get.json when
// present, otherwise v1/accounts.json. The host is ignored, so the same
// files serve the API server and the authorization server. Paths with no
// file get a 404.
package fixture

import (
	"bytes"
	"embed"
	"encoding/json"
	"errors"
	"io"
	"io/fs"
	"net/http"
	"path"
	"strconv"
	"strings"
	"sync/atomic"

	"go.uber.org/zap"
)

//go:embed data
var defaultData embed.FS

// Transport serves responses from an fs.FS.
type Transport struct {
	fsys     fs.FS
	logger   *zap.Logger
	requests atomic.Int64
}

// Option configures a Transport.
type Option func(*Transport)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) Option {
	return func(t *Transport) {
		if l != nil {
			t.logger = l
		}
	}
}

// New returns a Transport reading files from fsys.
func New(fsys fs.FS, opts ...Option) *Transport {
	t := &Transport{fsys: fsys, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Default returns a Transport over the built-in sample responses.
func Default(opts ...Option) *Transport {
	sub, err := fs.Sub(defaultData, "data")
	if err != nil {
		panic(err)
	}
	return New(sub, opts...)
}

// Requests returns the number of requests served, including 404s.
func (t *Transport) Requests() int64 {
	return t.requests.Load()
}

// Do implements questauth.Transport.
func (t *Transport) Do(req *http.Request) (*http.Response, error) {
	if err := req.Context().Err(); err != nil {
		return nil, err
	}
	t.requests.Add(1)

	name := strings.Trim(path.Clean("/"+req.URL.Path), "/")
	for _, candidate := range []string{
		name + "." + strings.ToLower(req.Method) + ".json",
		name + ".json",
	} {
		data, err := fs.ReadFile(t.fsys, candidate)
		if errors.Is(err, fs.ErrNotExist) {
			continue
		}
		if err != nil {
			return nil, err
		}
		t.logger.Debug("fixture response", zap.String("method", req.Method), zap.String("file", candidate))
		return respond(req, http.StatusOK, data), nil
	}

	t.logger.Debug("no fixture", zap.String("method", req.Method), zap.String("path", name))
	body, _ := json.Marshal(map[string]any{"code": 1001, "message": "no fixture for " + name})
	return respond(req, http.StatusNotFound, body), nil
}

func respond(req *http.Request, code int, body []byte) *http.Response {
	return &http.Response{
		Status:        strconv.Itoa(code) + " " + http.StatusText(code),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        http.Header{"Content-Type": {"application/json"}},
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
