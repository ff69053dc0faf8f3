package questauth

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strconv"
)

// Transport issues one physical HTTP request. *http.Client satisfies it.
type Transport interface {
	Do(req *http.Request) (*http.Response, error)
}

// TransportFunc adapts a function to Transport.
type TransportFunc func(req *http.Request) (*http.Response, error)

func (f TransportFunc) Do(req *http.Request) (*http.Response, error) {
	return f(req)
}

// sessionTransport is an http.RoundTripper that sends every request through
// the session executor, so plain *http.Client users get credential stamping
// and refresh-on-401.
type sessionTransport struct {
	session *Session
}

// RoundTrip implements http.RoundTripper. Non-200 responses from the
// resource come back as responses; refresh failures and exhausted attempts
// come back as errors.
func (t *sessionTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	var body []byte
	if req.Body != nil && req.Body != http.NoBody {
		var err error
		body, err = io.ReadAll(req.Body)
		req.Body.Close()
		if err != nil {
			return nil, fmt.Errorf("reading request body: %w", err)
		}
	}

	header := req.Header.Clone()
	header.Del("Authorization")

	out := t.session.exec.run(req.Context(), call{
		req: Request{
			Method: req.Method,
			Path:   req.URL.String(),
			Header: header,
			Body:   body,
		},
		maxAttempts: t.session.maxAttempts,
	})

	if out.err == nil {
		return synthesize(req, out.resp.StatusCode, out.resp.Header, out.resp.Body), nil
	}

	var statusErr *HTTPStatusError
	if out.stage == stateClassifying && errors.As(out.err, &statusErr) {
		return synthesize(req, statusErr.Code, statusErr.Header, statusErr.Body), nil
	}
	return nil, out.err
}

func synthesize(req *http.Request, code int, header http.Header, body []byte) *http.Response {
	if header == nil {
		header = http.Header{}
	}
	return &http.Response{
		Status:        strconv.Itoa(code) + " " + http.StatusText(code),
		StatusCode:    code,
		Proto:         "HTTP/1.1",
		ProtoMajor:    1,
		ProtoMinor:    1,
		Header:        header,
		Body:          io.NopCloser(bytes.NewReader(body)),
		ContentLength: int64(len(body)),
		Request:       req,
	}
}
