package questauth

import (
	"bytes"
	"context"
	"net/http"
	"net/url"
)

// Request is an immutable request template. Every physical attempt builds a
// fresh *http.Request from it with the current credential stamped in.
type Request struct {
	Method string // defaults to GET
	// Path is resolved against the credential's API server unless it is an
	// absolute URL.
	Path   string
	Header http.Header
	Body   []byte
}

// Get is shorthand for a GET template.
func Get(path string) Request {
	return Request{Method: http.MethodGet, Path: path}
}

// Post is shorthand for a POST template with a JSON body.
func Post(path string, body []byte) Request {
	h := http.Header{}
	if body != nil {
		h.Set("Content-Type", "application/json")
	}
	return Request{Method: http.MethodPost, Path: path, Header: h, Body: body}
}

func (r Request) resolve(cred *Credential) (*url.URL, error) {
	ref, err := url.Parse(r.Path)
	if err != nil {
		return nil, &URLParsingError{URL: redactURL(r.Path), Reason: "invalid request path", Err: err}
	}
	if ref.IsAbs() {
		return ref, nil
	}
	base, err := cred.APIServerURL()
	if err != nil {
		return nil, err
	}
	return base.ResolveReference(ref), nil
}

// build derives one physical request from the template.
func (r Request) build(ctx context.Context, cred *Credential) (*http.Request, error) {
	u, err := r.resolve(cred)
	if err != nil {
		return nil, err
	}

	method := r.Method
	if method == "" {
		method = http.MethodGet
	}

	req, err := http.NewRequestWithContext(ctx, method, u.String(), bytes.NewReader(r.Body))
	if err != nil {
		return nil, &URLParsingError{URL: redactURL(u.String()), Reason: "cannot build request", Err: err}
	}
	if r.Body == nil {
		req.Body = http.NoBody
		req.ContentLength = 0
	}
	for k, vs := range r.Header {
		req.Header[k] = append([]string(nil), vs...)
	}
	req.Header.Set("Authorization", cred.AuthorizationHeader())
	return req, nil
}

// redactURL hides token values carried in a query string so URLs can be
// logged and put into errors.
func redactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.RawQuery == "" {
		return raw
	}
	q := u.Query()
	changed := false
	for _, key := range []string{paramRefreshToken, paramAccessToken} {
		if q.Has(key) {
			q.Set(key, "REDACTED")
			changed = true
		}
	}
	if !changed {
		return raw
	}
	u.RawQuery = q.Encode()
	return u.String()
}
