package questauth

import (
	"encoding/json"
	"net/http"
)

// RawResponse is a fully read HTTP response.
type RawResponse struct {
	StatusCode int
	Header     http.Header
	Body       []byte
}

// Classify turns the outcome of one physical request into nil (success) or
// one of *NetworkError / *HTTPStatusError. Only status 200 is success.
func Classify(resp *RawResponse, err error) error {
	if err != nil {
		return &NetworkError{Err: err}
	}
	if resp.StatusCode != http.StatusOK {
		return &HTTPStatusError{
			Code:   resp.StatusCode,
			Reason: http.StatusText(resp.StatusCode),
			Header: resp.Header,
			Body:   resp.Body,
		}
	}
	return nil
}

// Decode converts a successful response body into T. A T of []byte receives
// the raw body unchanged; anything else is decoded as JSON.
func Decode[T any](resp *RawResponse) (T, error) {
	var out T
	if raw, ok := any(&out).(*[]byte); ok {
		*raw = resp.Body
		return out, nil
	}
	if err := json.Unmarshal(resp.Body, &out); err != nil {
		var zero T
		return zero, &DecodeError{Err: err}
	}
	return out, nil
}
