package questauth

import (
	"context"
	"fmt"
	"io"
	"net/http"

	"go.uber.org/zap"
)

// DefaultMaxAttempts bounds how many times one logical call may be sent
// after a 401.
const DefaultMaxAttempts = 3

// execState is the position of a logical call in the executor loop.
type execState int

const (
	stateAttaching execState = iota
	stateInFlight
	stateClassifying
	stateRefreshing
	stateDone
	stateExhausted
)

func (s execState) String() string {
	switch s {
	case stateAttaching:
		return "attaching"
	case stateInFlight:
		return "in_flight"
	case stateClassifying:
		return "classifying"
	case stateRefreshing:
		return "refreshing"
	case stateDone:
		return "done"
	case stateExhausted:
		return "exhausted"
	default:
		return fmt.Sprintf("execState(%d)", int(s))
	}
}

// call is one logical request handed to the executor.
type call struct {
	req         Request
	maxAttempts int
	// refreshExempt calls treat a 401 as terminal. Refresh and revoke use it.
	refreshExempt bool
}

// outcome is the terminal result of a call. stage records where the loop
// stopped, so callers can tell a resource failure from a refresh failure.
type outcome struct {
	resp     *RawResponse
	err      error
	stage    execState
	attempts int
}

type attemptResult struct {
	resp *RawResponse
	err  error
}

type executor struct {
	transport Transport
	cache     *CredentialCache
	hooks     []RequestHook
	logger    *zap.Logger
	refresh   func(ctx context.Context) error
}

// run drives one logical call to a terminal outcome. Attempts are strictly
// sequential; a 401 triggers a refresh and, while the bound allows, another
// attempt with the refreshed credential.
func (e *executor) run(ctx context.Context, c call) outcome {
	if c.maxAttempts <= 0 {
		return outcome{err: &AttemptsExhaustedError{}, stage: stateExhausted}
	}

	var (
		state     = stateAttaching
		remaining = c.maxAttempts
		attempt   int
		httpReq   *http.Request
		resp      *RawResponse
		err       error
	)
	for {
		switch state {
		case stateAttaching:
			cred := e.cache.Get(ctx)
			if cred == nil {
				return outcome{err: ErrMissingCredential, stage: state, attempts: attempt}
			}
			if httpReq, err = c.req.build(ctx, cred); err != nil {
				return outcome{err: err, stage: state, attempts: attempt}
			}
			attempt++
			state = stateInFlight

		case stateInFlight:
			resp, err = e.roundTrip(ctx, httpReq)
			state = stateClassifying

		case stateClassifying:
			e.logger.Debug("attempt finished",
				zap.String("method", httpReq.Method),
				zap.String("url", redactURL(httpReq.URL.String())),
				zap.Int("attempt", attempt),
				zap.Error(err))
			if err == nil {
				return outcome{resp: resp, stage: stateDone, attempts: attempt}
			}
			if c.refreshExempt || !IsUnauthorized(err) {
				return outcome{err: err, stage: state, attempts: attempt}
			}
			state = stateRefreshing

		case stateRefreshing:
			if rerr := e.refresh(ctx); rerr != nil {
				return outcome{err: rerr, stage: state, attempts: attempt}
			}
			remaining--
			if remaining == 0 {
				e.logger.Info("attempts exhausted", zap.Int("attempts", attempt))
				return outcome{
					err:      &AttemptsExhaustedError{Attempts: attempt, Last: err},
					stage:    stateExhausted,
					attempts: attempt,
				}
			}
			state = stateAttaching
		}
	}
}

// roundTrip performs one physical request on its own goroutine. If ctx ends
// first the attempt is abandoned: its result lands in a channel nobody reads.
func (e *executor) roundTrip(ctx context.Context, req *http.Request) (*RawResponse, error) {
	for _, h := range e.hooks {
		h.BeforeRequest(req)
	}

	ch := make(chan attemptResult, 1)
	go func() {
		resp, err := readResponse(e.transport.Do(req))
		ch <- attemptResult{resp: resp, err: err}
	}()

	var r attemptResult
	select {
	case r = <-ch:
	case <-ctx.Done():
		r = attemptResult{err: ctx.Err()}
	}

	for _, h := range e.hooks {
		h.AfterResponse(req, r.resp, r.err)
	}

	err := Classify(r.resp, r.err)
	if netErr, ok := err.(*NetworkError); ok {
		netErr.Method = req.Method
		netErr.URL = redactURL(req.URL.String())
	}
	return r.resp, err
}

// readResponse drains and closes the body.
func readResponse(resp *http.Response, err error) (*RawResponse, error) {
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("reading response body: %w", err)
	}
	return &RawResponse{
		StatusCode: resp.StatusCode,
		Header:     resp.Header,
		Body:       body,
	}, nil
}
