package grpc

import (
	"context"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/panyam/questauth"
)

// UnaryClientInterceptor returns a gRPC unary client interceptor that sends
// the session credential and, when the server answers Unauthenticated,
// refreshes it and resends the call. After MaxAttempts sends it returns a
// *questauth.AttemptsExhaustedError wrapping the last status.
func UnaryClientInterceptor(session *questauth.Session, config *Config) grpc.UnaryClientInterceptor {
	config = configOrDefault(config)

	return func(ctx context.Context, method string, req, reply any, cc *grpc.ClientConn, invoker grpc.UnaryInvoker, opts ...grpc.CallOption) error {
		if config.MaxAttempts <= 0 {
			return &questauth.AttemptsExhaustedError{}
		}

		for attempt := 1; ; attempt++ {
			cred := session.Credential(ctx)
			if cred == nil {
				return status.Error(codes.Unauthenticated, questauth.ErrMissingCredential.Error())
			}

			err := invoker(withCredential(ctx, cred, config.MetadataKey), method, req, reply, cc, opts...)
			if status.Code(err) != codes.Unauthenticated {
				return err
			}

			if rerr := session.Refresh(ctx); rerr != nil {
				return rerr
			}
			if attempt >= config.MaxAttempts {
				return &questauth.AttemptsExhaustedError{Attempts: attempt, Last: err}
			}
		}
	}
}

// StreamClientInterceptor returns a gRPC stream client interceptor that
// sends the session credential. Streams are not retried.
func StreamClientInterceptor(session *questauth.Session, config *Config) grpc.StreamClientInterceptor {
	config = configOrDefault(config)

	return func(ctx context.Context, desc *grpc.StreamDesc, cc *grpc.ClientConn, method string, streamer grpc.Streamer, opts ...grpc.CallOption) (grpc.ClientStream, error) {
		cred := session.Credential(ctx)
		if cred == nil {
			return nil, status.Error(codes.Unauthenticated, questauth.ErrMissingCredential.Error())
		}
		return streamer(withCredential(ctx, cred, config.MetadataKey), desc, cc, method, opts...)
	}
}
