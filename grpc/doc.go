// Package grpc carries a questauth session's bearer credential on outgoing
// gRPC calls.
//
// Two pieces are provided: PerRPCCredentials, which stamps the credential
// on every call, and UnaryClientInterceptor, which additionally refreshes
// and retries when the server answers codes.Unauthenticated, with the same
// attempt bound the HTTP executor uses.
//
//	conn, err := grpc.NewClient(target,
//	    grpc.WithTransportCredentials(creds),
//	    grpc.WithUnaryInterceptor(qgrpc.UnaryClientInterceptor(session, nil)),
//	    grpc.WithStreamInterceptor(qgrpc.StreamClientInterceptor(session, nil)),
//	)
package grpc
