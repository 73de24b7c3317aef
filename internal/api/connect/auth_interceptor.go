package connect

import (
	"context"
	"crypto/subtle"

	"connectrpc.com/connect"
	"github.com/cockroachdb/errors"
	zlog "github.com/rs/zerolog/log"
)

const (
	// TokenHeader is the header name for the control token.
	TokenHeader = "X-Croquis-Token"
)

// authInterceptor validates the control token on unary and streaming calls.
type authInterceptor struct {
	token string
}

// NewAuthInterceptor creates an interceptor that validates control tokens
// from request metadata. An empty token disables the check.
func NewAuthInterceptor(token string) connect.Interceptor {
	return &authInterceptor{token: token}
}

func (i *authInterceptor) WrapUnary(next connect.UnaryFunc) connect.UnaryFunc {
	return func(ctx context.Context, req connect.AnyRequest) (connect.AnyResponse, error) {
		if err := i.check(req.Header().Get(TokenHeader), req.Spec().Procedure, req.Peer().Addr); err != nil {
			return nil, err
		}
		return next(ctx, req)
	}
}

func (i *authInterceptor) WrapStreamingClient(next connect.StreamingClientFunc) connect.StreamingClientFunc {
	return next
}

func (i *authInterceptor) WrapStreamingHandler(next connect.StreamingHandlerFunc) connect.StreamingHandlerFunc {
	return func(ctx context.Context, conn connect.StreamingHandlerConn) error {
		if err := i.check(conn.RequestHeader().Get(TokenHeader), conn.Spec().Procedure, conn.Peer().Addr); err != nil {
			return err
		}
		return next(ctx, conn)
	}
}

func (i *authInterceptor) check(got, procedure, peer string) error {
	if i.token == "" {
		return nil
	}
	if got == "" || subtle.ConstantTimeCompare([]byte(got), []byte(i.token)) != 1 {
		zlog.Warn().Msgf("unauthenticated request: procedure=%s peer=%s", procedure, peer)
		return connect.NewError(connect.CodeUnauthenticated, errors.New("invalid or missing control token"))
	}
	return nil
}
