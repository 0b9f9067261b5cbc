package dialer

import (
	"context"
	"strings"

	"golang.org/x/crypto/bcrypt"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// TokenAuth returns a unary interceptor that requires a bearer token whose
// bcrypt hash matches tokenHash.
func TokenAuth(tokenHash string) grpc.UnaryServerInterceptor {
	hash := []byte(tokenHash)
	return func(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
		md, ok := metadata.FromIncomingContext(ctx)
		if !ok {
			return nil, status.Error(codes.Unauthenticated, "missing credentials")
		}
		var token string
		for _, v := range md.Get("authorization") {
			if t, found := strings.CutPrefix(v, "Bearer "); found {
				token = strings.TrimSpace(t)
				break
			}
		}
		if token == "" {
			return nil, status.Error(codes.Unauthenticated, "missing bearer token")
		}
		if err := bcrypt.CompareHashAndPassword(hash, []byte(token)); err != nil {
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}
		return handler(ctx, req)
	}
}

// BearerToken attaches the token to every outgoing call.
type BearerToken string

func (t BearerToken) GetRequestMetadata(context.Context, ...string) (map[string]string, error) {
	return map[string]string{"authorization": "Bearer " + string(t)}, nil
}

func (BearerToken) RequireTransportSecurity() bool { return false }
