package grpc

import (
	"context"
	"strings"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"
)

// protectedMethods require a bearer access token in the "authorization"
// metadata.
var protectedMethods = map[string]bool{
	profileMethod: true,
}

func (s *GRPCServer) accessTokenInterceptor(ctx context.Context, req interface{}, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (interface{}, error) {

	if protectedMethods[info.FullMethod] {

		var accessToken string
		if md, ok := metadata.FromIncomingContext(ctx); ok {
			values := md.Get(common.AuthorizationHeaderName)
			if len(values) > 0 && strings.HasPrefix(values[0], common.BearerPrefix) {
				accessToken = strings.TrimSpace(strings.TrimPrefix(values[0], common.BearerPrefix))
			}
		}
		if len(accessToken) == 0 {
			return nil, status.Error(codes.Unauthenticated, "missing token")
		}

		claims, err := s.verifier.VerifyToken(accessToken)
		if err != nil {
			s.logger.Warn(ctx, "bearer token rejected", "method", info.FullMethod, "error", err)
			return nil, status.Error(codes.Unauthenticated, "invalid token")
		}

		ctx = auth.WithIdentity(ctx, auth.Identity{ID: claims.Subject})

	}

	return handler(ctx, req)
}
