package grpc

import (
	"context"
	"errors"
	"time"

	"github.com/dmitrijs2005/eventhub/internal/common"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
	"google.golang.org/protobuf/types/known/emptypb"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

func (s *GRPCServer) VerifyToken(ctx context.Context, req *wrapperspb.StringValue) (*structpb.Struct, error) {

	claims, err := s.verifier.VerifyToken(req.GetValue())
	if err != nil {
		if errors.Is(err, common.ErrTokenExpired) {
			return nil, status.Error(codes.Unauthenticated, "token expired")
		}
		return nil, status.Error(codes.Unauthenticated, "invalid token")
	}

	return structpb.NewStruct(map[string]any{
		"subject":    claims.Subject,
		"issued_at":  claims.IssuedAt.UTC().Format(time.RFC3339),
		"expires_at": claims.ExpiresAt.UTC().Format(time.RFC3339),
	})

}

func (s *GRPCServer) Profile(ctx context.Context, _ *emptypb.Empty) (*structpb.Struct, error) {

	id, ok := auth.IdentityFromContext(ctx)
	if !ok {
		return nil, status.Error(codes.Unauthenticated, "missing token")
	}

	user, err := s.users.Profile(ctx, id.ID)
	if err != nil {
		if errors.Is(err, common.ErrorNotFound) {
			return nil, status.Error(codes.NotFound, "user not found")
		}
		s.logger.Error(ctx, "profile failed", "error", err)
		return nil, status.Error(codes.Internal, "internal error")
	}

	return structpb.NewStruct(map[string]any{
		"id":            user.ID,
		"username":      user.Username,
		"email":         user.Email,
		"profile_image": user.ProfileImage,
	})

}
