// Package grpc serves token verification and the caller's profile to other
// services over gRPC.
package grpc

import (
	"context"
	"net"

	"github.com/dmitrijs2005/eventhub/internal/logging"
	"github.com/dmitrijs2005/eventhub/internal/server/auth"
	"github.com/dmitrijs2005/eventhub/internal/server/models"
	"google.golang.org/grpc"
)

type ProfileReader interface {
	Profile(ctx context.Context, userID string) (*models.User, error)
}

type Verifier interface {
	VerifyToken(token string) (*auth.Claims, error)
}

type GRPCServer struct {
	address  string
	users    ProfileReader
	verifier Verifier
	logger   logging.Logger
}

func NewGRPCServer(a string, l logging.Logger, us ProfileReader, v Verifier) *GRPCServer {
	return &GRPCServer{
		address:  a,
		logger:   l.With("module", "grpc_server"),
		users:    us,
		verifier: v,
	}
}

func (s *GRPCServer) Run(ctx context.Context) error {

	// announces address
	listen, err := net.Listen("tcp", s.address)
	if err != nil {
		return err
	}

	return s.Serve(ctx, listen)
}

// Serve accepts connections on lis until ctx is cancelled.
func (s *GRPCServer) Serve(ctx context.Context, lis net.Listener) error {

	// creates gRPC-server
	srv := grpc.NewServer(grpc.ChainUnaryInterceptor(s.accessTokenInterceptor))

	// registers service
	srv.RegisterService(&authServiceDesc, s)

	go func() {
		<-ctx.Done()
		s.logger.Info(ctx, "Stopping gRPC server...")
		srv.GracefulStop()
	}()

	s.logger.Info(ctx, "Starting gRPC server", "address", lis.Addr().String())

	// starts accepting incoming connections
	if err := srv.Serve(lis); err != nil {
		return err
	}

	return nil
}
