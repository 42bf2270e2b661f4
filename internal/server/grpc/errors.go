package grpc

import (
	"context"
	"errors"
	"strconv"

	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/metadata"
	"google.golang.org/grpc/status"

	"github.com/dmitrijs2005/permitauth/internal/common"
)

// retryAfterTrailer carries the rate limit hint in whole seconds.
const retryAfterTrailer = "retry-after"

// toStatus maps a service error to a gRPC status. Internal details are
// logged and never returned to the caller.
func (s *GRPCServer) toStatus(ctx context.Context, err error) error {
	switch {
	case errors.Is(err, common.ErrInvalidCredentials),
		errors.Is(err, common.ErrInvalidToken),
		errors.Is(err, common.ErrTokenExpired),
		errors.Is(err, common.ErrTokenRevoked):
		return status.Error(codes.Unauthenticated, common.Reason(err))

	case errors.Is(err, common.ErrRateLimited):
		var rl *common.RateLimitError
		if errors.As(err, &rl) && rl.RetryAfter > 0 {
			secs := strconv.Itoa(int(rl.RetryAfter.Seconds()))
			_ = grpc.SetTrailer(ctx, metadata.Pairs(retryAfterTrailer, secs))
		}
		return status.Error(codes.ResourceExhausted, err.Error())

	case errors.Is(err, common.ErrorValidation):
		return status.Error(codes.InvalidArgument, err.Error())
	case errors.Is(err, common.ErrorAlreadyExists):
		return status.Error(codes.AlreadyExists, err.Error())
	case errors.Is(err, common.ErrorNotFound):
		return status.Error(codes.NotFound, err.Error())
	}

	s.logger.Error(ctx, "request failed", "err", err)
	return status.Error(codes.Internal, "internal error")
}
