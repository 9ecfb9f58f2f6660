package skyapi

import (
	"errors"

	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/signalsfoundry/thyrannic-sky/calendar"
	"github.com/signalsfoundry/thyrannic-sky/core"
	"github.com/signalsfoundry/thyrannic-sky/kb"
	"github.com/signalsfoundry/thyrannic-sky/model"
)

// ErrInvalidArgument marks malformed requests.
var ErrInvalidArgument = errors.New("invalid argument")

// ToStatusError maps sky errors onto gRPC status codes. Errors that already
// carry a status pass through unchanged.
func ToStatusError(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}

	switch {
	case errors.Is(err, kb.ErrBodyNotFound):
		return status.Error(codes.NotFound, err.Error())

	case errors.Is(err, ErrInvalidArgument),
		errors.Is(err, model.ErrInvalidElements),
		errors.Is(err, calendar.ErrUnknownUnit),
		errors.Is(err, calendar.ErrInvalidDate),
		errors.Is(err, core.ErrInvalidScenario):
		return status.Error(codes.InvalidArgument, err.Error())

	case errors.Is(err, kb.ErrNoPrimary),
		errors.Is(err, kb.ErrNoObserver):
		return status.Error(codes.FailedPrecondition, err.Error())

	case errors.Is(err, kb.ErrBodyExists):
		return status.Error(codes.AlreadyExists, err.Error())

	default:
		return status.Error(codes.Internal, err.Error())
	}
}
