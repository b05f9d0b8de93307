package middleware

import (
	"context"

	"github.com/idudko/fhe-telemetry/internal/model"
)

type callerHolderKey struct{}

type callerHolder struct {
	caller model.Address
}

func withCallerHolder(ctx context.Context, h *callerHolder) context.Context {
	return context.WithValue(ctx, callerHolderKey{}, h)
}
