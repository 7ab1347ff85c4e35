package utils

import (
	"github.com/pkg/errors"
	"golang.org/x/net/context"
)

// ContextError returns the error of ctx, with a stack trace attached, if ctx is already done. It does not block.
func ContextError(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return errors.WithStack(ctx.Err())
	default:
		return nil
	}
}
