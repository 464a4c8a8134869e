package async

import (
	"context"
)

// Call runs a blocking fn that cannot be cancelled on its own (eg: a client library call without context
// support). Call returns the context error as soon as ctx is done, the abandoned fn keeps running in the
// background and its result is discarded.
func Call(ctx context.Context, fn func() error) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	done := make(chan error, 1)
	go func() {
		done <- fn()
	}()

	select {
	case err := <-done:
		return err
	case <-ctx.Done():
		return ctx.Err()
	}
}
