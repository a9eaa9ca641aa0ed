package docker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	cerrdefs "github.com/containerd/errdefs"
	"github.com/docker/docker/client"
	"github.com/hashicorp/go-retryablehttp"

	"swarmorch/internal/errdefs"
)

const (
	readAttempts = 3
	retryWaitMin = 100 * time.Millisecond
	retryWaitMax = time.Second
)

// wrapErr translates docker client errors into errdefs kinds, keeping the
// original message.
func wrapErr(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, context.Canceled), errors.Is(err, context.DeadlineExceeded):
		return err
	case cerrdefs.IsNotFound(err):
		return fmt.Errorf("%w: %w", errdefs.ErrNotFound, err)
	case cerrdefs.IsConflict(err), cerrdefs.IsAlreadyExists(err):
		return fmt.Errorf("%w: %w", errdefs.ErrConflict, err)
	case cerrdefs.IsInvalidArgument(err):
		return fmt.Errorf("%w: %w", errdefs.ErrInvalidArgument, err)
	case cerrdefs.IsDeadlineExceeded(err):
		return fmt.Errorf("%w: %w", errdefs.ErrTimeout, err)
	default:
		return fmt.Errorf("%w: %w", errdefs.ErrUpstreamUnavailable, err)
	}
}

// retryable reports whether a read can be reattempted. Only transport
// failures qualify; the daemon's own answers are final.
func retryable(err error) bool {
	return client.IsErrConnectionFailed(err) || cerrdefs.IsUnavailable(err)
}

// read runs fn up to readAttempts times with exponential backoff between
// connection failures. Mutations never go through here.
func read[T any](ctx context.Context, op string, fn func(context.Context) (T, error)) (T, error) {
	var zero T
	var err error
	for attempt := range readAttempts {
		var out T
		out, err = fn(ctx)
		if err == nil {
			return out, nil
		}
		if !retryable(err) || attempt == readAttempts-1 {
			break
		}
		wait := retryablehttp.DefaultBackoff(retryWaitMin, retryWaitMax, attempt, nil)
		slog.Debug("retrying docker read", "component", "docker", "op", op, "attempt", attempt+1, "wait", wait, "err", err)
		select {
		case <-ctx.Done():
			return zero, ctx.Err()
		case <-time.After(wait):
		}
	}
	return zero, fmt.Errorf("%s: %w", op, wrapErr(err))
}
