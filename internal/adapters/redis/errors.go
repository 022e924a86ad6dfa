package redis

import (
	"context"
	"errors"
	"io"
	"net"
	"strings"

	"feedcore/internal/core/errs"

	"github.com/go-redis/redis/v8"
)

// classify maps a go-redis error onto the error taxonomy.
func classify(err error) error {
	if err == nil {
		return nil
	}

	var netErr net.Error
	switch {
	case errors.Is(err, redis.Nil):
		return errs.ErrCacheMiss
	case strings.HasPrefix(err.Error(), "OOM "):
		// maxmemory reached with a noeviction policy
		return errs.Capacity(err)
	case errors.Is(err, context.Canceled):
		return err
	case errors.Is(err, context.DeadlineExceeded),
		errors.Is(err, io.EOF),
		errors.Is(err, redis.ErrClosed),
		errors.As(err, &netErr):
		return errs.Transient(err)
	}
	return errs.Transient(err)
}
