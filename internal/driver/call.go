package driver

import (
	"context"
	"fmt"
	"time"

	"github.com/nerrad567/gray-logic-hub/internal/fault"
)

type callResult[T any] struct {
	value T
	err   error
}

// Call runs one plugin call under timeout and classifies its outcome.
//
// The call runs on its own goroutine so a plugin that ignores ctx cannot
// hold the caller past the deadline. A panic becomes a Driver error, an
// expired deadline a Connection error, any other unclassified error an
// Internal one. Driver errors get driverID attached. timeout <= 0 means
// no limit beyond ctx.
func Call[T any](ctx context.Context, timeout time.Duration, driverID string, fn func(context.Context) (T, error)) (T, error) {
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	done := make(chan callResult[T], 1)
	go func() {
		var res callResult[T]
		defer func() {
			if r := recover(); r != nil {
				res.err = fault.DriverFault(driverID, nil, fmt.Sprintf("plugin panicked: %v", r))
			}
			done <- res
		}()
		res.value, res.err = fn(ctx)
	}()

	var zero T
	select {
	case res := <-done:
		if res.err != nil {
			return zero, fault.WithDriver(fault.Classify(res.err), driverID)
		}
		return res.value, nil
	case <-ctx.Done():
		return zero, fault.WithDriver(fault.Classify(ctx.Err()), driverID)
	}
}
