package timeout

import (
	"errors"
	"fmt"
	"time"
)

// Error reports that an operation outlived its deadline.
type Error struct {
	Desc  string
	Limit time.Duration
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s timed out after %s", e.Desc, e.Limit)
}

// Is reports whether err is a timeout Error.
func Is(err error) bool {
	var te *Error
	return errors.As(err, &te)
}

// Guard runs op and waits at most limit for it to finish. If op completes
// first its error is returned; otherwise Guard returns an *Error. The timer
// is stopped on both paths. The operation itself is never cancelled, only
// abandoned: it delivers into a buffered channel so its goroutine can finish
// after Guard has returned.
func Guard(limit time.Duration, desc string, op func() error) error {
	done := make(chan error, 1)
	go func() {
		done <- op()
	}()

	timer := time.NewTimer(limit)
	defer timer.Stop()

	select {
	case err := <-done:
		return err
	case <-timer.C:
		return &Error{Desc: desc, Limit: limit}
	}
}
