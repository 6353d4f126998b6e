package sentinel

import (
	"context"
	"time"

	"github.com/copyout/copyout-go/logger"
	"github.com/pkg/errors"
)

const (
	DEFAULT_TIMEOUT  = 0
	DEFAULT_INTERVAL = 100 * time.Millisecond
)

var ErrTimeout = errors.New("sentinel timed out")

type WatchStatus int

const (
	WatchSuccess WatchStatus = iota
	WatchErr
	WatchTimeout
	WatchCanceled
)

func (s WatchStatus) String() string {
	switch s {
	case WatchSuccess:
		return "SUCCESS"
	case WatchErr:
		return "ERROR"
	case WatchCanceled:
		return "CANCELED"
	case WatchTimeout:
		return "TIMEOUT"
	}
	return "<UNSET>"
}

// Sentinel retries a non-blocking attempt until it reports done.
//
// StatusFn must not block. It is called once immediately and again whenever
// Ready fires or the poll interval elapses, whichever comes first. A nil
// Ready channel leaves only the interval.
type Sentinel struct {
	StatusFn   func() (done bool, err error)
	Ready      <-chan struct{}
	OnCancelFn func() error
}

// Watch runs StatusFn until it is done, fails, the timeout expires or ctx is
// cancelled. A zero interval uses DEFAULT_INTERVAL and a zero timeout waits
// forever.
func (s Sentinel) Watch(ctx context.Context, interval, timeout time.Duration) (WatchStatus, error) {
	if s.StatusFn == nil {
		return WatchSuccess, nil
	}
	if timeout == 0 {
		timeout = DEFAULT_TIMEOUT
	}
	if interval == 0 {
		interval = DEFAULT_INTERVAL
	}

	var timeoutTimerCh <-chan time.Time
	if timeout != 0 {
		timeoutTimer := time.NewTimer(timeout)
		timeoutTimerCh = timeoutTimer.C
		defer timeoutTimer.Stop()
	}

	intervalTimer := time.NewTimer(interval)
	defer intervalTimer.Stop()

	for {
		done, err := s.StatusFn()
		if err != nil {
			return WatchErr, err
		}
		if done {
			return WatchSuccess, nil
		}

		select {
		case <-s.Ready:
		case <-intervalTimer.C:
			// resetting it here so statusFn is called again after interval time
			_ = intervalTimer.Reset(interval)
			continue
		case <-ctx.Done():
			if s.OnCancelFn != nil {
				if err := s.OnCancelFn(); err != nil {
					return WatchCanceled, err
				}
			}
			return WatchCanceled, ctx.Err()
		case <-timeoutTimerCh:
			logger.Info().Msgf("wait timed out after %s", timeout.String())
			return WatchTimeout, ErrTimeout
		}

		if !intervalTimer.Stop() {
			select {
			case <-intervalTimer.C:
			default:
			}
		}
		_ = intervalTimer.Reset(interval)
	}
}
