package xfeed

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/failsafe-go/failsafe-go"
	"github.com/failsafe-go/failsafe-go/retrypolicy"
)

func newNavRetry(maxRetries int, backoff time.Duration, log *slog.Logger) retrypolicy.RetryPolicy[any] {
	return retrypolicy.NewBuilder[any]().
		WithMaxRetries(maxRetries).
		WithBackoff(backoff, 4*backoff).
		WithJitterFactor(0.1).
		OnRetry(func(e failsafe.ExecutionEvent[any]) {
			log.Warn("xfeed: navigation failed, retrying", "attempt", e.Attempts(), "error", e.LastError())
		}).
		Build()
}

// gotoResilient navigates to target and waits for the load event, retrying
// with backoff. Each attempt is bounded by NavTimeout.
func (s *Source) gotoResilient(ctx context.Context, target string) error {
	err := failsafe.With[any](s.retry).WithContext(ctx).Run(func() error {
		actx, cancel := context.WithTimeout(ctx, s.opts.NavTimeout)
		defer cancel()
		p := s.page.Context(actx)
		if err := p.Navigate(target); err != nil {
			return err
		}
		return p.WaitLoad()
	})
	if err != nil {
		return fmt.Errorf("xfeed: goto %s: %w", target, err)
	}
	return nil
}
