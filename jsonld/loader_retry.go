package jsonld

import (
	"context"
	"log/slog"
	"time"

	"github.com/cenkalti/backoff/v4"
)

// RetryConfig controls the exponential backoff of a retrying loader.
type RetryConfig struct {
	MaxRetries      uint64        // retries after the first attempt
	InitialInterval time.Duration // delay before the first retry
	MaxInterval     time.Duration // cap for a single delay
	MaxElapsedTime  time.Duration // overall budget, 0 means no limit
}

// DefaultRetryConfig returns the defaults used for remote context loading.
func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxRetries:      3,
		InitialInterval: 100 * time.Millisecond,
		MaxInterval:     2 * time.Second,
		MaxElapsedTime:  10 * time.Second,
	}
}

type retryLoader struct {
	next   DocumentLoader
	cfg    RetryConfig
	logger *slog.Logger
}

// NewRetryLoader retries failed loads of next with exponential backoff.
// Cancellation of ctx and *Error results are not retried.
func NewRetryLoader(next DocumentLoader, cfg RetryConfig, logger *slog.Logger) DocumentLoader {
	if logger == nil {
		logger = slog.Default()
	}
	return &retryLoader{next: next, cfg: cfg, logger: logger}
}

func (r *retryLoader) LoadDocument(ctx context.Context, url string) (*RemoteDocument, error) {
	eb := backoff.NewExponentialBackOff()
	eb.InitialInterval = r.cfg.InitialInterval
	eb.MaxInterval = r.cfg.MaxInterval
	eb.MaxElapsedTime = r.cfg.MaxElapsedTime
	b := backoff.WithContext(backoff.WithMaxRetries(eb, r.cfg.MaxRetries), ctx)

	var doc *RemoteDocument
	op := func() error {
		d, err := r.next.LoadDocument(ctx, url)
		if err != nil {
			if ctx.Err() != nil || CodeOf(err) != "" {
				return backoff.Permanent(err)
			}
			return err
		}
		doc = d
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("retrying remote context load", "url", url, "wait", wait, "error", err)
	}
	if err := backoff.RetryNotify(op, b, notify); err != nil {
		return nil, err
	}
	return doc, nil
}
