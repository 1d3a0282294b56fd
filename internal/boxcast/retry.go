package boxcast

import (
	"time"

	"github.com/cenkalti/backoff/v5"
)

// RetryConfig bounds how transient API failures are retried
type RetryConfig struct {
	// MaxTries counts the first attempt; 0 means retry until MaxElapsed
	MaxTries        uint
	InitialInterval time.Duration
	MaxInterval     time.Duration
	MaxElapsed      time.Duration
}

func DefaultRetryConfig() RetryConfig {
	return RetryConfig{
		MaxTries:        5,
		InitialInterval: time.Second,
		MaxInterval:     30 * time.Second,
		MaxElapsed:      5 * time.Minute,
	}
}

func (rc RetryConfig) options() []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	if rc.InitialInterval > 0 {
		b.InitialInterval = rc.InitialInterval
	}
	if rc.MaxInterval > 0 {
		b.MaxInterval = rc.MaxInterval
	}
	opts := []backoff.RetryOption{backoff.WithBackOff(b)}
	if rc.MaxTries > 0 {
		opts = append(opts, backoff.WithMaxTries(rc.MaxTries))
	}
	if rc.MaxElapsed > 0 {
		opts = append(opts, backoff.WithMaxElapsedTime(rc.MaxElapsed))
	}
	return opts
}
