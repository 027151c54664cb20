package kubernetes

import (
	"fmt"
	"time"
)

const (
	maxRetries = 3
	retryDelay = 2 * time.Second
)

type Config struct {
	MaxRetries int
	RetryDelay time.Duration
}

func (c *Config) validate() error {
	if c.MaxRetries < 0 {
		return fmt.Errorf("config MaxRetries cannot be < 0 (got %d)", c.MaxRetries)
	}
	if c.MaxRetries == 0 {
		c.MaxRetries = maxRetries
	}
	if c.RetryDelay < 0 {
		return fmt.Errorf("config RetryDelay cannot be < 0 (got %d)", c.RetryDelay)
	}
	if c.RetryDelay == 0 {
		c.RetryDelay = retryDelay
	}
	return nil
}
