package cli

import (
	"context"
	"os"
	"os/signal"
	"syscall"
)

// NewContext returns a context which gets cancelled on SIGINT or SIGTERM.
func NewContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
}
