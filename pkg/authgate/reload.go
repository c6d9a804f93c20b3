package authgate

import (
	"os"
	"os/signal"
	"syscall"
)

// WatchSIGHUP reloads the key file whenever the process receives
// SIGHUP, logging (but not exiting on) reload failures. Returns a
// stop function that releases the signal handler. Grounded on
// cmd/warren/main.go's os/signal.Notify shutdown pattern, extended
// from termination handling to config reload.
func (g *Gate) WatchSIGHUP() (stop func()) {
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGHUP)
	done := make(chan struct{})

	go func() {
		for {
			select {
			case <-sigCh:
				if err := g.Reload(); err != nil {
					g.logger.Error().Err(err).Msg("api keys reload failed, keeping previous key set")
				}
			case <-done:
				signal.Stop(sigCh)
				return
			}
		}
	}()

	return func() { close(done) }
}
