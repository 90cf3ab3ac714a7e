package main

import (
	"context"
	"os"

	"dtreewatch/internal/logging"
)

// watchShutdownSignals cancels the engine context on the first signal and
// logs, once, that later signals are ignored. The returned func stops the
// watcher goroutine.
func watchShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal) func() {
	if signalCh == nil {
		return func() {}
	}
	done := make(chan struct{})
	go forwardShutdownSignals(logger, shutdownCancel, signalCh, done)
	return func() {
		close(done)
	}
}

func forwardShutdownSignals(logger *logging.Logger, shutdownCancel context.CancelFunc, signalCh <-chan os.Signal, done <-chan struct{}) {
	received := 0
	for {
		select {
		case <-done:
			return
		case sig, ok := <-signalCh:
			if !ok {
				return
			}
			received++
			fields := map[string]string{}
			if sig != nil {
				fields["signal"] = sig.String()
			}
			switch received {
			case 1:
				logger.Info("shutdown signal received", fields)
				if shutdownCancel != nil {
					shutdownCancel()
				}
			case 2:
				logger.Warn("shutdown already in progress; ignoring signal", fields)
			}
		}
	}
}
