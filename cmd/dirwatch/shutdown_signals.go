package main

import (
	"context"
	"os"
	"sync"

	"dirwatch/internal/logging"
)

// forwardShutdownSignals cancels on the first signal read from signals. The
// second signal is logged and every later one is ignored silently. The
// returned func stops forwarding.
func forwardShutdownSignals(logger *logging.Logger, cancel context.CancelFunc, signals <-chan os.Signal) func() {
	if signals == nil {
		return func() {}
	}

	stop := make(chan struct{})
	go func() {
		received := 0
		for {
			select {
			case <-stop:
				return
			case sig, ok := <-signals:
				if !ok {
					return
				}
				received++
				switch received {
				case 1:
					logger.Info("shutdown signal received", signalFields(sig))
					if cancel != nil {
						cancel()
					}
				case 2:
					logger.Info("shutdown already in progress, ignoring signal", signalFields(sig))
				}
			}
		}
	}()

	var once sync.Once
	return func() {
		once.Do(func() {
			close(stop)
		})
	}
}

func signalFields(sig os.Signal) map[string]string {
	fields := map[string]string{}
	if sig != nil {
		fields["signal"] = sig.String()
	}
	return fields
}
