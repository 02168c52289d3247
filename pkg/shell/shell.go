package shell

import (
	"os"
	"os/signal"
	"syscall"
)

// RunUntilSignal blocks until SIGINT or SIGTERM and returns it.
func RunUntilSignal() os.Signal {
	sigs := make(chan os.Signal, 1)
	signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigs)
	return <-sigs
}
