// Command keephive runs the backup daemon: it loads a configuration file,
// schedules the backup jobs it describes, and keeps them running until
// told to stop.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"oss.nandlabs.io/keephive/config"
	"oss.nandlabs.io/keephive/internal/daemon"
	"oss.nandlabs.io/keephive/l3"
	"oss.nandlabs.io/keephive/lifecycle"
)

var logger = l3.Get()

// stopTimeout bounds how long the process waits for the daemon's own
// shutdownGracePeriod plus any remaining teardown before giving up.
const stopTimeout = 6 * time.Minute

func main() {
	configPath := config.GetEnvAsString("KEEPHIVE_CONFIG", "keephive_config.json")
	if len(os.Args) > 1 {
		configPath = os.Args[1]
	}

	d, err := daemon.New(configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "keephive: failed to initialize: %v\n", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	runDone := make(chan struct{})

	component := &lifecycle.SimpleComponent{
		CompId: "keephive-daemon",
		StartFunc: func() error {
			go func() {
				defer close(runDone)
				if err := d.Run(ctx); err != nil {
					logger.ErrorF("keephive: daemon exited with error: %v", err)
				}
			}()
			return nil
		},
		StopFunc: func() error {
			cancel()
			select {
			case <-runDone:
			case <-time.After(stopTimeout):
				logger.Warn("keephive: daemon did not shut down within the stop timeout")
			}
			return d.Close()
		},
	}

	manager := lifecycle.NewSimpleComponentManager()
	manager.Register(component)
	manager.StartAndWait()
}
