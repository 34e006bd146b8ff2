// Command fleetgate runs the proxy: load velocity.toml, bind the
// listener, serve until a signal asks it to stop.
package main

import (
	"os"

	"github.com/fleetgate/fleetgate/cmd/fleetgate/internal/cli"
)

func main() {
	if err := cli.Execute(); err != nil {
		os.Exit(cli.ExitCodeFor(err))
	}
}
