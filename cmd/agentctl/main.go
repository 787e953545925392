// Command agentctl is the orchestrator CLI: init scaffolds a project,
// config inspects/validates the resolved configuration, status reports
// task counts, and run drives the orchestrator loop end to end.
package main

import (
	"os"

	"github.com/wcgan7/agentctl/internal/cli"
)

func main() {
	os.Exit(cli.Execute())
}
