// Command filevault-ctl controls a running filevault daemon.
package main

import (
	"fmt"
	"os"

	"github.com/diane-assistant/filevault/internal/api"
	"github.com/diane-assistant/filevault/internal/cli"
)

// Version is set at build time via ldflags
var Version = "dev"

func main() {
	client := api.NewClient()
	if url := os.Getenv("FILEVAULT_URL"); url != "" {
		client = api.NewRemoteClient(url, os.Getenv("FILEVAULT_API_KEY"))
	}

	if err := cli.NewRootCmd(client, Version).Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
