package main

import (
	"os"

	"github.com/watzon/markguard/internal/cli"
)

// Set by -ldflags "-X main.version=... -X main.commit=...".
var (
	version = "dev"
	commit  = "none"
)

func main() {
	cli.SetVersionInfo(version, commit)
	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
