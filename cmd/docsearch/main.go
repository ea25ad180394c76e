package main

import (
	"os"

	"github.com/dshills/docsearch/internal/cli"
)

var (
	version   = "dev"
	buildTime = "unknown"
)

func main() {
	root := cli.NewRootCommand(cli.BuildInfo{Version: version, BuildTime: buildTime})
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}
