// Package main registers epochs into the local epoch mirror.
package main

import (
	"context"
	"flag"
	"os"

	ingestcmd "github.com/louisbranch/ephemera.space/internal/cmd/ingest"
	"github.com/louisbranch/ephemera.space/internal/platform/config"
)

func main() {
	cfg, err := ingestcmd.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}

	if err := ingestcmd.Run(context.Background(), cfg, os.Stdout); err != nil {
		config.Exitf("register epoch: %v", err)
	}
}
