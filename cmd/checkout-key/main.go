package main

import (
	"flag"
	"os"

	"github.com/louisbranch/duetstage/internal/platform/config"
	"github.com/louisbranch/duetstage/internal/tools/checkoutkey"
)

func main() {
	cfg, err := checkoutkey.ParseConfig(flag.CommandLine, os.Args[1:])
	if err != nil {
		config.Exitf("parse flags: %v", err)
	}
	if err := checkoutkey.Run(cfg, os.Stdout, nil); err != nil {
		config.Exitf("generate key: %v", err)
	}
}
