package main

import (
	"log"
	"os"

	"github.com/spf13/cobra"
)

var version = "dev"

func main() {
	var root = &cobra.Command{Use: "atlast", Short: "Geography riddle service with a prefetching buffer", Version: version}

	root.AddCommand(serveCMD(), migrateCMD(), providersCMD())
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newLogger(prefix string) *log.Logger {
	return log.New(log.Writer(), prefix, log.LstdFlags)
}
