package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"

	"github.com/thureinphyoecoder/larapee-sync/internal/cli"
)

func main() {
	_ = godotenv.Load() // Load .env file if it exists

	cmd := cli.NewRootCommand()
	if err := cmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(cli.GetExitCode(err))
	}
}
