// Package main provides the dcverify command.
package main

import (
	"errors"
	"io/fs"
	"os"

	"github.com/joho/godotenv"
	"github.com/leapstack-labs/dcverify/internal/cli"
)

func main() {
	// A .env file is optional; variables it sets feed ${VAR} expansion and
	// DCVERIFY_* overrides.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		_, _ = os.Stderr.WriteString("Warning: failed to load .env: " + err.Error() + "\n")
	}

	if err := cli.Execute(); err != nil {
		os.Exit(1)
	}
}
