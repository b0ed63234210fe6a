package main

import (
	"os"

	"github.com/sunilblinkoninfra-cyber/PhishX/cmd/phishx/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
