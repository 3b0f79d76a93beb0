package main

import (
	"os"

	"github.com/jacklau/icedb/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
