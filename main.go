package main

import (
	"os"

	"github.com/AlfredBerg/rod-records/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
