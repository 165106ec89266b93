// Package main provides the entry point for the tutor CLI.
package main

import (
	"os"

	"github.com/bjornefisk/StudyTutor/cmd/tutor/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(1)
	}
}
