// Package main provides the bench simulator CLI. It runs the real device
// loop against scripted sensor drivers and inspects the on-disk library.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "readtrack-sim",
	Short: "Bench simulator for the ReadTrack device",
	Long: `readtrack-sim drives the device loop with scripted light and tag
inputs instead of hardware, rendering the device screen to the terminal.
It is the tool for exercising session, timer, and sleep behavior on a
development machine.`,
	SilenceUsage: true,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
