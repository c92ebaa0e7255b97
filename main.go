package main

import (
	"fmt"
	"os"
)

// main is the entry point of the application.
func main() {
	registerCommands()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
