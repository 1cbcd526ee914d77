// Command wapi runs the WhatsApp property-management assistant.
package main

import (
	"log/slog"
	"os"
)

func main() {
	if err := RootCmd.Execute(); err != nil {
		slog.Error("wapi failed", "error", err)
		os.Exit(1)
	}
}

// initializeLogger sets up the text logger on stderr.
func initializeLogger(debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})))
}
