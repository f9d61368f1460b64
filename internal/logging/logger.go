package logging

import (
	"log/slog"
	"os"
)

// Setup installs the process-wide logger: JSON records on stdout, INFO and
// above. main swaps it for a MultiHandler once the database sink exists.
func Setup() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	})))
}
