package main

import (
	"log/slog"

	"github.com/finpilot/finpilot/pkg/finpilot"
)

func main() {

	//you may do your own logger setup here or use this default one with slog
	finpilot.SetupLogger()

	if err := finpilot.Start(nil); err != nil {
		slog.Error("Engine exited with error", "error", err)
	}
}
