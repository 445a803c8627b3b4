package main

import (
	"log/slog"

	"github.com/BioHazard786/Warpcall/cmd"
	"github.com/BioHazard786/Warpcall/internal/logging"
)

func main() {
	// serve raises the default level when it starts
	logging.Init(slog.LevelError)
	cmd.Execute()
}
