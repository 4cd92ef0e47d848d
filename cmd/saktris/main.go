package main

import (
	"github.com/tomgun/saktris-game-sub005/internal/cli"
	"github.com/tomgun/saktris-game-sub005/internal/logging"
)

func main() {
	// Initialize logging
	logging.Init()
	cli.Execute()
}
