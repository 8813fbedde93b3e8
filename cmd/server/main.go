package main

import (
	"github.com/knotworks/strata/internal/server"
	"github.com/knotworks/strata/internal/util"
	"github.com/knotworks/strata/pkg/logger"
	"github.com/knotworks/strata/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.NewConsoleLogger(console.ConsoleLoggerParams{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
