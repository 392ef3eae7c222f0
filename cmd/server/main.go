package main

import (
	"github.com/knosphere/backend/internal/server"
	"github.com/knosphere/backend/internal/util"
	"github.com/knosphere/backend/pkg/logger"
	"github.com/knosphere/backend/pkg/logger/console"

	_ "github.com/lib/pq"
)

func main() {
	util.LoadEnv()

	debug := util.GetEnvBool("DEBUG", false)

	consoleLogger := console.New(console.Params{
		Debug: debug,
	})
	logger.Init(consoleLogger)

	server.Init()
}
