package main

import (
	"github.com/xrcap/xrcap/internal/api"
	"github.com/xrcap/xrcap/internal/api/ws"
	"github.com/xrcap/xrcap/internal/app"
	"github.com/xrcap/xrcap/internal/capture"
	"github.com/xrcap/xrcap/pkg/shell"
)

func main() {
	app.Init() // init config and logs

	api.Init() // init HTTP API server
	ws.Init()  // init WS API endpoint

	capture.Init() // open the headset and register capture API

	sig := shell.RunUntilSignal()

	app.Logger.Info().Msgf("[app] stop by %s", sig)

	capture.Close()
}
