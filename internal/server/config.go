package server

import (
	"github.com/Sharonmee/OpenEye/internal/app"
	"github.com/Sharonmee/OpenEye/internal/interfaces"
	"github.com/Sharonmee/OpenEye/internal/logging"
	"github.com/Sharonmee/OpenEye/internal/zap"
)

type Config struct {
	// ListenAddr is the HTTP listen address for the API server.
	ListenAddr string

	// StorageRoot is the directory holding the scan job database.
	StorageRoot string

	// AppConfig tunes scan orchestration. Nil means app.DefaultConfig.
	AppConfig *app.Config

	// ZAPConfig locates the scan engine. Nil means zap.DefaultConfig. Ignored
	// when Engine is set.
	ZAPConfig *zap.Config

	// Engine overrides the ZAP client, mainly for tests and the demo engine.
	Engine interfaces.Engine

	// Logger receives server and orchestration logs. Nil means a stdout logger.
	Logger logging.Logger
}
