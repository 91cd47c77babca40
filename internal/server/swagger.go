package server

//go:generate swag init -g internal/server/server.go -o docs/swagger

// @title OpenEye API
// @version 0.1
// @description Interactive documentation for the OpenEye scan orchestrator API surface.
// @contact.name OpenEye Maintainers
// @contact.url https://github.com/Sharonmee/OpenEye
// @BasePath /
