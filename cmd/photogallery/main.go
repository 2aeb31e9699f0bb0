// filepath: cmd/photogallery/main.go
package main

import (
	"photogallery/internal/cli"
)

// @title Photo Gallery API
// @version 1.0.0
// @description Image ingestion pipeline and gallery for a personal website.
// @BasePath /api
// @schemes http

func main() {
	// Delegate all execution to the CLI package
	cli.Execute()
}
