package main

import (
	"mtmatch/cmd/handlers"
	"mtmatch/internal/logger"
)

func main() {
	logger.Init()
	handlers.Execute()
}
