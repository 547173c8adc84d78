package main

import (
	"os"

	_ "github.com/joho/godotenv/autoload"
)

// @title Docshelf API
// @version 1.0
// @description Upload, list and download titled documents.
// @BasePath /
func main() {
	if err := Execute(); err != nil {
		os.Exit(1)
	}
}
