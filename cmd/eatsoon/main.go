package main

import (
	"errors"
	"io/fs"
	"log"

	"github.com/joho/godotenv"

	"eatsoon/cmd/internal/app"
)

func main() {
	// A .env file is optional; real deployments set the environment directly.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		log.Fatal(err)
	}
	if err := app.Run(); err != nil {
		log.Fatal(err)
	}
}
