package main

import (
	"github.com/joho/godotenv"

	"parahr/internal/app/server"
)

func main() {
	_ = godotenv.Load()
	server.Run()
}
