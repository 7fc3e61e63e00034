package main

import (
	"log"

	"feedback-backend/internal/config"
	"feedback-backend/internal/server"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	srv := server.New(cfg)
	if err := srv.Initialize(); err != nil {
		srv.Echo.Logger.Fatalf("failed to initialize server: %v", err)
	}

	srv.Echo.Logger.Fatal(srv.Start())
}
