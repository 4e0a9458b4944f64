package main

import (
	"flag"
	"log"

	"github.com/semp-project/semp/internal/server"
)

func main() {
	var port string
	flag.StringVar(&port, "port", "", "Server port (overrides env PORT)")
	flag.Parse()

	srv, err := server.NewServer(port)
	if err != nil {
		log.Fatalf("Failed to init server: %v", err)
	}

	if err := srv.Start(); err != nil {
		log.Fatalf("Server failed: %v", err)
	}
}
