package main

import (
	"log"

	transport "homefeed/internal/transport/http"
)

func main() {
	if err := transport.Run(); err != nil {
		log.Fatalf("[Server] Fatal: %v", err)
	}
}
