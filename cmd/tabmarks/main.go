package main

import (
	"log"

	"github.com/tabmarks/tabmarks/internal/app"
)

func main() {
	if err := app.New().Run(); err != nil {
		log.Fatalf("❌ tabmarks failed to start: %v", err)
	}
}
