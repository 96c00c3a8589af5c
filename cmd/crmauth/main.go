package main

import (
	"log"

	"github.com/tech-arch1tect/crmauth"
)

func main() {
	app, err := crmauth.New()
	if err != nil {
		log.Fatalf("Failed to build application: %v", err)
	}
	app.Run()
}
