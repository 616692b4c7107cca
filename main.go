package main

import (
	"log"

	"github.com/transitio/fleetcoord/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
