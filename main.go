package main

import (
	"log"

	"github.com/eagleai/match-engine/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		log.Fatal(err)
	}
}
