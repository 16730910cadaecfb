// spearhead-agent drives a SpearHead server with simulated endpoint
// traffic: rule violation reports, heartbeats, and rule pulls.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spear-it/spearhead/internal/mock"
)

func main() {
	serverAddr := flag.String("server", "localhost:12345", "SpearHead wrapper listener address")
	agents := flag.Int("n", 5, "Number of simulated endpoints")
	encrypt := flag.Bool("encrypt", true, "Encrypt the session after key exchange")
	flag.Parse()

	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	log.Printf("Starting mock fleet: %d endpoints against %s", *agents, *serverAddr)
	if err := mock.RunFleet(ctx, *serverAddr, *agents, *encrypt); err != nil {
		log.Fatalf("Mock fleet failed: %v", err)
	}
}
