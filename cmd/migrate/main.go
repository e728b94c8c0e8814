// migrate applies the embedded SQL migrations; go run ./cmd/migrate -direction up.
package main

import (
	"flag"
	"fmt"
	"os"

	"cashback-service/internal/config"
	"cashback-service/internal/db/migrate"
)

func main() {
	direction := flag.String("direction", "up", "Migration direction: up or down")
	flag.Parse()

	cfg := config.LoadConfig()
	if cfg.Postgres.DSN == "" {
		fmt.Fprintln(os.Stderr, "DATABASE_URL is not set; export it or put it in .env")
		os.Exit(1)
	}

	if err := migrate.Run(cfg.Postgres.DSN, *direction); err != nil {
		fmt.Fprintln(os.Stderr, "migrate:", err)
		os.Exit(1)
	}
	fmt.Printf("migrations applied (%s)\n", *direction)
}
