package main

import (
	"context"
	"flag"
	"log"
	"os"

	"commerce-service/config"
	"commerce-service/internal/store"

	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
)

// usage: migrate [-database URL] up|down|status|version|redo|reset|up-to V|down-to V
func main() {
	cfg := config.Load()

	databaseURL := flag.String("database", cfg.Database.URL, "postgres connection string")
	flag.Parse()

	args := flag.Args()
	if len(args) == 0 {
		flag.Usage()
		os.Exit(2)
	}

	db, err := sqlx.Connect("postgres", *databaseURL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	if err := store.Migrate(context.Background(), db.DB, args[0], args[1:]...); err != nil {
		log.Fatalf("Migration failed: %v", err)
	}
}
