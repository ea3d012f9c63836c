// Command migrate applies or rolls back the snapshot schema migrations
// against DATABASE_URL, using the same golang-migrate driver the repository
// package's production tables are defined by.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/golang-migrate/migrate/v4"
	_ "github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"

	"github.com/pageza/fieldsched/internal/config"
)

func main() {
	migrationsPath := flag.String("path", "migrations", "path to migrations directory")
	flag.Parse()

	args := flag.Args()
	if len(args) < 1 {
		fmt.Println("usage: migrate [-path <dir>] up|down")
		os.Exit(1)
	}

	cfg, err := config.LoadSchedulerConfig()
	if err != nil {
		log.Fatalf("failed to load configuration: %v", err)
	}

	switch args[0] {
	case "up":
		runUp(cfg.DatabaseURL, *migrationsPath)
	case "down":
		runDown(cfg.DatabaseURL, *migrationsPath)
	default:
		log.Fatalf("unknown command: %s", args[0])
	}
}

func runUp(databaseURL, migrationsPath string) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}
	defer m.Close()

	if err := m.Up(); err != nil && err != migrate.ErrNoChange {
		log.Fatalf("failed to apply migrations: %v", err)
	}
	log.Println("migrations applied successfully")
}

func runDown(databaseURL, migrationsPath string) {
	m, err := migrate.New(fmt.Sprintf("file://%s", migrationsPath), databaseURL)
	if err != nil {
		log.Fatalf("failed to create migrate instance: %v", err)
	}
	defer m.Close()

	if err := m.Steps(-1); err != nil {
		log.Fatalf("failed to roll back migration: %v", err)
	}
	log.Println("migration rolled back successfully")
}
