package main

import (
	"database/sql"
	"errors"
	"flag"
	"log"

	"github.com/golang-migrate/migrate/v4"
	"github.com/golang-migrate/migrate/v4/database/postgres"
	_ "github.com/golang-migrate/migrate/v4/source/file"
	_ "github.com/lib/pq"

	"github.com/procuredesk/tender-evaluation-backend/internal/infrastructure/config"
)

func main() {
	var (
		configPath = flag.String("config", "", "Path to configuration file")
		dir        = flag.String("dir", "migrations", "Migrations directory")
		action     = flag.String("action", "up", "Migration action: up, down, version")
		steps      = flag.Int("steps", 0, "Number of migrations to run (0 = all)")
	)
	flag.Parse()

	cfg, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("Failed to load configuration: %v", err)
	}

	db, err := sql.Open("postgres", cfg.Database.URL)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer db.Close()

	driver, err := postgres.WithInstance(db, &postgres.Config{})
	if err != nil {
		log.Fatalf("Failed to create migration driver: %v", err)
	}

	m, err := migrate.NewWithDatabaseInstance("file://"+*dir, "postgres", driver)
	if err != nil {
		log.Fatalf("Failed to create migrator: %v", err)
	}

	switch *action {
	case "up":
		if *steps > 0 {
			err = m.Steps(*steps)
		} else {
			err = m.Up()
		}
	case "down":
		if *steps > 0 {
			err = m.Steps(-*steps)
		} else {
			err = m.Down()
		}
	case "version":
		version, dirty, verr := m.Version()
		if verr != nil && !errors.Is(verr, migrate.ErrNilVersion) {
			log.Fatalf("Failed to read version: %v", verr)
		}
		log.Printf("version=%d dirty=%v", version, dirty)
		return
	default:
		log.Fatalf("Unknown action %q", *action)
	}

	if err != nil && !errors.Is(err, migrate.ErrNoChange) {
		log.Fatalf("Migration failed: %v", err)
	}
	log.Println("Migrations completed")
}
