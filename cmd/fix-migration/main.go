// Package main repairs a dirty migration state. golang-migrate marks a version
// dirty when a migration is interrupted; the server then refuses to start. This
// tool reports the current version and, when dirty, forces it clean so the next
// startup retries.
package main

import (
	"flag"
	"log"
	"os"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/db"
)

func main() {
	force := flag.Int("version", -1, "force this version instead of the current one")
	flag.Parse()

	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect to database: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check migration state: %v", err)
	}
	log.Printf("Current migration state: version=%d, dirty=%v", version, dirty)

	target := int(version)
	if *force >= 0 {
		target = *force
	} else if !dirty {
		log.Println("Migration state is already clean")
		return
	}

	if err := db.ForceMigrationVersion(database, target); err != nil {
		log.Fatalf("Failed to force migration version: %v", err)
	}

	version, dirty, err = db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to check final migration state: %v", err)
	}
	log.Printf("Final migration state: version=%d, dirty=%v", version, dirty)
}
