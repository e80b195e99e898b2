// Package main is a diagnostic tool for database connectivity. It connects with
// the server's configuration and prints per-organization session and result counts.
// It exits non-zero on any failure so it can gate deployments in CI.
package main

import (
	"fmt"
	"log"
	"os"

	"github.com/jmoiron/sqlx"

	"github.com/assessment-platform/assessment-api/internal/config"
	"github.com/assessment-platform/assessment-api/internal/db"
)

type orgSummary struct {
	Name           string `db:"name"`
	IsActive       bool   `db:"is_active"`
	ActiveSessions int    `db:"active_sessions"`
	Results        int    `db:"results"`
}

const summaryQuery = `
	SELECT o.name, o.is_active,
	       (SELECT COUNT(*) FROM assessment_sessions s WHERE s.organization_id = o.id AND s.is_active) AS active_sessions,
	       (SELECT COUNT(*) FROM assessment_results r WHERE r.organization_id = o.id) AS results
	FROM organizations o
	ORDER BY o.name`

func main() {
	cfg, err := config.Load(os.Getenv("CONFIG_PATH"))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}

	database, err := db.Connect(cfg.Database.GetDSN(), 1, 1)
	if err != nil {
		log.Fatalf("Failed to connect: %v", err)
	}
	defer database.Close()

	version, dirty, err := db.GetMigrationVersion(database)
	if err != nil {
		log.Fatalf("Failed to read migration version: %v", err)
	}
	fmt.Printf("Schema version: %d (dirty: %v)\n\n", version, dirty)

	var orgs []orgSummary
	if err := sqlx.NewDb(database, "postgres").Select(&orgs, summaryQuery); err != nil {
		log.Fatalf("Query failed: %v", err)
	}

	fmt.Println("=== ORGANIZATIONS ===")
	if len(orgs) == 0 {
		fmt.Println("No organizations found!")
	}
	for _, o := range orgs {
		fmt.Printf("%-32s active=%-5v sessions=%d results=%d\n", o.Name, o.IsActive, o.ActiveSessions, o.Results)
	}
}
