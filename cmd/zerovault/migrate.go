package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/zerovault/zerovault"
)

var migrateDBPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate --db <path> <schema.sql>",
	Short: "Apply a SQL schema file to a database, creating it if absent",
	Args:  cobra.ExactArgs(1),
	RunE:  runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&migrateDBPath, "db", "", "database path (falls back to --config's path)")
}

func runMigrate(cmd *cobra.Command, args []string) error {
	if migrateDBPath == "" {
		migrateDBPath = cfg.Path
	}
	if migrateDBPath == "" {
		return fmt.Errorf("--db is required (or set path in --config)")
	}

	schema, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read schema file: %w", err)
	}

	db, err := zerovault.Open(migrateDBPath)
	if err != nil {
		return fmt.Errorf("open database: %w", err)
	}
	defer db.Close()

	statements := splitStatements(string(schema))
	if err := db.Migrate(statements...); err != nil {
		return fmt.Errorf("apply schema: %w", err)
	}

	fmt.Printf("applied %d statement(s) to %s\n", len(statements), migrateDBPath)
	return nil
}

// splitStatements splits a .sql file on semicolons, dropping blank
// statements left by trailing or doubled separators.
func splitStatements(schema string) []string {
	raw := strings.Split(schema, ";")
	statements := make([]string, 0, len(raw))
	for _, s := range raw {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		statements = append(statements, s)
	}
	return statements
}
