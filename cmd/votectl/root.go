// Copyright (c) 2025 Daniel Kuo.
// Source-available; no permission granted to use, copy, modify, or distribute. See LICENSE.

package main

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/danielhkuo/livevote/db"
)

// Version is the application version.
const Version = "0.1.0"

// offline marks commands that talk to the API instead of the database
const offline = "offline"

var (
	// conn is the database connection shared by subcommands
	conn *sql.DB
	// dbURL and dbType select the database, falling back to the server's env
	dbURL  string
	dbType string
)

var rootCmd = &cobra.Command{
	Use:           "votectl",
	Short:         "Operator tooling for the livevote election server",
	Version:       Version,
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Annotations[offline] == "true" {
			return nil
		}

		_ = godotenv.Load()
		if dbURL == "" {
			dbURL = os.Getenv("DATABASE_URL")
		}
		if dbURL == "" {
			return fmt.Errorf("database URL required (use --db or DATABASE_URL env)")
		}
		if dbType == "" {
			dbType = os.Getenv("DATABASE_TYPE")
		}
		if dbType == "" {
			dbType = db.TypeSQLite
		}

		var err error
		conn, err = db.Open(dbType, dbURL)
		if err != nil {
			return fmt.Errorf("failed to connect to database: %w", err)
		}
		// Operators may seed a fresh database before the server ever ran
		return db.CreateSchema(conn)
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if conn != nil {
			conn.Close()
			conn = nil
		}
	},
}

// Execute runs the CLI until it finishes or the process is interrupted
func Execute() {
	// Cancel in-flight work on Ctrl+C (SIGINT) or Kill (SIGTERM)
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	rootCmd.SetVersionTemplate(`{{printf "%s\n" .Version}}`)

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&dbURL, "db", "", "Database URL (default: DATABASE_URL env)")
	rootCmd.PersistentFlags().StringVar(&dbType, "db-type", "", "Database type: sqlite, postgres or pgx (default: DATABASE_TYPE env, then sqlite)")
}
