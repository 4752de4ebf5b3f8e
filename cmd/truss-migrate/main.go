// Command truss-migrate applies any pending pkg/storage schema
// migrations to an existing state database, taking a backup first.
package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"

	"github.com/cuemby/truss/pkg/storage"
)

var (
	dataDir    = flag.String("data-dir", "/var/lib/truss", "truss data directory")
	dryRun     = flag.Bool("dry-run", false, "Apply migrations to a scratch copy of the database instead of the real file")
	backupPath = flag.String("backup", "", "Path to back up the database before migration (default: <data-dir>/state.db.backup)")
)

func main() {
	flag.Parse()

	log.SetFlags(log.LstdFlags | log.Lshortfile)
	log.Println("truss state database migration")
	log.Println("===============================")

	dbPath := filepath.Join(*dataDir, "state.db")
	if _, err := os.Stat(dbPath); os.IsNotExist(err) {
		log.Fatalf("database not found at %s", dbPath)
	}
	log.Printf("database: %s", dbPath)
	log.Printf("dry run: %v", *dryRun)

	if *dryRun {
		scratch, err := os.CreateTemp("", "truss-migrate-dryrun-*.db")
		if err != nil {
			log.Fatalf("create scratch copy: %v", err)
		}
		scratch.Close()
		defer os.Remove(scratch.Name())

		if err := copyFile(dbPath, scratch.Name()); err != nil {
			log.Fatalf("copy database to scratch file: %v", err)
		}

		store, err := storage.Open(scratch.Name())
		if err != nil {
			log.Fatalf("migration failed: %v", err)
		}
		store.Close()

		log.Println("dry run completed against a scratch copy; the real database was not touched.")
		log.Println("run without --dry-run to apply migrations in place.")
		return
	}

	backupFile := *backupPath
	if backupFile == "" {
		backupFile = dbPath + ".backup"
	}
	log.Printf("creating backup: %s", backupFile)
	if err := copyFile(dbPath, backupFile); err != nil {
		log.Fatalf("failed to create backup: %v", err)
	}
	log.Println("backup created")

	store, err := storage.Open(dbPath)
	if err != nil {
		log.Fatalf("migration failed: %v", err)
	}
	defer store.Close()

	log.Println("migration completed successfully")
	log.Printf("the prior state is preserved at %s if a rollback is needed", backupFile)
}

func copyFile(src, dst string) error {
	input, err := os.ReadFile(src)
	if err != nil {
		return err
	}
	if err := os.WriteFile(dst, input, 0600); err != nil {
		return fmt.Errorf("write %s: %w", dst, err)
	}
	return nil
}
