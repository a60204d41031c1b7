package main

import (
	"fmt"
	"os"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dsg-go/stowdb/catalog"
	"github.com/dsg-go/stowdb/storage"
	"github.com/dsg-go/stowdb/transaction"
)

var (
	rootCmd = &cobra.Command{
		Use:               "stowdb",
		Short:             "A teaching-grade relational storage engine",
		Long:              "stowdb is a page-oriented heap-file store with two-phase locking and deadlock detection.",
		PersistentPreRunE: rootPreRun,
	}

	catalogFile string
	dataDir     string
	bufferPages int
	logLevel    string
)

func init() {
	fs := rootCmd.PersistentFlags()
	fs.StringVar(&catalogFile, "catalog", "stowdb.schema", "`file` describing the tables to load")
	fs.StringVar(&dataDir, "data", "stowdb-data", "`directory` holding each table's heap file")
	fs.IntVar(&bufferPages, "buffer-pages", 64, "number of pages the buffer pool caches")
	fs.StringVar(&logLevel, "log-level", "info", "log level: trace, debug, info, warn, error, fatal, or panic")
}

// Execute runs the stowdb command line, returning any error a
// subcommand produced.
func Execute() error {
	return rootCmd.Execute()
}

func rootPreRun(cmd *cobra.Command, args []string) error {
	ll, err := log.ParseLevel(logLevel)
	if err != nil {
		return fmt.Errorf("stowdb: %s", err)
	}
	log.SetLevel(ll)
	log.SetFormatter(&log.TextFormatter{DisableLevelTruncation: true})
	return nil
}

// openCatalog builds a buffer pool and lock manager, loads the schema
// file, and returns the populated catalog along with the buffer pool
// operators need. Every stowdb subcommand shares this bootstrap.
func openCatalog() (*catalog.Catalog, *storage.BufferPool, error) {
	if err := os.MkdirAll(dataDir, 0755); err != nil {
		return nil, nil, fmt.Errorf("stowdb: creating data directory: %s", err)
	}

	cat := catalog.New()
	lockManager := transaction.NewLockManager()
	bp := storage.NewBufferPool(bufferPages, cat, lockManager)
	cat.AttachBufferPool(bp)

	if err := cat.LoadSchemaFile(catalogFile, dataDir); err != nil {
		return nil, nil, fmt.Errorf("stowdb: %s", err)
	}
	return cat, bp, nil
}
