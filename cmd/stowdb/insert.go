package main

import (
	"fmt"
	"strconv"
	"strings"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dsg-go/stowdb/storage"
	"github.com/dsg-go/stowdb/transaction"
)

var insertCmd = &cobra.Command{
	Use:   "insert <table> <field>=<value>...",
	Short: "Insert one row into a table",
	Args:  cobra.MinimumNArgs(2),
	RunE:  insertRun,
}

func init() {
	rootCmd.AddCommand(insertCmd)
}

func insertRun(cmd *cobra.Command, args []string) error {
	tableName := args[0]

	cat, bp, err := openCatalog()
	if err != nil {
		return err
	}

	id, ok := cat.GetTableID(tableName)
	if !ok {
		return fmt.Errorf("stowdb: no table named %q", tableName)
	}
	desc, err := cat.GetTupleDesc(id)
	if err != nil {
		return fmt.Errorf("stowdb: %s", err)
	}

	row := storage.NewTuple(desc)
	for _, assignment := range args[1:] {
		name, value, ok := strings.Cut(assignment, "=")
		if !ok {
			return fmt.Errorf("stowdb: malformed assignment %q, want field=value", assignment)
		}
		idx, ok := desc.IndexForName(name)
		if !ok {
			return fmt.Errorf("stowdb: table %q has no column %q", tableName, name)
		}
		field, err := parseField(desc.FieldType(idx), value)
		if err != nil {
			return fmt.Errorf("stowdb: column %q: %s", name, err)
		}
		row.SetField(idx, field)
	}

	tid := transaction.NewTransactionID()
	if err := bp.InsertTuple(tid, id, row); err != nil {
		return abortAndReturn(bp, tid, err)
	}
	if err := bp.TransactionComplete(tid, true); err != nil {
		return fmt.Errorf("stowdb: commit: %s", err)
	}

	log.WithFields(log.Fields{"table": tableName, "tid": tid}).Info("stowdb: inserted row")
	fmt.Println("1 row inserted")
	return nil
}

func parseField(ft storage.FieldType, value string) (storage.Field, error) {
	switch ft.Kind {
	case storage.IntKind:
		n, err := strconv.ParseInt(value, 10, 32)
		if err != nil {
			return nil, fmt.Errorf("not an integer: %s", value)
		}
		return storage.IntField(n), nil
	case storage.StringKind:
		return storage.NewStringField(value, ft.Length), nil
	}
	return nil, fmt.Errorf("unsupported field kind")
}
