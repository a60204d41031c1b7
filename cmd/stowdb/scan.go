package main

import (
	"fmt"

	log "github.com/sirupsen/logrus"
	"github.com/spf13/cobra"

	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/execution"
	"github.com/dsg-go/stowdb/transaction"
)

var scanCmd = &cobra.Command{
	Use:   "scan <table>",
	Short: "Print every row of a table",
	Args:  cobra.ExactArgs(1),
	RunE:  scanRun,
}

func init() {
	rootCmd.AddCommand(scanCmd)
}

func scanRun(cmd *cobra.Command, args []string) error {
	tableName := args[0]

	cat, bp, err := openCatalog()
	if err != nil {
		return err
	}

	id, ok := cat.GetTableID(tableName)
	if !ok {
		return fmt.Errorf("stowdb: no table named %q", tableName)
	}
	file, err := cat.GetFile(id)
	if err != nil {
		return fmt.Errorf("stowdb: %s", err)
	}

	tid := transaction.NewTransactionID()
	scan := execution.NewSeqScan(tid, id, file)
	if err := scan.Open(); err != nil {
		return abortAndReturn(bp, tid, err)
	}
	defer scan.Close()

	log.WithFields(log.Fields{"table": tableName, "tid": tid}).Info("stowdb: scanning")

	count := 0
	for {
		has, err := scan.HasNext()
		if err != nil {
			return abortAndReturn(bp, tid, err)
		}
		if !has {
			break
		}
		t, err := scan.Next()
		if err != nil {
			return abortAndReturn(bp, tid, err)
		}
		fmt.Println(t.String())
		count++
	}

	if err := bp.TransactionComplete(tid, true); err != nil {
		return fmt.Errorf("stowdb: commit: %s", err)
	}
	fmt.Printf("%d rows\n", count)
	return nil
}

// abortAndReturn rolls tid back before surfacing err, matching the
// commit-or-abort discipline every transaction must follow.
func abortAndReturn(bp interface {
	TransactionComplete(common.TransactionID, bool) error
}, tid common.TransactionID, err error) error {
	if abortErr := bp.TransactionComplete(tid, false); abortErr != nil {
		log.WithError(abortErr).Warn("stowdb: abort cleanup failed")
	}
	return fmt.Errorf("stowdb: %s", err)
}
