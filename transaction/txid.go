package transaction

import (
	"sync/atomic"

	"github.com/dsg-go/stowdb/common"
)

var nextTid uint64

// NewTransactionID hands out a fresh, process-unique transaction id.
func NewTransactionID() common.TransactionID {
	return common.TransactionID(atomic.AddUint64(&nextTid, 1))
}
