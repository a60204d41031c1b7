// Package execution provides the row-at-a-time operators that sit on top
// of the storage and transaction packages: scans, filters, mutations, and
// aggregates.
package execution

import "github.com/dsg-go/stowdb/storage"

// DBIterator is the common interface every operator implements: open,
// advance, read, rewind, close. Operators compose by wrapping a child
// DBIterator, pulling rows from it as they're asked for their own.
type DBIterator interface {
	// Open prepares the iterator to be read. Must be called before
	// HasNext/Next; page locks are taken as HasNext advances, not here.
	Open() error
	// HasNext reports whether Next would return a row. May block
	// acquiring a lock.
	HasNext() (bool, error)
	// Next returns the next row. Callers must check HasNext first.
	Next() (*storage.Tuple, error)
	// Rewind restarts the iterator at its first row without releasing
	// any locks already acquired.
	Rewind() error
	// Close releases the iterator's buffered state.
	Close()
	// TupleDesc describes the rows this iterator produces.
	TupleDesc() *storage.TupleDesc
}
