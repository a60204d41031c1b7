// Command stowdb is a small CLI over the storage engine: it loads a
// schema file, then scans or inserts into the tables it describes.
package main

import (
	"fmt"
	"os"
)

func main() {
	if err := Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
