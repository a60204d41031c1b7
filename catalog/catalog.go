// Package catalog provides the process-wide registry of table id, heap
// file, schema, and primary-key field name.
package catalog

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	log "github.com/sirupsen/logrus"

	"github.com/dsg-go/stowdb/common"
	"github.com/dsg-go/stowdb/storage"
)

type tableEntry struct {
	file *storage.HeapFile
	name string
	pk   string
}

// Catalog maps tableId -> (HeapFile, TupleDesc, primaryKeyName) and
// name -> tableId. It is read-mostly: populated once at startup
// (AddTable calls), then read concurrently by every transaction, so
// lookups use lock-free maps rather than a mutex.
type Catalog struct {
	byID   *xsync.MapOf[common.TableID, *tableEntry]
	byName *xsync.MapOf[string, common.TableID]

	// bp is attached after construction (see AttachBufferPool) because
	// the buffer pool itself is constructed with this catalog as its
	// FileLookup -- the two have a circular initialization order that a
	// two-step New/Attach avoids.
	bp *storage.BufferPool
}

// New creates an empty catalog. Call AttachBufferPool before AddTable.
func New() *Catalog {
	return &Catalog{
		byID:   xsync.NewMapOf[common.TableID, *tableEntry](),
		byName: xsync.NewMapOf[string, common.TableID](),
	}
}

// AttachBufferPool wires the buffer pool new tables are opened against.
// Must be called exactly once, before any AddTable call.
func (c *Catalog) AttachBufferPool(bp *storage.BufferPool) {
	c.bp = bp
}

// AddTable opens (or creates) the heap file at path and registers it
// under name with the given schema and primary-key field name. The
// table id is the file's id.
func (c *Catalog) AddTable(path string, desc *storage.TupleDesc, name, pkField string) (common.TableID, error) {
	common.Assert(c.bp != nil, "AddTable called before AttachBufferPool")

	if _, exists := c.byName.Load(name); exists {
		return 0, common.NewError(common.SchemaMismatchError, "table %q already registered", name)
	}

	file, err := storage.NewHeapFile(path, desc, c.bp)
	if err != nil {
		return 0, err
	}

	id := file.TableID()
	c.byID.Store(id, &tableEntry{file: file, name: name, pk: pkField})
	c.byName.Store(name, id)
	log.WithFields(log.Fields{"table": name, "id": id, "path": path}).Info("catalog: registered table")
	return id, nil
}

// GetFile implements storage.FileLookup.
func (c *Catalog) GetFile(id common.TableID) (*storage.HeapFile, error) {
	e, ok := c.byID.Load(id)
	if !ok {
		return nil, common.NewError(common.NotFoundError, "no table with id %d", id)
	}
	return e.file, nil
}

// GetDatabaseFile is an alias for GetFile.
func (c *Catalog) GetDatabaseFile(id common.TableID) (*storage.HeapFile, error) {
	return c.GetFile(id)
}

// GetTupleDesc returns the schema registered for id.
func (c *Catalog) GetTupleDesc(id common.TableID) (*storage.TupleDesc, error) {
	e, ok := c.byID.Load(id)
	if !ok {
		return nil, common.NewError(common.NotFoundError, "no table with id %d", id)
	}
	return e.file.TupleDesc(), nil
}

// GetTableName returns the name a table was registered under.
func (c *Catalog) GetTableName(id common.TableID) (string, error) {
	e, ok := c.byID.Load(id)
	if !ok {
		return "", common.NewError(common.NotFoundError, "no table with id %d", id)
	}
	return e.name, nil
}

// GetPrimaryKeyName returns the primary-key field name registered for id.
func (c *Catalog) GetPrimaryKeyName(id common.TableID) (string, error) {
	e, ok := c.byID.Load(id)
	if !ok {
		return "", common.NewError(common.NotFoundError, "no table with id %d", id)
	}
	return e.pk, nil
}

// GetTableID resolves a table name to its id.
func (c *Catalog) GetTableID(name string) (common.TableID, bool) {
	return c.byName.Load(name)
}

// columnSpec is one parsed "name:TYPE" token from a schema line, with an
// optional "pk" marker.
type columnSpec struct {
	name string
	typ  storage.FieldType
	pk   bool
}

// LoadSchemaFile bootstraps the catalog from a text schema file: one
// table per line, `name (col:TYPE [pk], …)`, blank lines ignored, dataDir
// used as the directory each table's heap file lives in.
func (c *Catalog) LoadSchemaFile(path, dataDir string) error {
	f, err := os.Open(path)
	if err != nil {
		return common.WrapIOError(err, "opening schema file %s", path)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	lineNum := 0
	for scanner.Scan() {
		lineNum++
		line := strings.TrimSpace(scanner.Text())
		if line == "" {
			continue
		}
		if err := c.loadSchemaLine(line, dataDir); err != nil {
			return fmt.Errorf("schema file %s, line %d: %w", path, lineNum, err)
		}
	}
	if err := scanner.Err(); err != nil {
		return common.WrapIOError(err, "reading schema file %s", path)
	}
	return nil
}

func (c *Catalog) loadSchemaLine(line, dataDir string) error {
	open := strings.IndexByte(line, '(')
	close := strings.LastIndexByte(line, ')')
	if open < 0 || close < open {
		return fmt.Errorf("malformed table line %q", line)
	}
	name := strings.TrimSpace(line[:open])
	if name == "" {
		return fmt.Errorf("missing table name in %q", line)
	}

	cols, err := parseColumns(line[open+1 : close])
	if err != nil {
		return err
	}

	fields := make([]storage.FieldInfo, len(cols))
	pkField := ""
	for i, col := range cols {
		fields[i] = storage.FieldInfo{Type: col.typ, Name: col.name}
		if col.pk {
			pkField = col.name
		}
	}

	desc := storage.NewTupleDesc(fields...)
	dataPath := dataDir + string(os.PathSeparator) + name + ".dat"
	_, err = c.AddTable(dataPath, desc, name, pkField)
	return err
}

func parseColumns(body string) ([]columnSpec, error) {
	parts := strings.Split(body, ",")
	cols := make([]columnSpec, 0, len(parts))
	for _, part := range parts {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		tokens := strings.Fields(part)
		if len(tokens) == 0 {
			continue
		}

		colType := tokens[0]
		colonIdx := strings.IndexByte(colType, ':')
		if colonIdx < 0 {
			return nil, fmt.Errorf("column %q missing ':TYPE'", part)
		}
		colName := strings.TrimSpace(colType[:colonIdx])
		typeName := strings.TrimSpace(colType[colonIdx+1:])

		var ft storage.FieldType
		switch typeName {
		case "int":
			ft = storage.IntFieldType
		case "string":
			ft = storage.StringFieldType(0)
		default:
			return nil, fmt.Errorf("column %q has unknown type %q", colName, typeName)
		}

		isPK := false
		for _, tok := range tokens[1:] {
			if tok == "pk" {
				isPK = true
			}
		}

		cols = append(cols, columnSpec{name: colName, typ: ft, pk: isPK})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("table has no columns")
	}
	return cols, nil
}
