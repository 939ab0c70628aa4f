// Command cinderctl is a smoke harness over CinderDB's public storage API:
// it opens a data file, creates a table and a secondary index, inserts a
// few rows, then scans them back through both the table heap and the
// index. It is not a SQL front-end (grounded on
// intellect4all-storage-engines/cmd/demo, which drives its three storage
// engines the same way: open, put, get, scan, print).
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"go.uber.org/zap"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/catalog"
	"github.com/cinderdb/cinderdb/internal/diskmgr"
	"github.com/cinderdb/cinderdb/internal/index"
	"github.com/cinderdb/cinderdb/internal/record"
)

func main() {
	path := flag.String("file", "cinderdb.db", "path to the data file")
	poolSize := flag.Int("pool-size", 32, "buffer pool frame count")
	flag.Parse()

	if err := run(*path, *poolSize); err != nil {
		log.Fatal(err)
	}
}

func run(path string, poolSize int) error {
	logger, err := zap.NewDevelopment()
	if err != nil {
		return fmt.Errorf("cinderctl: build logger: %w", err)
	}
	defer logger.Sync()
	sugar := logger.Sugar()

	fresh := true
	if _, err := os.Stat(path); err == nil {
		fresh = false
	}

	disk, err := diskmgr.Open(path, sugar)
	if err != nil {
		return fmt.Errorf("cinderctl: open %s: %w", path, err)
	}
	defer disk.Close()

	pool := buffer.New(disk, poolSize, sugar)

	var cat *catalog.Catalog
	if fresh {
		cat, err = catalog.New(pool, sugar)
	} else {
		cat, err = catalog.Open(pool, sugar)
	}
	if err != nil {
		return fmt.Errorf("cinderctl: load catalog: %w", err)
	}

	schema, err := usersSchema()
	if err != nil {
		return err
	}

	tbl, ok := cat.GetTable("users")
	if !ok {
		fmt.Println("creating table \"users\"(id INT UNIQUE, name VARCHAR(32) UNIQUE)")
		tbl, err = cat.CreateTable("users", schema)
		if err != nil {
			return fmt.Errorf("cinderctl: create table: %w", err)
		}
	}

	idx, ok := cat.GetIndex("users", "name_idx")
	if !ok {
		fmt.Println("creating index \"name_idx\" on users(name)")
		idx, err = cat.CreateIndex("users", "name_idx", []string{"name"})
		if err != nil {
			return fmt.Errorf("cinderctl: create index: %w", err)
		}
	}

	seed := []struct {
		id   int32
		name string
	}{
		{1, "alice"}, {2, "bob"}, {3, "carol"},
	}
	km, err := index.NewKeyManager(idx.KeySchema)
	if err != nil {
		return fmt.Errorf("cinderctl: build key manager: %w", err)
	}
	fmt.Println("\n[inserting rows]")
	for _, u := range seed {
		row := record.NewRow([]*record.Field{record.NewIntegerField(u.id), record.NewVarcharField(u.name)})
		rid, err := tbl.Heap.InsertTuple(row)
		if err != nil {
			return fmt.Errorf("cinderctl: insert %v: %w", u, err)
		}
		key, err := km.SerializeKey(record.NewRow([]*record.Field{row.Fields[1]}))
		if err == nil {
			_, err = idx.Tree.Insert(key, rid)
		}
		if err != nil {
			return fmt.Errorf("cinderctl: index %v: %w", u, err)
		}
		fmt.Printf("  inserted id=%d name=%s at %s\n", u.id, u.name, rid)
	}

	fmt.Println("\n[table scan]")
	it := tbl.Heap.Begin()
	for it.Valid() {
		row := it.Row()
		fmt.Printf("  id=%d name=%s\n", row.Fields[0].AsInteger(), row.Fields[1].AsVarchar())
		it.Next()
	}
	if it.Err() != nil {
		return fmt.Errorf("cinderctl: table scan: %w", it.Err())
	}

	fmt.Println("\n[index lookup name=bob]")
	lookupRow := record.NewRow([]*record.Field{record.NewVarcharField("bob")})
	key, err := km.SerializeKey(lookupRow)
	if err != nil {
		return fmt.Errorf("cinderctl: serialize lookup key: %w", err)
	}
	rid, found, err := idx.Tree.GetValue(key)
	if err != nil {
		return fmt.Errorf("cinderctl: index lookup: %w", err)
	}
	if !found {
		fmt.Println("  not found")
	} else {
		fmt.Printf("  found at %s\n", rid)
	}

	if err := cat.FlushCatalogMetaPage(); err != nil {
		return fmt.Errorf("cinderctl: flush catalog: %w", err)
	}
	if err := pool.FlushAll(); err != nil {
		return fmt.Errorf("cinderctl: flush pool: %w", err)
	}
	return nil
}

func usersSchema() (*record.Schema, error) {
	id, err := record.NewFixedColumn("id", record.TypeInteger, 0, false, true)
	if err != nil {
		return nil, err
	}
	name, err := record.NewVarcharColumn("name", 32, 1, false, true)
	if err != nil {
		return nil, err
	}
	return record.NewSchema([]*record.Column{id, name}), nil
}
