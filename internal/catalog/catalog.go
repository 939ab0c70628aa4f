// Package catalog is the executor-facing directory of tables and indexes
// (spec §6), grounded on original_source/src/catalog/catalog.cpp. It is
// boundary glue, not a reintroduction of the planner/executor: it owns no
// SQL parsing and no tuple iterators of its own, only the bookkeeping that
// lets a caller go from a table/index name to the table.Heap or index.Tree
// that serves it.
package catalog

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cinderdb/cinderdb/internal/buffer"
	"github.com/cinderdb/cinderdb/internal/common"
	"github.com/cinderdb/cinderdb/internal/index"
	"github.com/cinderdb/cinderdb/internal/page"
	"github.com/cinderdb/cinderdb/internal/record"
	"github.com/cinderdb/cinderdb/internal/table"
)

// MetaPageID is the well-known page holding the table/index directory
// (spec §6). Page 0 is already reserved for index.RootsPageID, so the
// catalog's own directory lives at page 1; New is responsible for
// allocating both in that order on a fresh database.
const MetaPageID common.PageID = 1

// TableInfo bundles a table's live handle with its durable description.
type TableInfo struct {
	ID     uint32
	Name   string
	Schema *record.Schema
	Heap   *table.Heap
}

// IndexInfo bundles an index's live handle with its durable description.
type IndexInfo struct {
	ID        uint32
	Name      string
	TableName string
	KeySchema *record.Schema
	Tree      *index.Tree
}

// Catalog is the in-memory directory backed by the catalog meta page and
// one metadata page per table/index, mirroring original_source's
// CatalogManager (table_names_/tables_/index_names_/indexes_ maps plus its
// own catalog meta page).
type Catalog struct {
	mu sync.Mutex

	pool *buffer.Pool
	log  *zap.SugaredLogger

	nextTableID uint32
	nextIndexID uint32

	tables      map[string]*TableInfo
	tablesByID  map[uint32]*TableInfo
	tableMeta   map[uint32]common.PageID // table id -> its metadata page
	indexes     map[string]*IndexInfo    // key: tableName + "." + indexName
	indexesByID map[uint32]*IndexInfo
	indexMeta   map[uint32]common.PageID // index id -> its metadata page
	tableIdx    map[string][]uint32      // table name -> index ids on it
}

func indexKey(tableName, indexName string) string { return tableName + "." + indexName }

// New formats a brand-new database: the index roots page, the catalog meta
// page, and an empty in-memory directory.
func New(pool *buffer.Pool, log *zap.SugaredLogger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	if err := index.EnsureRootsPage(pool); err != nil {
		return nil, err
	}
	// New always formats a brand-new database (the caller has already
	// decided fresh vs. reopen), so the catalog meta page is allocated
	// outright rather than probed for first: unlike IndexRootsPage, whose
	// all-zero bytes already decode as a valid empty page, CatalogMetaPage
	// carries a magic number and a zeroed frame would read back invalid.
	g, ok, err := pool.NewPage()
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog: buffer pool exhausted allocating catalog meta page")
	}
	if g.PageID() != MetaPageID {
		return nil, fmt.Errorf("catalog: expected catalog meta page at %d, got %d (must be the second page ever allocated)", MetaPageID, g.PageID())
	}
	page.NewCatalogMetaPage(g.Data())
	g.MarkDirty()
	g.Unpin()

	return &Catalog{
		pool:        pool,
		log:         log,
		tables:      make(map[string]*TableInfo),
		tablesByID:  make(map[uint32]*TableInfo),
		tableMeta:   make(map[uint32]common.PageID),
		indexes:     make(map[string]*IndexInfo),
		indexesByID: make(map[uint32]*IndexInfo),
		indexMeta:   make(map[uint32]common.PageID),
		tableIdx:    make(map[string][]uint32),
	}, nil
}

// Open reattaches to an existing database, reloading every table and index
// named in the catalog meta page (mirroring CatalogManager's Init/LoadTable
// LoadIndex path on restart).
func Open(pool *buffer.Pool, log *zap.SugaredLogger) (*Catalog, error) {
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	g, ok, err := pool.FetchPage(MetaPageID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog: meta page %d not found, call New on a fresh database first", MetaPageID)
	}
	cmp := page.AsCatalogMetaPage(g.Data())
	if !cmp.Valid() {
		g.Unpin()
		return nil, fmt.Errorf("catalog: meta page %d failed validation", MetaPageID)
	}
	tableMetaPages := cmp.Tables()
	indexMetaPages := cmp.Indexes()
	g.Unpin()

	c := &Catalog{
		pool:        pool,
		log:         log,
		tables:      make(map[string]*TableInfo),
		tablesByID:  make(map[uint32]*TableInfo),
		tableMeta:   make(map[uint32]common.PageID),
		indexes:     make(map[string]*IndexInfo),
		indexesByID: make(map[uint32]*IndexInfo),
		indexMeta:   make(map[uint32]common.PageID),
		tableIdx:    make(map[string][]uint32),
	}

	for tableID, metaPage := range tableMetaPages {
		tm, err := c.loadTableMeta(metaPage)
		if err != nil {
			return nil, err
		}
		heap := table.Open(pool, tm.Schema, tm.FirstPageID, c.log.Desugar())
		info := &TableInfo{ID: tm.ID, Name: tm.Name, Schema: tm.Schema, Heap: heap}
		c.tables[tm.Name] = info
		c.tablesByID[tableID] = info
		c.tableMeta[tableID] = metaPage
		if tableID+1 > c.nextTableID {
			c.nextTableID = tableID + 1
		}
	}
	for indexID, metaPage := range indexMetaPages {
		im, err := c.loadIndexMeta(metaPage)
		if err != nil {
			return nil, err
		}
		km, err := index.NewKeyManager(im.KeySchema)
		if err != nil {
			return nil, err
		}
		tree, err := index.Open(indexID, pool, km)
		if err != nil {
			return nil, err
		}
		info := &IndexInfo{ID: im.ID, Name: im.Name, TableName: im.TableName, KeySchema: im.KeySchema, Tree: tree}
		c.indexes[indexKey(im.TableName, im.Name)] = info
		c.indexesByID[indexID] = info
		c.indexMeta[indexID] = metaPage
		c.tableIdx[im.TableName] = append(c.tableIdx[im.TableName], indexID)
		if indexID+1 > c.nextIndexID {
			c.nextIndexID = indexID + 1
		}
	}
	return c, nil
}

func (c *Catalog) loadTableMeta(metaPage common.PageID) (*tableMetadata, error) {
	g, ok, err := c.pool.FetchPage(metaPage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog: table metadata page %d missing", metaPage)
	}
	defer g.Unpin()
	return deserializeTableMetadata(g.Data())
}

func (c *Catalog) loadIndexMeta(metaPage common.PageID) (*indexMetadata, error) {
	g, ok, err := c.pool.FetchPage(metaPage)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, fmt.Errorf("catalog: index metadata page %d missing", metaPage)
	}
	defer g.Unpin()
	return deserializeIndexMetadata(g.Data())
}

// CreateTable allocates a table heap and persists its metadata, mirroring
// CatalogManager::CreateTable.
func (c *Catalog) CreateTable(name string, schema *record.Schema) (*TableInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if _, exists := c.tables[name]; exists {
		return nil, fmt.Errorf("catalog: table %q already exists", name)
	}

	heap, err := table.Create(c.pool, schema, c.log.Desugar())
	if err != nil {
		return nil, err
	}

	id := c.nextTableID
	c.nextTableID++

	meta := &tableMetadata{ID: id, Name: name, FirstPageID: heap.FirstPageID(), Schema: schema}
	metaPage, err := c.allocMetaPage(meta.serializedSize(), meta.serializeTo)
	if err != nil {
		return nil, err
	}
	if err := c.registerTablePage(id, metaPage); err != nil {
		return nil, err
	}

	info := &TableInfo{ID: id, Name: name, Schema: schema, Heap: heap}
	c.tables[name] = info
	c.tablesByID[id] = info
	c.tableMeta[id] = metaPage
	c.log.Infow("created table", "name", name, "id", id)
	return info, nil
}

// allocMetaPage allocates a fresh page and writes a single serialized
// record onto it, the pattern every metadata page (table, index) shares.
func (c *Catalog) allocMetaPage(size uint32, write func([]byte) uint32) (common.PageID, error) {
	if size > common.PageSize {
		return common.InvalidPageID, fmt.Errorf("catalog: metadata record of %d bytes does not fit in one page", size)
	}
	g, ok, err := c.pool.NewPage()
	if err != nil {
		return common.InvalidPageID, err
	}
	if !ok {
		return common.InvalidPageID, fmt.Errorf("catalog: buffer pool exhausted allocating metadata page")
	}
	write(g.Data())
	g.MarkDirty()
	id := g.PageID()
	g.Unpin()
	return id, nil
}

func (c *Catalog) registerTablePage(id uint32, metaPage common.PageID) error {
	g, ok, err := c.pool.FetchPage(MetaPageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("catalog: meta page %d missing", MetaPageID)
	}
	defer g.Unpin()
	cmp := page.AsCatalogMetaPage(g.Data())
	if !cmp.PutTable(id, metaPage) {
		return fmt.Errorf("catalog: catalog meta page full, cannot register table %d", id)
	}
	g.MarkDirty()
	return nil
}

func (c *Catalog) registerIndexPage(id uint32, metaPage common.PageID) error {
	g, ok, err := c.pool.FetchPage(MetaPageID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("catalog: meta page %d missing", MetaPageID)
	}
	defer g.Unpin()
	cmp := page.AsCatalogMetaPage(g.Data())
	if !cmp.PutIndex(id, metaPage) {
		return fmt.Errorf("catalog: catalog meta page full, cannot register index %d", id)
	}
	g.MarkDirty()
	return nil
}

// GetTable looks up a table by name.
func (c *Catalog) GetTable(name string) (*TableInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.tables[name]
	return info, ok
}

// GetTableByID looks up a table by its numeric id.
func (c *Catalog) GetTableByID(id uint32) (*TableInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.tablesByID[id]
	return info, ok
}

// GetTables returns every table currently registered.
func (c *Catalog) GetTables() []*TableInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]*TableInfo, 0, len(c.tables))
	for _, t := range c.tables {
		out = append(out, t)
	}
	return out
}

// DropTable removes a table and every index defined on it, mirroring
// CatalogManager::DropTable's cascade.
func (c *Catalog) DropTable(name string) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	info, ok := c.tables[name]
	if !ok {
		return fmt.Errorf("catalog: table %q not found", name)
	}
	for _, indexID := range append([]uint32(nil), c.tableIdx[name]...) {
		if err := c.dropIndexLocked(c.indexesByID[indexID]); err != nil {
			return err
		}
	}

	g, ok2, err := c.pool.FetchPage(MetaPageID)
	if err != nil {
		return err
	}
	if ok2 {
		cmp := page.AsCatalogMetaPage(g.Data())
		cmp.RemoveTable(info.ID)
		g.MarkDirty()
		g.Unpin()
	}
	if err := c.pool.DeletePage(c.tableMeta[info.ID]); err != nil {
		return err
	}

	delete(c.tables, name)
	delete(c.tablesByID, info.ID)
	delete(c.tableMeta, info.ID)
	delete(c.tableIdx, name)
	c.log.Infow("dropped table", "name", name, "id", info.ID)
	return nil
}

// CreateIndex builds a new B+-tree over keyColumns and backfills it from
// every row currently in the table, mirroring
// CatalogManager::CreateIndex's row-by-row index_.InsertEntry loop.
func (c *Catalog) CreateIndex(tableName, indexName string, keyColumns []string) (*IndexInfo, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	tableInfo, ok := c.tables[tableName]
	if !ok {
		return nil, fmt.Errorf("catalog: table %q not found", tableName)
	}
	if _, exists := c.indexes[indexKey(tableName, indexName)]; exists {
		return nil, fmt.Errorf("catalog: index %q already exists on table %q", indexName, tableName)
	}

	cols := make([]*record.Column, 0, len(keyColumns))
	for _, name := range keyColumns {
		i, found := tableInfo.Schema.GetColumnIndex(name)
		if !found {
			return nil, fmt.Errorf("catalog: table %q has no column %q", tableName, name)
		}
		col := tableInfo.Schema.GetColumn(i)
		cols = append(cols, col)
	}
	keySchema := record.NewSchema(cols)

	km, err := index.NewKeyManager(keySchema)
	if err != nil {
		return nil, err
	}

	id := c.nextIndexID
	c.nextIndexID++

	tree, err := index.Open(id, c.pool, km)
	if err != nil {
		return nil, err
	}

	it := tableInfo.Heap.Begin()
	for it.Valid() {
		row := it.Row()
		keyRow, err := row.GetKeyFromRow(tableInfo.Schema, keySchema)
		if err != nil {
			return nil, err
		}
		key, err := km.SerializeKey(keyRow)
		if err != nil {
			return nil, err
		}
		if _, err := tree.Insert(key, row.RID); err != nil {
			return nil, fmt.Errorf("catalog: backfilling index %q: %w", indexName, err)
		}
		it.Next()
	}
	if it.Err() != nil {
		return nil, it.Err()
	}

	meta := &indexMetadata{ID: id, Name: indexName, TableName: tableName, KeySchema: keySchema}
	metaPage, err := c.allocMetaPage(meta.serializedSize(), meta.serializeTo)
	if err != nil {
		return nil, err
	}
	if err := c.registerIndexPage(id, metaPage); err != nil {
		return nil, err
	}

	info := &IndexInfo{ID: id, Name: indexName, TableName: tableName, KeySchema: keySchema, Tree: tree}
	c.indexes[indexKey(tableName, indexName)] = info
	c.indexesByID[id] = info
	c.indexMeta[id] = metaPage
	c.tableIdx[tableName] = append(c.tableIdx[tableName], id)
	c.log.Infow("created index", "table", tableName, "name", indexName, "id", id)
	return info, nil
}

// GetIndex looks up an index by table and index name.
func (c *Catalog) GetIndex(tableName, indexName string) (*IndexInfo, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.indexes[indexKey(tableName, indexName)]
	return info, ok
}

// GetTableIndexes returns every index defined on tableName.
func (c *Catalog) GetTableIndexes(tableName string) []*IndexInfo {
	c.mu.Lock()
	defer c.mu.Unlock()
	ids := c.tableIdx[tableName]
	out := make([]*IndexInfo, 0, len(ids))
	for _, id := range ids {
		out = append(out, c.indexesByID[id])
	}
	return out
}

// DropIndex removes a single index from a table.
func (c *Catalog) DropIndex(tableName, indexName string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	info, ok := c.indexes[indexKey(tableName, indexName)]
	if !ok {
		return fmt.Errorf("catalog: index %q not found on table %q", indexName, tableName)
	}
	return c.dropIndexLocked(info)
}

func (c *Catalog) dropIndexLocked(info *IndexInfo) error {
	g, ok, err := c.pool.FetchPage(MetaPageID)
	if err != nil {
		return err
	}
	if ok {
		cmp := page.AsCatalogMetaPage(g.Data())
		cmp.RemoveIndex(info.ID)
		g.MarkDirty()
		g.Unpin()
	}
	if err := c.pool.DeletePage(c.indexMeta[info.ID]); err != nil {
		return err
	}

	key := indexKey(info.TableName, info.Name)
	delete(c.indexes, key)
	delete(c.indexesByID, info.ID)
	delete(c.indexMeta, info.ID)
	ids := c.tableIdx[info.TableName]
	for i, id := range ids {
		if id == info.ID {
			c.tableIdx[info.TableName] = append(ids[:i], ids[i+1:]...)
			break
		}
	}
	c.log.Infow("dropped index", "table", info.TableName, "name", info.Name, "id", info.ID)
	return nil
}

// FlushCatalogMetaPage forces the catalog's own directory page to disk,
// mirroring CatalogManager::FlushCatalogMetaPage (used before a checkpoint,
// spec §4.9).
func (c *Catalog) FlushCatalogMetaPage() error {
	return c.pool.FlushPage(MetaPageID)
}
