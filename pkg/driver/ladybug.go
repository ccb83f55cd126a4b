package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	ladybug "github.com/LadybugDB/go-ladybug"

	"github.com/axonmem/axon/pkg/types"
)

// ladybugSchema defines the embedded database schema. Ladybug requires
// explicit node and rel tables; relationship properties live directly on the
// RELATES_TO table.
const ladybugSchema = `
    CREATE NODE TABLE IF NOT EXISTS Memory (
        id STRING PRIMARY KEY,
        content STRING,
        summary STRING,
        confidence DOUBLE,
        permeability STRING,
        created_at TIMESTAMP,
        last_accessed TIMESTAMP,
        access_count INT64
    );
    CREATE NODE TABLE IF NOT EXISTS Compartment (
        id STRING PRIMARY KEY,
        name STRING,
        permeability STRING,
        allow_external_connections BOOLEAN,
        description STRING,
        created_at TIMESTAMP
    );
    CREATE REL TABLE IF NOT EXISTS RELATES_TO (
        FROM Memory TO Memory,
        strength DOUBLE,
        rel_type STRING,
        permeability STRING,
        created_at TIMESTAMP
    );
    CREATE REL TABLE IF NOT EXISTS IN_COMPARTMENT (
        FROM Memory TO Compartment
    );
`

// ladybugWrite is a queued write operation.
type ladybugWrite struct {
	query    string
	params   map[string]any
	resultCh chan ladybugResult
}

type ladybugResult struct {
	rows []map[string]any
	err  error
}

// LadybugStore implements GraphStore on the Ladybug embedded graph engine.
// The underlying C++ library is not thread-safe, so all writes are funneled
// through a single worker goroutine and reads take a mutex.
type LadybugStore struct {
	db     *ladybug.Database
	conn   *ladybug.Connection
	dbPath string
	logger *slog.Logger

	mu         sync.Mutex
	writeQueue chan ladybugWrite
	writeWg    sync.WaitGroup
	closeCh    chan struct{}
	closed     bool
	closeMu    sync.RWMutex
}

// LadybugConfig holds open options for the embedded store.
type LadybugConfig struct {
	// DBPath is the database directory (defaults to ":memory:").
	DBPath string
	// BufferPoolSize in bytes (defaults to 1GB).
	BufferPoolSize uint64
	// WriteQueueSize is the queued-write buffer (defaults to 1000).
	WriteQueueSize int
	// EnableCompression defaults to true.
	EnableCompression bool
}

// DefaultLadybugConfig returns conservative defaults.
func DefaultLadybugConfig() *LadybugConfig {
	return &LadybugConfig{
		DBPath:            ":memory:",
		BufferPoolSize:    1024 * 1024 * 1024,
		WriteQueueSize:    1000,
		EnableCompression: true,
	}
}

// NewLadybugStore opens (or creates) an embedded database at cfg.DBPath and
// initializes the schema.
func NewLadybugStore(cfg *LadybugConfig, logger *slog.Logger) (*LadybugStore, error) {
	if cfg == nil {
		cfg = DefaultLadybugConfig()
	}
	if cfg.DBPath == "" {
		cfg.DBPath = ":memory:"
	}
	if cfg.BufferPoolSize == 0 {
		cfg.BufferPoolSize = 1024 * 1024 * 1024
	}
	if cfg.WriteQueueSize <= 0 {
		cfg.WriteQueueSize = 1000
	}
	if logger == nil {
		logger = slog.Default()
	}

	systemConfig := ladybug.SystemConfig{
		BufferPoolSize:    cfg.BufferPoolSize,
		MaxNumThreads:     1,
		EnableCompression: cfg.EnableCompression,
		ReadOnly:          false,
		MaxDbSize:         1 << 43,
	}

	db, err := ladybug.OpenDatabase(cfg.DBPath, systemConfig)
	if err != nil {
		return nil, fmt.Errorf("open ladybug database: %w", err)
	}

	conn, err := ladybug.OpenConnection(db)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("open ladybug connection: %w", err)
	}

	s := &LadybugStore{
		db:         db,
		conn:       conn,
		dbPath:     cfg.DBPath,
		logger:     logger,
		writeQueue: make(chan ladybugWrite, cfg.WriteQueueSize),
		closeCh:    make(chan struct{}),
	}

	if _, err := conn.Query(ladybugSchema); err != nil {
		conn.Close()
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}

	s.writeWg.Add(1)
	go s.writeWorker()

	return s, nil
}

// Provider returns the graph provider type.
func (s *LadybugStore) Provider() GraphProvider {
	return GraphProviderLadybug
}

// Close drains the write queue and releases the database.
func (s *LadybugStore) Close() error {
	s.closeMu.Lock()
	if s.closed {
		s.closeMu.Unlock()
		return nil
	}
	s.closed = true
	s.closeMu.Unlock()

	close(s.closeCh)
	s.writeWg.Wait()

	if s.conn != nil {
		s.conn.Close()
	}
	if s.db != nil {
		s.db.Close()
	}
	return nil
}

// writeWorker executes queued writes sequentially.
func (s *LadybugStore) writeWorker() {
	defer s.writeWg.Done()
	for {
		select {
		case <-s.closeCh:
			// Drain remaining operations before exiting.
			for {
				select {
				case op := <-s.writeQueue:
					rows, err := s.execute(op.query, op.params)
					op.resultCh <- ladybugResult{rows, err}
					close(op.resultCh)
				default:
					return
				}
			}
		case op := <-s.writeQueue:
			rows, err := s.execute(op.query, op.params)
			op.resultCh <- ladybugResult{rows, err}
			close(op.resultCh)
		}
	}
}

// write routes a mutation through the write queue.
func (s *LadybugStore) write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.closeMu.RUnlock()

	resultCh := make(chan ladybugResult, 1)
	select {
	case s.writeQueue <- ladybugWrite{query: query, params: params, resultCh: resultCh}:
	case <-ctx.Done():
		return nil, ctx.Err()
	}

	select {
	case res := <-resultCh:
		return res.rows, res.err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// read executes a read query directly under the mutex.
func (s *LadybugStore) read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	s.closeMu.RLock()
	if s.closed {
		s.closeMu.RUnlock()
		return nil, fmt.Errorf("store is closed")
	}
	s.closeMu.RUnlock()

	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return s.execute(query, params)
}

// execute runs a Cypher statement and converts the result rows to maps.
func (s *LadybugStore) execute(query string, params map[string]any) ([]map[string]any, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var results *ladybug.QueryResult
	var err error

	if len(params) > 0 {
		stmt, err := s.conn.Prepare(query)
		if err != nil {
			s.logger.Error("prepare ladybug query", "error", err, "query", query)
			return nil, err
		}
		results, err = s.conn.Execute(stmt, params)
		if err != nil {
			s.logger.Error("execute ladybug query", "error", err, "query", query)
			return nil, err
		}
	} else {
		results, err = s.conn.Query(query)
		if err != nil {
			s.logger.Error("execute ladybug query", "error", err, "query", query)
			return nil, err
		}
	}
	defer results.Close()

	columnNames := results.GetColumnNames()

	var rows []map[string]any
	for results.HasNext() {
		row, err := results.Next()
		if err != nil {
			continue
		}
		values, err := row.GetAsSlice()
		if err != nil {
			continue
		}
		rowDict := make(map[string]any, len(values))
		for i, value := range values {
			if i < len(columnNames) {
				rowDict[columnNames[i]] = value
			}
		}
		rows = append(rows, rowDict)
	}
	return rows, nil
}

// --- Memory operations ---

func (s *LadybugStore) UpsertMemory(ctx context.Context, m *types.Memory) error {
	_, err := s.write(ctx, `
		MERGE (m:Memory {id: $id})
		SET m.content = $content, m.summary = $summary, m.confidence = $confidence,
		    m.permeability = $permeability, m.created_at = $created,
		    m.last_accessed = $accessed, m.access_count = $count
	`, map[string]any{
		"id":           m.ID,
		"content":      m.Content,
		"summary":      m.Summary,
		"confidence":   m.Confidence,
		"permeability": string(m.Permeability),
		"created":      m.CreatedAt,
		"accessed":     m.LastAccessed,
		"count":        m.AccessCount,
	})
	return err
}

func (s *LadybugStore) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
	rows, err := s.read(ctx, `
		MATCH (m:Memory {id: $id})
		RETURN m.id AS id, m.content AS content, m.summary AS summary,
		       m.confidence AS confidence, m.permeability AS permeability,
		       m.created_at AS created_at, m.last_accessed AS last_accessed,
		       m.access_count AS access_count
	`, map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("memory %s: %w", id, ErrMemoryNotFound)
	}
	return memoryFromRow(rows[0]), nil
}

func (s *LadybugStore) TouchMemory(ctx context.Context, id string, at time.Time) error {
	_, err := s.write(ctx, `
		MATCH (m:Memory {id: $id})
		SET m.last_accessed = $now, m.access_count = m.access_count + 1
	`, map[string]any{"id": id, "now": at})
	return err
}

func (s *LadybugStore) SetMemoryPermeability(ctx context.Context, ids []string, p types.Permeability) error {
	for _, id := range ids {
		if _, err := s.write(ctx, `
			MATCH (m:Memory {id: $id})
			SET m.permeability = $perm
		`, map[string]any{"id": id, "perm": string(p)}); err != nil {
			return err
		}
	}
	return nil
}

func (s *LadybugStore) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.write(ctx, `
		MATCH (m:Memory {id: $id})
		DETACH DELETE m
	`, map[string]any{"id": id})
	return err
}

// --- Compartment operations ---

func (s *LadybugStore) UpsertCompartment(ctx context.Context, c *types.Compartment) error {
	_, err := s.write(ctx, `
		MERGE (c:Compartment {id: $id})
		SET c.name = $name, c.permeability = $permeability,
		    c.allow_external_connections = $allowExternal,
		    c.description = $description, c.created_at = $created
	`, map[string]any{
		"id":            c.ID,
		"name":          c.Name,
		"permeability":  string(c.Permeability),
		"allowExternal": c.AllowExternalConnections,
		"description":   c.Description,
		"created":       c.CreatedAt,
	})
	return err
}

const compartmentReturn = `
	RETURN c.id AS id, c.name AS name, c.permeability AS permeability,
	       c.allow_external_connections AS allow_external_connections,
	       c.description AS description, c.created_at AS created_at
`

func (s *LadybugStore) GetCompartment(ctx context.Context, id string) (*types.Compartment, error) {
	rows, err := s.read(ctx, `MATCH (c:Compartment {id: $id})`+compartmentReturn,
		map[string]any{"id": id})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("compartment %s: %w", id, ErrCompartmentNotFound)
	}
	return compartmentFromRow(rows[0]), nil
}

func (s *LadybugStore) GetCompartmentByName(ctx context.Context, name string) (*types.Compartment, error) {
	rows, err := s.read(ctx, `MATCH (c:Compartment {name: $name})`+compartmentReturn,
		map[string]any{"name": name})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("compartment %q: %w", name, ErrCompartmentNotFound)
	}
	return compartmentFromRow(rows[0]), nil
}

func (s *LadybugStore) DeleteCompartment(ctx context.Context, id string) error {
	if _, err := s.write(ctx, `
		MATCH (m:Memory)-[r:IN_COMPARTMENT]->(c:Compartment {id: $id})
		DELETE r
	`, map[string]any{"id": id}); err != nil {
		return err
	}
	_, err := s.write(ctx, `
		MATCH (c:Compartment {id: $id})
		DELETE c
	`, map[string]any{"id": id})
	return err
}

func (s *LadybugStore) AddToCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	// MERGE keeps re-adding a member a no-op.
	for _, mid := range memoryIDs {
		if _, err := s.write(ctx, `
			MATCH (m:Memory {id: $mid}), (c:Compartment {id: $cid})
			MERGE (m)-[:IN_COMPARTMENT]->(c)
		`, map[string]any{"mid": mid, "cid": compartmentID}); err != nil {
			return err
		}
	}
	return nil
}

func (s *LadybugStore) RemoveFromCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	for _, mid := range memoryIDs {
		var err error
		if compartmentID != "" {
			_, err = s.write(ctx, `
				MATCH (m:Memory {id: $mid})-[r:IN_COMPARTMENT]->(c:Compartment {id: $cid})
				DELETE r
			`, map[string]any{"mid": mid, "cid": compartmentID})
		} else {
			_, err = s.write(ctx, `
				MATCH (m:Memory {id: $mid})-[r:IN_COMPARTMENT]->(:Compartment)
				DELETE r
			`, map[string]any{"mid": mid})
		}
		if err != nil {
			return err
		}
	}
	return nil
}

func (s *LadybugStore) CompartmentsOf(ctx context.Context, memoryID string) ([]*types.Compartment, error) {
	rows, err := s.read(ctx, `
		MATCH (m:Memory {id: $mid})-[:IN_COMPARTMENT]->(c:Compartment)
	`+compartmentReturn, map[string]any{"mid": memoryID})
	if err != nil {
		return nil, err
	}
	comps := make([]*types.Compartment, 0, len(rows))
	for _, row := range rows {
		comps = append(comps, compartmentFromRow(row))
	}
	return comps, nil
}

func (s *LadybugStore) MembersOf(ctx context.Context, compartmentID string, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.read(ctx, fmt.Sprintf(`
		MATCH (m:Memory)-[:IN_COMPARTMENT]->(c:Compartment {id: $cid})
		RETURN m.id AS id, m.content AS content, m.summary AS summary,
		       m.confidence AS confidence, m.permeability AS permeability,
		       m.created_at AS created_at, m.last_accessed AS last_accessed,
		       m.access_count AS access_count
		LIMIT %d
	`, limit), map[string]any{"cid": compartmentID})
	if err != nil {
		return nil, err
	}
	members := make([]*types.Memory, 0, len(rows))
	for _, row := range rows {
		members = append(members, memoryFromRow(row))
	}
	return members, nil
}

func (s *LadybugStore) MemberCount(ctx context.Context, compartmentID string) (int64, error) {
	rows, err := s.read(ctx, `
		MATCH (m:Memory)-[:IN_COMPARTMENT]->(c:Compartment {id: $cid})
		RETURN count(m) AS count
	`, map[string]any{"cid": compartmentID})
	if err != nil {
		return 0, err
	}
	if len(rows) == 0 {
		return 0, nil
	}
	return asInt64(rows[0]["count"]), nil
}

// --- Connection operations ---

const connectionReturn = `
	RETURN m1.id AS source_id, m2.id AS target_id, r.strength AS strength,
	       r.rel_type AS rel_type, r.permeability AS permeability,
	       r.created_at AS created_at
`

func (s *LadybugStore) SetConnection(ctx context.Context, c *types.Connection) error {
	created := c.CreatedAt
	if created.IsZero() {
		created = time.Now().UTC()
	}
	_, err := s.write(ctx, `
		MATCH (m1:Memory {id: $source}), (m2:Memory {id: $target})
		MERGE (m1)-[r:RELATES_TO]->(m2)
		SET r.strength = $strength, r.rel_type = $relType,
		    r.permeability = $perm, r.created_at = $created
	`, map[string]any{
		"source":   c.SourceID,
		"target":   c.TargetID,
		"strength": c.Strength,
		"relType":  c.Type,
		"perm":     string(c.Permeability),
		"created":  created,
	})
	return err
}

func (s *LadybugStore) GetConnection(ctx context.Context, sourceID, targetID string) (*types.Connection, error) {
	rows, err := s.read(ctx, `
		MATCH (m1:Memory {id: $source})-[r:RELATES_TO]->(m2:Memory {id: $target})
	`+connectionReturn, map[string]any{"source": sourceID, "target": targetID})
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, fmt.Errorf("connection %s->%s: %w", sourceID, targetID, ErrConnectionNotFound)
	}
	return connectionFromRow(rows[0]), nil
}

func (s *LadybugStore) DeleteConnection(ctx context.Context, sourceID, targetID string) error {
	_, err := s.write(ctx, `
		MATCH (m1:Memory {id: $source})-[r:RELATES_TO]->(m2:Memory {id: $target})
		DELETE r
	`, map[string]any{"source": sourceID, "target": targetID})
	return err
}

func (s *LadybugStore) ListConnections(ctx context.Context, filter ConnectionFilter) ([]*types.Connection, error) {
	var conditions []string
	params := map[string]any{}
	if filter.StrengthBelow != nil {
		conditions = append(conditions, "r.strength < $below")
		params["below"] = *filter.StrengthBelow
	}
	if filter.StrengthAtMost != nil {
		conditions = append(conditions, "r.strength <= $atMost")
		params["atMost"] = *filter.StrengthAtMost
	}
	if filter.Type != "" {
		conditions = append(conditions, "r.rel_type = $relType")
		params["relType"] = filter.Type
	}
	query := `MATCH (m1:Memory)-[r:RELATES_TO]->(m2:Memory)`
	if len(conditions) > 0 {
		query += " WHERE " + strings.Join(conditions, " AND ")
	}
	rows, err := s.read(ctx, query+connectionReturn, params)
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, connectionFromRow(row))
	}
	return conns, nil
}

func (s *LadybugStore) ConnectionsTouching(ctx context.Context, memoryID string) ([]*types.Connection, error) {
	out, err := s.read(ctx, `
		MATCH (m1:Memory {id: $id})-[r:RELATES_TO]->(m2:Memory)
	`+connectionReturn, map[string]any{"id": memoryID})
	if err != nil {
		return nil, err
	}
	in, err := s.read(ctx, `
		MATCH (m1:Memory)-[r:RELATES_TO]->(m2:Memory {id: $id})
	`+connectionReturn, map[string]any{"id": memoryID})
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(out)+len(in))
	for _, row := range out {
		conns = append(conns, connectionFromRow(row))
	}
	for _, row := range in {
		conns = append(conns, connectionFromRow(row))
	}
	return conns, nil
}

func (s *LadybugStore) ConnectionsFrom(ctx context.Context, memoryID string, strongestFirst bool, limit int) ([]*types.Connection, error) {
	if limit <= 0 {
		limit = 10
	}
	order := "ASC"
	if strongestFirst {
		order = "DESC"
	}
	rows, err := s.read(ctx, fmt.Sprintf(`
		MATCH (m1:Memory {id: $id})-[r:RELATES_TO]->(m2:Memory)
	`+connectionReturn+`
		ORDER BY r.strength %s
		LIMIT %d
	`, order, limit), map[string]any{"id": memoryID})
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, connectionFromRow(row))
	}
	return conns, nil
}

func (s *LadybugStore) Neighborhood(ctx context.Context, memoryID string, maxHops int) ([]string, error) {
	if maxHops <= 0 {
		maxHops = 1
	}
	rows, err := s.read(ctx, fmt.Sprintf(`
		MATCH (m:Memory {id: $id})-[:RELATES_TO*1..%d]-(n:Memory)
		WHERE n.id <> $id
		RETURN DISTINCT n.id AS id
	`, maxHops), map[string]any{"id": memoryID})
	if err != nil {
		return nil, err
	}
	ids := make([]string, 0, len(rows))
	for _, row := range rows {
		ids = append(ids, asString(row["id"]))
	}
	return ids, nil
}

// --- Row conversion ---

func memoryFromRow(row map[string]any) *types.Memory {
	return &types.Memory{
		ID:           asString(row["id"]),
		Content:      asString(row["content"]),
		Summary:      asString(row["summary"]),
		Confidence:   asFloat(row["confidence"]),
		Permeability: types.ParsePermeability(asString(row["permeability"])),
		CreatedAt:    asTime(row["created_at"]),
		LastAccessed: asTime(row["last_accessed"]),
		AccessCount:  asInt64(row["access_count"]),
	}
}

func compartmentFromRow(row map[string]any) *types.Compartment {
	return &types.Compartment{
		ID:                       asString(row["id"]),
		Name:                     asString(row["name"]),
		Permeability:             types.ParsePermeability(asString(row["permeability"])),
		AllowExternalConnections: asBool(row["allow_external_connections"]),
		Description:              asString(row["description"]),
		CreatedAt:                asTime(row["created_at"]),
	}
}

func connectionFromRow(row map[string]any) *types.Connection {
	conn := &types.Connection{
		SourceID:  asString(row["source_id"]),
		TargetID:  asString(row["target_id"]),
		Strength:  asFloat(row["strength"]),
		Type:      asString(row["rel_type"]),
		CreatedAt: asTime(row["created_at"]),
	}
	if perm := asString(row["permeability"]); perm != "" {
		conn.Permeability = types.ParsePermeability(perm)
	}
	return conn
}
