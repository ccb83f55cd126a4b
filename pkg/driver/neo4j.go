package driver

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/neo4j/neo4j-go-driver/v5/neo4j"

	"github.com/axonmem/axon/pkg/types"
)

// Neo4jStore implements GraphStore against a Neo4j server for deployments
// that outgrow the embedded engine.
type Neo4jStore struct {
	client   neo4j.DriverWithContext
	database string
	logger   *slog.Logger
}

// Neo4jConfig holds connection options.
type Neo4jConfig struct {
	URI      string
	Username string
	Password string
	Database string
}

// NewNeo4jStore connects to the server, verifies connectivity and ensures
// uniqueness constraints.
func NewNeo4jStore(ctx context.Context, cfg *Neo4jConfig, logger *slog.Logger) (*Neo4jStore, error) {
	if cfg == nil || cfg.URI == "" {
		return nil, fmt.Errorf("neo4j: URI is required")
	}
	if cfg.Database == "" {
		cfg.Database = "neo4j"
	}
	if logger == nil {
		logger = slog.Default()
	}

	client, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("create neo4j driver: %w", err)
	}
	if err := client.VerifyConnectivity(ctx); err != nil {
		client.Close(ctx)
		return nil, fmt.Errorf("verify neo4j connectivity: %w", err)
	}

	s := &Neo4jStore{client: client, database: cfg.Database, logger: logger}
	if err := s.ensureConstraints(ctx); err != nil {
		client.Close(ctx)
		return nil, err
	}
	return s, nil
}

func (s *Neo4jStore) ensureConstraints(ctx context.Context) error {
	constraints := []string{
		"CREATE CONSTRAINT memory_id IF NOT EXISTS FOR (m:Memory) REQUIRE m.id IS UNIQUE",
		"CREATE CONSTRAINT compartment_id IF NOT EXISTS FOR (c:Compartment) REQUIRE c.id IS UNIQUE",
	}
	for _, stmt := range constraints {
		if _, err := s.write(ctx, stmt, nil); err != nil {
			return fmt.Errorf("create constraint: %w", err)
		}
	}
	return nil
}

// Provider returns the graph provider type.
func (s *Neo4jStore) Provider() GraphProvider {
	return GraphProviderNeo4j
}

// Close shuts down the underlying driver.
func (s *Neo4jStore) Close() error {
	return s.client.Close(context.Background())
}

func (s *Neo4jStore) session(ctx context.Context) neo4j.SessionWithContext {
	return s.client.NewSession(ctx, neo4j.SessionConfig{DatabaseName: s.database})
}

func (s *Neo4jStore) read(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return collectRows(ctx, res)
	})
	if err != nil {
		s.logger.Error("neo4j read", "error", err, "query", query)
		return nil, err
	}
	return result.([]map[string]any), nil
}

func (s *Neo4jStore) write(ctx context.Context, query string, params map[string]any) ([]map[string]any, error) {
	session := s.session(ctx)
	defer session.Close(ctx)

	result, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, query, params)
		if err != nil {
			return nil, err
		}
		return collectRows(ctx, res)
	})
	if err != nil {
		s.logger.Error("neo4j write", "error", err, "query", query)
		return nil, err
	}
	return result.([]map[string]any), nil
}

func collectRows(ctx context.Context, res neo4j.ResultWithContext) ([]map[string]any, error) {
	records, err := res.Collect(ctx)
	if err != nil {
		return nil, err
	}
	rows := make([]map[string]any, 0, len(records))
	for _, record := range records {
		row := make(map[string]any, len(record.Keys))
		for _, key := range record.Keys {
			value, _ := record.Get(key)
			row[key] = value
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// --- Memory operations ---

func (s *Neo4jStore) UpsertMemory(ctx context.Context, m *types.Memory) error {
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

func (s *Neo4jStore) GetMemory(ctx context.Context, id string) (*types.Memory, error) {
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

func (s *Neo4jStore) TouchMemory(ctx context.Context, id string, at time.Time) error {
	_, err := s.write(ctx, `
		MATCH (m:Memory {id: $id})
		SET m.last_accessed = $now, m.access_count = m.access_count + 1
	`, map[string]any{"id": id, "now": at})
	return err
}

func (s *Neo4jStore) SetMemoryPermeability(ctx context.Context, ids []string, p types.Permeability) error {
	_, err := s.write(ctx, `
		MATCH (m:Memory)
		WHERE m.id IN $ids
		SET m.permeability = $perm
	`, map[string]any{"ids": ids, "perm": string(p)})
	return err
}

func (s *Neo4jStore) DeleteMemory(ctx context.Context, id string) error {
	_, err := s.write(ctx, `
		MATCH (m:Memory {id: $id})
		DETACH DELETE m
	`, map[string]any{"id": id})
	return err
}

// --- Compartment operations ---

func (s *Neo4jStore) UpsertCompartment(ctx context.Context, c *types.Compartment) error {
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

func (s *Neo4jStore) GetCompartment(ctx context.Context, id string) (*types.Compartment, error) {
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

func (s *Neo4jStore) GetCompartmentByName(ctx context.Context, name string) (*types.Compartment, error) {
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

func (s *Neo4jStore) DeleteCompartment(ctx context.Context, id string) error {
	_, err := s.write(ctx, `
		MATCH (c:Compartment {id: $id})
		DETACH DELETE c
	`, map[string]any{"id": id})
	return err
}

func (s *Neo4jStore) AddToCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	_, err := s.write(ctx, `
		MATCH (c:Compartment {id: $cid})
		MATCH (m:Memory)
		WHERE m.id IN $mids
		MERGE (m)-[:IN_COMPARTMENT]->(c)
	`, map[string]any{"mids": memoryIDs, "cid": compartmentID})
	return err
}

func (s *Neo4jStore) RemoveFromCompartment(ctx context.Context, memoryIDs []string, compartmentID string) error {
	if compartmentID != "" {
		_, err := s.write(ctx, `
			MATCH (m:Memory)-[r:IN_COMPARTMENT]->(c:Compartment {id: $cid})
			WHERE m.id IN $mids
			DELETE r
		`, map[string]any{"mids": memoryIDs, "cid": compartmentID})
		return err
	}
	_, err := s.write(ctx, `
		MATCH (m:Memory)-[r:IN_COMPARTMENT]->(:Compartment)
		WHERE m.id IN $mids
		DELETE r
	`, map[string]any{"mids": memoryIDs})
	return err
}

func (s *Neo4jStore) CompartmentsOf(ctx context.Context, memoryID string) ([]*types.Compartment, error) {
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

func (s *Neo4jStore) MembersOf(ctx context.Context, compartmentID string, limit int) ([]*types.Memory, error) {
	if limit <= 0 {
		limit = 100
	}
	rows, err := s.read(ctx, `
		MATCH (m:Memory)-[:IN_COMPARTMENT]->(c:Compartment {id: $cid})
		RETURN m.id AS id, m.content AS content, m.summary AS summary,
		       m.confidence AS confidence, m.permeability AS permeability,
		       m.created_at AS created_at, m.last_accessed AS last_accessed,
		       m.access_count AS access_count
		LIMIT $limit
	`, map[string]any{"cid": compartmentID, "limit": limit})
	if err != nil {
		return nil, err
	}
	members := make([]*types.Memory, 0, len(rows))
	for _, row := range rows {
		members = append(members, memoryFromRow(row))
	}
	return members, nil
}

func (s *Neo4jStore) MemberCount(ctx context.Context, compartmentID string) (int64, error) {
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

func (s *Neo4jStore) SetConnection(ctx context.Context, c *types.Connection) error {
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

func (s *Neo4jStore) GetConnection(ctx context.Context, sourceID, targetID string) (*types.Connection, error) {
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

func (s *Neo4jStore) DeleteConnection(ctx context.Context, sourceID, targetID string) error {
	_, err := s.write(ctx, `
		MATCH (m1:Memory {id: $source})-[r:RELATES_TO]->(m2:Memory {id: $target})
		DELETE r
	`, map[string]any{"source": sourceID, "target": targetID})
	return err
}

func (s *Neo4jStore) ListConnections(ctx context.Context, filter ConnectionFilter) ([]*types.Connection, error) {
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

func (s *Neo4jStore) ConnectionsTouching(ctx context.Context, memoryID string) ([]*types.Connection, error) {
	rows, err := s.read(ctx, `
		MATCH (m1:Memory)-[r:RELATES_TO]->(m2:Memory)
		WHERE m1.id = $id OR m2.id = $id
	`+connectionReturn, map[string]any{"id": memoryID})
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, connectionFromRow(row))
	}
	return conns, nil
}

func (s *Neo4jStore) ConnectionsFrom(ctx context.Context, memoryID string, strongestFirst bool, limit int) ([]*types.Connection, error) {
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
		LIMIT $limit
	`, order), map[string]any{"id": memoryID, "limit": limit})
	if err != nil {
		return nil, err
	}
	conns := make([]*types.Connection, 0, len(rows))
	for _, row := range rows {
		conns = append(conns, connectionFromRow(row))
	}
	return conns, nil
}

func (s *Neo4jStore) Neighborhood(ctx context.Context, memoryID string, maxHops int) ([]string, error) {
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
