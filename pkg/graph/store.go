package graph

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"sync"

	_ "modernc.org/sqlite"

	"github.com/sipeed/hybridmem/pkg/logger"
)

// Store is the knowledge graph: SQLite tables mirrored by an in-memory
// directed graph. One RWMutex covers the pair, so a mutation holds the
// write lock across its transaction and the mirror update.
type Store struct {
	mu    sync.RWMutex
	db    *sql.DB
	path  string
	g     *mirror
	rules *RuleSet
}

type Option func(*Store)

// WithRules replaces the component extraction rules used by IndexSchematics.
func WithRules(rs *RuleSet) Option {
	return func(s *Store) {
		if rs != nil {
			s.rules = rs
		}
	}
}

// Open creates or opens the graph database at path and loads the mirror.
func Open(path string, opts ...Option) (*Store, error) {
	if path != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
			return nil, fmt.Errorf("create graph dir: %w", err)
		}
	}

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open sqlite: %w", err)
	}
	// All access is serialised by Store.mu; one connection also keeps
	// ":memory:" databases from splitting across connections.
	db.SetMaxOpenConns(1)

	if _, err := db.Exec("PRAGMA journal_mode=WAL"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set WAL mode: %w", err)
	}
	if _, err := db.Exec("PRAGMA busy_timeout=5000"); err != nil {
		db.Close()
		return nil, fmt.Errorf("set busy timeout: %w", err)
	}

	s := &Store{
		db:    db,
		path:  path,
		g:     newMirror(),
		rules: DefaultRules(),
	}
	for _, opt := range opts {
		opt(s)
	}

	if err := s.createSchema(); err != nil {
		db.Close()
		return nil, fmt.Errorf("create schema: %w", err)
	}
	if err := s.loadMirror(); err != nil {
		db.Close()
		return nil, fmt.Errorf("load graph: %w", err)
	}

	logger.InfoCF("graph", "Graph store opened", map[string]interface{}{
		"path":     path,
		"entities": len(s.g.nodes),
		"edges":    s.g.edgeCount(),
	})
	return s, nil
}

// Close closes the database connection. Later calls fail with ErrClosed.
func (s *Store) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.db == nil {
		return nil
	}
	err := s.db.Close()
	s.db = nil
	return err
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) loadMirror() error {
	rows, err := s.db.Query("SELECT id, entity_type, name, metadata FROM entities")
	if err != nil {
		return err
	}
	ents, err := scanEntities(rows)
	if err != nil {
		return err
	}
	for _, e := range ents {
		s.g.setNode(e)
	}

	trows, err := s.db.Query("SELECT subject, predicate, object FROM triplets")
	if err != nil {
		return err
	}
	defer trows.Close()
	for trows.Next() {
		var subj, pred, obj string
		if err := trows.Scan(&subj, &pred, &obj); err != nil {
			return err
		}
		s.g.addEdge(subj, pred, obj)
	}
	return trows.Err()
}

// AddEntity upserts e (last write wins). It returns false only when e is
// invalid or the write fails.
func (s *Store) AddEntity(ctx context.Context, e Entity) bool {
	if strings.TrimSpace(e.ID) == "" {
		logger.WarnCF("graph", "Rejected entity", map[string]interface{}{"error": ErrInvalidID.Error()})
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	err := s.inTx(ctx, func(tx *sql.Tx) error {
		return upsertEntity(ctx, tx, e)
	})
	if err != nil {
		logger.ErrorCF("graph", "Failed to add entity", map[string]interface{}{
			"id":    e.ID,
			"error": err.Error(),
		})
		return false
	}
	s.g.setNode(cloneEntity(e))
	return true
}

// AddRelationship inserts the triple if it is new. Endpoints with no entity
// row get a placeholder entity of type "unknown" in the same transaction.
// Returns true only when a new triple was stored.
func (s *Store) AddRelationship(ctx context.Context, r Relationship) bool {
	if r.Subject == "" || r.Predicate == "" || r.Object == "" {
		logger.WarnCF("graph", "Rejected relationship", map[string]interface{}{
			"subject":   r.Subject,
			"predicate": r.Predicate,
			"object":    r.Object,
		})
		return false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	var created bool
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		var err error
		created, err = insertTriplet(ctx, tx, r)
		return err
	})
	if err != nil {
		logger.ErrorCF("graph", "Failed to add relationship", map[string]interface{}{
			"subject":   r.Subject,
			"predicate": r.Predicate,
			"object":    r.Object,
			"error":     err.Error(),
		})
		return false
	}
	s.g.addEdge(r.Subject, r.Predicate, r.Object)
	return created
}

// inTx runs fn in a transaction. Callers hold s.mu for writing.
func (s *Store) inTx(ctx context.Context, fn func(tx *sql.Tx) error) error {
	if s.db == nil {
		return ErrClosed
	}
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	if err := fn(tx); err != nil {
		tx.Rollback()
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit: %w", err)
	}
	return nil
}

func upsertEntity(ctx context.Context, tx *sql.Tx, e Entity) error {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	_, err = tx.ExecContext(ctx,
		`INSERT INTO entities (id, entity_type, name, metadata) VALUES (?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET
			entity_type = excluded.entity_type,
			name = excluded.name,
			metadata = excluded.metadata`,
		e.ID, e.EntityType, e.Name, meta,
	)
	if err != nil {
		return fmt.Errorf("upsert entity: %w", err)
	}
	return nil
}

// ensureEntity inserts e only if no row with its id exists.
func ensureEntity(ctx context.Context, tx *sql.Tx, e Entity) (bool, error) {
	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO entities (id, entity_type, name, metadata) VALUES (?, ?, ?, ?)",
		e.ID, e.EntityType, e.Name, meta,
	)
	if err != nil {
		return false, fmt.Errorf("insert entity: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func insertTriplet(ctx context.Context, tx *sql.Tx, r Relationship) (bool, error) {
	for _, id := range []string{r.Subject, r.Object} {
		if _, err := ensureEntity(ctx, tx, placeholder(id)); err != nil {
			return false, err
		}
	}
	meta, err := encodeMetadata(r.Metadata)
	if err != nil {
		return false, err
	}
	res, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO triplets (subject, predicate, object, metadata) VALUES (?, ?, ?, ?)",
		r.Subject, r.Predicate, r.Object, meta,
	)
	if err != nil {
		return false, fmt.Errorf("insert triplet: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

// GetEntity returns the entity with id, or nil if none exists.
func (s *Store) GetEntity(ctx context.Context, id string) *Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}

	var e Entity
	var meta sql.NullString
	err := s.db.QueryRowContext(ctx,
		"SELECT id, entity_type, name, metadata FROM entities WHERE id = ?", id,
	).Scan(&e.ID, &e.EntityType, &e.Name, &meta)
	if err != nil {
		if !errors.Is(err, sql.ErrNoRows) {
			logger.ErrorCF("graph", "Failed to get entity", map[string]interface{}{
				"id":    id,
				"error": err.Error(),
			})
		}
		return nil
	}
	e.Metadata = decodeMetadata(meta)
	return &e
}

// GetRelated returns outgoing relationships of subject, optionally
// restricted to one predicate.
func (s *Store) GetRelated(ctx context.Context, subject, predicate string) []Relationship {
	return s.queryTriplets(ctx, "subject", subject, predicate)
}

// GetSubjects returns incoming relationships of object, optionally
// restricted to one predicate.
func (s *Store) GetSubjects(ctx context.Context, object, predicate string) []Relationship {
	return s.queryTriplets(ctx, "object", object, predicate)
}

func (s *Store) queryTriplets(ctx context.Context, column, id, predicate string) []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}

	query := "SELECT subject, predicate, object, metadata FROM triplets WHERE " + column + " = ?"
	args := []interface{}{id}
	if predicate != "" {
		query += " AND predicate = ?"
		args = append(args, predicate)
	}
	query += " ORDER BY id"

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.ErrorCF("graph", "Failed to query relationships", map[string]interface{}{
			column:  id,
			"error": err.Error(),
		})
		return nil
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		var meta sql.NullString
		if err := rows.Scan(&r.Subject, &r.Predicate, &r.Object, &meta); err != nil {
			continue
		}
		r.Metadata = decodeMetadata(meta)
		out = append(out, r)
	}
	return out
}

// GetNeighbors returns the sorted ids adjacent to id in the given direction.
func (s *Store) GetNeighbors(ctx context.Context, id string, dir Direction) []string {
	if ctx.Err() != nil {
		return nil
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.g.neighbors(id, dir)
}

// QueryByEntityType returns all entities of the given type ordered by id.
func (s *Store) QueryByEntityType(ctx context.Context, entityType string) []Entity {
	return s.queryEntities(ctx,
		"SELECT id, entity_type, name, metadata FROM entities WHERE entity_type = ? ORDER BY id",
		entityType)
}

// SearchEntities matches query as a case-insensitive substring of id or name.
func (s *Store) SearchEntities(ctx context.Context, query string) []Entity {
	pattern := "%" + escapeLike(strings.ToLower(query)) + "%"
	return s.queryEntities(ctx,
		`SELECT id, entity_type, name, metadata FROM entities
		 WHERE LOWER(id) LIKE ? ESCAPE '\' OR LOWER(name) LIKE ? ESCAPE '\'
		 ORDER BY id`,
		pattern, pattern)
}

// Entities returns every entity ordered by id.
func (s *Store) Entities(ctx context.Context) []Entity {
	return s.queryEntities(ctx, "SELECT id, entity_type, name, metadata FROM entities ORDER BY id")
}

func (s *Store) queryEntities(ctx context.Context, query string, args ...interface{}) []Entity {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		logger.ErrorCF("graph", "Failed to query entities", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	ents, err := scanEntities(rows)
	if err != nil {
		logger.ErrorCF("graph", "Failed to read entities", map[string]interface{}{
			"error": err.Error(),
		})
	}
	return ents
}

// Relationships returns every triple in insertion order.
func (s *Store) Relationships(ctx context.Context) []Relationship {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return nil
	}

	rows, err := s.db.QueryContext(ctx, "SELECT subject, predicate, object, metadata FROM triplets ORDER BY id")
	if err != nil {
		logger.ErrorCF("graph", "Failed to list relationships", map[string]interface{}{
			"error": err.Error(),
		})
		return nil
	}
	defer rows.Close()

	var out []Relationship
	for rows.Next() {
		var r Relationship
		var meta sql.NullString
		if err := rows.Scan(&r.Subject, &r.Predicate, &r.Object, &meta); err != nil {
			continue
		}
		r.Metadata = decodeMetadata(meta)
		out = append(out, r)
	}
	return out
}

// Stats aggregates entity and predicate counts from the tables.
func (s *Store) Stats(ctx context.Context) Stats {
	st := Stats{
		EntityTypes:     make(map[string]int),
		PredicateCounts: make(map[string]int),
	}

	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.db == nil {
		return st
	}

	if err := s.groupCounts(ctx, "SELECT entity_type, COUNT(*) FROM entities GROUP BY entity_type", st.EntityTypes); err != nil {
		logger.ErrorCF("graph", "Failed to count entities", map[string]interface{}{"error": err.Error()})
	}
	if err := s.groupCounts(ctx, "SELECT predicate, COUNT(*) FROM triplets GROUP BY predicate", st.PredicateCounts); err != nil {
		logger.ErrorCF("graph", "Failed to count relationships", map[string]interface{}{"error": err.Error()})
	}
	for _, n := range st.EntityTypes {
		st.EntityCount += n
	}
	for _, n := range st.PredicateCounts {
		st.RelationshipCount += n
	}
	return st
}

func (s *Store) groupCounts(ctx context.Context, query string, into map[string]int) error {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var key string
		var n int
		if err := rows.Scan(&key, &n); err != nil {
			return err
		}
		into[key] = n
	}
	return rows.Err()
}

// countTotals reads entity and triple counts. Callers hold s.mu.
func countTotals(ctx context.Context, q interface {
	QueryRowContext(context.Context, string, ...interface{}) *sql.Row
}) (entities, triplets int, err error) {
	if err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM entities").Scan(&entities); err != nil {
		return
	}
	err = q.QueryRowContext(ctx, "SELECT COUNT(*) FROM triplets").Scan(&triplets)
	return
}

func scanEntities(rows *sql.Rows) ([]Entity, error) {
	defer rows.Close()
	var out []Entity
	for rows.Next() {
		var e Entity
		var meta sql.NullString
		if err := rows.Scan(&e.ID, &e.EntityType, &e.Name, &meta); err != nil {
			return out, err
		}
		e.Metadata = decodeMetadata(meta)
		out = append(out, e)
	}
	return out, rows.Err()
}

func encodeMetadata(m map[string]interface{}) (interface{}, error) {
	if len(m) == 0 {
		return nil, nil
	}
	data, err := json.Marshal(m)
	if err != nil {
		return nil, fmt.Errorf("encode metadata: %w", err)
	}
	return string(data), nil
}

func decodeMetadata(ns sql.NullString) map[string]interface{} {
	if !ns.Valid || ns.String == "" {
		return nil
	}
	var m map[string]interface{}
	if err := json.Unmarshal([]byte(ns.String), &m); err != nil {
		return nil
	}
	return m
}

func escapeLike(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)
	return r.Replace(s)
}

func cloneEntity(e Entity) Entity {
	if e.Metadata != nil {
		m := make(map[string]interface{}, len(e.Metadata))
		for k, v := range e.Metadata {
			m[k] = v
		}
		e.Metadata = m
	}
	return e
}
