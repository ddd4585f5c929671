package graph

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"github.com/sipeed/hybridmem/pkg/logger"
)

// pendingEdge is a mirror update deferred until the batch commits.
type pendingEdge struct {
	subject, predicate, object string
}

// indexBatch accumulates the writes of one IndexSchematics call.
type indexBatch struct {
	ctx   context.Context
	tx    *sql.Tx
	res   IndexResult
	nodes []Entity
	edges []pendingEdge
}

func (b *indexBatch) upsert(e Entity) error {
	existed, err := entityExists(b.ctx, b.tx, e.ID)
	if err != nil {
		return err
	}
	if err := upsertEntity(b.ctx, b.tx, e); err != nil {
		return err
	}
	if !existed {
		b.res.EntitiesAdded++
	}
	b.nodes = append(b.nodes, e)
	return nil
}

// ensure creates e if absent and upgrades an "unknown" placeholder with
// the same id. Any other existing row is left untouched.
func (b *indexBatch) ensure(e Entity) error {
	created, err := ensureEntity(b.ctx, b.tx, e)
	if err != nil {
		return err
	}
	if created {
		b.res.EntitiesAdded++
		b.nodes = append(b.nodes, e)
		return nil
	}

	meta, err := encodeMetadata(e.Metadata)
	if err != nil {
		return err
	}
	res, err := b.tx.ExecContext(b.ctx,
		"UPDATE entities SET entity_type = ?, name = ?, metadata = ? WHERE id = ? AND entity_type = ?",
		e.EntityType, e.Name, meta, e.ID, TypeUnknown,
	)
	if err != nil {
		return fmt.Errorf("upgrade placeholder: %w", err)
	}
	if n, _ := res.RowsAffected(); n > 0 {
		b.nodes = append(b.nodes, e)
	}
	return nil
}

func (b *indexBatch) link(subject, predicate, object string) error {
	created, err := insertTriplet(b.ctx, b.tx, Relationship{Subject: subject, Predicate: predicate, Object: object})
	if err != nil {
		return err
	}
	if created {
		b.res.RelationshipsAdded++
	}
	b.edges = append(b.edges, pendingEdge{subject, predicate, object})
	return nil
}

func entityExists(ctx context.Context, tx *sql.Tx, id string) (bool, error) {
	var one int
	err := tx.QueryRowContext(ctx, "SELECT 1 FROM entities WHERE id = ?", id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	return err == nil, err
}

// IndexSchematics extracts entities and relationships from records in one
// transaction: the schematic itself, its status, category, model, matched
// components and tags, then compatible_with edges in both directions
// between every pair of records that share a model. Re-running it on the
// same records adds nothing.
func (s *Store) IndexSchematics(ctx context.Context, records []Schematic) IndexResult {
	s.mu.Lock()
	defer s.mu.Unlock()

	var b *indexBatch
	err := s.inTx(ctx, func(tx *sql.Tx) error {
		b = &indexBatch{ctx: ctx, tx: tx}
		if err := s.indexRecords(b, records); err != nil {
			return err
		}
		var err error
		b.res.TotalEntities, b.res.TotalRelationships, err = countTotals(ctx, tx)
		return err
	})
	if err != nil {
		logger.ErrorCF("indexer", "Schematic indexing failed", map[string]interface{}{
			"records": len(records),
			"error":   err.Error(),
		})
		res := IndexResult{}
		if s.db != nil {
			res.TotalEntities, res.TotalRelationships, _ = countTotals(ctx, s.db)
		}
		return res
	}

	for _, e := range b.nodes {
		s.g.setNode(cloneEntity(e))
	}
	for _, e := range b.edges {
		s.g.addEdge(e.subject, e.predicate, e.object)
	}

	logger.InfoCF("indexer", "Schematics indexed", map[string]interface{}{
		"records":             len(records),
		"entities_added":      b.res.EntitiesAdded,
		"relationships_added": b.res.RelationshipsAdded,
		"total_entities":      b.res.TotalEntities,
		"total_relationships": b.res.TotalRelationships,
	})
	return b.res
}

func (s *Store) indexRecords(b *indexBatch, records []Schematic) error {
	byModel := make(map[string][]string)
	var models []string

	for _, rec := range records {
		if strings.TrimSpace(rec.ID) == "" {
			logger.WarnCF("indexer", "Skipping schematic without id", map[string]interface{}{
				"model": rec.Model,
				"name":  rec.Name,
			})
			continue
		}
		if err := s.indexRecord(b, rec); err != nil {
			return err
		}
		if rec.Model != "" {
			if _, ok := byModel[rec.Model]; !ok {
				models = append(models, rec.Model)
			}
			byModel[rec.Model] = append(byModel[rec.Model], rec.ID)
		}
	}

	for _, model := range models {
		ids := byModel[model]
		for i, a := range ids {
			for _, c := range ids[i+1:] {
				if a == c {
					continue
				}
				if err := b.link(a, PredCompatibleWith, c); err != nil {
					return err
				}
				if err := b.link(c, PredCompatibleWith, a); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

func (s *Store) indexRecord(b *indexBatch, rec Schematic) error {
	err := b.upsert(Entity{
		ID:         rec.ID,
		EntityType: TypeSchematic,
		Name:       rec.Model + " - " + rec.Name + ": " + rec.Component,
		Metadata: map[string]interface{}{
			"model":      rec.Model,
			"robot_name": rec.Name,
			"component":  rec.Component,
			"version":    rec.Version,
		},
	})
	if err != nil {
		return err
	}

	status := rec.Status
	if status == "" {
		status = "active"
	}
	if err := s.attach(b, rec.ID, PredHasStatus, Entity{
		ID: "status:" + status, EntityType: TypeStatus, Name: titleCase(status),
	}); err != nil {
		return err
	}

	category := rec.Category
	if category == "" {
		category = "unknown"
	}
	if err := s.attach(b, rec.ID, PredHasCategory, Entity{
		ID: "category:" + category, EntityType: TypeCategory, Name: titleCase(strings.ReplaceAll(category, "_", " ")),
	}); err != nil {
		return err
	}

	if rec.Model != "" {
		if err := s.attach(b, rec.ID, PredBelongsToModel, Entity{
			ID: "model:" + rec.Model, EntityType: TypeModel, Name: rec.Model,
		}); err != nil {
			return err
		}
	}

	for _, r := range s.rules.Match(rec.Summary, rec.Component) {
		if err := s.attach(b, rec.ID, r.Predicate, Entity{
			ID: r.EntityID, EntityType: r.EntityType, Name: r.Name,
		}); err != nil {
			return err
		}
	}

	for _, tag := range rec.Tags {
		if tag == "" {
			continue
		}
		if err := s.attach(b, rec.ID, PredHasTag, Entity{
			ID: "tag:" + tag, EntityType: TypeTag, Name: titleCase(strings.ReplaceAll(tag, "-", " ")),
		}); err != nil {
			return err
		}
	}
	return nil
}

// attach ensures target exists and links subject to it.
func (s *Store) attach(b *indexBatch, subject, predicate string, target Entity) error {
	if err := b.ensure(target); err != nil {
		return err
	}
	return b.link(subject, predicate, target.ID)
}
