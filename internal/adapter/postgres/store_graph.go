package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/Strob0t/CodeForge/internal/domain"
	"github.com/Strob0t/CodeForge/internal/graph"
)

// --- Knowledge Graph persistence ---

// UpsertEntity inserts or updates the row for e within the caller's
// tenant, keyed by normalized name.
func (s *Store) UpsertEntity(ctx context.Context, e graph.Entity) error {
	tid := tenantFromCtx(ctx)

	var communityID *int
	if e.HasCommunity {
		communityID = &e.CommunityID
	}

	_, err := s.pool.Exec(ctx,
		`INSERT INTO entities (id, tenant_id, name, normalized_name, entity_type, occurrence_count, community_id, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, now())
		 ON CONFLICT (tenant_id, normalized_name) DO UPDATE SET
		   occurrence_count = EXCLUDED.occurrence_count,
		   community_id = EXCLUDED.community_id,
		   updated_at = now()`,
		int64(e.ID), tid, e.Name, e.NormalizedName, e.Type, e.OccurrenceCount, communityID)
	if err != nil {
		return fmt.Errorf("upsert entity %s: %w", e.NormalizedName, err)
	}
	return nil
}

// UpsertEdge inserts or reinforces the relationship row for edge
// within the caller's tenant.
func (s *Store) UpsertEdge(ctx context.Context, e graph.Edge) error {
	tid := tenantFromCtx(ctx)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO relationships (tenant_id, from_entity_id, to_entity_id, relation, confidence, occurrence_count, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, now())
		 ON CONFLICT (tenant_id, from_entity_id, to_entity_id, relation) DO UPDATE SET
		   confidence = EXCLUDED.confidence,
		   occurrence_count = EXCLUDED.occurrence_count,
		   updated_at = now()`,
		tid, int64(e.From), int64(e.To), e.Relation, e.Confidence, e.OccurrenceCount)
	if err != nil {
		return fmt.Errorf("upsert edge %d->%d (%s): %w", e.From, e.To, e.Relation, err)
	}
	return nil
}

// ListEntities returns every entity persisted for the caller's tenant.
func (s *Store) ListEntities(ctx context.Context) ([]graph.Entity, error) {
	tid := tenantFromCtx(ctx)

	rows, err := s.pool.Query(ctx,
		`SELECT id, name, normalized_name, entity_type, occurrence_count, community_id
		 FROM entities WHERE tenant_id = $1 ORDER BY id ASC`, tid)
	if err != nil {
		return nil, fmt.Errorf("list entities: %w", err)
	}
	defer rows.Close()

	var out []graph.Entity
	for rows.Next() {
		e, err := scanEntity(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, e)
	}
	return out, rows.Err()
}

// ListEdges returns every relationship persisted for the caller's
// tenant.
func (s *Store) ListEdges(ctx context.Context) ([]graph.Edge, error) {
	tid := tenantFromCtx(ctx)

	rows, err := s.pool.Query(ctx,
		`SELECT from_entity_id, to_entity_id, relation, confidence, occurrence_count
		 FROM relationships WHERE tenant_id = $1 ORDER BY id ASC`, tid)
	if err != nil {
		return nil, fmt.Errorf("list edges: %w", err)
	}
	defer rows.Close()

	var out []graph.Edge
	for rows.Next() {
		var e graph.Edge
		var from, to int64
		if err := rows.Scan(&from, &to, &e.Relation, &e.Confidence, &e.OccurrenceCount); err != nil {
			return nil, fmt.Errorf("scan edge: %w", err)
		}
		e.From, e.To = graph.EntityID(from), graph.EntityID(to)
		e.Class = graph.ClassifyRelation(e.Relation)
		out = append(out, e)
	}
	return out, rows.Err()
}

// UpsertCommunity records a named, keyworded community for the
// caller's tenant.
func (s *Store) UpsertCommunity(ctx context.Context, c graph.Community) error {
	tid := tenantFromCtx(ctx)

	_, err := s.pool.Exec(ctx,
		`INSERT INTO communities (id, tenant_id, name, keywords)
		 VALUES ($1, $2, $3, $4)
		 ON CONFLICT (tenant_id, id) DO UPDATE SET name = EXCLUDED.name, keywords = EXCLUDED.keywords`,
		c.ID, tid, c.Name, c.Keywords)
	if err != nil {
		return fmt.Errorf("upsert community %d: %w", c.ID, err)
	}
	return nil
}

// GetCommunity looks up a single community by id within the caller's
// tenant.
func (s *Store) GetCommunity(ctx context.Context, id int) (graph.Community, error) {
	tid := tenantFromCtx(ctx)

	var c graph.Community
	err := s.pool.QueryRow(ctx,
		`SELECT id, name, keywords FROM communities WHERE tenant_id = $1 AND id = $2`, tid, id,
	).Scan(&c.ID, &c.Name, &c.Keywords)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return graph.Community{}, fmt.Errorf("get community %d: %w", id, domain.ErrNotFound)
		}
		return graph.Community{}, fmt.Errorf("get community %d: %w", id, err)
	}
	return c, nil
}

func scanEntity(row scannable) (graph.Entity, error) {
	var e graph.Entity
	var id int64
	var communityID *int
	err := row.Scan(&id, &e.Name, &e.NormalizedName, &e.Type, &e.OccurrenceCount, &communityID)
	if err != nil {
		return e, fmt.Errorf("scan entity: %w", err)
	}
	e.ID = graph.EntityID(id)
	if communityID != nil {
		e.CommunityID = *communityID
		e.HasCommunity = true
	}
	return e, nil
}
