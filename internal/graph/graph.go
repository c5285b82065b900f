package graph

import "strings"

// normalizeEntityName lowercases and replaces each non-alphanumeric
// character (other than '_' and '.') with its own '_', so
// "Auth.rs", "auth.rs", and "AUTH.RS" all resolve to one entity.
func normalizeEntityName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.ToLower(name)
	var sb strings.Builder
	sb.Grow(len(name))
	for _, r := range name {
		if isAlphanumericRune(r) || r == '_' || r == '.' {
			sb.WriteRune(r)
		} else {
			sb.WriteByte('_')
		}
	}
	return sb.String()
}

func isAlphanumericRune(r rune) bool {
	switch {
	case r >= '0' && r <= '9':
		return true
	case r >= 'a' && r <= 'z':
		return true
	case r >= 'A' && r <= 'Z':
		return true
	default:
		return r > 127 // treat other unicode letters/digits as alphanumeric
	}
}

// GetOrCreateEntity returns the entity with the given normalized name,
// creating it if absent.
func (g *Graph) GetOrCreateEntity(name, entityType string) Entity {
	norm := normalizeEntityName(name)

	g.mu.Lock()
	defer g.mu.Unlock()
	return g.getOrCreateEntityLocked(name, norm, entityType)
}

func (g *Graph) getOrCreateEntityLocked(name, norm, entityType string) Entity {
	if id, ok := g.byName[norm]; ok {
		return g.entities[id]
	}
	id := EntityID(len(g.entities))
	e := Entity{ID: id, Name: name, NormalizedName: norm, Type: entityType}
	g.entities = append(g.entities, e)
	g.byName[norm] = id
	return e
}

// AddTriple ingests a subject-relation-object fact. If an edge for the
// same (from, to, relation) already exists, its occurrence count is
// incremented and its confidence is replaced by the plain two-value
// average of the old and new confidence (not a weighted running mean).
// Otherwise a new edge is created with an occurrence count of one.
// Either way, the occurrence counts of both endpoint entities are
// incremented.
func (g *Graph) AddTriple(t Triple) {
	g.mu.Lock()
	defer g.mu.Unlock()

	from := g.getOrCreateEntityLocked(t.Subject, normalizeEntityName(t.Subject), t.SubjectType)
	to := g.getOrCreateEntityLocked(t.Object, normalizeEntityName(t.Object), t.ObjectType)

	for _, idx := range g.outgoing[from.ID] {
		e := &g.edges[idx]
		if e.To == to.ID && e.Relation == t.Relation {
			e.OccurrenceCount++
			e.Confidence = (e.Confidence + t.Confidence) / 2.0
			g.bumpOccurrence(from.ID)
			g.bumpOccurrence(to.ID)
			return
		}
	}

	idx := len(g.edges)
	g.edges = append(g.edges, Edge{
		From:            from.ID,
		To:              to.ID,
		Relation:        t.Relation,
		Class:           ClassifyRelation(t.Relation),
		Confidence:      t.Confidence,
		OccurrenceCount: 1,
	})
	g.outgoing[from.ID] = append(g.outgoing[from.ID], idx)
	g.incoming[to.ID] = append(g.incoming[to.ID], idx)
	g.bumpOccurrence(from.ID)
	g.bumpOccurrence(to.ID)
}

func (g *Graph) bumpOccurrence(id EntityID) {
	g.entities[id].OccurrenceCount++
}

// GetEntity looks up an entity by its raw (un-normalized) name.
func (g *Graph) GetEntity(name string) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byName[normalizeEntityName(name)]
	if !ok {
		return Entity{}, false
	}
	return g.entities[id], true
}

// DependsOn returns the entities that entity depends on directly:
// the one-hop outgoing neighborhood restricted to dependency-class
// edges.
func (g *Graph) DependsOn(name string) []Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byName[normalizeEntityName(name)]
	if !ok {
		return nil
	}
	var out []Relation
	for _, idx := range g.outgoing[id] {
		e := g.edges[idx]
		if e.Class != ClassDependency {
			continue
		}
		out = append(out, Relation{Entity: g.entities[e.To], Relation: e.Relation, Confidence: e.Confidence})
	}
	return out
}

// WhatDependsOn returns the entities that depend on entity directly:
// the one-hop incoming neighborhood restricted to dependency-class
// edges.
func (g *Graph) WhatDependsOn(name string) []Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	id, ok := g.byName[normalizeEntityName(name)]
	if !ok {
		return nil
	}
	var out []Relation
	for _, idx := range g.incoming[id] {
		e := g.edges[idx]
		if e.Class != ClassDependency {
			continue
		}
		out = append(out, Relation{Entity: g.entities[e.From], Relation: e.Relation, Confidence: e.Confidence})
	}
	return out
}

// WhatBreaks estimates the blast radius of removing or breaking
// entity: it seeds the result set from the direct incoming
// dependency- and breaking-class edges, then walks up to three more
// hops over incoming dependency-only edges, attenuating each hop's
// reported confidence by a flat 0.7 multiplier of that edge's own
// confidence (not compounded across hops).
func (g *Graph) WhatBreaks(name string) []Relation {
	const maxHops = 3
	const attenuation = 0.7

	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byName[normalizeEntityName(name)]
	if !ok {
		return nil
	}

	var results []Relation
	visited := map[EntityID]bool{id: true}
	frontier := make([]EntityID, 0)

	for _, idx := range g.incoming[id] {
		e := g.edges[idx]
		if e.Class != ClassDependency && e.Class != ClassBreaking {
			continue
		}
		results = append(results, Relation{Entity: g.entities[e.From], Relation: e.Relation, Confidence: e.Confidence})
		frontier = append(frontier, e.From)
	}

	for hop := 0; hop < maxHops; hop++ {
		var next []EntityID
		for _, nodeID := range frontier {
			if visited[nodeID] {
				continue
			}
			visited[nodeID] = true
			for _, idx := range g.incoming[nodeID] {
				e := g.edges[idx]
				if e.Class != ClassDependency {
					continue
				}
				results = append(results, Relation{
					Entity:     g.entities[e.From],
					Relation:   e.Relation,
					Confidence: e.Confidence * attenuation,
				})
				next = append(next, e.From)
			}
		}
		frontier = next
	}

	return results
}

// BlastRadius generalizes WhatBreaks to every relation class (not just
// dependency/breaking edges), walking up to maxDepth hops over all
// incoming edges and attenuating confidence by 0.7 per hop traversed
// beyond the first.
func (g *Graph) BlastRadius(name string, maxDepth int) []Relation {
	const attenuation = 0.7
	if maxDepth < 0 {
		maxDepth = 0
	}

	g.mu.RLock()
	defer g.mu.RUnlock()

	id, ok := g.byName[normalizeEntityName(name)]
	if !ok {
		return nil
	}

	var results []Relation
	visited := map[EntityID]bool{id: true}
	frontier := []EntityID{id}
	factor := 1.0

	for hop := 0; hop < maxDepth; hop++ {
		var next []EntityID
		for _, nodeID := range frontier {
			for _, idx := range g.incoming[nodeID] {
				e := g.edges[idx]
				if visited[e.From] {
					continue
				}
				results = append(results, Relation{
					Entity:     g.entities[e.From],
					Relation:   e.Relation,
					Confidence: e.Confidence * factor,
				})
				next = append(next, e.From)
			}
		}
		for _, nodeID := range next {
			visited[nodeID] = true
		}
		frontier = next
		factor *= attenuation
	}

	return results
}

// SetCommunity assigns an entity to a community id.
func (g *Graph) SetCommunity(id EntityID, communityID int) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if int(id) < 0 || int(id) >= len(g.entities) {
		return
	}
	g.entities[id].CommunityID = communityID
	g.entities[id].HasCommunity = true
}

// GetCommunityMembers returns every entity assigned to communityID.
func (g *Graph) GetCommunityMembers(communityID int) []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	var out []Entity
	for _, e := range g.entities {
		if e.HasCommunity && e.CommunityID == communityID {
			out = append(out, e)
		}
	}
	return out
}

// AddCommunity records a named, keyworded community (produced by
// ApplyCommunities) for later retrieval by id.
func (g *Graph) AddCommunity(c Community) {
	g.mu.Lock()
	defer g.mu.Unlock()
	cp := c
	g.communities[c.ID] = &cp
}

// Community looks up a previously recorded community by id.
func (g *Graph) Community(id int) (Community, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	c, ok := g.communities[id]
	if !ok {
		return Community{}, false
	}
	return *c, true
}

// entityByID looks up an entity by its internal id.
func (g *Graph) entityByID(id EntityID) (Entity, bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if int(id) < 0 || int(id) >= len(g.entities) {
		return Entity{}, false
	}
	return g.entities[id], true
}

// EntityCount returns the number of entities in the arena.
func (g *Graph) EntityCount() int {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return len(g.entities)
}

// Entities returns a snapshot copy of every entity in the arena, for
// callers that mirror the graph into durable storage.
func (g *Graph) Entities() []Entity {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Entity, len(g.entities))
	copy(out, g.entities)
	return out
}

// Edges returns a snapshot copy of every relationship in the arena.
func (g *Graph) Edges() []Edge {
	g.mu.RLock()
	defer g.mu.RUnlock()
	out := make([]Edge, len(g.edges))
	copy(out, g.edges)
	return out
}

// AdjacencyMatrix builds a dense entity-id-indexed adjacency matrix
// where matrix[i][j] is the confidence of the directed edge from
// entityIDs[i] to entityIDs[j] (0 if none). When two parallel edges
// exist between the same ordered pair, the last one written wins — the
// matrix does not sum them.
func (g *Graph) AdjacencyMatrix() (entityIDs []EntityID, matrix [][]float64) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	n := len(g.entities)
	entityIDs = make([]EntityID, n)
	index := make(map[EntityID]int, n)
	for i, e := range g.entities {
		entityIDs[i] = e.ID
		index[e.ID] = i
	}

	matrix = make([][]float64, n)
	for i := range matrix {
		matrix[i] = make([]float64, n)
	}
	for _, e := range g.edges {
		fi, ok1 := index[e.From]
		ti, ok2 := index[e.To]
		if !ok1 || !ok2 {
			continue
		}
		matrix[fi][ti] = e.Confidence
	}
	return entityIDs, matrix
}
