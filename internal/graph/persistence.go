package graph

import (
	"encoding/json"
	"fmt"
	"os"
)

// snapshot is the on-disk JSON representation of a Graph: every
// entity, edge, and community, plus the next-id counter, serialized
// as a whole and written atomically (spec §4.L persistence model).
type snapshot struct {
	Entities    []Entity       `json:"entities"`
	Edges       []Edge         `json:"edges"`
	Communities []Community    `json:"communities"`
	NextID      int            `json:"next_id"`
}

// SaveJSON serializes the entire graph to path, writing to a sibling
// temp file and renaming it into place so a crash mid-write never
// leaves a truncated snapshot.
func (g *Graph) SaveJSON(path string) error {
	g.mu.RLock()
	snap := snapshot{
		Entities: append([]Entity(nil), g.entities...),
		Edges:    append([]Edge(nil), g.edges...),
		NextID:   len(g.entities),
	}
	for _, c := range g.communities {
		snap.Communities = append(snap.Communities, *c)
	}
	g.mu.RUnlock()

	data, err := json.MarshalIndent(snap, "", "  ")
	if err != nil {
		return fmt.Errorf("graph: marshal snapshot: %w", err)
	}

	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("graph: write snapshot: %w", err)
	}
	if err := os.Rename(tmp, path); err != nil {
		return fmt.Errorf("graph: rename snapshot: %w", err)
	}
	return nil
}

// LoadJSON returns a new Graph built from the snapshot stored at path.
func LoadJSON(path string) (*Graph, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("graph: read snapshot: %w", err)
	}
	var snap snapshot
	if err := json.Unmarshal(data, &snap); err != nil {
		return nil, fmt.Errorf("graph: unmarshal snapshot: %w", err)
	}

	g := New()
	g.entities = snap.Entities
	g.edges = snap.Edges
	for _, e := range g.entities {
		g.byName[e.NormalizedName] = e.ID
	}
	for idx, e := range g.edges {
		g.outgoing[e.From] = append(g.outgoing[e.From], idx)
		g.incoming[e.To] = append(g.incoming[e.To], idx)
	}
	for _, c := range snap.Communities {
		cp := c
		g.communities[c.ID] = &cp
	}
	return g, nil
}
