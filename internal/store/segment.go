package store

import (
	"fmt"

	"github.com/RoaringBitmap/roaring/v2"
	"github.com/bits-and-blooms/bloom/v3"

	"github.com/Strob0t/CodeForge/internal/aff"
	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// segmentState tracks a sealed segment through its lifecycle (spec §4.C:
// "Open -> Sealed -> Indexed -> Compacting -> Deleted").
type segmentState int

const (
	segmentOpen segmentState = iota
	segmentSealed
	segmentIndexed
	segmentCompacting
	segmentDeleted
)

func (s segmentState) String() string {
	switch s {
	case segmentOpen:
		return "open"
	case segmentSealed:
		return "sealed"
	case segmentIndexed:
		return "indexed"
	case segmentCompacting:
		return "compacting"
	case segmentDeleted:
		return "deleted"
	default:
		return "unknown"
	}
}

// segmentMeta describes one flushed AFF segment and the structural filter
// indices built over it, so a range scan can skip segments that cannot
// possibly contain a match (spec §4.C: "structural filter indices").
type segmentMeta struct {
	id       string
	path     string
	minTS    int64
	maxTS    int64
	edgeCnt  uint32
	bytes    int64
	state    segmentState
	idBloom  *bloom.BloomFilter
	byAgent  map[uint64]*roaring.Bitmap
	bySess   map[uint64]*roaring.Bitmap
	byProj   map[uint16]*roaring.Bitmap
	errorSet *roaring.Bitmap
}

// overlaps reports whether the segment's timestamp range intersects
// [lo, hi].
func (s *segmentMeta) overlaps(lo, hi int64) bool {
	return s.minTS <= hi && s.maxTS >= lo
}

// mayContain consults the structural indices to decide whether the
// segment is worth opening for a scan matching filters. A false result is
// certain; a true result still requires scanning the arena.
func (s *segmentMeta) mayContain(filters Filters) bool {
	if !filters.HasAny() {
		return true
	}
	if filters.ErrorOnly && s.errorSet != nil && s.errorSet.IsEmpty() {
		return false
	}
	if filters.ProjectID != nil {
		if bm, ok := s.byProj[*filters.ProjectID]; !ok || bm.IsEmpty() {
			return false
		}
	}
	if filters.AgentID != nil {
		if bm, ok := s.byAgent[*filters.AgentID]; !ok || bm.IsEmpty() {
			return false
		}
	}
	if filters.SessionID != nil {
		if bm, ok := s.bySess[*filters.SessionID]; !ok || bm.IsEmpty() {
			return false
		}
	}
	return true
}

func (s *segmentMeta) mayContainID(id ulid.ID) bool {
	if s.idBloom == nil {
		return true
	}
	return s.idBloom.Test(id[:])
}

// buildSegmentIndex constructs the structural indices for a freshly
// written segment from its in-order edge list.
func buildSegmentIndex(edges []edge.Edge) (*bloom.BloomFilter, map[uint64]*roaring.Bitmap, map[uint64]*roaring.Bitmap, map[uint16]*roaring.Bitmap, *roaring.Bitmap) {
	idBloom := bloom.NewWithEstimates(uint(len(edges))+1, 0.01)
	byAgent := make(map[uint64]*roaring.Bitmap)
	bySess := make(map[uint64]*roaring.Bitmap)
	byProj := make(map[uint16]*roaring.Bitmap)
	errorSet := roaring.New()

	for i, e := range edges {
		idBloom.Add(e.ID[:])

		idx := uint32(i) //nolint:gosec // segments bounded well under 4B edges
		if bm, ok := byAgent[e.AgentID]; ok {
			bm.Add(idx)
		} else {
			byAgent[e.AgentID] = roaring.BitmapOf(idx)
		}
		if bm, ok := bySess[e.SessionID]; ok {
			bm.Add(idx)
		} else {
			bySess[e.SessionID] = roaring.BitmapOf(idx)
		}
		if bm, ok := byProj[e.ProjectID]; ok {
			bm.Add(idx)
		} else {
			byProj[e.ProjectID] = roaring.BitmapOf(idx)
		}
		if e.IsError() {
			errorSet.Add(idx)
		}
	}

	return idBloom, byAgent, bySess, byProj, errorSet
}

// readSegmentEdges opens the AFF file at path and decodes its edges,
// transitioning errors into store-level errors with the segment id
// attached.
func readSegmentEdges(path string) ([]edge.Edge, *aff.Reader, error) {
	r, err := aff.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("store: open segment %s: %w", path, err)
	}
	edges, err := r.ReadAll()
	if err != nil {
		_ = r.Close()
		return nil, nil, fmt.Errorf("store: read segment %s: %w", path, err)
	}
	return edges, r, nil
}
