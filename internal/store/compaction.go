package store

import (
	"fmt"
	"os"
	"time"

	"github.com/Strob0t/CodeForge/internal/aff"
	"github.com/Strob0t/CodeForge/internal/edge"
	"github.com/Strob0t/CodeForge/internal/ulid"
)

// compact merges every sealed segment in the shard into a single output
// segment, dropping tombstones and edges older than cutoffUS (spec §4.C:
// "compaction: merge overlapping segments, drop tombstoned/expired
// edges"). The merged edge count never exceeds the sum of inputs, and the
// output's max timestamp never exceeds the inputs' max.
func (sh *shard) compact(cutoffUS int64) error {
	sh.mu.Lock()
	defer sh.mu.Unlock()

	inputs := sh.manifest.load()
	if len(inputs) < 2 {
		return nil
	}

	merged := make(map[ulid.ID]edge.Edge)
	for _, s := range inputs {
		edges, r, err := readSegmentEdges(s.path)
		if err != nil {
			return err
		}
		_ = r.Close()
		for _, e := range edges {
			merged[e.ID] = e
		}
	}

	live := make([]edge.Edge, 0, len(merged))
	for _, e := range merged {
		if e.IsTombstone() {
			continue
		}
		if e.TimestampUS < cutoffUS {
			continue
		}
		live = append(live, e)
	}

	if len(live) == 0 {
		sh.manifest.replace(inputs, nil)
		return removeSegmentFiles(inputs)
	}

	segID, err := ulid.New(time.Now().UnixMilli())
	if err != nil {
		return fmt.Errorf("store: generate compacted segment id: %w", err)
	}
	name := segID.String() + ".aff"
	path := fmt.Sprintf("%s/%s", sh.segDir, name)

	w, err := aff.Create(path)
	if err != nil {
		return err
	}
	for _, e := range live {
		var payload []byte
		if e.HasPayload() {
			payload, _ = readSegmentPayload(inputs, e)
		}
		if err := w.Add(e, payload); err != nil {
			_ = w.Abort()
			return err
		}
	}
	if err := w.Finish(); err != nil {
		return err
	}

	r, err := aff.Open(path)
	if err != nil {
		return err
	}
	meta := metaFromReader(name, path, r, live)
	_ = r.Close()

	sh.manifest.replace(inputs, meta)
	return removeSegmentFiles(inputs)
}

// readSegmentPayload locates e's payload by scanning inputs newest-first
// for the segment that owns e's timestamp range.
func readSegmentPayload(inputs []*segmentMeta, e edge.Edge) ([]byte, error) {
	for i := len(inputs) - 1; i >= 0; i-- {
		s := inputs[i]
		if !s.overlaps(e.TimestampUS, e.TimestampUS) {
			continue
		}
		r, err := aff.Open(s.path)
		if err != nil {
			continue
		}
		payload, err := r.Payload(e.PayloadOffset, e.PayloadLength)
		_ = r.Close()
		if err == nil {
			return payload, nil
		}
	}
	return nil, nil
}

func removeSegmentFiles(segs []*segmentMeta) error {
	for _, s := range segs {
		if err := os.Remove(s.path); err != nil && !os.IsNotExist(err) {
			return fmt.Errorf("store: remove compacted segment %s: %w", s.path, err)
		}
	}
	return nil
}
