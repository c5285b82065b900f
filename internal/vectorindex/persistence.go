package vectorindex

import (
	"bufio"
	"encoding/binary"
	"fmt"
	"io"
	"math"
	"math/rand"
	"os"
	"path/filepath"

	"github.com/Strob0t/CodeForge/internal/ulid"
)

// Save persists the index as three files under dir (spec §6): graph.bin
// (adjacency lists), vectors.bin (raw float32 embeddings), and ids.idx
// (the id ordering both other files index by).
func (idx *Index) Save(dir string) error {
	idx.mu.RLock()
	defer idx.mu.RUnlock()

	if err := os.MkdirAll(dir, 0o755); err != nil { //nolint:gosec // local data directory
		return fmt.Errorf("vectorindex: mkdir %s: %w", dir, err)
	}

	ids := make([]ulid.ID, 0, len(idx.nodes))
	for id := range idx.nodes {
		ids = append(ids, id)
	}

	idsFile, err := os.Create(filepath.Join(dir, "ids.idx")) //nolint:gosec // fixed filename under caller-controlled dir
	if err != nil {
		return err
	}
	defer idsFile.Close()
	iw := bufio.NewWriter(idsFile)
	writeUint32(iw, uint32(len(ids))) //nolint:gosec // index sizes bounded well under 4B
	writeUint32(iw, uint32(idx.dim))  //nolint:gosec // dimension bounded
	idBytes, _ := idx.entryPoint.MarshalBinary()
	iw.Write(idBytes)
	writeUint32(iw, uint32(idx.maxLayer)) //nolint:gosec // layer count bounded
	for _, id := range ids {
		b, _ := id.MarshalBinary()
		iw.Write(b)
		deletedByte := byte(0)
		if idx.deleted[id] {
			deletedByte = 1
		}
		iw.WriteByte(deletedByte)
	}
	if err := iw.Flush(); err != nil {
		return err
	}

	vecFile, err := os.Create(filepath.Join(dir, "vectors.bin")) //nolint:gosec // fixed filename
	if err != nil {
		return err
	}
	defer vecFile.Close()
	vw := bufio.NewWriter(vecFile)
	for _, id := range ids {
		vec := idx.vectors[id]
		for _, f := range vec {
			writeUint32(vw, math.Float32bits(f))
		}
	}
	if err := vw.Flush(); err != nil {
		return err
	}

	graphFile, err := os.Create(filepath.Join(dir, "graph.bin")) //nolint:gosec // fixed filename
	if err != nil {
		return err
	}
	defer graphFile.Close()
	gw := bufio.NewWriter(graphFile)
	for _, id := range ids {
		n := idx.nodes[id]
		writeUint32(gw, uint32(len(n.neighbors))) //nolint:gosec // layer count bounded
		for _, layer := range n.neighbors {
			writeUint32(gw, uint32(len(layer))) //nolint:gosec // neighbor count bounded by M
			for _, nb := range layer {
				b, _ := nb.MarshalBinary()
				gw.Write(b)
			}
		}
	}
	return gw.Flush()
}

// Load reconstructs an index previously written by Save. opts override the
// default M / ef_construction / ef_search parameters the same way New does.
func Load(dir string, dim int, opts ...Option) (*Index, error) {
	idsFile, err := os.Open(filepath.Join(dir, "ids.idx")) //nolint:gosec // fixed filename under caller-controlled dir
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open ids.idx: %w", err)
	}
	defer idsFile.Close()
	ir := bufio.NewReader(idsFile)

	count, err := readUint32(ir)
	if err != nil {
		return nil, err
	}
	storedDim, err := readUint32(ir)
	if err != nil {
		return nil, err
	}
	var entryBuf [16]byte
	if _, err := io.ReadFull(ir, entryBuf[:]); err != nil {
		return nil, fmt.Errorf("vectorindex: read entry point: %w", err)
	}
	var entryPoint ulid.ID
	if err := entryPoint.UnmarshalBinary(entryBuf[:]); err != nil {
		return nil, err
	}
	maxLayer, err := readUint32(ir)
	if err != nil {
		return nil, err
	}

	ids := make([]ulid.ID, 0, count)
	deleted := make(map[ulid.ID]bool, count)
	for i := uint32(0); i < count; i++ {
		var idBuf [16]byte
		if _, err := io.ReadFull(ir, idBuf[:]); err != nil {
			return nil, fmt.Errorf("vectorindex: read id %d: %w", i, err)
		}
		var id ulid.ID
		if err := id.UnmarshalBinary(idBuf[:]); err != nil {
			return nil, err
		}
		delByte, err := ir.ReadByte()
		if err != nil {
			return nil, err
		}
		ids = append(ids, id)
		if delByte == 1 {
			deleted[id] = true
		}
	}

	vecFile, err := os.Open(filepath.Join(dir, "vectors.bin")) //nolint:gosec // fixed filename under caller-controlled dir
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open vectors.bin: %w", err)
	}
	defer vecFile.Close()
	vr := bufio.NewReader(vecFile)

	vectors := make(map[ulid.ID][]float32, len(ids))
	for _, id := range ids {
		vec := make([]float32, storedDim)
		for i := range vec {
			bits, err := readUint32(vr)
			if err != nil {
				return nil, fmt.Errorf("vectorindex: read vector for %s: %w", id, err)
			}
			vec[i] = math.Float32frombits(bits)
		}
		vectors[id] = vec
	}

	graphFile, err := os.Open(filepath.Join(dir, "graph.bin")) //nolint:gosec // fixed filename under caller-controlled dir
	if err != nil {
		return nil, fmt.Errorf("vectorindex: open graph.bin: %w", err)
	}
	defer graphFile.Close()
	gr := bufio.NewReader(graphFile)

	nodes := make(map[ulid.ID]*node, len(ids))
	for _, id := range ids {
		layerCount, err := readUint32(gr)
		if err != nil {
			return nil, fmt.Errorf("vectorindex: read layer count for %s: %w", id, err)
		}
		n := &node{id: id, neighbors: make([][]ulid.ID, layerCount)}
		for lc := uint32(0); lc < layerCount; lc++ {
			neighborCount, err := readUint32(gr)
			if err != nil {
				return nil, err
			}
			layer := make([]ulid.ID, neighborCount)
			for i := range layer {
				var nbBuf [16]byte
				if _, err := io.ReadFull(gr, nbBuf[:]); err != nil {
					return nil, err
				}
				if err := layer[i].UnmarshalBinary(nbBuf[:]); err != nil {
					return nil, err
				}
			}
			n.neighbors[lc] = layer
		}
		nodes[id] = n
	}

	idx := &Index{
		dim:            dim,
		m:              DefaultM,
		efConstruction: DefaultEfConstruction,
		efSearchFactor: DefaultEfSearchFactor,
		rng:            rand.New(rand.NewSource(1)), //nolint:gosec // graph topology, not a security boundary
		nodes:          nodes,
		vectors:        vectors,
		deleted:        deleted,
		entryPoint:     entryPoint,
		maxLayer:       int(maxLayer),
	}
	for _, opt := range opts {
		opt(idx)
	}
	return idx, nil
}

func writeUint32(w *bufio.Writer, v uint32) {
	var buf [4]byte
	binary.LittleEndian.PutUint32(buf[:], v)
	w.Write(buf[:])
}

func readUint32(r *bufio.Reader) (uint32, error) {
	var buf [4]byte
	if _, err := io.ReadFull(r, buf[:]); err != nil {
		return 0, err
	}
	return binary.LittleEndian.Uint32(buf[:]), nil
}
