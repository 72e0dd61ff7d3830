package vectorindex

import (
	"bufio"
	"cmp"
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"math"
	"os"
	"slices"

	"lectern/internal/fileutil"
)

const (
	fileMagic   = "LECTVEC1"
	fileVersion = uint32(1)
	maxBuildID  = 1 << 10
)

// ErrCorrupt reports an index file that does not decode.
var ErrCorrupt = errors.New("vector index corrupt")

// Hit is one search result. ID -1 marks the end of the index when k exceeds
// its size.
type Hit struct {
	ID    int64
	Score float32
}

// Flat stores vectors contiguously and scans them all on search.
type Flat struct {
	dim     int
	data    []float32
	BuildID string
}

// NewFlat returns an empty index for vectors of dimension dim.
func NewFlat(dim int) *Flat {
	return &Flat{dim: dim}
}

// Dim returns the vector dimension.
func (f *Flat) Dim() int { return f.dim }

// Len returns the number of stored vectors.
func (f *Flat) Len() int {
	if f.dim == 0 {
		return 0
	}
	return len(f.data) / f.dim
}

// Add appends vectors and returns the id of the first one.
func (f *Flat) Add(vectors ...[]float32) (int64, error) {
	first := int64(f.Len())
	for i, vec := range vectors {
		if len(vec) != f.dim {
			return first, fmt.Errorf("vector %d has dimension %d, index expects %d", i, len(vec), f.dim)
		}
	}
	for _, vec := range vectors {
		f.data = append(f.data, vec...)
	}
	return first, nil
}

// Search returns the top k hits ordered by descending inner product. Equal
// scores keep index order. When k exceeds the index size every vector is
// returned followed by a single ID -1 hit.
func (f *Flat) Search(query []float32, k int) ([]Hit, error) {
	if k < 1 {
		return nil, fmt.Errorf("k must be positive, got %d", k)
	}
	if len(query) != f.dim {
		return nil, fmt.Errorf("query has dimension %d, index expects %d", len(query), f.dim)
	}
	n := f.Len()
	scored := make([]Hit, n)
	for i := range n {
		row := f.data[i*f.dim : (i+1)*f.dim]
		var dot float32
		for j, v := range row {
			dot += v * query[j]
		}
		scored[i] = Hit{ID: int64(i), Score: dot}
	}
	slices.SortStableFunc(scored, func(a, b Hit) int {
		return cmp.Compare(b.Score, a.Score)
	})

	if k <= n {
		return scored[:k:k], nil
	}
	return append(scored, Hit{ID: -1, Score: float32(math.Inf(-1))}), nil
}

// Save writes the index to path atomically.
func (f *Flat) Save(path string) error {
	if len(f.BuildID) > maxBuildID {
		return fmt.Errorf("build id too long (%d bytes)", len(f.BuildID))
	}
	err := fileutil.WriteAtomic(path, 0o644, func(w io.Writer) error {
		bw := bufio.NewWriter(w)
		if _, err := bw.WriteString(fileMagic); err != nil {
			return err
		}
		header := []any{
			fileVersion,
			uint32(f.dim),
			uint64(f.Len()),
			uint16(len(f.BuildID)),
		}
		for _, v := range header {
			if err := binary.Write(bw, binary.LittleEndian, v); err != nil {
				return err
			}
		}
		if _, err := bw.WriteString(f.BuildID); err != nil {
			return err
		}
		if err := binary.Write(bw, binary.LittleEndian, f.data); err != nil {
			return err
		}
		return bw.Flush()
	})
	if err != nil {
		return fmt.Errorf("save vector index: %w", err)
	}
	return nil
}

// Load reads an index written by Save.
func Load(path string) (*Flat, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("open vector index: %w", err)
	}
	defer file.Close()
	r := bufio.NewReader(file)

	magic := make([]byte, len(fileMagic))
	if _, err := io.ReadFull(r, magic); err != nil || string(magic) != fileMagic {
		return nil, fmt.Errorf("%w: %s: bad magic", ErrCorrupt, path)
	}
	var (
		version uint32
		dim     uint32
		count   uint64
		idLen   uint16
	)
	for _, v := range []any{&version, &dim, &count, &idLen} {
		if err := binary.Read(r, binary.LittleEndian, v); err != nil {
			return nil, fmt.Errorf("%w: %s: header: %w", ErrCorrupt, path, err)
		}
	}
	if version != fileVersion {
		return nil, fmt.Errorf("%w: %s: unsupported version %d", ErrCorrupt, path, version)
	}
	if idLen > maxBuildID {
		return nil, fmt.Errorf("%w: %s: build id length %d", ErrCorrupt, path, idLen)
	}
	info, err := file.Stat()
	if err != nil {
		return nil, fmt.Errorf("stat vector index: %w", err)
	}
	headerLen := uint64(len(fileMagic)) + 4 + 4 + 8 + 2 + uint64(idLen)
	if uint64(info.Size()) < headerLen {
		return nil, fmt.Errorf("%w: %s: truncated header", ErrCorrupt, path)
	}
	payload := uint64(info.Size()) - headerLen
	if (dim == 0 && count > 0) || (dim > 0 && count > payload/4/uint64(dim)) {
		return nil, fmt.Errorf("%w: %s: %d vectors do not fit in file", ErrCorrupt, path, count)
	}

	buildID := make([]byte, idLen)
	if _, err := io.ReadFull(r, buildID); err != nil {
		return nil, fmt.Errorf("%w: %s: build id: %w", ErrCorrupt, path, err)
	}
	data := make([]float32, count*uint64(dim))
	if err := binary.Read(r, binary.LittleEndian, data); err != nil {
		return nil, fmt.Errorf("%w: %s: vectors: %w", ErrCorrupt, path, err)
	}
	return &Flat{dim: int(dim), data: data, BuildID: string(buildID)}, nil
}
