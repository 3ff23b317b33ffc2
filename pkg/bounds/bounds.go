// Package bounds answers which part of a label window holds a given label.
package bounds

import (
	"sort"
	"sync"

	"labelmesh/internal/models"
	"labelmesh/pkg/logging"
)

// DefaultBorder is how many voxels a label's box is grown by.
const DefaultBorder = 2

// Index maps labels to their boxes in window coordinates. Boxes come from a
// precomputed table when one is given; otherwise the window is scanned once,
// on first use, for every label at the same time.
type Index struct {
	win    *models.VoxelWindow
	table  models.BoundingBoxes
	border int

	once    sync.Once
	scanned map[uint64]models.BoundingBox
}

// New returns an Index over win. table may be nil and is expressed in
// full-resolution voxel coordinates.
func New(win *models.VoxelWindow, table models.BoundingBoxes, border int) *Index {
	if border < 0 {
		border = 0
	}
	return &Index{win: win, table: table, border: border}
}

// HasTable reports whether boxes come from a precomputed table.
func (idx *Index) HasTable() bool {
	return idx.table != nil
}

// Box returns the bordered box holding every voxel of label, clamped to the
// window. The second result is false when the label does not occur.
func (idx *Index) Box(label uint64) (models.BoundingBox, bool) {
	var box models.BoundingBox
	if idx.table != nil {
		b, ok := idx.table[label]
		if !ok {
			return models.BoundingBox{}, false
		}
		box = idx.win.ToWindowBox(b)
	} else {
		idx.once.Do(idx.scan)
		b, ok := idx.scanned[label]
		if !ok {
			return models.BoundingBox{}, false
		}
		box = b
	}
	if box.Empty() {
		return models.BoundingBox{}, false
	}
	return box.Expand(idx.border, idx.win.Dims()), true
}

// Labels returns the labels to mesh, ascending: the table's labels when a
// table exists, else the distinct labels found in the window.
func (idx *Index) Labels() []uint64 {
	if idx.table != nil {
		bg := idx.win.Background()
		labels := make([]uint64, 0, len(idx.table))
		for l := range idx.table {
			if l != bg {
				labels = append(labels, l)
			}
		}
		sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
		return labels
	}
	idx.once.Do(idx.scan)
	labels := make([]uint64, 0, len(idx.scanned))
	for l := range idx.scanned {
		labels = append(labels, l)
	}
	sort.Slice(labels, func(i, j int) bool { return labels[i] < labels[j] })
	return labels
}

// scan visits every window voxel once and grows one box per label.
func (idx *Index) scan() {
	tlog := logging.NewTimeLog()
	boxes := make(map[uint64]models.BoundingBox)
	bg := idx.win.Background()
	dims := idx.win.Dims()
	for z := 0; z < dims[2]; z++ {
		for y := 0; y < dims[1]; y++ {
			for x := 0; x < dims[0]; x++ {
				l := idx.win.At(x, y, z)
				if l == bg {
					continue
				}
				b := boxes[l]
				b.Include(x, y, z)
				boxes[l] = b
			}
		}
	}
	idx.scanned = boxes
	tlog.Debugf("Scanned %dx%dx%d window for %d label boxes", dims[0], dims[1], dims[2], len(boxes))
}
