// Package dataset implements the Dataset, Partition, and two-layer/uniform
// index containers The dataset's object map owns shapes;
// indexes hold only recIDs, so the stable-reference invariant holds
// automatically under Go's garbage collector without any arena indirection.
package dataset

import (
	"sort"

	"github.com/arxgeo/geodist/internal/dberr"
	"github.com/arxgeo/geodist/internal/shape"
)

// Type tags the geometry kind a whole dataset is declared to hold.
type Type int

const (
	TypePoint Type = iota
	TypeLineString
	TypePolygon
	TypeBox
)

// Partition holds the four ordered class sequences for one fine
// partition id. Each sequence is sealed (sorted by MBR.MinY ascending,
// ties broken by RecID) before first query.
type Partition struct {
	ID     int32
	A, B, C, D []int64 // recIDs, sorted by owning Dataset once sealed
	sealed bool
}

func newPartition(id int32) *Partition {
	return &Partition{ID: id}
}

func (p *Partition) classSlice(c shape.TwoLayerClass) *[]int64 {
	switch c {
	case shape.ClassA:
		return &p.A
	case shape.ClassB:
		return &p.B
	case shape.ClassC:
		return &p.C
	default:
		return &p.D
	}
}

func (p *Partition) insert(recID int64, c shape.TwoLayerClass) {
	s := p.classSlice(c)
	*s = append(*s, recID)
}

// Dataset maps recID to owned Shape, maintains the dataspace MBR, and
// builds the two-layer and uniform-grid indexes over those shapes.
type Dataset struct {
	DataType Type
	Path     string
	Persist  bool

	objects map[int64]*shape.Shape
	order   []int64 // insertion order, used for on-disk writes

	dataspace shape.MBR
	haveSpace bool

	TwoLayer map[int32]*Partition
	fineIDs  []int32 // ordered fine partition ids present, for traversal

	Uniform map[int32][]int64 // partitionID -> recIDs, used for point data

	// APRIL side-data keyed by (sectionID, recID); only its presence
	// matters to this engine — the raster filter itself is an external
	// collaborator.
	April map[[2]int64][]byte
}

// New creates an empty dataset ready to receive shapes via Add.
func New(dataType Type, path string, persist bool) *Dataset {
	return &Dataset{
		DataType: dataType,
		Path:     path,
		Persist:  persist,
		objects:  make(map[int64]*shape.Shape),
		TwoLayer: make(map[int32]*Partition),
		Uniform:  make(map[int32][]int64),
		April:    make(map[[2]int64][]byte),
	}
}

// Add inserts a shape the dataset now owns, expanding the dataspace MBR.
// Malformed shapes are the caller's responsibility to filter before
// calling Add.
func (d *Dataset) Add(s *shape.Shape) {
	d.objects[s.RecID] = s
	d.order = append(d.order, s.RecID)
	if !d.haveSpace {
		d.dataspace = s.MBR
		d.haveSpace = true
	} else {
		d.dataspace = d.dataspace.Union(s.MBR)
	}
}

// Get returns the shape for recID, or nil if absent.
func (d *Dataset) Get(recID int64) *shape.Shape {
	return d.objects[recID]
}

// Len returns the number of shapes owned by the dataset.
func (d *Dataset) Len() int { return len(d.objects) }

// AllShapes returns every owned shape in insertion order, for callers
// that need to walk the dataset before an index exists (e.g. partition
// assignment, which runs before BuildTwoLayerIndex/BuildUniformIndex).
func (d *Dataset) AllShapes() []*shape.Shape {
	out := make([]*shape.Shape, 0, len(d.order))
	for _, recID := range d.order {
		out = append(out, d.objects[recID])
	}
	return out
}

// Dataspace returns the union of all shape MBRs padded by shape.Epsilon
// on every side, so partitioning boundary tests are strict at the global
// boundary: a shape exactly on the dataspace edge must not be classified
// as out of range.
func (d *Dataset) Dataspace() shape.MBR {
	return shape.MBR{
		MinX: d.dataspace.MinX - shape.Epsilon,
		MinY: d.dataspace.MinY - shape.Epsilon,
		MaxX: d.dataspace.MaxX + shape.Epsilon,
		MaxY: d.dataspace.MaxY + shape.Epsilon,
	}
}

// BuildTwoLayerIndex seals every shape's partition assignments (already
// computed by partitioning.Method.AssignShape) into sorted Partition
// sequences. Must run after every shape has been Add-ed and assigned;
// the two-layer index is write-once thereafter.
func (d *Dataset) BuildTwoLayerIndex() error {
	for _, recID := range d.order {
		s := d.objects[recID]
		if len(s.Partitions) == 0 {
			return dberr.New(dberr.CodeInvalidPartition, "shape has no partition assignment")
		}
		for _, pa := range s.Partitions {
			part, ok := d.TwoLayer[pa.PartitionID]
			if !ok {
				part = newPartition(pa.PartitionID)
				d.TwoLayer[pa.PartitionID] = part
				d.fineIDs = append(d.fineIDs, pa.PartitionID)
			}
			part.insert(recID, pa.Class)
		}
	}
	sort.Slice(d.fineIDs, func(i, j int) bool { return d.fineIDs[i] < d.fineIDs[j] })
	for _, part := range d.TwoLayer {
		d.sealClass(&part.A)
		d.sealClass(&part.B)
		d.sealClass(&part.C)
		d.sealClass(&part.D)
		part.sealed = true
	}
	return nil
}

func (d *Dataset) sealClass(ids *[]int64) {
	sort.Slice(*ids, func(i, j int) bool {
		si, sj := d.objects[(*ids)[i]], d.objects[(*ids)[j]]
		if si.MBR.MinY != sj.MBR.MinY {
			return si.MBR.MinY < sj.MBR.MinY
		}
		return si.RecID < sj.RecID
	})
}

// BuildUniformIndex groups shapes by every fine partition they are
// assigned to, for point data and for range/kNN/distance-join queries that
// don't need the two-layer class split.
func (d *Dataset) BuildUniformIndex() error {
	for _, recID := range d.order {
		s := d.objects[recID]
		if len(s.Partitions) == 0 {
			return dberr.New(dberr.CodeInvalidPartition, "shape has no partition assignment")
		}
		for _, pa := range s.Partitions {
			d.Uniform[pa.PartitionID] = append(d.Uniform[pa.PartitionID], recID)
		}
	}
	return nil
}

// FinePartitionIDs returns the sealed two-layer index's partitions in
// ascending id order, for the sweep kernel's outer loop.
func (d *Dataset) FinePartitionIDs() []int32 {
	return d.fineIDs
}

// Shapes returns the recIDs for a uniform-grid partition, or nil.
func (d *Dataset) Shapes(partitionID int32) []int64 {
	return d.Uniform[partitionID]
}

// Unload releases the dataset's shapes and indexes.7:
// the cluster must remain responsive to unloadDataset even with partial
// side effects from an earlier failed command.
func (d *Dataset) Unload() {
	d.objects = make(map[int64]*shape.Shape)
	d.order = nil
	d.TwoLayer = make(map[int32]*Partition)
	d.fineIDs = nil
	d.Uniform = make(map[int32][]int64)
	d.April = make(map[[2]int64][]byte)
	d.haveSpace = false
}
