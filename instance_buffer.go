package sprite

import "github.com/gogpu/sprite/gpucore"

// InstanceBuffer accumulates instance records for one draw.
//
// Records are drawn in insertion order. A growable buffer doubles its
// storage when full; a fixed buffer rejects appends with ErrBufferFull.
// Clear resets the length and keeps the storage.
//
// InstanceBuffer is not safe for concurrent use. Parallel population goes
// through a ProducerSet, which gives every producer its own run.
type InstanceBuffer struct {
	records []InstanceRecord
	fixed   bool
	limit   int
}

// NewInstanceBuffer creates a growable buffer with room for capacity records.
func NewInstanceBuffer(capacity int) *InstanceBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &InstanceBuffer{records: make([]InstanceRecord, 0, capacity)}
}

// NewFixedInstanceBuffer creates a buffer that holds at most capacity records.
func NewFixedInstanceBuffer(capacity int) *InstanceBuffer {
	if capacity < 0 {
		capacity = 0
	}
	return &InstanceBuffer{
		records: make([]InstanceRecord, 0, capacity),
		fixed:   true,
		limit:   capacity,
	}
}

// Append adds one record at the end.
func (b *InstanceBuffer) Append(r InstanceRecord) error {
	if b.fixed && len(b.records) >= b.limit {
		return ErrBufferFull
	}
	b.records = append(b.records, r)
	return nil
}

// Extend appends rs in order. A fixed buffer without room for all of rs
// is left unchanged.
func (b *InstanceBuffer) Extend(rs []InstanceRecord) error {
	if b.fixed && len(b.records)+len(rs) > b.limit {
		return ErrBufferFull
	}
	b.records = append(b.records, rs...)
	return nil
}

// Clear drops all records without releasing storage.
func (b *InstanceBuffer) Clear() { b.records = b.records[:0] }

// Len returns the number of records.
func (b *InstanceBuffer) Len() int { return len(b.records) }

// Cap returns the number of records the buffer holds before growing
// (or, for a fixed buffer, at all).
func (b *InstanceBuffer) Cap() int {
	if b.fixed {
		return b.limit
	}
	return cap(b.records)
}

// Fixed reports whether the buffer has a hard capacity.
func (b *InstanceBuffer) Fixed() bool { return b.fixed }

// Records returns the occupied prefix. The slice aliases the buffer and is
// valid until the next Append, Extend or Clear.
func (b *InstanceBuffer) Records() []InstanceRecord { return b.records }

// At returns a pointer to record i for in-place edits.
func (b *InstanceBuffer) At(i int) *InstanceRecord { return &b.records[i] }

// Encode appends the occupied prefix in wire layout.
func (b *InstanceBuffer) Encode(dst []byte, format gpucore.InstanceFormat) []byte {
	return EncodeInstances(dst, b.records, format)
}

// SetLayer resolves the layer of record i in place. Used when records are
// built before their images are allocated.
func (b *InstanceBuffer) SetLayer(i int, layer uint32) { b.records[i].Layer = layer }
