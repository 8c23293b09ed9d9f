// Package stacking lays out the spill area of an allocated function,
// giving every spill slot a concrete offset in the frame.
package stacking

import (
	"fmt"
	"io"

	"github.com/raymyers/ralph-bt/pkg/linear"
	"github.com/raymyers/ralph-bt/pkg/target"
	"github.com/raymyers/ralph-bt/pkg/vir"
)

// Spill area layout (offsets from the frame base):
//
//	+---------------------------+  <- base + TotalSize (stack-aligned)
//	| padding                   |
//	+---------------------------+  <- base + SpillSize
//	| slot n-1                  |
//	| ...                       |
//	| slot 0                    |
//	+---------------------------+  <- base + 0 (stack-aligned)
//
// Slots are packed in slot-number order, which is the order in which the
// allocator first displaced each value.

// FrameLayout describes the concrete spill area of one function
type FrameLayout struct {
	Name      string
	NumSlots  int
	SlotSize  int64
	SpillSize int64 // NumSlots * SlotSize
	TotalSize int64 // SpillSize rounded up to the stack alignment
}

// ComputeLayout computes the frame layout for a Linear function on t. It
// fails with a *target.ConfigError when t cannot address every slot.
func ComputeLayout(fn *linear.Function, t *target.Target) (*FrameLayout, error) {
	n := fn.Slots()
	if err := t.CheckSlots(n); err != nil {
		return nil, err
	}
	layout := &FrameLayout{
		Name:     fn.Name,
		NumSlots: n,
		SlotSize: t.SlotSize,
	}
	layout.SpillSize = int64(n) * t.SlotSize
	layout.TotalSize = alignUp(layout.SpillSize, t.StackAlign)
	return layout, nil
}

// SlotOffset returns the offset of slot s from the frame base
func (l *FrameLayout) SlotOffset(s vir.Slot) int64 {
	return int64(s) * l.SlotSize
}

// Print writes the layout as a comment block
func (l *FrameLayout) Print(w io.Writer) {
	fmt.Fprintf(w, "; frame %s: %d slots of %d bytes, %d bytes total\n",
		l.Name, l.NumSlots, l.SlotSize, l.TotalSize)
	for i := 0; i < l.NumSlots; i++ {
		s := vir.Slot(i)
		fmt.Fprintf(w, ";   %s at +%d\n", s, l.SlotOffset(s))
	}
}

// alignUp rounds n up to the nearest multiple of align
func alignUp(n, align int64) int64 {
	if align == 0 {
		return n
	}
	return ((n + align - 1) / align) * align
}
