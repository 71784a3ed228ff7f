package kheap

// Layout describes a single allocation request: a byte size and a required
// power-of-two alignment. The same layout passed to Allocate must be passed
// back to Release for the matching block.
type Layout struct {
	Size  int
	Align uint
}

// AlignTo raises the layout's alignment to at least the provided alignment.
func (l Layout) AlignTo(alignment uint) Layout {
	if alignment > l.Align {
		l.Align = alignment
	}
	return l
}

// PadToAlign rounds the layout's size up to a multiple of its alignment.
func (l Layout) PadToAlign() Layout {
	l.Size = AlignUp(l.Size, l.Align)
	return l
}
