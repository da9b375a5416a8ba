// Package carousel maintains a selection and a bounded visible window over an
// ordered collection that grows while the user is browsing it.
package carousel

import "fmt"

// DefaultWindowSize is the number of thumbnails visible at once.
const DefaultWindowSize = 4

// Direction moves the visible window without changing the selection.
type Direction int

const (
	Left  Direction = -1
	Right Direction = 1
)

// Navigator tracks which item is selected and which contiguous sub-range of
// the collection is visible. It never owns the items themselves; callers
// report length changes through Resize.
//
// Whenever the collection is non-empty the following hold:
//
//	0 <= Selected() < Length()
//	WindowStart()+WindowSize() <= Length(), or WindowStart() == 0 when the
//	collection fits inside one window.
//
// Selection moves additionally keep the selection inside the window; only
// ShiftWindow may scroll the window away from the selected item.
type Navigator struct {
	length      int
	selected    int
	windowStart int
	windowSize  int
}

// New returns a navigator over an empty collection. A non-positive size falls
// back to DefaultWindowSize.
func New(windowSize int) *Navigator {
	if windowSize <= 0 {
		windowSize = DefaultWindowSize
	}
	return &Navigator{windowSize: windowSize}
}

func (n *Navigator) Length() int      { return n.length }
func (n *Navigator) Selected() int    { return n.selected }
func (n *Navigator) WindowStart() int { return n.windowStart }
func (n *Navigator) WindowSize() int  { return n.windowSize }

// Window returns the half-open visible range [start, end) of the collection.
func (n *Navigator) Window() (start, end int) {
	end = n.windowStart + n.windowSize
	if end > n.length {
		end = n.length
	}
	return n.windowStart, end
}

// Resize reports the collection's new length. Growth never moves the window
// or the selection: background streaming must not yank the view out from
// under the user. Shrinking clamps both back into range, and an empty
// collection resets the navigator entirely.
func (n *Navigator) Resize(length int) {
	if length < 0 {
		length = 0
	}
	n.length = length
	if length == 0 {
		n.selected = 0
		n.windowStart = 0
		return
	}
	if n.selected >= length {
		n.selected = length - 1
	}
	if max := n.maxWindowStart(); n.windowStart > max {
		n.windowStart = max
	}
}

// SelectPrevious moves the selection one item back, dragging the window along
// when the selection would fall off its left edge. At index 0 it is a no-op.
func (n *Navigator) SelectPrevious() {
	if n.selected == 0 {
		return
	}
	n.selected--
	if n.selected < n.windowStart {
		n.windowStart = n.selected
	}
}

// SelectNext moves the selection one item forward, nudging the window right
// when the selection would fall off its right edge. At the last item it is a
// no-op.
func (n *Navigator) SelectNext() {
	if n.selected >= n.length-1 {
		return
	}
	n.selected++
	if n.selected >= n.windowStart+n.windowSize {
		n.windowStart++
	}
}

// SelectByIndex jumps the selection to i, repositioning the window so the
// selection is visible: the window snaps left if i precedes it, or right so
// that i becomes the window's last slot.
func (n *Navigator) SelectByIndex(i int) error {
	if i < 0 || i >= n.length {
		return fmt.Errorf("carousel: index %d out of range [0,%d)", i, n.length)
	}
	n.selected = i
	if i < n.windowStart {
		n.windowStart = i
	} else if i >= n.windowStart+n.windowSize {
		n.windowStart = i - n.windowSize + 1
	}
	return nil
}

// ShiftWindow slides the visible window one slot left or right without
// touching the selection, clamped so the window stays inside the collection.
// When the whole collection fits in one window this is a no-op.
func (n *Navigator) ShiftWindow(dir Direction) {
	next := n.windowStart + int(dir)
	if next < 0 {
		next = 0
	}
	if max := n.maxWindowStart(); next > max {
		next = max
	}
	n.windowStart = next
}

func (n *Navigator) maxWindowStart() int {
	max := n.length - n.windowSize
	if max < 0 {
		max = 0
	}
	return max
}
