package defrag

import (
	"github.com/vkngwrapper/memsim/memutils/metadata"
	"golang.org/x/exp/slices"
)

type span struct {
	start int
	size  int
	free  bool
}

func (s span) end() int {
	return s.start + s.size
}

// layout is a scratch copy of a metadata's regions that collected moves are applied to, so that
// each move in a pass is valid after the moves before it
type layout struct {
	spans []span
}

func newLayout(regions []metadata.RegionInfo) *layout {
	l := &layout{spans: make([]span, 0, len(regions))}
	for _, r := range regions {
		l.spans = append(l.spans, span{start: r.Start, size: r.Size, free: r.Free})
	}
	return l
}

func (l *layout) size() int {
	if len(l.spans) == 0 {
		return 0
	}
	return l.spans[len(l.spans)-1].end()
}

func (l *layout) index(offset int) int {
	i, _ := slices.BinarySearchFunc(l.spans, offset, func(s span, target int) int {
		if s.end() <= target {
			return -1
		}
		if s.start > target {
			return 1
		}
		return 0
	})
	return i
}

// lowestFit returns the start of the lowest free span below limit that can hold size bytes
func (l *layout) lowestFit(size, limit int) int {
	for _, s := range l.spans {
		if s.start >= limit {
			break
		}
		if s.free && s.size >= size {
			return s.start
		}
	}

	return metadata.NoOffset
}

func (l *layout) release(i int) int {
	l.spans[i].free = true

	if i+1 < len(l.spans) && l.spans[i+1].free {
		l.spans[i].size += l.spans[i+1].size
		l.spans = slices.Delete(l.spans, i+1, i+2)
	}

	if i > 0 && l.spans[i-1].free {
		l.spans[i-1].size += l.spans[i].size
		l.spans = slices.Delete(l.spans, i, i+1)
		i--
	}

	return i
}

func (l *layout) take(dst, size int) {
	i := l.index(dst)
	s := l.spans[i]
	if !s.free || dst+size > s.end() {
		panic("attempted to move an allocation into space that is not free")
	}

	if dst > s.start {
		l.spans[i].size = dst - s.start
		i++
		l.spans = slices.Insert(l.spans, i, span{start: dst, size: s.end() - dst, free: true})
	}

	if l.spans[i].size > size {
		l.spans = slices.Insert(l.spans, i+1, span{start: dst + size, size: l.spans[i].size - size, free: true})
		l.spans[i].size = size
	}

	l.spans[i].free = false
}

func (l *layout) move(src, dst int) {
	i := l.index(src)
	size := l.spans[i].size
	l.release(i)
	l.take(dst, size)
}
