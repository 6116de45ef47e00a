package assemble

import (
	"fmt"
	"sort"
	"sync"

	"github.com/hazyhaar/deckcap/deckcap/internal/capture"
)

// Collection accumulates captured slides keyed by index. Indices are
// unique; putting an index twice replaces the earlier capture.
type Collection struct {
	mu     sync.RWMutex
	slides []capture.CapturedSlide
}

// NewCollection returns an empty collection.
func NewCollection() *Collection { return &Collection{} }

// Put inserts s in index order.
func (c *Collection) Put(s capture.CapturedSlide) error {
	if s.Index < 0 {
		return fmt.Errorf("assemble: negative slide index %d", s.Index)
	}
	if len(s.PNG) == 0 {
		return fmt.Errorf("assemble: slide %d has no image", s.Index+1)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	i := sort.Search(len(c.slides), func(i int) bool { return c.slides[i].Index >= s.Index })
	if i < len(c.slides) && c.slides[i].Index == s.Index {
		c.slides[i] = s
		return nil
	}
	c.slides = append(c.slides, capture.CapturedSlide{})
	copy(c.slides[i+1:], c.slides[i:])
	c.slides[i] = s
	return nil
}

// Len returns the number of slides held.
func (c *Collection) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.slides)
}

// Slides returns an ordered copy. The PNG buffers are shared and must not
// be modified.
func (c *Collection) Slides() []capture.CapturedSlide {
	c.mu.RLock()
	defer c.mu.RUnlock()
	out := make([]capture.CapturedSlide, len(c.slides))
	copy(out, c.slides)
	return out
}

// Complete reports whether indices 0..total-1 are all present.
func (c *Collection) Complete(total int) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if len(c.slides) != total {
		return false
	}
	for i, s := range c.slides {
		if s.Index != i {
			return false
		}
	}
	return true
}

// Reset drops every slide.
func (c *Collection) Reset() {
	c.mu.Lock()
	c.slides = nil
	c.mu.Unlock()
}
