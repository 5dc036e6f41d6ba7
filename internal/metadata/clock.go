package metadata

import (
	"sync"
	"time"

	"github.com/notes-bin/imgstore/internal/model"
)

// Clock hands out upload dates that never go backwards for one writer,
// even if the wall clock does.
type Clock struct {
	mu   sync.Mutex
	now  func() time.Time
	last time.Time
}

func NewClock(now func() time.Time) *Clock {
	if now == nil {
		now = time.Now
	}
	return &Clock{now: now}
}

func (c *Clock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	t := c.now().UTC().Truncate(time.Microsecond)
	if t.Before(c.last) {
		t = c.last
	}
	c.last = t
	return t
}

// Stamp assigns UploadDate to img when it has none.
func (c *Clock) Stamp(img *model.Image) {
	if img.UploadDate == "" {
		img.UploadDate = model.FormatTime(c.Now())
	}
}
