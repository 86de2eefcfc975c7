// Package scroll owns the "is there more to load" decision for a
// dynamically loading feed.
package scroll

import "xharvest/internal/dom"

// DefaultMaxStalls is how many consecutive scrolls may leave the page
// height unchanged before the feed is considered fully loaded.
const DefaultMaxStalls = 3

// Controller scrolls the page and compares its scroll extent between
// polls. Scrolling stays true until the height stops growing for
// MaxStalls consecutive polls. It knows nothing about post content.
type Controller struct {
	page dom.Page

	// Scrolling is the loop continuation flag. The harvester may also
	// clear it directly when its own stop conditions fire.
	Scrolling bool
	MaxStalls int

	lastHeight float64
	stalls     int
}

// New creates a Controller for the page.
func New(page dom.Page) *Controller {
	return &Controller{page: page, Scrolling: true, MaxStalls: DefaultMaxStalls}
}

// ScrollPage scrolls to the bottom and updates the continuation flag
// from the height delta. Scroll failures leave the flag untouched so
// a transient hiccup does not end the harvest.
func (c *Controller) ScrollPage() error {
	if err := c.page.ScrollToBottom(); err != nil {
		return err
	}

	h, err := c.page.ScrollHeight()
	if err != nil {
		return err
	}

	if h == c.lastHeight {
		c.stalls++
		if c.stalls >= c.MaxStalls {
			c.Scrolling = false
		}
	} else {
		c.stalls = 0
		c.lastHeight = h
	}
	return nil
}
