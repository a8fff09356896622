// Package render turns a URL into a RenderedPage: the DOM snapshot, a
// full-page PNG raster and the geometry of text-bearing elements, all taken
// from one browser session.
package render

import "context"

// Renderer renders a page once.
type Renderer interface {
	Render(ctx context.Context, url string) (*Page, error)
}

// Box is an element's border box in document (page) CSS pixels.
type Box struct {
	X      float64 `json:"x"`
	Y      float64 `json:"y"`
	Width  float64 `json:"width"`
	Height float64 `json:"height"`
}

// Bottom returns the y coordinate of the box's lower edge.
func (b Box) Bottom() float64 {
	return b.Y + b.Height
}

// Element is one text-bearing element in document order. Text holds the
// element's full text, descendants included, whitespace-collapsed. Depth is
// the number of ancestors between the element and <body>; an element's
// descendants are the run of following elements that are deeper than it.
type Element struct {
	Tag   string `json:"tag"`
	Text  string `json:"text"`
	Depth int    `json:"depth"`
	Box   Box    `json:"box"`
}

// Viewport is the emulated browser window size.
type Viewport struct {
	Width  int
	Height int
}

// Page is the ephemeral product of one render call.
type Page struct {
	URL        string
	FinalURL   string
	HTML       string
	Screenshot []byte
	Elements   []Element
	Viewport   Viewport
	StatusCode int
}
