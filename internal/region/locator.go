// Package region locates the vertical slice of a rendered page bounded by a
// start anchor and an end anchor, and crops the full-page raster to it.
package region

import (
	"bytes"
	"errors"
	"fmt"
	"image"
	"image/draw"
	"image/png"
	"math"
	"regexp"

	"go.uber.org/zap"

	"github.com/JakeFAU/pagewatch/internal/render"
	"github.com/JakeFAU/pagewatch/internal/runlog"
	"github.com/JakeFAU/pagewatch/internal/stage"
)

// DefaultEndMargin is added below the end anchor so its descenders stay in
// the region.
const DefaultEndMargin = 5

var (
	// ErrStartAnchorMissing reports that no element matched the start anchor.
	ErrStartAnchorMissing = errors.New("start anchor not found")
	// ErrEmptyRegion reports a computed region with non-positive height.
	ErrEmptyRegion = errors.New("region height is not positive")
)

// Bounds are the region's vertical limits in page pixels.
type Bounds struct {
	StartY         float64
	EndY           float64
	Width          float64
	EndAnchorFound bool
}

// Height returns EndY - StartY.
func (b Bounds) Height() float64 {
	return b.EndY - b.StartY
}

// Region is a cropped slice of the page.
type Region struct {
	Bounds Bounds
	Image  *image.RGBA
}

// Config holds the anchor patterns.
type Config struct {
	StartAnchor string
	EndAnchor   string
	EndMargin   float64
}

// Locator finds and crops the region.
type Locator struct {
	start  *regexp.Regexp
	end    *regexp.Regexp
	margin float64
}

// New compiles the anchor patterns.
func New(cfg Config) (*Locator, error) {
	if cfg.StartAnchor == "" || cfg.EndAnchor == "" {
		return nil, fmt.Errorf("start and end anchors are required")
	}
	start, err := regexp.Compile(cfg.StartAnchor)
	if err != nil {
		return nil, fmt.Errorf("compile start anchor: %w", err)
	}
	end, err := regexp.Compile(cfg.EndAnchor)
	if err != nil {
		return nil, fmt.Errorf("compile end anchor: %w", err)
	}
	if cfg.EndMargin < 0 {
		return nil, fmt.Errorf("end margin must be >= 0")
	}
	return &Locator{start: start, end: end, margin: cfg.EndMargin}, nil
}

// Locate finds the region on page and crops its screenshot. The start anchor
// is the FIRST deepest matching element and the end anchor the LAST one, so the
// region spans the largest plausible block. A missing end anchor extends the
// region to the bottom of the page.
func (l *Locator) Locate(page *render.Page, log *runlog.Log) stage.Result[Region] {
	log.Info("📸 I'm taking a screenshot of the gap between elements...")

	startEl, ok := l.first(page.Elements)
	if !ok {
		log.Error(fmt.Sprintf("❌ Element '%s' not found", l.start))
		return stage.Failed[Region](ErrStartAnchorMissing)
	}
	endEl, endFound := l.last(page.Elements)
	if !endFound {
		log.Warn(fmt.Sprintf("⚠️ The word '%s' was not found, the entire page height will be used!", l.end))
	}

	full, err := png.Decode(bytes.NewReader(page.Screenshot))
	if err != nil {
		log.Error(fmt.Sprintf("❌ Screenshot creation error: %v", err))
		return stage.Failed[Region](fmt.Errorf("decode screenshot: %w", err))
	}

	bounds := Bounds{
		StartY:         startEl.Box.Bottom(),
		Width:          float64(page.Viewport.Width),
		EndAnchorFound: endFound,
	}
	if bounds.Width <= 0 {
		bounds.Width = float64(full.Bounds().Dx())
	}
	if endFound {
		bounds.EndY = endEl.Box.Bottom() + l.margin
		log.Info(fmt.Sprintf("📐 Trimming to the word '%s': y=%g-%g", l.end, bounds.StartY, bounds.EndY))
	} else {
		bounds.EndY = float64(full.Bounds().Dy())
		log.Info(fmt.Sprintf("📐 Crop to full page height (%s not found)", l.end))
	}

	if bounds.Height() <= 0 {
		log.Error("❌ Incorrect height of the screenshot area",
			zap.Float64("start_y", bounds.StartY), zap.Float64("end_y", bounds.EndY))
		return stage.Failed[Region](fmt.Errorf("%w: start=%g end=%g", ErrEmptyRegion, bounds.StartY, bounds.EndY))
	}

	img := Crop(full, bounds)
	if img.Rect.Empty() {
		log.Error("❌ Incorrect height of the screenshot area")
		return stage.Failed[Region](fmt.Errorf("%w: rounds to zero pixels", ErrEmptyRegion))
	}
	return stage.OK(Region{Bounds: bounds, Image: img})
}

func (l *Locator) first(elements []render.Element) (render.Element, bool) {
	matches := deepestMatches(l.start, elements)
	if len(matches) == 0 {
		return render.Element{}, false
	}
	return elements[matches[0]], true
}

func (l *Locator) last(elements []render.Element) (render.Element, bool) {
	matches := deepestMatches(l.end, elements)
	if len(matches) == 0 {
		return render.Element{}, false
	}
	return elements[matches[len(matches)-1]], true
}

// deepestMatches returns, in document order, the indexes of rendered elements
// whose text matches re while no rendered descendant's text matches on its
// own. Anchors split across inline tags therefore resolve to the enclosing
// block, and wrappers around a matching element are skipped.
func deepestMatches(re *regexp.Regexp, elements []render.Element) []int {
	matched := make([]bool, len(elements))
	covered := make([]bool, len(elements))
	for i, el := range elements {
		if (el.Box.Width == 0 && el.Box.Height == 0) || !re.MatchString(el.Text) {
			continue
		}
		matched[i] = true
		depth := el.Depth
		for k := i - 1; k >= 0 && depth > 0; k-- {
			if elements[k].Depth >= depth {
				continue
			}
			if covered[k] {
				break
			}
			covered[k] = true
			depth = elements[k].Depth
		}
	}
	var out []int
	for i := range elements {
		if matched[i] && !covered[i] {
			out = append(out, i)
		}
	}
	return out
}

// Crop copies the rectangle (0, StartY, Width, EndY) of src into a new image
// anchored at the origin. Coordinates are rounded to whole pixels; parts of
// the rectangle outside src are left zero (transparent black), so the result
// always measures Width x Height.
func Crop(src image.Image, b Bounds) *image.RGBA {
	y0 := int(math.Round(b.StartY))
	y1 := int(math.Round(b.EndY))
	w := int(math.Round(b.Width))
	if y1 <= y0 || w <= 0 {
		return image.NewRGBA(image.Rectangle{})
	}
	dst := image.NewRGBA(image.Rect(0, 0, w, y1-y0))
	srcRect := image.Rect(0, y0, w, y1).Add(src.Bounds().Min)
	draw.Draw(dst, dst.Rect, src, srcRect.Min, draw.Src)
	return dst
}

// EncodePNG encodes img losslessly.
func EncodePNG(img image.Image) ([]byte, error) {
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode png: %w", err)
	}
	return buf.Bytes(), nil
}
