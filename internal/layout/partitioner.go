// Package layout buckets observed elements into coarse screen regions
// (top/header, left/nav, right/panel, center/main) using viewport-relative
// bounding-box heuristics. Partitioning is a pure function: same inputs
// always produce the same partition, with no side effects.
package layout

import (
	"math"

	"github.com/ocularqa/ocular/api/schemas"
	"github.com/ocularqa/ocular/internal/config"
)

// Partitioner assigns elements to regions by fractional viewport thresholds.
type Partitioner struct {
	topFraction   float64
	leftFraction  float64
	rightFraction float64
}

// NewPartitioner builds a partitioner from config, substituting the standard
// fractions for unset or nonsensical values.
func NewPartitioner(cfg config.LayoutConfig) *Partitioner {
	p := &Partitioner{
		topFraction:   cfg.TopFraction,
		leftFraction:  cfg.LeftFraction,
		rightFraction: cfg.RightFraction,
	}
	if p.topFraction <= 0 || p.topFraction >= 1 {
		p.topFraction = 0.2
	}
	if p.leftFraction <= 0 || p.leftFraction >= 1 {
		p.leftFraction = 0.3
	}
	if p.rightFraction <= p.leftFraction || p.rightFraction >= 1 {
		p.rightFraction = 0.6
	}
	return p
}

// Partition buckets elements into regions. The top rule applies first: any
// element with y < topFraction*height lands in Top and is excluded from the
// horizontal buckets. Remaining elements classify by x alone: left when
// x < leftFraction*width, right when x > rightFraction*width, center when
// strictly between the two fractions. An element matching no threshold is
// absent from every region.
func (p *Partitioner) Partition(elements []schemas.ObservedElement, viewport schemas.Viewport) schemas.LayoutPartition {
	w := float64(viewport.Width)
	h := float64(viewport.Height)

	var top, left, right, center []schemas.ObservedElement
	for _, el := range elements {
		if el.Box.Y < p.topFraction*h {
			top = append(top, el)
			continue
		}
		switch {
		case el.Box.X < p.leftFraction*w:
			left = append(left, el)
		case el.Box.X > p.rightFraction*w:
			right = append(right, el)
		case el.Box.X > p.leftFraction*w && el.Box.X < p.rightFraction*w:
			center = append(center, el)
		}
	}

	return schemas.LayoutPartition{
		Top:    buildRegion(top),
		Left:   buildRegion(left),
		Right:  buildRegion(right),
		Center: buildRegion(center),
	}
}

// buildRegion wraps the elements with their union bounding box, or nil for
// an empty bucket.
func buildRegion(elements []schemas.ObservedElement) *schemas.Region {
	if len(elements) == 0 {
		return nil
	}
	minX, minY := math.Inf(1), math.Inf(1)
	maxX, maxY := math.Inf(-1), math.Inf(-1)
	for _, el := range elements {
		minX = math.Min(minX, el.Box.X)
		minY = math.Min(minY, el.Box.Y)
		maxX = math.Max(maxX, el.Box.X+el.Box.Width)
		maxY = math.Max(maxY, el.Box.Y+el.Box.Height)
	}
	return &schemas.Region{
		Elements: elements,
		Box: schemas.BoundingBox{
			X:      minX,
			Y:      minY,
			Width:  maxX - minX,
			Height: maxY - minY,
		},
	}
}
