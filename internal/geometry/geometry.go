// Package geometry turns raw landmark detections into what the stream
// shows: a padded pixel bounding box, the viewer's real handedness and the
// number of extended fingers.
//
// Every function here is pure. The frame handed to the landmark provider
// is mirrored, so the provider's handedness label is the opposite of the
// viewer's hand; Resolve inverts it exactly once.
package geometry

import (
	"math"

	"github.com/ayusman/handcount/internal/detector"
)

// BoxMargin is the padding in pixels added on every side of a hand's
// landmark extent.
const BoxMargin = 20

// MaxFingers is the largest count CountFingers can return.
const MaxFingers = 5

// Box is a pixel-space rectangle with its origin at the top-left corner.
type Box struct {
	X      int `json:"x"`
	Y      int `json:"y"`
	Width  int `json:"width"`
	Height int `json:"height"`
}

// Hand is a detection resolved against a frame.
type Hand struct {
	Box        Box     `json:"box"`
	Handedness string  `json:"handedness"` // from the viewer's perspective
	Fingers    int     `json:"fingers"`
	Score      float64 `json:"score"`
}

// fingerJoints pairs each non-thumb fingertip with its PIP joint.
var fingerJoints = [4][2]int{
	{detector.IndexTip, detector.IndexPIP},
	{detector.MiddleTip, detector.MiddlePIP},
	{detector.RingTip, detector.RingPIP},
	{detector.PinkyTip, detector.PinkyPIP},
}

// BoundingBox scales normalized landmarks to a width x height frame and
// returns their extent padded by BoxMargin and clamped to the frame.
//
// The result always satisfies 0 <= X <= X+Width <= width and likewise for
// Y, even for landmarks outside [0,1]. A hand lying entirely off-frame
// yields a zero-area box on the nearest edge. Non-finite coordinates are
// ignored; if none are finite the zero box is returned.
func BoundingBox(points [detector.NumLandmarks]detector.Point3D, width, height int) Box {
	if width <= 0 || height <= 0 {
		return Box{}
	}

	minX, maxX := math.Inf(1), math.Inf(-1)
	minY, maxY := math.Inf(1), math.Inf(-1)
	for _, p := range points {
		x := p.X * float64(width)
		y := p.Y * float64(height)
		if isFinite(x) {
			minX = math.Min(minX, x)
			maxX = math.Max(maxX, x)
		}
		if isFinite(y) {
			minY = math.Min(minY, y)
			maxY = math.Max(maxY, y)
		}
	}
	if math.IsInf(minX, 1) || math.IsInf(minY, 1) {
		return Box{}
	}

	// Truncate before padding so pixel edges match integer landmark positions.
	x0 := clamp(math.Trunc(minX)-BoxMargin, width)
	x1 := clamp(math.Trunc(maxX)+BoxMargin, width)
	y0 := clamp(math.Trunc(minY)-BoxMargin, height)
	y1 := clamp(math.Trunc(maxY)+BoxMargin, height)

	return Box{X: x0, Y: y0, Width: x1 - x0, Height: y1 - y0}
}

// CorrectHandedness converts a provider label computed on a mirrored frame
// into the viewer's real hand: "Left" becomes "Right" and vice versa. Other
// labels are returned unchanged, so applying it twice is always the
// identity.
func CorrectHandedness(raw string) string {
	switch raw {
	case detector.Left:
		return detector.Right
	case detector.Right:
		return detector.Left
	default:
		return raw
	}
}

// CountFingers counts extended fingers with a position heuristic.
//
// The thumb is extended when its tip lies outward of its MCP joint along
// x; outward is +x for a raw "Right" label and -x otherwise. rawHandedness
// must be the provider's label, not the corrected one. Each other finger is
// extended when its tip is above (smaller y than) its PIP joint.
//
// Only same-axis coordinates are compared, so normalized and pixel inputs
// give the same count. Sideways or rotated hands are misclassified.
func CountFingers(points [detector.NumLandmarks]detector.Point3D, rawHandedness string) int {
	count := 0

	tip, joint := points[detector.ThumbTip].X, points[detector.ThumbMCP].X
	if rawHandedness == detector.Right {
		if tip > joint {
			count++
		}
	} else if tip < joint {
		count++
	}

	for _, f := range fingerJoints {
		if points[f[0]].Y < points[f[1]].Y {
			count++
		}
	}

	return count
}

// Resolve derives the displayed hand from one detection on a width x height
// mirrored frame.
func Resolve(h detector.HandLandmarks, width, height int) Hand {
	return Hand{
		Box:        BoundingBox(h.Points, width, height),
		Handedness: CorrectHandedness(h.Handedness),
		Fingers:    CountFingers(h.Points, h.Handedness),
		Score:      h.Score,
	}
}

// ResolveAll resolves every detection of a frame, preserving order.
func ResolveAll(hands []detector.HandLandmarks, width, height int) []Hand {
	resolved := make([]Hand, len(hands))
	for i := range hands {
		resolved[i] = Resolve(hands[i], width, height)
	}
	return resolved
}

// TotalFingers sums the finger counts of all hands.
func TotalFingers(hands []Hand) int {
	total := 0
	for _, h := range hands {
		total += h.Fingers
	}
	return total
}

func isFinite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}

func clamp(v float64, limit int) int {
	if v < 0 {
		return 0
	}
	if v > float64(limit) {
		return limit
	}
	return int(v)
}
