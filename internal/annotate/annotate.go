// Package annotate draws resolved hands and the info panel onto frames.
package annotate

import (
	"fmt"
	"image"
	"image/color"

	"gocv.io/x/gocv"

	"github.com/ayusman/handcount/internal/detector"
	"github.com/ayusman/handcount/internal/geometry"
)

// Colors are given in RGB; gocv converts them to the frame's BGR order.
var (
	Accent     = color.RGBA{R: 180, G: 255, B: 0}
	Black      = color.RGBA{}
	LabelShade = color.RGBA{R: 40, G: 40, B: 40}
	PanelShade = color.RGBA{R: 20, G: 20, B: 20}
	Muted      = color.RGBA{R: 200, G: 200, B: 200}
)

// Layout of the overlay, in pixels.
const (
	BoxThickness    = 3
	TopLabelWidth   = 100
	TopLabelHeight  = 30
	FootLabelWidth  = 100
	FootLabelHeight = 25
)

// InfoPanel is the area covered by the hand and finger totals.
var InfoPanel = image.Rect(10, 10, 180, 70)

const font = gocv.FontHersheySimplex

// Frame draws every hand and then the info panel.
func Frame(frame *gocv.Mat, hands []geometry.Hand) {
	Hands(frame, hands)
	Panel(frame, hands)
}

// Hands draws a box for each hand with its handedness above and its finger
// count below. Zero-area boxes are drawn like any other.
func Hands(frame *gocv.Mat, hands []geometry.Hand) {
	for _, h := range hands {
		box := image.Rect(h.Box.X, h.Box.Y, h.Box.X+h.Box.Width, h.Box.Y+h.Box.Height)
		if box.Empty() {
			// OpenCV skips empty rectangles; a collapsed box shows as a line.
			gocv.Line(frame, box.Min, box.Max, Accent, BoxThickness)
		} else {
			gocv.Rectangle(frame, box, Accent, BoxThickness)
		}

		top := image.Rect(box.Min.X, box.Min.Y-TopLabelHeight, box.Min.X+TopLabelWidth, box.Min.Y)
		gocv.Rectangle(frame, top, Accent, -1)
		gocv.PutText(frame, HandLabel(h.Handedness), image.Pt(box.Min.X+5, box.Min.Y-10), font, 0.5, Black, 2)

		foot := image.Rect(box.Min.X, box.Max.Y, box.Min.X+FootLabelWidth, box.Max.Y+FootLabelHeight)
		gocv.Rectangle(frame, foot, LabelShade, -1)
		gocv.PutText(frame, FingerLabel(h.Fingers), image.Pt(box.Min.X+5, box.Max.Y+18), font, 0.5, Accent, 2)
	}
}

// Panel draws the hand count and finger total in the top-left corner.
func Panel(frame *gocv.Mat, hands []geometry.Hand) {
	gocv.Rectangle(frame, InfoPanel, PanelShade, -1)
	gocv.Rectangle(frame, InfoPanel, Accent, 2)

	gocv.PutText(frame, fmt.Sprintf("Hands: %d", len(hands)), image.Pt(20, 35), font, 0.6, Accent, 2)
	gocv.PutText(frame, fmt.Sprintf("Fingers: %d", geometry.TotalFingers(hands)), image.Pt(20, 55), font, 0.5, Muted, 1)
}

// HandLabel is the text shown above a hand.
func HandLabel(handedness string) string {
	switch handedness {
	case detector.Left, detector.Right:
		return handedness + " Hand"
	default:
		return "Hand"
	}
}

// FingerLabel is the text shown below a hand.
func FingerLabel(n int) string {
	if n == 1 {
		return "1 Finger"
	}
	return fmt.Sprintf("%d Fingers", n)
}
