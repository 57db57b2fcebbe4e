package capture

import (
	"fmt"

	"gocv.io/x/gocv"
)

// Mirror flips frame horizontally in place, producing the selfie view the
// landmark provider and the viewer both see.
func Mirror(frame *gocv.Mat) error {
	if err := gocv.Flip(*frame, frame, 1); err != nil {
		return fmt.Errorf("mirror frame: %w", err)
	}
	return nil
}

// ToRGB returns a copy of a BGR frame in RGB channel order. The caller is
// responsible for closing it, also on error.
func ToRGB(frame *gocv.Mat) (gocv.Mat, error) {
	rgb := gocv.NewMat()
	if err := gocv.CvtColor(*frame, &rgb, gocv.ColorBGRToRGB); err != nil {
		return rgb, fmt.Errorf("convert frame to RGB: %w", err)
	}
	return rgb, nil
}
