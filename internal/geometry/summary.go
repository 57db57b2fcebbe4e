package geometry

// Summary describes the hands found in one processed frame.
type Summary struct {
	Hands        []Hand `json:"hands"`
	TotalFingers int    `json:"total_fingers"`
	Width        int    `json:"width"`
	Height       int    `json:"height"`
	Timestamp    int64  `json:"timestamp"` // Unix milliseconds
}

// NewSummary builds the Summary of a frame. A nil hands slice is reported
// as an empty list.
func NewSummary(hands []Hand, width, height int, timestampMs int64) Summary {
	if hands == nil {
		hands = []Hand{}
	}
	return Summary{
		Hands:        hands,
		TotalFingers: TotalFingers(hands),
		Width:        width,
		Height:       height,
		Timestamp:    timestampMs,
	}
}
