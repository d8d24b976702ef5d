// Package ui is the presentation seam of the training loop. The
// trainer publishes events; a UI renders them. SilentUI drops
// everything and backs non-interactive runs.
package ui

// Progress is a point-in-time view of a run for display.
type Progress struct {
	Episode   int
	Total     int
	AvgReward float64
	Epsilon   float64
	Accuracy  float64
}

type UI interface {
	UpdateStatus(status string)
	UpdateProgress(p Progress)
	Log(msg string)
}

type SilentUI struct{}

func (s SilentUI) UpdateStatus(status string) {}
func (s SilentUI) UpdateProgress(p Progress)  {}
func (s SilentUI) Log(msg string)             {}
