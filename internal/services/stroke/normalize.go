package stroke

// Viewport describes how a canvas is displayed on the emitting device
type Viewport struct {
	CanvasWidth   float64 `json:"canvasWidth"`
	CanvasHeight  float64 `json:"canvasHeight"`
	DisplayWidth  float64 `json:"displayWidth"`
	DisplayHeight float64 `json:"displayHeight"`
}

// Normalize maps device coordinates onto canvas pixels. Peers with a
// different canvas size still render at these pixel positions.
func Normalize(x, y float64, vp Viewport) (float64, float64) {
	if vp.DisplayWidth > 0 && vp.CanvasWidth > 0 {
		x *= vp.CanvasWidth / vp.DisplayWidth
	}
	if vp.DisplayHeight > 0 && vp.CanvasHeight > 0 {
		y *= vp.CanvasHeight / vp.DisplayHeight
	}
	return x, y
}
