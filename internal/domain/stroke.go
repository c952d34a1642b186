package domain

import "encoding/json"

// Stroke is one whiteboard drawing step. Coordinates are canvas-relative;
// Extra carries whatever freeform payload the client attached.
type Stroke struct {
	Tool  string          `json:"tool"`
	Color string          `json:"color"`
	Width float64         `json:"width"`
	X0    float64         `json:"x0"`
	Y0    float64         `json:"y0"`
	X1    float64         `json:"x1"`
	Y1    float64         `json:"y1"`
	Extra json.RawMessage `json:"extra,omitempty"`
}
