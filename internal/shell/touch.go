package shell

import "net/http"

// Capabilities are the three touch signals a browser exposes:
// "ontouchstart" in window, navigator.maxTouchPoints and the legacy
// navigator.msMaxTouchPoints.
type Capabilities struct {
	OnTouchStart     bool `json:"onTouchStart"`
	MaxTouchPoints   int  `json:"maxTouchPoints"`
	MsMaxTouchPoints int  `json:"msMaxTouchPoints"`
}

func DetectTouch(c Capabilities) bool {
	return c.OnTouchStart || c.MaxTouchPoints > 0 || c.MsMaxTouchPoints > 0
}

// TouchProvider evaluates the capabilities once and then only answers reads.
type TouchProvider struct {
	touch bool
}

func NewTouchProvider(c Capabilities) TouchProvider {
	return TouchProvider{touch: DetectTouch(c)}
}

func (p TouchProvider) IsTouch() bool { return p.touch }

// CapabilitiesFromRequest is the server's best guess before the page runs:
// a mobile client hint counts as one touch point.
func CapabilitiesFromRequest(r *http.Request) Capabilities {
	var c Capabilities
	if r.Header.Get("Sec-CH-UA-Mobile") == "?1" {
		c.MaxTouchPoints = 1
	}
	return c
}
