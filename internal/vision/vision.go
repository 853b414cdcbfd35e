// Package vision asks an object detector what is on the table. Detection is
// advisory: the arm runs fixed programs and only logs what was seen.
package vision

import (
	"context"
	"encoding/json"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/cjeanneret/VoxArm/internal/debug"
)

// DetectedObject is one labelled bounding box centre, in pixels.
type DetectedObject struct {
	Label      string  `json:"label"`
	X          int     `json:"x"`
	Y          int     `json:"y"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Detector reports the objects currently in view.
type Detector interface {
	Detect(ctx context.Context) ([]DetectedObject, error)
}

// DefaultTimeout bounds one detection request.
const DefaultTimeout = 2 * time.Second

// HTTPDetector queries a detection service that answers GET requests with
// a JSON array of objects.
type HTTPDetector struct {
	url        string
	httpClient *http.Client
}

// NewHTTPDetector creates a detector for the service at url.
func NewHTTPDetector(url string, timeout time.Duration) *HTTPDetector {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &HTTPDetector{
		url: url,
		httpClient: &http.Client{
			Timeout: timeout,
			Transport: &http.Transport{
				DialContext: (&net.Dialer{
					Timeout:   timeout,
					KeepAlive: 30 * time.Second,
				}).DialContext,
				MaxIdleConnsPerHost: 2,
				IdleConnTimeout:     90 * time.Second,
			},
		},
	}
}

// Detect fetches the current detections.
func (d *HTTPDetector) Detect(ctx context.Context) ([]DetectedObject, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.url, nil)
	if err != nil {
		return nil, fmt.Errorf("detector request: %w", err)
	}
	resp, err := d.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("detector request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("detector returned status %d", resp.StatusCode)
	}

	var objects []DetectedObject
	if err := json.NewDecoder(resp.Body).Decode(&objects); err != nil {
		return nil, fmt.Errorf("detector decode failed: %w", err)
	}
	debug.Verbose("Detected %d objects: %v", len(objects), objects)
	return objects, nil
}

// NopDetector sees nothing.
type NopDetector struct{}

// Detect returns no objects.
func (NopDetector) Detect(context.Context) ([]DetectedObject, error) {
	return nil, nil
}

// Find returns the first object with the given label.
func Find(objects []DetectedObject, label string) (DetectedObject, bool) {
	for _, o := range objects {
		if o.Label == label {
			return o, true
		}
	}
	return DetectedObject{}, false
}
