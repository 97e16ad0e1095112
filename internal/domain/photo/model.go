package photo

import (
	"fmt"
	"time"
)

// Orientation is the device orientation at capture time.
type Orientation string

const (
	OrientationPortrait           Orientation = "portrait"
	OrientationPortraitUpsideDown Orientation = "portrait_upside_down"
	OrientationLandscapeLeft      Orientation = "landscape_left"
	OrientationLandscapeRight     Orientation = "landscape_right"
)

// Valid reports whether o is a known orientation.
func (o Orientation) Valid() bool {
	switch o {
	case OrientationPortrait, OrientationPortraitUpsideDown, OrientationLandscapeLeft, OrientationLandscapeRight:
		return true
	default:
		return false
	}
}

// ParseOrientation maps a wire value to an Orientation. Empty means portrait.
func ParseOrientation(s string) (Orientation, error) {
	if s == "" {
		return OrientationPortrait, nil
	}
	o := Orientation(s)
	if !o.Valid() {
		return "", fmt.Errorf("%w: unknown orientation %q", ErrInvalidInput, s)
	}
	return o, nil
}

// Location is a WGS84 coordinate.
type Location struct {
	Latitude  float64 `json:"latitude"`
	Longitude float64 `json:"longitude"`
}

func (l Location) validate() error {
	if l.Latitude < -90 || l.Latitude > 90 {
		return fmt.Errorf("%w: latitude %v out of range", ErrInvalidInput, l.Latitude)
	}
	if l.Longitude < -180 || l.Longitude > 180 {
		return fmt.Errorf("%w: longitude %v out of range", ErrInvalidInput, l.Longitude)
	}
	return nil
}

// Record is the catalog entry for one captured photo. Records are value
// snapshots; mutations go through the Service.
type Record struct {
	ID             string      `json:"id"`
	SessionID      string      `json:"session_id"`
	SequenceNumber int64       `json:"sequence_number"`
	CapturedAt     time.Time   `json:"captured_at"`
	ImageRef       string      `json:"image_ref"`
	ThumbnailRef   string      `json:"thumbnail_ref"`
	Checksum       string      `json:"checksum"`
	Location       *Location   `json:"location,omitempty"`
	Orientation    Orientation `json:"orientation"`
	Notes          *string     `json:"notes,omitempty"`
	Annotated      bool        `json:"annotated"`
	ModifiedAt     time.Time   `json:"modified_at"`
}

// Metadata is supplied by the capture surface alongside the image bytes.
type Metadata struct {
	Location    *Location
	Orientation Orientation
	Notes       *string
}

// DeletionIntent is journaled before a session group's catalog changes so
// a crash mid-group can be finished at startup.
type DeletionIntent struct {
	ID        string
	SessionID string
	Items     []IntentItem
	CreatedAt time.Time
}

// IntentItem names one record and the artifacts it owns.
type IntentItem struct {
	RecordID     string
	ImageRef     string
	ThumbnailRef string
}

// GroupResult reports the outcome of deleting one session's records.
type GroupResult struct {
	SessionID string
	Deleted   []string
	Err       error
}
