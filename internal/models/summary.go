package models

import "fmt"

// Summary accumulates the per-job counters returned by the engine.
type Summary struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	// Reauthentications counts successful and failed re-login attempts.
	Reauthentications int    `json:"reauthentications"`
	Strategy          string `json:"strategy,omitempty"`
}

// Checkpoint is a periodic progress snapshot.
type Checkpoint struct {
	Processed int `json:"processed"`
	Matched   int `json:"matched"`
	Updated   int `json:"updated"`
	Errors    int `json:"errors"`
	Total     int `json:"total"`
}

func (s Summary) Checkpoint(total int) Checkpoint {
	return Checkpoint{
		Processed: s.Processed,
		Matched:   s.Matched,
		Updated:   s.Updated,
		Errors:    s.Errors,
		Total:     total,
	}
}

func (c Checkpoint) String() string {
	return fmt.Sprintf("processed %d/%d, matched %d, updated %d, errors %d",
		c.Processed, c.Total, c.Matched, c.Updated, c.Errors)
}
