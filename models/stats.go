package models

import "time"

// RunStats accumulates per-run counters. It is created at run start,
// mutated by the pagination controller and the data processor, and
// read-only once Finalize has been called.
type RunStats struct {
	StartTime      time.Time      `json:"start_time"`
	EndTime        time.Time      `json:"end_time"`
	Duration       time.Duration  `json:"duration"`
	PagesScraped   int            `json:"pages_scraped"`
	PagesFailed    int            `json:"pages_failed"`
	RobotsSkipped  int            `json:"robots_skipped"`
	ItemsExtracted int            `json:"items_extracted"`
	ItemsProcessed int            `json:"items_processed"`
	RecordsDropped int            `json:"records_dropped"`
	ErrorsByType   map[string]int `json:"errors_by_type,omitempty"`
}

// NewRunStats starts the clock for a run.
func NewRunStats() *RunStats {
	return &RunStats{
		StartTime:    time.Now(),
		ErrorsByType: make(map[string]int),
	}
}

// CountError bumps the per-category error counter.
func (s *RunStats) CountError(category string) {
	if s.ErrorsByType == nil {
		s.ErrorsByType = make(map[string]int)
	}
	s.ErrorsByType[category]++
}

// Finalize stamps the end time and wall duration.
func (s *RunStats) Finalize() {
	s.EndTime = time.Now()
	s.Duration = s.EndTime.Sub(s.StartTime)
}
