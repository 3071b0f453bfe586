package domain

import "time"

// BuildRecord is a single build attempt as persisted in the history file.
type BuildRecord struct {
	ID        string        `json:"id"`
	Seq       int           `json:"seq"`
	Mode      BuildMode     `json:"mode"`
	Status    BuildStatus   `json:"status"`
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	PID       int           `json:"pid,omitempty"`
	Error     string        `json:"error,omitempty"`
}

// History contains all recorded build attempts, oldest first.
type History struct {
	Entries []BuildRecord `json:"entries"`
}

// Latest returns the most recent record, or nil if empty.
func (h *History) Latest() *BuildRecord {
	if len(h.Entries) == 0 {
		return nil
	}
	latestIndex := 0
	latestTime := h.Entries[0].StartedAt
	for i := 1; i < len(h.Entries); i++ {
		if !h.Entries[i].StartedAt.Before(latestTime) {
			latestIndex = i
			latestTime = h.Entries[i].StartedAt
		}
	}
	return &h.Entries[latestIndex]
}

// Tail returns the last n records. n <= 0 returns all of them.
func (h *History) Tail(n int) []BuildRecord {
	if n <= 0 || n >= len(h.Entries) {
		return h.Entries
	}
	return h.Entries[len(h.Entries)-n:]
}

// HistoryStats summarizes a history.
type HistoryStats struct {
	Total        int                 `json:"total"`
	ByStatus     map[BuildStatus]int `json:"by_status"`
	SuccessRate  float64             `json:"success_rate"`
	MeanDuration time.Duration       `json:"mean_duration"`
}

// Stats computes per-status counts, the success rate over finished builds and
// the mean duration of successful builds. Cancelled builds count toward the
// total but not toward the success rate.
func (h *History) Stats() HistoryStats {
	stats := HistoryStats{ByStatus: make(map[BuildStatus]int)}
	var okDuration time.Duration
	for _, e := range h.Entries {
		stats.Total++
		stats.ByStatus[e.Status]++
		if e.Status == BuildSucceeded {
			okDuration += e.Duration
		}
	}
	ok := stats.ByStatus[BuildSucceeded]
	finished := stats.Total - stats.ByStatus[BuildCancelled]
	if finished > 0 {
		stats.SuccessRate = float64(ok) / float64(finished) * 100
	}
	if ok > 0 {
		stats.MeanDuration = okDuration / time.Duration(ok)
	}
	return stats
}
