package backfill

import (
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"time"
)

// Status is the orchestrator's lifecycle state. Paused and completed are
// terminal for one invocation; resuming is a fresh invocation.
type Status string

const (
	StatusRunning   Status = "running"
	StatusPaused    Status = "paused"
	StatusCompleted Status = "completed"
)

// State is the progress snapshot overwritten after every month
// transition.
type State struct {
	Status          Status    `json:"status"`
	UpdatedAtUTC    time.Time `json:"updated_at_utc"`
	StartMonth      string    `json:"start_month"`
	EndMonth        string    `json:"end_month"`
	TotalMonths     int       `json:"total_months"`
	CompletedMonths int       `json:"completed_months"`
	PercentComplete float64   `json:"percent_complete"`
	CurrentMonth    *string   `json:"current_month"`
	NextMonth       *string   `json:"next_month"`
	ElapsedSeconds  float64   `json:"elapsed_seconds"`
}

// newState derives the percentage and timestamp fields from the raw
// counters.
func newState(status Status, start, end Month, total, completed int, current, next *Month, elapsed time.Duration) State {
	percent := 100.0
	if total > 0 {
		percent = math.Round(float64(completed)/float64(total)*10000) / 100
	}
	return State{
		Status:          status,
		UpdatedAtUTC:    time.Now().UTC(),
		StartMonth:      start.String(),
		EndMonth:        end.String(),
		TotalMonths:     total,
		CompletedMonths: completed,
		PercentComplete: percent,
		CurrentMonth:    monthString(current),
		NextMonth:       monthString(next),
		ElapsedSeconds:  math.Round(elapsed.Seconds()*100) / 100,
	}
}

func monthString(m *Month) *string {
	if m == nil {
		return nil
	}
	s := m.String()
	return &s
}

// Write overwrites the state file at path. Writes are best-effort
// durable; the route cache is the expensive artifact and has its own
// atomic save.
func (s State) Write(path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return fmt.Errorf("create state directory: %w", err)
	}
	payload, err := json.MarshalIndent(s, "", "  ")
	if err != nil {
		return fmt.Errorf("encode state: %w", err)
	}
	payload = append(payload, '\n')
	if err := os.WriteFile(path, payload, 0o644); err != nil {
		return fmt.Errorf("write state: %w", err)
	}
	return nil
}

// ReadState loads a previously written state file.
func ReadState(path string) (State, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return State{}, fmt.Errorf("read state: %w", err)
	}
	var state State
	if err := json.Unmarshal(data, &state); err != nil {
		return State{}, fmt.Errorf("decode state: %w", err)
	}
	return state, nil
}
