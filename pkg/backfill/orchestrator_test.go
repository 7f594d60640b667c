package backfill

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeRunner records processed months and simulates existing output,
// failures, and mid-month pause signals.
type fakeRunner struct {
	hasOutput map[string]bool
	failOn    map[string]error
	onProcess func(m Month)

	processed []string
}

func (r *fakeRunner) HasOutput(m Month) bool {
	return r.hasOutput[m.String()]
}

func (r *fakeRunner) Process(ctx context.Context, m Month) error {
	r.processed = append(r.processed, m.String())
	if r.onProcess != nil {
		r.onProcess(m)
	}
	if err := r.failOn[m.String()]; err != nil {
		return err
	}
	return nil
}

func testOrchestratorConfig(t *testing.T, start, end string) Config {
	t.Helper()
	startMonth, err := ParseMonth(start)
	if err != nil {
		t.Fatalf("ParseMonth(%q) error = %v", start, err)
	}
	endMonth, err := ParseMonth(end)
	if err != nil {
		t.Fatalf("ParseMonth(%q) error = %v", end, err)
	}
	dir := t.TempDir()
	return Config{
		StartMonth: startMonth,
		EndMonth:   endMonth,
		Resume:     true,
		PauseFile:  filepath.Join(dir, ".backfill_pause"),
		StateFile:  filepath.Join(dir, "backfill_state.json"),
	}
}

func TestOrchestrator_ProcessesAllMonths(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-03")
	runner := &fakeRunner{}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	state, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", state.Status, StatusCompleted)
	}
	if state.CompletedMonths != 3 || state.TotalMonths != 3 {
		t.Errorf("state = %+v, want 3/3 months", state)
	}
	if state.PercentComplete != 100 {
		t.Errorf("PercentComplete = %v, want 100", state.PercentComplete)
	}
	if state.NextMonth != nil {
		t.Errorf("NextMonth = %v, want nil", *state.NextMonth)
	}
	want := []string{"2024-01", "2024-02", "2024-03"}
	if len(runner.processed) != len(want) {
		t.Fatalf("processed %v, want %v", runner.processed, want)
	}
	for i := range want {
		if runner.processed[i] != want[i] {
			t.Errorf("processed %v, want %v (strictly sequential)", runner.processed, want)
			break
		}
	}
}

func TestOrchestrator_ResumeSkipsExistingOutput(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-03")
	runner := &fakeRunner{hasOutput: map[string]bool{"2024-01": true}}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	state, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	// The skipped month counts as completed without any pipeline work.
	if state.CompletedMonths != 3 {
		t.Errorf("CompletedMonths = %d, want 3", state.CompletedMonths)
	}
	for _, m := range runner.processed {
		if m == "2024-01" {
			t.Error("Process() was called for a month with existing output")
		}
	}
	if len(runner.processed) != 2 {
		t.Errorf("processed %v, want exactly the two remaining months", runner.processed)
	}
}

func TestOrchestrator_ResumeDisabledReprocesses(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-02")
	cfg.Resume = false
	runner := &fakeRunner{hasOutput: map[string]bool{"2024-01": true}}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}
	if len(runner.processed) != 2 {
		t.Errorf("processed %v, want both months with resume disabled", runner.processed)
	}
}

func TestOrchestrator_PauseAtMonthBoundary(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-03")
	runner := &fakeRunner{}
	// The sentinel appears while 2024-02 is mid-processing: the month
	// still completes, and 2024-03 must not start.
	runner.onProcess = func(m Month) {
		if m.String() == "2024-02" {
			if err := os.WriteFile(cfg.PauseFile, nil, 0o644); err != nil {
				t.Errorf("write pause file: %v", err)
			}
		}
	}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	state, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusPaused {
		t.Errorf("Status = %q, want %q", state.Status, StatusPaused)
	}
	if state.CompletedMonths != 2 {
		t.Errorf("CompletedMonths = %d, want 2", state.CompletedMonths)
	}
	if state.NextMonth == nil || *state.NextMonth != "2024-03" {
		t.Errorf("NextMonth = %v, want 2024-03", state.NextMonth)
	}
	for _, m := range runner.processed {
		if m == "2024-03" {
			t.Error("orchestrator started a month after the pause sentinel appeared")
		}
	}

	// The persisted file matches the returned state.
	persisted, err := ReadState(cfg.StateFile)
	if err != nil {
		t.Fatalf("ReadState() error = %v", err)
	}
	if persisted.Status != StatusPaused || persisted.CompletedMonths != 2 {
		t.Errorf("persisted state = %+v, want paused with 2 completed", persisted)
	}
}

func TestOrchestrator_MonthFailureIsFatalByDefault(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-03")
	boom := errors.New("no source data")
	runner := &fakeRunner{failOn: map[string]error{"2024-02": boom}}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	_, err = orch.Run(context.Background())
	if err == nil {
		t.Fatal("Run() error = nil, want fatal month failure")
	}
	if !errors.Is(err, boom) {
		t.Errorf("error %v does not wrap the month failure", err)
	}
	for _, m := range runner.processed {
		if m == "2024-03" {
			t.Error("months after the failure were processed without continue-on-error")
		}
	}
}

func TestOrchestrator_ContinueOnError(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-03")
	cfg.ContinueOnError = true
	runner := &fakeRunner{failOn: map[string]error{"2024-02": errors.New("no source data")}}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}

	state, err := orch.Run(context.Background())
	if err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if state.Status != StatusCompleted {
		t.Errorf("Status = %q, want %q", state.Status, StatusCompleted)
	}
	// The failed month does not count as completed.
	if state.CompletedMonths != 2 {
		t.Errorf("CompletedMonths = %d, want 2", state.CompletedMonths)
	}
	if len(runner.processed) != 3 {
		t.Errorf("processed %v, want all three months attempted", runner.processed)
	}
}

func TestOrchestrator_StateWrittenAfterEveryMonth(t *testing.T) {
	cfg := testOrchestratorConfig(t, "2024-01", "2024-02")
	var snapshots []State
	runner := &fakeRunner{}
	runner.onProcess = func(m Month) {
		if m.String() == "2024-02" {
			// The snapshot for 2024-01 must already be on disk while the
			// next month is in flight.
			state, err := ReadState(cfg.StateFile)
			if err != nil {
				t.Errorf("ReadState() mid-run error = %v", err)
				return
			}
			snapshots = append(snapshots, state)
		}
	}

	orch, err := NewOrchestrator(cfg, runner)
	if err != nil {
		t.Fatalf("NewOrchestrator() error = %v", err)
	}
	if _, err := orch.Run(context.Background()); err != nil {
		t.Fatalf("Run() error = %v", err)
	}

	if len(snapshots) != 1 {
		t.Fatalf("captured %d mid-run snapshots, want 1", len(snapshots))
	}
	mid := snapshots[0]
	if mid.Status != StatusRunning || mid.CompletedMonths != 1 {
		t.Errorf("mid-run state = %+v, want running with 1 completed", mid)
	}
	if mid.NextMonth == nil || *mid.NextMonth != "2024-02" {
		t.Errorf("mid-run NextMonth = %v, want 2024-02", mid.NextMonth)
	}
}

func TestNewOrchestrator_InvertedRange(t *testing.T) {
	start, _ := ParseMonth("2024-05")
	end, _ := ParseMonth("2024-01")
	_, err := NewOrchestrator(Config{StartMonth: start, EndMonth: end}, &fakeRunner{})
	if err == nil {
		t.Error("NewOrchestrator() error = nil, want inverted range error")
	}
}

// fakeProber reports source data for a fixed set of months.
type fakeProber map[string]bool

func (p fakeProber) HasSource(m Month) bool {
	return p[m.String()]
}

func TestResolveEndMonth(t *testing.T) {
	now := time.Date(2024, time.June, 15, 12, 0, 0, 0, time.UTC)
	start := Month{Year: 2024, Month: time.January}

	t.Run("probes backward to the latest month with data", func(t *testing.T) {
		prober := fakeProber{"2024-03": true, "2024-04": true}
		got, err := ResolveEndMonth(prober, start, now)
		if err != nil {
			t.Fatalf("ResolveEndMonth() error = %v", err)
		}
		if got.String() != "2024-04" {
			t.Errorf("ResolveEndMonth() = %s, want 2024-04", got)
		}
	})

	t.Run("current month counts when it has data", func(t *testing.T) {
		prober := fakeProber{"2024-06": true}
		got, err := ResolveEndMonth(prober, start, now)
		if err != nil {
			t.Fatalf("ResolveEndMonth() error = %v", err)
		}
		if got.String() != "2024-06" {
			t.Errorf("ResolveEndMonth() = %s, want 2024-06", got)
		}
	})

	t.Run("fatal when nothing is discoverable above the start", func(t *testing.T) {
		_, err := ResolveEndMonth(fakeProber{}, start, now)
		if !errors.Is(err, ErrNoSourceData) {
			t.Errorf("error = %v, want ErrNoSourceData", err)
		}
	})
}
