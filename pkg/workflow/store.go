package workflow

import (
	"encoding/json"
	"os"
	"path/filepath"
	"sort"

	"github.com/cuemby/warrenflow/pkg/types"
)

// FileCheckpointer persists Run snapshots as one JSON file per run
// under runsDir, named {run_id}.json. Writes go through a temp file
// plus rename so a crash mid-write never leaves a truncated
// checkpoint behind.
type FileCheckpointer struct {
	runsDir string
}

// NewFileCheckpointer builds a FileCheckpointer rooted at runsDir,
// creating the directory if it doesn't exist.
func NewFileCheckpointer(runsDir string) (*FileCheckpointer, error) {
	if err := os.MkdirAll(runsDir, 0o755); err != nil {
		return nil, err
	}
	return &FileCheckpointer{runsDir: runsDir}, nil
}

func (c *FileCheckpointer) path(runID string) string {
	return filepath.Join(c.runsDir, runID+".json")
}

// SaveRun writes run's current snapshot to disk, overwriting any prior
// checkpoint for the same run_id.
func (c *FileCheckpointer) SaveRun(run *types.Run) error {
	data, err := json.MarshalIndent(run, "", "  ")
	if err != nil {
		return err
	}

	final := c.path(run.RunID)
	tmp := final + ".tmp"
	if err := os.WriteFile(tmp, data, 0o644); err != nil {
		return err
	}
	return os.Rename(tmp, final)
}

// GetRun reads the checkpoint for runID, regardless of status.
func (c *FileCheckpointer) GetRun(runID string) (*types.Run, error) {
	data, err := os.ReadFile(c.path(runID))
	if err != nil {
		return nil, err
	}
	var run types.Run
	if err := json.Unmarshal(data, &run); err != nil {
		return nil, err
	}
	return &run, nil
}

// ListRuns returns every checkpointed run for workflowID, most
// recently started first.
func (c *FileCheckpointer) ListRuns(workflowID string) ([]*types.Run, error) {
	entries, err := os.ReadDir(c.runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []*types.Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.runsDir, entry.Name()))
		if err != nil {
			continue
		}
		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		if run.WorkflowID == workflowID {
			runs = append(runs, &run)
		}
	}
	sort.Slice(runs, func(i, j int) bool { return runs[i].StartedAt.After(runs[j].StartedAt) })
	return runs, nil
}

// LoadRunningRuns scans runsDir for checkpoints whose last-saved
// status is still "running" — runs that were in flight when the
// process last stopped, candidates for Engine.Resume.
func (c *FileCheckpointer) LoadRunningRuns() ([]*types.Run, error) {
	entries, err := os.ReadDir(c.runsDir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}

	var runs []*types.Run
	for _, entry := range entries {
		if entry.IsDir() || filepath.Ext(entry.Name()) != ".json" {
			continue
		}
		data, err := os.ReadFile(filepath.Join(c.runsDir, entry.Name()))
		if err != nil {
			continue
		}
		var run types.Run
		if err := json.Unmarshal(data, &run); err != nil {
			continue
		}
		if run.Status == types.RunRunning {
			runs = append(runs, &run)
		}
	}
	return runs, nil
}
