package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/cuemby/warrenflow/pkg/types"
	"github.com/cuemby/warrenflow/pkg/workflow"
)

// WorkflowSet is a static, in-memory registry of workflow definitions
// loaded at startup. It satisfies pkg/httpapi.WorkflowLookup.
type WorkflowSet map[string]*types.Workflow

// Get implements httpapi.WorkflowLookup.
func (s WorkflowSet) Get(workflowID string) (*types.Workflow, bool) {
	wf, ok := s[workflowID]
	return wf, ok
}

// LoadWorkflows reads every .json/.yaml/.yml file in dir as a
// types.Workflow, validating each with workflow.Validate so a
// malformed or cyclic definition fails fast at startup rather than on
// first trigger. The on-disk layout names config/workflows/*.json;
// .yaml/.yml is accepted too since teacher's resource-apply tooling
// (cmd/warren/apply.go) already depends on gopkg.in/yaml.v3 for this
// kind of file.
func LoadWorkflows(dir string) (WorkflowSet, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return WorkflowSet{}, nil
		}
		return nil, fmt.Errorf("config: read workflows dir: %w", err)
	}

	set := make(WorkflowSet, len(entries))
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		ext := strings.ToLower(filepath.Ext(entry.Name()))
		if ext != ".json" && ext != ".yaml" && ext != ".yml" {
			continue
		}

		path := filepath.Join(dir, entry.Name())
		data, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config: read %s: %w", path, err)
		}

		var wf types.Workflow
		if ext == ".json" {
			err = json.Unmarshal(data, &wf)
		} else {
			err = yaml.Unmarshal(data, &wf)
		}
		if err != nil {
			return nil, fmt.Errorf("config: parse %s: %w", path, err)
		}
		if wf.WorkflowID == "" {
			return nil, fmt.Errorf("config: %s: workflow_id is required", path)
		}
		if err := workflow.Validate(&wf); err != nil {
			return nil, fmt.Errorf("config: %s: %w", path, err)
		}
		if _, dup := set[wf.WorkflowID]; dup {
			return nil, fmt.Errorf("config: %s: duplicate workflow_id %q", path, wf.WorkflowID)
		}
		set[wf.WorkflowID] = &wf
	}
	return set, nil
}
