package config_test

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/cuemby/warrenflow/pkg/config"
)

const sampleWorkflowJSON = `{
  "workflow_id": "ingest-pipeline",
  "name": "Ingest Pipeline",
  "nodes": [
    {"node_id": "parse", "node_type": "parser"},
    {"node_id": "index", "node_type": "indexer"}
  ],
  "edges": [
    {"from_node": "parse", "from_port": "out", "to_node": "index", "to_port": "in"}
  ],
  "triggers": [
    {"source": "watcher", "kind": "created", "entry_node": "parse"}
  ]
}`

const sampleWorkflowYAML = `
workflowId: notify-pipeline
name: Notify Pipeline
nodes:
  - nodeId: notify
    nodeType: notifier
edges: []
triggers:
  - source: watcher
    kind: modified
    entryNode: notify
`

func TestLoadWorkflows_MissingDirReturnsEmptySet(t *testing.T) {
	set, err := config.LoadWorkflows(filepath.Join(t.TempDir(), "does-not-exist"))
	if err != nil {
		t.Fatalf("LoadWorkflows() error = %v", err)
	}
	if len(set) != 0 {
		t.Errorf("len(set) = %d, want 0", len(set))
	}
}

func TestLoadWorkflows_LoadsJSONAndYAML(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "ingest.json"), sampleWorkflowJSON)
	writeFile(t, filepath.Join(dir, "notify.yaml"), sampleWorkflowYAML)

	set, err := config.LoadWorkflows(dir)
	if err != nil {
		t.Fatalf("LoadWorkflows() error = %v", err)
	}
	if len(set) != 2 {
		t.Fatalf("len(set) = %d, want 2", len(set))
	}

	wf, ok := set.Get("ingest-pipeline")
	if !ok {
		t.Fatal("ingest-pipeline not found")
	}
	if len(wf.Nodes) != 2 {
		t.Errorf("ingest-pipeline nodes = %d, want 2", len(wf.Nodes))
	}

	notify, ok := set.Get("notify-pipeline")
	if !ok {
		t.Fatal("notify-pipeline not found")
	}
	if notify.Triggers[0].EntryNode != "notify" {
		t.Errorf("notify-pipeline entry node = %q, want notify", notify.Triggers[0].EntryNode)
	}
}

func TestLoadWorkflows_RejectsCyclicWorkflow(t *testing.T) {
	dir := t.TempDir()
	cyclic := `{
  "workflow_id": "cyclic",
  "name": "Cyclic",
  "nodes": [
    {"node_id": "a", "node_type": "x"},
    {"node_id": "b", "node_type": "x"}
  ],
  "edges": [
    {"from_node": "a", "from_port": "out", "to_node": "b", "to_port": "in"},
    {"from_node": "b", "from_port": "out", "to_node": "a", "to_port": "in"}
  ]
}`
	writeFile(t, filepath.Join(dir, "cyclic.json"), cyclic)

	if _, err := config.LoadWorkflows(dir); err == nil {
		t.Error("LoadWorkflows() = nil, want error for cyclic workflow")
	}
}

func TestLoadWorkflows_RejectsDuplicateWorkflowID(t *testing.T) {
	dir := t.TempDir()
	writeFile(t, filepath.Join(dir, "a.json"), sampleWorkflowJSON)
	writeFile(t, filepath.Join(dir, "b.json"), sampleWorkflowJSON)

	if _, err := config.LoadWorkflows(dir); err == nil {
		t.Error("LoadWorkflows() = nil, want error for duplicate workflow_id")
	}
}

func writeFile(t *testing.T, path, content string) {
	t.Helper()
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatalf("WriteFile(%s) error = %v", path, err)
	}
}
