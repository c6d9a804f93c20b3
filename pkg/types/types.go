package types

import (
	"crypto/sha256"
	"encoding/hex"
	"path/filepath"
	"time"
)

// EventKind is the type of filesystem transition an Event records.
type EventKind string

const (
	EventCreated  EventKind = "created"
	EventModified EventKind = "modified"
	EventDeleted  EventKind = "deleted"
	EventMoved    EventKind = "moved"
	EventExisting EventKind = "existing"
)

// priority returns the claim-order priority for a kind; lower sorts first.
func (k EventKind) priority() int {
	switch k {
	case EventDeleted:
		return 0
	case EventMoved:
		return 1
	case EventModified:
		return 2
	case EventCreated:
		return 3
	case EventExisting:
		return 4
	default:
		return 5
	}
}

// KindPriority exposes EventKind.priority for the claim FIFO comparator.
func KindPriority(k EventKind) int { return k.priority() }

// EventStatus is the lifecycle state of an Event.
type EventStatus string

const (
	EventPending   EventStatus = "pending"
	EventInFlight  EventStatus = "in_flight"
	EventDone      EventStatus = "done"
	EventFailed    EventStatus = "failed"
	EventAbandoned EventStatus = "abandoned"
)

// Event represents one observed or synthesized filesystem transition.
type Event struct {
	ID          string      `json:"id"`
	Kind        EventKind   `json:"kind"`
	// Source identifies the origin subsystem or watched root that
	// produced the event (e.g. "filesystem", "reconciliation"), the
	// half of the trigger-router lookup key spec.md calls
	// event_source; a blank Source matches any trigger registered
	// without a Source filter.
	Source      string      `json:"source,omitempty"`
	Path        string      `json:"path"`
	PrevPath    string      `json:"prev_path,omitempty"`
	SizeBytes   int64       `json:"size_bytes"`
	MTime       time.Time   `json:"mtime"`
	ContentHash string      `json:"content_hash,omitempty"`
	DetectedAt  time.Time   `json:"detected_at"`
	Status      EventStatus `json:"status"`
	Owner       string      `json:"owner,omitempty"`
	ClaimedAt   time.Time   `json:"claimed_at,omitempty"`
	Attempts    int         `json:"attempts"`
	LastError   string      `json:"last_error,omitempty"`
}

// Terminal reports whether the event has reached an immutable state.
func (e *Event) Terminal() bool {
	return e.Status == EventDone || e.Status == EventAbandoned
}

// DocumentRecord tracks one logical document across disk, events, and index.
type DocumentRecord struct {
	DocumentID      string    `json:"document_id"`
	CurrentPath     string    `json:"current_path"`
	ContentHash     string    `json:"content_hash"`
	IndexedAt       time.Time `json:"indexed_at"`
	VectorCollection string   `json:"vector_collection,omitempty"`
	ChunkCount      int       `json:"chunk_count"`
}

// DeriveDocumentID computes the deterministic document_id for a
// canonical path: a sha256 hex digest of the cleaned path joined with
// its base filename, so the same file maps to the same id across
// process restarts and regardless of how the path was normalized on
// the way in.
func DeriveDocumentID(canonicalPath string) string {
	clean := filepath.Clean(canonicalPath)
	h := sha256.Sum256([]byte(clean + "|" + filepath.Base(clean)))
	return hex.EncodeToString(h[:])
}

// Workflow is the static DAG definition loaded from config. Carries
// yaml tags alongside json so pkg/config can load it directly from a
// workflow definition file.
type Workflow struct {
	WorkflowID string            `json:"workflow_id" yaml:"workflowId"`
	Name       string            `json:"name" yaml:"name"`
	Nodes      []Node            `json:"nodes" yaml:"nodes"`
	Edges      []Edge            `json:"edges" yaml:"edges"`
	Triggers   []WorkflowTrigger `json:"triggers" yaml:"triggers"`
}

// Node is one unit of work in a Workflow.
type Node struct {
	NodeID          string         `json:"node_id" yaml:"nodeId"`
	NodeType        string         `json:"node_type" yaml:"nodeType"`
	Config          map[string]any `json:"config,omitempty" yaml:"config,omitempty"`
	InputPorts      []Port         `json:"input_ports,omitempty" yaml:"inputPorts,omitempty"`
	OutputPorts     []string       `json:"output_ports,omitempty" yaml:"outputPorts,omitempty"`
	TimeoutMS       int            `json:"timeout_ms,omitempty" yaml:"timeoutMs,omitempty"`
	MaxAttempts     int            `json:"max_attempts,omitempty" yaml:"maxAttempts,omitempty"`
	ContinueOnError bool           `json:"continue_on_error,omitempty" yaml:"continueOnError,omitempty"`
	Idempotent      bool           `json:"idempotent,omitempty" yaml:"idempotent,omitempty"`
}

// Port declares one input port of a Node.
type Port struct {
	Name     string `json:"name" yaml:"name"`
	Optional bool   `json:"optional,omitempty" yaml:"optional,omitempty"`
}

// Edge connects an upstream node's output port to a downstream node's input port.
type Edge struct {
	FromNode string `json:"from_node" yaml:"fromNode"`
	FromPort string `json:"from_port" yaml:"fromPort"`
	ToNode   string `json:"to_node" yaml:"toNode"`
	ToPort   string `json:"to_port" yaml:"toPort"`
}

// WorkflowTrigger binds an event source/kind/condition set to an entry node.
type WorkflowTrigger struct {
	Source     string      `json:"source" yaml:"source"`
	Kind       EventKind   `json:"kind" yaml:"kind"`
	Conditions []Condition `json:"conditions,omitempty" yaml:"conditions,omitempty"`
	EntryNode  string      `json:"entry_node" yaml:"entryNode"`
}

// ConditionOp is the predicate operator for a trigger Condition.
type ConditionOp string

const (
	OpEquals ConditionOp = "eq"
	OpNumGT  ConditionOp = "gt"
	OpNumLT  ConditionOp = "lt"
	OpPrefix ConditionOp = "prefix"
	OpRegex  ConditionOp = "regex"
)

// Condition is one predicate clause over an event field.
type Condition struct {
	Field string      `json:"field" yaml:"field"`
	Op    ConditionOp `json:"op" yaml:"op"`
	Value string      `json:"value" yaml:"value"`
}

// RunStatus is the overall status of a workflow Run.
type RunStatus string

const (
	RunRunning   RunStatus = "running"
	RunSucceeded RunStatus = "succeeded"
	RunFailed    RunStatus = "failed"
	RunCancelled RunStatus = "cancelled"
)

// NodeRunStatus is the per-node execution status within a Run.
type NodeRunStatus string

const (
	NodePending   NodeRunStatus = "pending"
	NodeReady     NodeRunStatus = "ready"
	NodeRunning   NodeRunStatus = "running"
	NodeSucceeded NodeRunStatus = "succeeded"
	NodeFailed    NodeRunStatus = "failed"
	NodeSkipped   NodeRunStatus = "skipped"
)

// NodeState is one node's execution state within a Run.
type NodeState struct {
	Status   NodeRunStatus          `json:"status"`
	Attempts int                    `json:"attempts"`
	Inputs   map[string]any         `json:"inputs,omitempty"`
	Outputs  map[string]any         `json:"outputs,omitempty"`
	Error    string                 `json:"error,omitempty"`
}

// Run is one execution instance of a Workflow for one trigger event.
type Run struct {
	RunID           string                  `json:"run_id"`
	WorkflowID      string                  `json:"workflow_id"`
	TriggeredByEventID string              `json:"triggered_by_event_id,omitempty"`
	TriggerPayload  map[string]any          `json:"trigger_payload,omitempty"`
	StartedAt       time.Time               `json:"started_at"`
	FinishedAt      time.Time               `json:"finished_at,omitempty"`
	Status          RunStatus               `json:"status"`
	NodeStates      map[string]*NodeState   `json:"node_states"`
}

// LogLevel is the severity of a LogEntry.
type LogLevel string

const (
	LevelDebug     LogLevel = "debug"
	LevelInfo      LogLevel = "info"
	LevelWarning   LogLevel = "warning"
	LevelError     LogLevel = "error"
	LevelCritical  LogLevel = "critical"
	LevelLifecycle LogLevel = "lifecycle"
)

// ValidLogLevel reports whether lvl is one of the recognized levels.
func ValidLogLevel(lvl string) bool {
	switch LogLevel(lvl) {
	case LevelDebug, LevelInfo, LevelWarning, LevelError, LevelCritical, LevelLifecycle:
		return true
	default:
		return false
	}
}

const (
	MaxMessageBytes = 8 * 1024
	MaxDetailsBytes = 64 * 1024
)

// LogEntry is one structured log record accepted by the Log Sink.
type LogEntry struct {
	ID         string         `json:"id"`
	Timestamp  time.Time      `json:"timestamp"`
	ReceivedAt time.Time      `json:"received_at"`
	Project    string         `json:"project"`
	Level      LogLevel       `json:"level"`
	Module     string         `json:"module"`
	Message    string         `json:"message"`
	Details    map[string]any `json:"details,omitempty"`
	Context    map[string]any `json:"context,omitempty"`
}

// DocumentID extracts context.document_id from the entry, if present.
func (l *LogEntry) DocumentID() string {
	return stringField(l.Context, "document_id")
}

// FileName extracts context.file_name from the entry, if present.
func (l *LogEntry) FileName() string {
	return stringField(l.Context, "file_name")
}

// FileHash extracts context.file_hash from the entry, if present.
func (l *LogEntry) FileHash() string {
	return stringField(l.Context, "file_hash")
}

func stringField(m map[string]any, key string) string {
	if m == nil {
		return ""
	}
	if v, ok := m[key]; ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// ApiKey authorizes a caller of the HTTP surface for a set of projects.
type ApiKey struct {
	KeyID           string     `json:"key_id"`
	Secret          string     `json:"secret"`
	Name            string     `json:"name"`
	AllowedProjects []string   `json:"allowed_projects"`
	Expiry          *time.Time `json:"expiry,omitempty"`
	CreatedAt       time.Time  `json:"created_at"`
}

// Expired reports whether the key is past its expiry, if any was set.
func (k *ApiKey) Expired(now time.Time) bool {
	return k.Expiry != nil && now.After(*k.Expiry)
}

// AllowsProject reports whether the key is scoped to the given project.
func (k *ApiKey) AllowsProject(project string) bool {
	for _, p := range k.AllowedProjects {
		if p == project {
			return true
		}
	}
	return false
}
