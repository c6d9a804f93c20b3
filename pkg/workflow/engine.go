package workflow

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/types"
)

// NodeExecutor is the Node Host's invocation surface: given a node's
// type, config, and resolved inputs, run it and return its outputs or
// a failure. Implementations signal retryability through NodeError;
// any other error is treated as non-retryable.
type NodeExecutor interface {
	Execute(ctx context.Context, nodeType string, config map[string]any, inputs map[string]any) (outputs map[string]any, err error)
}

// NodeError is the error shape a processor uses to signal whether its
// failure should be retried.
type NodeError struct {
	Message   string
	Retryable bool
}

func (e *NodeError) Error() string { return e.Message }

// Checkpointer persists and loads Run snapshots for crash recovery.
type Checkpointer interface {
	SaveRun(run *types.Run) error
	LoadRunningRuns() ([]*types.Run, error)
}

// Config controls the engine's concurrency defaults.
type Config struct {
	// MaxParallelNodesPerRun bounds how many nodes of one run the
	// engine dispatches concurrently.
	MaxParallelNodesPerRun int
	DefaultNodeTimeout      time.Duration
	RetryBaseDelay          time.Duration
}

type activeRun struct {
	cancelled  int32
	cancelFunc context.CancelFunc
}

// Engine loads workflow DAGs, instantiates runs, and drives each node
// to a terminal state respecting dependency order, timeouts, retries,
// and continue_on_error semantics. Adapted from teacher's
// pkg/scheduler/scheduler.go: the same Start/Stop-free, mutex-guarded
// single-cycle shape, generalized from "reconcile desired replica
// count against running containers" into "reconcile node readiness
// against NodeStates" with a worker-pool dispatch replacing the
// ticker-driven scheduleService loop, since a run must converge in one
// pass rather than poll indefinitely.
type Engine struct {
	executor NodeExecutor
	store    Checkpointer
	cfg      Config
	logger   zerolog.Logger

	mu     sync.Mutex
	active map[string]*activeRun
}

// New builds an Engine.
func New(executor NodeExecutor, store Checkpointer, cfg Config) *Engine {
	if cfg.MaxParallelNodesPerRun <= 0 {
		cfg.MaxParallelNodesPerRun = 4
	}
	if cfg.DefaultNodeTimeout <= 0 {
		cfg.DefaultNodeTimeout = 30 * time.Second
	}
	if cfg.RetryBaseDelay <= 0 {
		cfg.RetryBaseDelay = 500 * time.Millisecond
	}
	return &Engine{
		executor: executor,
		store:    store,
		cfg:      cfg,
		logger:   log.WithComponent("workflow"),
		active:   make(map[string]*activeRun),
	}
}

// Validate checks a workflow's DAG is acyclic. Called at workflow load
// time; a cycle is rejected before any trigger can route to it.
func Validate(wf *types.Workflow) error {
	_, err := topoSort(wf)
	return err
}

// topoSort runs Kahn's algorithm over the workflow's node/edge graph,
// returning a deterministic node order or an error if a cycle exists.
func topoSort(wf *types.Workflow) ([]string, error) {
	indegree := make(map[string]int, len(wf.Nodes))
	adj := make(map[string][]string)
	for _, n := range wf.Nodes {
		indegree[n.NodeID] = 0
	}
	for _, e := range wf.Edges {
		adj[e.FromNode] = append(adj[e.FromNode], e.ToNode)
		indegree[e.ToNode]++
	}

	var queue []string
	for id, deg := range indegree {
		if deg == 0 {
			queue = append(queue, id)
		}
	}
	sort.Strings(queue)

	order := make([]string, 0, len(wf.Nodes))
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		order = append(order, id)

		next := adj[id]
		sort.Strings(next)
		for _, n := range next {
			indegree[n]--
			if indegree[n] == 0 {
				queue = append(queue, n)
				sort.Strings(queue)
			}
		}
	}

	if len(order) != len(wf.Nodes) {
		return nil, fmt.Errorf("workflow %s: cycle detected in node graph", wf.WorkflowID)
	}
	return order, nil
}

// Start instantiates a new Run for wf, triggered by eventID carrying
// payload, and drives it to a terminal status.
func (e *Engine) Start(ctx context.Context, wf *types.Workflow, eventID string, payload map[string]any) (*types.Run, error) {
	if err := Validate(wf); err != nil {
		return nil, err
	}

	run := &types.Run{
		RunID:              uuid.New().String(),
		WorkflowID:         wf.WorkflowID,
		TriggeredByEventID: eventID,
		TriggerPayload:     payload,
		StartedAt:          time.Now(),
		Status:             types.RunRunning,
		NodeStates:         make(map[string]*types.NodeState, len(wf.Nodes)),
	}
	for _, n := range wf.Nodes {
		run.NodeStates[n.NodeID] = &types.NodeState{Status: types.NodePending}
	}

	return e.drive(ctx, wf, run)
}

// Resume continues a Run loaded from a checkpoint after a restart.
// Nodes caught running or ready are re-dispatched if their node is
// idempotent; otherwise they're marked failed:crashed, matching
// at-least-once rather than exactly-once semantics across a crash.
func (e *Engine) Resume(ctx context.Context, wf *types.Workflow, run *types.Run) (*types.Run, error) {
	nodeByID := indexNodes(wf.Nodes)
	for nodeID, state := range run.NodeStates {
		if state.Status != types.NodeRunning && state.Status != types.NodeReady {
			continue
		}
		if node, ok := nodeByID[nodeID]; ok && node.Idempotent {
			state.Status = types.NodePending
			state.Error = ""
			continue
		}
		state.Status = types.NodeFailed
		state.Error = "crashed"
	}
	run.Status = types.RunRunning
	return e.drive(ctx, wf, run)
}

// Cancel requests cancellation of runID. No new nodes are dispatched
// once requested; already-running nodes get grace before their
// context is force-cancelled.
func (e *Engine) Cancel(runID string, grace time.Duration) {
	e.mu.Lock()
	ar, ok := e.active[runID]
	e.mu.Unlock()
	if !ok {
		return
	}
	atomic.StoreInt32(&ar.cancelled, 1)
	if grace <= 0 {
		ar.cancelFunc()
		return
	}
	go func() {
		time.Sleep(grace)
		ar.cancelFunc()
	}()
}

func (e *Engine) drive(ctx context.Context, wf *types.Workflow, run *types.Run) (*types.Run, error) {
	runCtx, cancel := context.WithCancel(ctx)
	ar := &activeRun{cancelFunc: cancel}

	e.mu.Lock()
	e.active[run.RunID] = ar
	e.mu.Unlock()
	defer func() {
		e.mu.Lock()
		delete(e.active, run.RunID)
		e.mu.Unlock()
		cancel()
	}()

	e.checkpoint(run)

	runLogger := log.WithRunID(run.RunID)
	runLogger.Info().Str("workflow_id", wf.WorkflowID).Msg("run started")

	timer := metrics.NewTimer()
	e.dispatch(runCtx, wf, run, ar)
	timer.ObserveDurationVec(metrics.RunDuration, wf.WorkflowID)

	run.FinishedAt = time.Now()
	run.Status = e.computeRunStatus(wf, run, ar)
	metrics.RunsTotal.WithLabelValues(string(run.Status)).Inc()
	e.checkpoint(run)

	runLogger.Info().Str("status", string(run.Status)).Msg("run finished")
	return run, nil
}

// dispatch repeatedly brings every eligible node to a terminal state,
// bounding concurrent in-flight nodes at cfg.MaxParallelNodesPerRun.
func (e *Engine) dispatch(ctx context.Context, wf *types.Workflow, run *types.Run, ar *activeRun) {
	sem := make(chan struct{}, e.cfg.MaxParallelNodesPerRun)
	incoming := incomingEdges(wf.Edges)
	nodeByID := indexNodes(wf.Nodes)

	var wg sync.WaitGroup
	var mu sync.Mutex

	var schedule func()
	schedule = func() {
		mu.Lock()
		defer mu.Unlock()

		if atomic.LoadInt32(&ar.cancelled) == 1 {
			return
		}

		changed := true
		for changed {
			changed = false
			for _, node := range wf.Nodes {
				state := run.NodeStates[node.NodeID]
				if state.Status != types.NodePending {
					continue
				}

				ready, skip := evaluateReadiness(node, incoming[node.NodeID], run, nodeByID)
				if skip {
					state.Status = types.NodeSkipped
					metrics.NodesSkippedTotal.Inc()
					changed = true
					continue
				}
				if !ready {
					continue
				}

				state.Status = types.NodeReady
				changed = true
				wg.Add(1)
				go func(node types.Node) {
					defer wg.Done()
					sem <- struct{}{}
					defer func() { <-sem }()
					e.executeNode(ctx, run, node, wf.Edges, &mu)
					e.checkpoint(run)
					schedule()
				}(node)
			}
		}
	}

	schedule()
	wg.Wait()
}

func evaluateReadiness(node types.Node, edges []types.Edge, run *types.Run, nodeByID map[string]types.Node) (ready bool, skip bool) {
	if len(edges) == 0 {
		return true, false
	}

	allSatisfied := true
	for _, edge := range edges {
		upstream := run.NodeStates[edge.FromNode]
		switch upstream.Status {
		case types.NodeSucceeded:
			// satisfied
		case types.NodeFailed, types.NodeSkipped:
			if nodeByID[edge.FromNode].ContinueOnError {
				// treated as satisfied with a null output
				continue
			}
			return false, true
		default:
			allSatisfied = false
		}
	}
	return allSatisfied, false
}

func (e *Engine) executeNode(ctx context.Context, run *types.Run, node types.Node, edges []types.Edge, mu *sync.Mutex) {
	mu.Lock()
	state := run.NodeStates[node.NodeID]
	state.Status = types.NodeRunning
	inputs, missing := resolveInputs(node, edges, run)
	mu.Unlock()

	if missing != "" {
		mu.Lock()
		state.Status = types.NodeFailed
		state.Error = "missing_input: " + missing
		mu.Unlock()
		return
	}

	timeout := time.Duration(node.TimeoutMS) * time.Millisecond
	if timeout <= 0 {
		timeout = e.cfg.DefaultNodeTimeout
	}
	maxAttempts := node.MaxAttempts
	if maxAttempts <= 0 {
		maxAttempts = 1
	}

	var outputs map[string]any
	var lastErr error
	attempts := 0

	for attempts < maxAttempts {
		attempts++
		nodeCtx, cancel := context.WithTimeout(ctx, timeout)
		nodeCtx = WithIdentity(nodeCtx, run.RunID, node.NodeID)
		timer := metrics.NewTimer()
		out, err := e.executor.Execute(nodeCtx, node.NodeType, node.Config, inputs)
		timer.ObserveDurationVec(metrics.NodeExecutionDuration, node.NodeType)

		timedOut := nodeCtx.Err() == context.DeadlineExceeded
		cancelled := nodeCtx.Err() == context.Canceled
		cancel()

		switch {
		case cancelled:
			lastErr = fmt.Errorf("cancelled")
		case timedOut:
			lastErr = fmt.Errorf("timeout")
		case err != nil:
			lastErr = err
		default:
			outputs = out
			lastErr = nil
		}

		if lastErr == nil {
			break
		}
		if cancelled || attempts >= maxAttempts || !retryable(lastErr, timedOut) {
			break
		}
		metrics.NodeRetriesTotal.WithLabelValues(node.NodeType).Inc()
		time.Sleep(e.cfg.RetryBaseDelay * time.Duration(attempts))
	}

	mu.Lock()
	defer mu.Unlock()
	state.Attempts = attempts
	if lastErr != nil {
		state.Status = types.NodeFailed
		state.Error = lastErr.Error()
		return
	}
	state.Status = types.NodeSucceeded
	state.Outputs = outputs
	state.Inputs = inputs
}

func retryable(err error, timedOut bool) bool {
	if timedOut {
		return true
	}
	var nodeErr *NodeError
	if asNodeError(err, &nodeErr) {
		return nodeErr.Retryable
	}
	return false
}

func asNodeError(err error, target **NodeError) bool {
	ne, ok := err.(*NodeError)
	if ok {
		*target = ne
	}
	return ok
}

// resolveInputs assigns each declared input_port from its inbound
// edge's upstream output, falling back to the trigger payload, then to
// null for optional ports. Returns the name of the first unsatisfied
// required port, if any.
func resolveInputs(node types.Node, edges []types.Edge, run *types.Run) (map[string]any, string) {
	inputs := make(map[string]any)
	bound := make(map[string]bool)

	for _, edge := range edges {
		if edge.ToNode != node.NodeID {
			continue
		}
		var val any
		if upstream := run.NodeStates[edge.FromNode]; upstream != nil && upstream.Outputs != nil {
			val = upstream.Outputs[edge.FromPort]
		}
		inputs[edge.ToPort] = val
		bound[edge.ToPort] = true
	}

	for _, port := range node.InputPorts {
		if bound[port.Name] {
			continue
		}
		if val, ok := run.TriggerPayload[port.Name]; ok {
			inputs[port.Name] = val
			continue
		}
		if port.Optional {
			inputs[port.Name] = nil
			continue
		}
		return inputs, port.Name
	}

	return inputs, ""
}

// computeRunStatus resolves a drained run's terminal status: cancelled
// if a cancel signal fired, failed if any blocking (non-
// continue_on_error) node failed, succeeded otherwise.
func (e *Engine) computeRunStatus(wf *types.Workflow, run *types.Run, ar *activeRun) types.RunStatus {
	if atomic.LoadInt32(&ar.cancelled) == 1 {
		return types.RunCancelled
	}
	for _, node := range wf.Nodes {
		state := run.NodeStates[node.NodeID]
		if state.Status == types.NodeFailed && !node.ContinueOnError {
			return types.RunFailed
		}
	}
	return types.RunSucceeded
}

func (e *Engine) checkpoint(run *types.Run) {
	if e.store == nil {
		return
	}
	if err := e.store.SaveRun(run); err != nil {
		e.logger.Error().Err(err).Str("run_id", run.RunID).Msg("failed to checkpoint run")
	}
}

func indexNodes(nodes []types.Node) map[string]types.Node {
	m := make(map[string]types.Node, len(nodes))
	for _, n := range nodes {
		m[n.NodeID] = n
	}
	return m
}

func incomingEdges(edges []types.Edge) map[string][]types.Edge {
	m := make(map[string][]types.Edge)
	for _, e := range edges {
		m[e.ToNode] = append(m[e.ToNode], e)
	}
	return m
}
