package nodehost

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/workflow"
)

// Request is everything a Processor receives for one invocation.
type Request struct {
	RunID  string
	NodeID string
	Config map[string]any
	Inputs map[string]any
	Logger zerolog.Logger
}

// Processor is one registered node_type's implementation. Processors
// are opaque beyond this contract: input/output maps and an error.
// Returning an error with Retryable set lets the engine retry it.
type Processor interface {
	Process(ctx context.Context, req Request) (map[string]any, error)
}

// ProcessorFunc adapts a plain function to the Processor interface.
type ProcessorFunc func(ctx context.Context, req Request) (map[string]any, error)

func (f ProcessorFunc) Process(ctx context.Context, req Request) (map[string]any, error) {
	return f(ctx, req)
}

// Host is the node_type -> Processor registry the workflow engine
// invokes through. Adapted from teacher's pkg/runtime (process
// isolation, typed result envelope): generalized from out-of-process
// containerd containers to in-process Go function dispatch, since
// processors here "are opaque... binaries ship with their linked
// processors" rather than pulled OCI images. Panic isolation plays the
// role containerd's process boundary plays for the teacher — an
// uncaught processor panic becomes an error result, never a crash of
// the host process.
type Host struct {
	mu         sync.RWMutex
	processors map[string]Processor
	logger     zerolog.Logger
}

// NewHost builds an empty Host.
func NewHost() *Host {
	return &Host{
		processors: make(map[string]Processor),
		logger:     log.WithComponent("nodehost"),
	}
}

// Register binds nodeType to proc. A later Register for the same
// nodeType replaces the prior binding.
func (h *Host) Register(nodeType string, proc Processor) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.processors[nodeType] = proc
}

// Execute implements workflow.NodeExecutor: look up nodeType's
// processor, build its auto-tagged logger, and invoke it under panic
// isolation.
func (h *Host) Execute(ctx context.Context, nodeType string, config map[string]any, inputs map[string]any) (outputs map[string]any, err error) {
	h.mu.RLock()
	proc, ok := h.processors[nodeType]
	h.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("no processor registered for node_type %q", nodeType)
	}

	handlerID := uuid.New().String()
	logger := h.logger.With().Str("handler_id", handlerID).Str("node_type", nodeType).Logger()
	if runID, ok := workflow.RunID(ctx); ok {
		logger = logger.With().Str("run_id", runID).Logger()
	}
	if nodeID, ok := workflow.NodeID(ctx); ok {
		logger = logger.With().Str("node_id", nodeID).Logger()
	}
	if docID, ok := inputs["document_id"].(string); ok {
		logger = logger.With().Str("document_id", docID).Logger()
	}

	req := Request{Config: config, Inputs: inputs, Logger: logger}
	if runID, ok := workflow.RunID(ctx); ok {
		req.RunID = runID
	}
	if nodeID, ok := workflow.NodeID(ctx); ok {
		req.NodeID = nodeID
	}

	return h.invoke(ctx, proc, req)
}

func (h *Host) invoke(ctx context.Context, proc Processor, req Request) (outputs map[string]any, err error) {
	defer func() {
		if r := recover(); r != nil {
			req.Logger.Error().Interface("panic", r).Msg("processor panicked, isolated as an error result")
			err = fmt.Errorf("processor panic: %v", r)
			outputs = nil
		}
	}()
	return proc.Process(ctx, req)
}

// Registered reports whether a processor is bound for nodeType.
func (h *Host) Registered(nodeType string) bool {
	h.mu.RLock()
	defer h.mu.RUnlock()
	_, ok := h.processors[nodeType]
	return ok
}
