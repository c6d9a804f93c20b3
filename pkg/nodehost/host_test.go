package nodehost

import (
	"context"
	"testing"

	"github.com/cuemby/warrenflow/pkg/workflow"
)

func TestExecute_DispatchesToRegisteredProcessor(t *testing.T) {
	h := NewHost()
	h.Register("echo", ProcessorFunc(func(ctx context.Context, req Request) (map[string]any, error) {
		return map[string]any{"echoed": req.Inputs["value"]}, nil
	}))

	out, err := h.Execute(context.Background(), "echo", nil, map[string]any{"value": "hi"})
	if err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if out["echoed"] != "hi" {
		t.Errorf("out = %+v, want echoed=hi", out)
	}
}

func TestExecute_UnknownNodeTypeErrors(t *testing.T) {
	h := NewHost()
	if _, err := h.Execute(context.Background(), "missing", nil, nil); err == nil {
		t.Fatal("Execute() expected an error for an unregistered node_type")
	}
}

func TestExecute_PanicIsolatedAsError(t *testing.T) {
	h := NewHost()
	h.Register("boom", ProcessorFunc(func(ctx context.Context, req Request) (map[string]any, error) {
		panic("processor exploded")
	}))

	out, err := h.Execute(context.Background(), "boom", nil, nil)
	if err == nil {
		t.Fatal("Execute() expected an error after a processor panic")
	}
	if out != nil {
		t.Errorf("out = %+v, want nil after panic", out)
	}
}

func TestExecute_PropagatesRunAndNodeIdentity(t *testing.T) {
	h := NewHost()
	var seen Request
	h.Register("capture", ProcessorFunc(func(ctx context.Context, req Request) (map[string]any, error) {
		seen = req
		return map[string]any{}, nil
	}))

	ctx := workflow.WithIdentity(context.Background(), "run-1", "node-1")
	if _, err := h.Execute(ctx, "capture", nil, nil); err != nil {
		t.Fatalf("Execute() error = %v", err)
	}
	if seen.RunID != "run-1" || seen.NodeID != "node-1" {
		t.Errorf("Request = %+v, want RunID=run-1 NodeID=node-1", seen)
	}
}

func TestRegistered(t *testing.T) {
	h := NewHost()
	if h.Registered("echo") {
		t.Fatal("Registered() = true before Register()")
	}
	h.Register("echo", ProcessorFunc(func(ctx context.Context, req Request) (map[string]any, error) { return nil, nil }))
	if !h.Registered("echo") {
		t.Fatal("Registered() = false after Register()")
	}
}
