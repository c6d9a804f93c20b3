package trigger

import (
	"fmt"
	"regexp"
	"strconv"
	"sync"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/types"
)

// Match is one routed destination for an Event: a workflow to
// instantiate, its entry node, and the payload to bind into that run.
type Match struct {
	WorkflowID string
	EntryNode  string
	Payload    map[string]any
}

// compiledTrigger is a WorkflowTrigger with its conditions pre-compiled
// into evaluators, keyed for (source, kind) lookup.
type compiledTrigger struct {
	workflowID string
	entryNode  string
	conditions []evaluator
}

type evaluator func(event *types.Event) bool

// Router maps (event.source, event.kind) to zero or more workflow
// entry points, evaluating each matched trigger's conditions before
// including it in the result. Adapted from teacher's pkg/events.Broker
// subscribe/publish bookkeeping shape: Register plays the role of
// Subscribe, Route plays the role of broadcast, but matching is keyed
// and predicate-gated rather than fanned out to every subscriber.
type Router struct {
	mu      sync.RWMutex
	byKey   map[routeKey][]*compiledTrigger
	logger  zerolog.Logger
}

type routeKey struct {
	source string
	kind   types.EventKind
}

// NewRouter builds an empty Router.
func NewRouter() *Router {
	return &Router{
		byKey:  make(map[routeKey][]*compiledTrigger),
		logger: log.WithComponent("trigger"),
	}
}

// Register compiles and indexes one workflow's triggers. A trigger
// whose condition fails to compile is skipped and logged rather than
// rejecting the whole workflow.
func (r *Router) Register(workflowID string, triggers []types.WorkflowTrigger) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for _, t := range triggers {
		conds, err := compileConditions(t.Conditions)
		if err != nil {
			r.logger.Warn().Err(err).Str("workflow_id", workflowID).Str("entry_node", t.EntryNode).Msg("trigger disabled, condition failed to compile")
			continue
		}
		key := routeKey{source: t.Source, kind: t.Kind}
		r.byKey[key] = append(r.byKey[key], &compiledTrigger{
			workflowID: workflowID,
			entryNode:  t.EntryNode,
			conditions: conds,
		})
	}
}

// Unregister removes every trigger previously registered for workflowID.
func (r *Router) Unregister(workflowID string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for key, triggers := range r.byKey {
		kept := triggers[:0]
		for _, t := range triggers {
			if t.workflowID != workflowID {
				kept = append(kept, t)
			}
		}
		if len(kept) == 0 {
			delete(r.byKey, key)
		} else {
			r.byKey[key] = kept
		}
	}
}

// Route returns every (workflow, entry_node, payload) triple whose
// trigger matches the event's (source, kind) and whose conditions all
// evaluate true against it.
func (r *Router) Route(event *types.Event) []Match {
	r.mu.RLock()
	defer r.mu.RUnlock()

	candidates := r.byKey[routeKey{source: event.Source, kind: event.Kind}]
	// A trigger registered with a blank Source matches any source.
	candidates = append(candidates, r.byKey[routeKey{source: "", kind: event.Kind}]...)

	var matches []Match
	for _, t := range candidates {
		if !allSatisfied(t.conditions, event) {
			continue
		}
		matches = append(matches, Match{
			WorkflowID: t.workflowID,
			EntryNode:  t.entryNode,
			Payload:    eventPayload(event),
		})
	}
	return matches
}

func allSatisfied(conds []evaluator, event *types.Event) bool {
	for _, c := range conds {
		if !c(event) {
			return false
		}
	}
	return true
}

// eventPayload flattens the fields of an Event that downstream nodes
// may bind to as trigger_payload.
func eventPayload(event *types.Event) map[string]any {
	return map[string]any{
		"event_id":     event.ID,
		"kind":         string(event.Kind),
		"source":       event.Source,
		"path":         event.Path,
		"prev_path":    event.PrevPath,
		"size_bytes":   event.SizeBytes,
		"content_hash": event.ContentHash,
		"detected_at":  event.DetectedAt,
	}
}

func compileConditions(conds []types.Condition) ([]evaluator, error) {
	out := make([]evaluator, 0, len(conds))
	for _, c := range conds {
		eval, err := compileCondition(c)
		if err != nil {
			return nil, fmt.Errorf("condition on field %q: %w", c.Field, err)
		}
		out = append(out, eval)
	}
	return out, nil
}

func compileCondition(c types.Condition) (evaluator, error) {
	switch c.Op {
	case types.OpEquals:
		want := c.Value
		return func(e *types.Event) bool { return fieldString(e, c.Field) == want }, nil

	case types.OpPrefix:
		prefix := c.Value
		return func(e *types.Event) bool { return hasPrefix(fieldString(e, c.Field), prefix) }, nil

	case types.OpRegex:
		re, err := regexp.Compile(c.Value)
		if err != nil {
			return nil, err
		}
		return func(e *types.Event) bool { return re.MatchString(fieldString(e, c.Field)) }, nil

	case types.OpNumGT:
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return nil, err
		}
		return func(e *types.Event) bool {
			got, ok := fieldFloat(e, c.Field)
			return ok && got > want
		}, nil

	case types.OpNumLT:
		want, err := strconv.ParseFloat(c.Value, 64)
		if err != nil {
			return nil, err
		}
		return func(e *types.Event) bool {
			got, ok := fieldFloat(e, c.Field)
			return ok && got < want
		}, nil

	default:
		return nil, fmt.Errorf("unknown condition op %q", c.Op)
	}
}

func hasPrefix(s, prefix string) bool {
	return len(s) >= len(prefix) && s[:len(prefix)] == prefix
}

// fieldString resolves a predicate field name against an Event's
// string-valued attributes. Unknown fields resolve to "".
func fieldString(e *types.Event, field string) string {
	switch field {
	case "path":
		return e.Path
	case "prev_path":
		return e.PrevPath
	case "content_hash":
		return e.ContentHash
	case "source":
		return e.Source
	case "kind":
		return string(e.Kind)
	case "owner":
		return e.Owner
	default:
		return ""
	}
}

// fieldFloat resolves a predicate field name against an Event's
// numeric attributes. ok is false for unknown or non-numeric fields.
func fieldFloat(e *types.Event, field string) (float64, bool) {
	switch field {
	case "size_bytes":
		return float64(e.SizeBytes), true
	case "attempts":
		return float64(e.Attempts), true
	default:
		return 0, false
	}
}
