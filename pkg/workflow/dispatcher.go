package workflow

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/cuemby/warrenflow/pkg/eventstore"
	"github.com/cuemby/warrenflow/pkg/log"
	"github.com/cuemby/warrenflow/pkg/metrics"
	"github.com/cuemby/warrenflow/pkg/trigger"
	"github.com/cuemby/warrenflow/pkg/types"
)

// WorkflowLookup resolves a workflow_id to its static definition. A
// narrower mirror of pkg/httpapi.WorkflowLookup so the dispatcher
// doesn't need the HTTP layer's Server type.
type WorkflowLookup interface {
	Get(workflowID string) (*types.Workflow, bool)
}

// TriggerRouter matches an Event to zero or more workflow entry
// points. Satisfied by *trigger.Router; kept as an interface so tests
// can fake routing without building a real Router.
type TriggerRouter interface {
	Route(event *types.Event) []trigger.Match
}

// DispatcherConfig controls the claim loop's pace and concurrency.
type DispatcherConfig struct {
	PollInterval time.Duration
	BatchSize    int
	MaxInFlight  int
}

func (c *DispatcherConfig) applyDefaults() {
	if c.PollInterval <= 0 {
		c.PollInterval = time.Second
	}
	if c.BatchSize <= 0 {
		c.BatchSize = 20
	}
	if c.MaxInFlight <= 0 {
		c.MaxInFlight = 4
	}
}

// Dispatcher claims pending events from the event store, routes each
// to its matching workflow entry points via a TriggerRouter, and
// drives a Run to completion through Engine for every match. Adapted
// from teacher's pkg/scheduler.Scheduler: the same ticker-driven
// Start/Stop/stopCh cycle and "log error, keep ticking" posture,
// generalized from "assign containers to nodes" to "claim events and
// assign them to the engine."
type Dispatcher struct {
	engine  *Engine
	events  *eventstore.EventStore
	router  TriggerRouter
	lookup  WorkflowLookup
	cfg     DispatcherConfig
	logger  zerolog.Logger
	handler string

	sem    chan struct{}
	stopCh chan struct{}
	doneCh chan struct{}
}

// NewDispatcher builds a Dispatcher. handlerID identifies this process
// instance as the claimant of record for crash-recovery bookkeeping.
func NewDispatcher(engine *Engine, events *eventstore.EventStore, router TriggerRouter, lookup WorkflowLookup, handlerID string, cfg DispatcherConfig) *Dispatcher {
	cfg.applyDefaults()
	return &Dispatcher{
		engine:  engine,
		events:  events,
		router:  router,
		lookup:  lookup,
		cfg:     cfg,
		logger:  log.WithComponent("dispatcher"),
		handler: handlerID,
		sem:     make(chan struct{}, cfg.MaxInFlight),
		stopCh:  make(chan struct{}),
		doneCh:  make(chan struct{}),
	}
}

// Start begins the claim loop.
func (d *Dispatcher) Start() {
	go d.run()
}

// Stop halts the claim loop. In-flight runs are not interrupted; they
// finish on their own goroutines.
func (d *Dispatcher) Stop() {
	close(d.stopCh)
	<-d.doneCh
}

func (d *Dispatcher) run() {
	defer close(d.doneCh)
	ticker := time.NewTicker(d.cfg.PollInterval)
	defer ticker.Stop()

	d.logger.Info().Dur("poll_interval", d.cfg.PollInterval).Msg("workflow dispatcher started")

	for {
		select {
		case <-ticker.C:
			if err := d.safeClaimCycle(); err != nil {
				d.logger.Error().Err(err).Msg("claim cycle failed")
			}
		case <-d.stopCh:
			d.logger.Info().Msg("workflow dispatcher stopped")
			return
		}
	}
}

// safeClaimCycle isolates one claim cycle from a panic, matching
// pkg/nodehost.Host.invoke's per-call recover pattern, so one bad
// event can't kill the dispatcher's ticker loop.
func (d *Dispatcher) safeClaimCycle() (err error) {
	defer func() {
		if r := recover(); r != nil {
			d.logger.Error().Interface("panic", r).Msg("critical: claim cycle panicked")
			err = fmt.Errorf("claim cycle panicked: %v", r)
		}
	}()
	return d.claimCycle()
}

func (d *Dispatcher) claimCycle() error {
	claimed, err := d.events.Claim(d.cfg.BatchSize, d.handler)
	if err != nil {
		return fmt.Errorf("claim: %w", err)
	}
	metrics.EventsClaimed.Add(float64(len(claimed)))

	for _, event := range claimed {
		d.dispatchEvent(event)
	}
	return nil
}

// dispatchEvent routes one claimed event to every matching workflow
// and starts a run per match, bounded by MaxInFlight. An event with no
// matching trigger completes successfully immediately — it was simply
// not of interest to any workflow.
func (d *Dispatcher) dispatchEvent(event *types.Event) {
	matches := d.router.Route(event)
	if len(matches) == 0 {
		d.complete(event, nil)
		return
	}

	// Each match starts its run on its own goroutine, bounded by
	// MaxInFlight; a run's outcome is unknown by the time the event
	// itself needs to be marked complete, so a failure to start is
	// logged here rather than fed back into the event's completion —
	// the event was successfully routed, which is all Complete records.
	for _, m := range matches {
		wf, ok := d.lookup.Get(m.WorkflowID)
		if !ok {
			d.logger.Warn().Str("workflow_id", m.WorkflowID).Msg("trigger matched unknown workflow, skipping")
			continue
		}

		d.sem <- struct{}{}
		go func(wf *types.Workflow, payload map[string]any) {
			defer func() { <-d.sem }()
			ctx, cancel := context.WithTimeout(context.Background(), 24*time.Hour)
			defer cancel()
			if _, err := d.engine.Start(ctx, wf, event.ID, payload); err != nil {
				d.logger.Error().Err(err).Str("workflow_id", wf.WorkflowID).Str("event_id", event.ID).Msg("run failed to start")
			}
		}(wf, m.Payload)
	}
	d.complete(event, nil)
}

func (d *Dispatcher) complete(event *types.Event, err error) {
	if cerr := d.events.Complete(event.ID, err == nil, err); cerr != nil {
		d.logger.Error().Err(cerr).Str("event_id", event.ID).Msg("failed to mark event complete")
	}
}
