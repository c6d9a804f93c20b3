/*
Package types defines the core data structures shared across warrenflow.

This package contains the domain model used by every other package:
filesystem events, document records, workflow definitions, run state,
log entries, and API keys. These types are the boundary contract
between the event store, the reconciler, the workflow engine, and the
log sink — each component owns operations on these types, never raw
storage internals.

# Ownership

  - Event: owned by the EventStore except while a handler holds its
    claim, in which case the claiming handler owns it.
  - DocumentRecord: owned by the Reconciler (sole creator/deleter).
  - Workflow: static, loaded from config and immutable at runtime.
  - Run / NodeState: owned by the Workflow Engine for the run's whole
    lifecycle.
  - LogEntry: owned by the Log Sink, append-only.
  - ApiKey: owned by the Auth Gate.

All types are JSON-serializable so they can cross the HTTP surface and
be persisted via BoltDB or flat JSON checkpoint files unchanged.
*/
package types
