/*
Package workflow loads a static DAG definition, validates it's acyclic
(Kahn's algorithm), and drives one Run per triggering event to a
terminal status.

Scheduling is cooperative-parallel: on every node completion the engine
re-evaluates every still-pending node's readiness and dispatches all
now-eligible nodes at once, bounded by Config.MaxParallelNodesPerRun.
A node is ready once every incoming edge's source has succeeded (or
failed/skipped with continue_on_error, contributing a null output) or
the node has no incoming edges at all. Missing required, unbound input
ports fail the node immediately with missing_input.

Each node gets its own timeout, retried with linear backoff up to
max_attempts when the failure (or a timeout) is retryable. A terminal,
non-continue_on_error failure cascades: every transitively-dependent
node is marked skipped rather than attempted.

Runs checkpoint to a FileCheckpointer after every state transition, so
a process restart can call Resume on anything left "running": nodes
declared idempotent are re-dispatched from pending; everything else is
marked failed with "crashed", matching the system's at-least-once
rather than exactly-once contract.
*/
package workflow
