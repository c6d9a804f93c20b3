/*
Package reconciler periodically closes drift between three ground
truths: the filesystem, the event store's completed-event view, and
the vector index. It runs on two schedules (a fixed interval and an
optional fixed daily time) and synthesizes events — existing, deleted,
modified — to bring the event store back in sync, always enqueuing
deletes before creates so that a moved file's delete/create pair
converges to the post-move state in one pass.

A pending-queue high-watermark lets the reconciler skip a pass under
backpressure rather than pile more synthetic events onto an already
backlogged watcher.
*/
package reconciler
