// Package eventstore implements the durable, crash-safe event queue:
// append with debounce coalescing, FIFO claim by kind priority,
// complete/abandon, and stale-claim release for handlers that crashed
// mid-processing. Persistence is delegated to pkg/storage; this package
// owns only the queueing semantics layered on top.
package eventstore
