/*
Package storage provides BoltDB-backed persistence for warrenflow's two
independent stores: events.db (the durable event queue plus the
document index the reconciler maintains) and logs.db (log entries and
archive pointers; API keys live in a JSON file owned by pkg/authgate).
Each is a single bolt.DB file opened
with its own buckets, giving each subsystem its own WAL so log write
volume never contends with event-store fsyncs.

Everything is serialized as JSON values keyed by their natural ID.
Callers needing anything beyond a get/list/put/delete — ordering,
filtering, debounce coalescing — do so in memory over the results of
List*; BoltDB only guarantees the durability and the per-bucket key
index.
*/
package storage
