// Package watcher recursively observes filesystem roots with fsnotify
// and forwards debounced, filtered change notifications to an
// eventstore.Append-shaped callback. Grounded in the fsnotify worker
// pattern from the retrieved aretw0-loam filesystem adapter (recursive
// registration, per-path debounce, error-channel handling, overflow
// triggers a reconciliation pass rather than trusting cached state),
// adapted into the Start()/Stop()/stopCh lifecycle used throughout this
// repository's background workers.
package watcher
