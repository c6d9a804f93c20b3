// Package logsink is the structured log ingestion, retention, and
// query component. It accepts LogEntry writes from any project,
// buffers them through a ring + background flusher into
// storage.LogStore, and serves filtered/paginated reads plus
// cross-project document/file/hash lifecycle correlation. A separate
// retention pass compresses aged entries into zip archive segments
// and later expires them, keeping the live table bounded while
// preserving queryable history.
package logsink
