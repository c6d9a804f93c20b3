// Package log provides structured JSON logging for warrenflow components,
// built on zerolog. Each component gets a child logger carrying its name
// plus whatever correlation fields (run_id, event_id, document_id) are
// relevant to its domain, so every log line can be traced back to the
// object it concerns without string-parsing the message.
package log
