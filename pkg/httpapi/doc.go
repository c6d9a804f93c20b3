// Package httpapi exposes the log sink and workflow engine as a JSON
// REST surface: log ingestion and querying, document/file/hash
// lifecycle correlation, and workflow run management. Every route
// past /health requires an X-API-Key header validated against
// pkg/authgate; reads are silently filtered to the key's authorized
// projects, writes are rejected with 403 for an unauthorized project.
package httpapi
