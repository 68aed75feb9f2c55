// Package lookup implements the read-only snapshot queries run before any submission:
// the Wayback availability API and the archive.today redirect-to-newest endpoint.
package lookup
