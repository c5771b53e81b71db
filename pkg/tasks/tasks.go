// Package tasks defines the structure for tasks that are sent to Kafka.
package tasks

// ReindexTask represents a request to re-chunk and re-embed a document
// from its archived raw text.
type ReindexTask struct {
	DocumentID uint   `json:"document_id"`
	Reason     string `json:"reason,omitempty"`
}
