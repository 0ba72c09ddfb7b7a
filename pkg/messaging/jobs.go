package messaging

// ExtractionJob is the queue message for a document extraction request.
// Delivery is at-least-once; consumers must apply results idempotently.
type ExtractionJob struct {
	DocumentID string `json:"document_id"`
	Attempt    int    `json:"attempt"`
}
