package models

// FileFailure records one file that contributed zero chunks and why.
type FileFailure struct {
	Path   string `json:"path"`
	Reason string `json:"reason"`
}

// IngestReport is the inspectable outcome of one ingestion batch. Per-file
// extraction failures land here instead of aborting the batch; storage or
// embedding failures are returned as errors, never absorbed.
type IngestReport struct {
	UserID         string        `json:"user_id"`
	ChatbotID      string        `json:"chatbot_id"`
	SucceededFiles []string      `json:"succeeded_files"`
	FailedFiles    []FileFailure `json:"failed_files,omitempty"`
	TextChunks     int           `json:"text_chunks"`
	ImagesStored   int           `json:"images_stored"`
}

// AddFailure appends a failed file with its reason.
func (r *IngestReport) AddFailure(path string, err error) {
	r.FailedFiles = append(r.FailedFiles, FileFailure{Path: path, Reason: err.Error()})
}
