package models

// TextSource is one retrieved text chunk echoed back with an answer.
type TextSource struct {
	Content  string            `json:"content"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// AnswerSources lists the context the answer was grounded on.
type AnswerSources struct {
	Text   []TextSource `json:"text"`
	Images []string     `json:"images"`
}

// Answer is the response body of a retrieval query.
type Answer struct {
	Result  string        `json:"result"`
	Sources AnswerSources `json:"sources"`
}
