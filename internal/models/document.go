package models

import "github.com/pgvector/pgvector-go"

type Document struct {
	ID        int64
	Title     string
	Content   string
	Source    string
	Embedding pgvector.Vector
}

type ProcessedDocument struct {
	Document
	Chunks []string
}

// RetrievedDocument is a stored document ranked against a query.
type RetrievedDocument struct {
	Document
	Distance float64
}

// Answer is the outcome of a generation call. Structured is false when the
// payload had no usable response field and Text is the raw payload.
type Answer struct {
	Text       string
	Raw        string
	Structured bool
}
