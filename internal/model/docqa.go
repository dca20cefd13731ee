// Package model provides data models for the document Q&A service.
package model

import "time"

// IndexStatus is the lifecycle status of a knowledge index.
type IndexStatus string

const (
	IndexCreating IndexStatus = "Creating"
	IndexSyncing  IndexStatus = "Syncing"
	IndexSynced   IndexStatus = "Synced"
	IndexFailed   IndexStatus = "Failed"
)

// KnowledgeIndex is the managed, synchronized representation of the document
// corpus held by the retrieval service.
type KnowledgeIndex struct {
	ID           string      `json:"id"`
	DataSourceID string      `json:"data_source_id"`
	Name         string      `json:"name"`
	Description  string      `json:"description,omitempty"`
	Status       IndexStatus `json:"status"`
}

// Agent is a conversational entity bound to a knowledge index and a model.
type Agent struct {
	ID           string `json:"id"`
	AliasID      string `json:"alias_id"`
	Name         string `json:"name"`
	Instructions string `json:"instructions,omitempty"`
	BoundIndexID string `json:"bound_index_id"`
}

// Document is a local file scheduled for upload. It only lives during staging.
type Document struct {
	LocalPath string `json:"local_path"`
	RemoteKey string `json:"remote_key"`
}

// ErrorKind classifies a failed query.
type ErrorKind string

const (
	ErrorKindNone            ErrorKind = ""
	ErrorKindNotReady        ErrorKind = "NotReady"
	ErrorKindServiceFailure  ErrorKind = "ServiceFailure"
	ErrorKindInvalidQuestion ErrorKind = "InvalidQuestion"
)

// QueryResult is the outcome of one question. Exactly one of Answer or
// ErrorKind is set.
type QueryResult struct {
	Answer         string    `json:"answer,omitempty"`
	Citations      []string  `json:"citations"`
	LatencySeconds float64   `json:"latency_seconds"`
	ErrorKind      ErrorKind `json:"error_kind,omitempty"`
	ErrorMessage   string    `json:"error_message,omitempty"`
}

// Failed reports whether the query produced an error instead of an answer.
func (r *QueryResult) Failed() bool {
	return r.ErrorKind != ErrorKindNone
}

// ConversationTurn is one question and its result.
type ConversationTurn struct {
	Question  string      `json:"question"`
	Result    QueryResult `json:"result"`
	Timestamp time.Time   `json:"timestamp"`
}

// SystemStats accumulates successful queries of a session.
type SystemStats struct {
	QueryCount          int64   `json:"query_count"`
	TotalLatencySeconds float64 `json:"total_latency_seconds"`
	TotalAnswerChars    int64   `json:"total_answer_chars"`
}

// StatsView is SystemStats plus derived averages, as shown to users.
type StatsView struct {
	SystemStats
	AverageLatencySeconds float64 `json:"average_latency_seconds"`
	AverageAnswerChars    float64 `json:"average_answer_chars"`
}

// Deployment holds the identifiers produced by a successful provisioning run.
type Deployment struct {
	IndexID      string `json:"index_id"`
	DataSourceID string `json:"data_source_id"`
	AgentID      string `json:"agent_id"`
	AgentAliasID string `json:"agent_alias_id"`
}

// TeardownOutcome reports what happened to one resource during teardown.
type TeardownOutcome struct {
	Resource     string `json:"resource"`
	Succeeded    bool   `json:"succeeded"`
	Skipped      bool   `json:"skipped,omitempty"`
	ErrorMessage string `json:"error_message,omitempty"`
}

// StagingReport summarises the upload step.
type StagingReport struct {
	Eligible int      `json:"eligible"`
	Uploaded int      `json:"uploaded"`
	Failed   []string `json:"failed,omitempty"`
	Skipped  int      `json:"skipped"`
	// Workers is the upload concurrency actually used.
	Workers int `json:"workers"`
	// InlineUploads counts uploads run on the caller because the pool was full.
	InlineUploads int64 `json:"inline_uploads,omitempty"`
}

// SessionSnapshot is the persisted form of a conversation session.
type SessionSnapshot struct {
	ID        string             `json:"id"`
	History   []ConversationTurn `json:"history"`
	Stats     SystemStats        `json:"stats"`
	CreatedAt time.Time          `json:"created_at"`
	UpdatedAt time.Time          `json:"updated_at"`
}
