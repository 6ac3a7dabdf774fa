// Package domain contains core domain types for the chat store.
package domain

import "time"

// TimeLayout is the canonical wire format for message timestamps.
const TimeLayout = "2006-01-02 15:04:05"

// Message is a single chat message as it lives in the hot store and on the
// wire. Time is optional on ingest; the store fills it with the current
// wall clock when absent.
type Message struct {
	Sender string `json:"sender"`
	Text   string `json:"text"`
	Time   string `json:"time,omitempty"`
}

// ScoredMessage pairs a cached message with its ordering key.
type ScoredMessage struct {
	Message
	Score float64
}

// ChatRecord is an archived message row. Identity is the full 5-tuple;
// there is no surrogate key, so identical tuples collapse into one row.
type ChatRecord struct {
	UserID    int64
	SessionID string
	Sender    string
	Text      string
	Timestamp time.Time
}

// SearchResult is a cross-session search hit. Time is rendered from the
// message's ordering key.
type SearchResult struct {
	SessionID string `json:"session_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Time      string `json:"time"`
}
