package domain

import (
	"time"
)

// SourceRef identifies a retrieval document cited in a response. Only
// the retrieval provider produces these; synthesis never fabricates one.
type SourceRef struct {
	DocumentID  string  `json:"document_id"`
	DisplayName string  `json:"display_name"`
	Confidence  float64 `json:"confidence"`
}

// Response is the single artifact handed to both the request/response
// caller and the broadcaster. Immutable once constructed.
type Response struct {
	FullText        string      `json:"full_response"`
	VoiceText       string      `json:"voice_response"`
	Sources         []SourceRef `json:"sources"`
	Snapshot        Snapshot    `json:"provider_snapshot"`
	Crop            string      `json:"crop,omitempty"`
	CoordinatesUsed Coordinates `json:"coordinates_used"`
	OutOfRegion     bool        `json:"out_of_region,omitempty"`
	Disclaimers     []string    `json:"disclaimers,omitempty"`
	Query           string      `json:"query"`
	SessionID       string      `json:"session_id"`
	Timestamp       time.Time   `json:"timestamp"`
	ProcessingMS    int64       `json:"processing_time_ms"`
}
