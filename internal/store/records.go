package store

import "github.com/roach88/fluxgear/internal/ir"

// Transaction statuses.
const (
	StatusPending = "pending"
	StatusOK      = "ok"
	StatusFailed  = "failed"
)

// Session is one engine run.
type Session struct {
	ID            string `json:"id"`
	Program       string `json:"program,omitempty"`
	EngineVersion string `json:"engine_version"`
	FormatVersion string `json:"format_version"`
	OpenedSeq     int64  `json:"opened_seq"` // clock value when the journal attached
}

// Transaction is one dispatch and, once complete, its outcome.
type Transaction struct {
	SessionID   string    `json:"session_id"`
	Seq         int64     `json:"seq"`
	EventType   string    `json:"event_type"`
	EventTag    string    `json:"event_tag"`
	Payload     ir.Object `json:"payload"`
	Init        bool      `json:"init,omitempty"`
	Status      string    `json:"status"`
	Steps       int       `json:"steps"`
	Changed     bool      `json:"changed"`
	Notified    int       `json:"notified"`
	ErrorCode   string    `json:"error_code,omitempty"`
	Error       string    `json:"error,omitempty"`
	StateDigest string    `json:"state_digest,omitempty"` // digest after the last step
}

// Step is one reduced message.
type Step struct {
	SessionID   string    `json:"session_id"`
	Seq         int64     `json:"seq"`
	Txn         int64     `json:"txn"`
	Index       int       `json:"index"`
	MessageType string    `json:"message_type"`
	MessageTag  string    `json:"message_tag"`
	Payload     ir.Object `json:"payload"`
	State       string    `json:"state"` // JSON text
	Canonical   bool      `json:"canonical"`
	StateDigest string    `json:"state_digest"`
	Change      bool      `json:"change,omitempty"`
}
