package models

import "time"

// AuditEntry records one tools/call invocation. It carries no arguments,
// tokens or response bodies.
type AuditEntry struct {
	CallID     string    `json:"call_id"`
	RequestID  string    `json:"request_id"`
	Tool       string    `json:"tool"`
	IsError    bool      `json:"is_error"`
	StatusCode int       `json:"status_code"` // remote HTTP status of a failed call, 0 otherwise
	ErrorText  string    `json:"error_text,omitempty"`
	LatencyMs  int64     `json:"latency_ms"`
	CreatedAt  time.Time `json:"created_at"`
}

// AuditConfig controls the tool-call journal.
type AuditConfig struct {
	Enabled       bool     `yaml:"enabled"`
	DBPath        string   `yaml:"db_path"`
	RetentionDays int      `yaml:"retention_days"` // 0 keeps entries forever
	ExcludeTools  []string `yaml:"exclude_tools"`
	MaxErrorSize  int      `yaml:"max_error_size"` // bytes
}

// AuditQueryOpts specifies filters for querying audit entries.
type AuditQueryOpts struct {
	Tool       string
	Since      time.Time
	ErrorsOnly bool
	CallID     string
	Limit      int
}

// AuditStat holds aggregate counts for a tool/day combination.
type AuditStat struct {
	Tool   string
	Day    string
	Count  int
	Errors int
}
