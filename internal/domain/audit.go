package domain

import "time"

// AuditStatus mirrors the success flag of the audited call.
type AuditStatus string

const (
	AuditStatusSuccess AuditStatus = "success"
	AuditStatusError   AuditStatus = "error"
)

// AuditRecord is one write-once entry of the call trail.
type AuditRecord struct {
	Timestamp       time.Time
	RequestID       string
	Tool            string
	Service         string
	Duration        time.Duration
	Status          AuditStatus
	ErrorKind       ErrorKind
	ArgumentSummary string
}

// StatusFor maps a result success flag onto an audit status.
func StatusFor(success bool) AuditStatus {
	if success {
		return AuditStatusSuccess
	}
	return AuditStatusError
}
