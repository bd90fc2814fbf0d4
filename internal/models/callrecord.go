package models

import "time"

// Sentinel status markers written for files that must never be reprocessed
// even though they produced no data rows. They share the call_records
// namespace with real rows, keyed by source_file.
const (
	CallStatusEmptyFile  = "__EMPTY_FILE__"
	CallStatusLoadErrPfx = "__LOAD_ERROR__: "
)

// CallRecord is one row loaded from a dropped call-log file. Rows are
// immutable; a given SourceFile is loaded at most once.
type CallRecord struct {
	ID          int64     `json:"id"`
	DateAndTime time.Time `json:"dateAndTime"`
	PhoneNumber string    `json:"phoneNumber"`
	StatusText  string    `json:"statusText"`
	SourceFile  string    `json:"sourceFile"`
	LoadedAt    time.Time `json:"loadedAt"`
}

// IsSentinel reports whether the row is a marker row rather than real data.
func (r *CallRecord) IsSentinel() bool {
	return r.StatusText == CallStatusEmptyFile ||
		len(r.StatusText) >= len(CallStatusLoadErrPfx) && r.StatusText[:len(CallStatusLoadErrPfx)] == CallStatusLoadErrPfx
}
