package model

import "time"

// LeadStage identifies the funnel step at which a lead was captured.
type LeadStage string

const (
	StageAddress LeadStage = "address"
	StageUsage   LeadStage = "usage"
	StageDesign  LeadStage = "design"
	StageContact LeadStage = "contact"
)

// Lead is a prospective customer's contact submission. ID is a stable,
// client-generated UUID used by the backend to deduplicate repeated
// submissions of the same lead.
type Lead struct {
	ID       string        `json:"id"`
	Stage    LeadStage     `json:"state"`
	Email    string        `json:"email,omitempty"`
	Phone    string        `json:"phone,omitempty"`
	Address  string        `json:"address,omitempty"`
	Quote    *QuoteSummary `json:"quote,omitempty"`
	TS       int64         `json:"ts"` // epoch milliseconds at capture
	Honeypot string        `json:"honeypot,omitempty"`
	TTCMs    int64         `json:"ttc_ms,omitempty"` // time-to-complete, for the spam heuristic
	Spam     bool          `json:"spam,omitempty"`
}

// CapturedAt returns the capture timestamp as a time.Time.
func (l Lead) CapturedAt() time.Time {
	return time.UnixMilli(l.TS).UTC()
}

// QueuedLead is a Lead awaiting redelivery after a failed send attempt.
type QueuedLead struct {
	Lead
	Retries int `json:"_retries"`
}

// LeadCounts holds aggregate lead totals for status reporting.
type LeadCounts struct {
	Total int `json:"total"`
	Spam  int `json:"spam"`
}
