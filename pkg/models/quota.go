package models

import "time"

// QuotaSnapshot is a point-in-time view of one provider's remaining call
// budget, parsed from rate-limit response headers. Every counter is
// optional: a provider that exposes none yields a snapshot with nil
// fields, and downstream code must treat that as unknown, never as
// exhausted.
type QuotaSnapshot struct {
	Provider  string            `json:"provider"`
	Remaining *int              `json:"remaining"`
	Used      *int              `json:"used"`
	Limit     *int              `json:"limit"`
	LimitTier string            `json:"limit_tier,omitempty"`
	Window    string            `json:"window,omitempty"`
	Raw       map[string]string `json:"raw,omitempty"`
	At        time.Time         `json:"at"`
}

// Exhausted reports whether the budget is known to be spent. Only a
// present, zero remaining counter qualifies.
func (q *QuotaSnapshot) Exhausted() bool {
	return q != nil && q.Remaining != nil && *q.Remaining == 0
}
