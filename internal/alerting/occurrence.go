// Package alerting evaluates reconstructed commands against command alert
// rules and fans fired alerts out to webhook contacts.
package alerting

import "time"

// Occurrence is one fired alert: a command matched a rule on a host. At most
// one occurrence is produced per command (first-match short-circuit).
type Occurrence struct {
	Operator string
	HostName string
	Command  string
	RuleName string
	Time     time.Time

	// ContactIDs are the rule's recipients, carried along so the audit trail
	// records who was notified.
	ContactIDs []uint
}

// Recorder persists alert occurrences. Implemented by the audit package.
type Recorder interface {
	RecordAlert(Occurrence) error
}

// Notifier delivers an occurrence to its contacts. Deliveries are
// best-effort and must not propagate failures to the caller.
type Notifier interface {
	Notify(Occurrence)
}
