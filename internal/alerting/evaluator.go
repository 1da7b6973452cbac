package alerting

import (
	"log"
	"time"

	"github.com/shellgate/bastion/internal/logutil"
)

// Evaluator checks each reconstructed command against the active rules for
// its host. The first matching rule wins: one occurrence is recorded, one
// notification burst is dispatched, and no further rules are evaluated.
// That bounds notification volume per command even when several rules would
// match.
type Evaluator struct {
	rules    *RuleCache
	recorder Recorder
	notifier Notifier
	nowFn    func() time.Time
}

func NewEvaluator(rules *RuleCache, recorder Recorder, notifier Notifier) *Evaluator {
	return &Evaluator{
		rules:    rules,
		recorder: recorder,
		notifier: notifier,
		nowFn:    time.Now,
	}
}

// SetNowFunc sets the clock used for occurrence timestamps in tests.
func (e *Evaluator) SetNowFunc(fn func() time.Time) {
	e.nowFn = fn
}

// Evaluate reports whether the command matched any active rule for the
// host. Recording failures and notification delivery are isolated from the
// caller: Evaluate itself never blocks on the webhook fan-out.
func (e *Evaluator) Evaluate(hostID uint, hostName, command, operator string) bool {
	for _, rule := range e.rules.ForHost(hostID) {
		if !rule.Matches(command) {
			continue
		}

		log.Printf("[alerting] command %q on host %s tripped rule %q (operator=%s)",
			logutil.SanitizeForLog(command), hostName, rule.Name, operator)

		occ := Occurrence{
			Operator:   operator,
			HostName:   hostName,
			Command:    command,
			RuleName:   rule.Name,
			Time:       e.nowFn(),
			ContactIDs: rule.ContactIDs,
		}

		if e.recorder != nil {
			if err := e.recorder.RecordAlert(occ); err != nil {
				log.Printf("[alerting] record occurrence for rule %q: %v", rule.Name, err)
			}
		}
		if e.notifier != nil {
			go e.notifier.Notify(occ)
		}
		return true
	}
	return false
}
