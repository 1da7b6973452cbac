package alerting

import (
	"encoding/json"
	"log"
	"regexp"
	"strconv"
	"strings"
	"sync"

	"github.com/shellgate/bastion/internal/database"
	"gorm.io/gorm"
)

// Match kinds for alert rules.
const (
	MatchExact = "exact"
	MatchFuzzy = "fuzzy"
)

// Rule is one active alert rule, parsed from its database row into a form
// cheap to evaluate per command.
type Rule struct {
	ID         uint
	Name       string
	MatchType  string
	Patterns   []string
	HostIDs    map[uint]struct{}
	ContactIDs []uint

	// fuzzy only: compiled patterns, invalid ones dropped at refresh time
	compiled []*regexp.Regexp
}

// AppliesTo reports whether the rule covers the given host.
func (r *Rule) AppliesTo(hostID uint) bool {
	_, ok := r.HostIDs[hostID]
	return ok
}

// Matches reports whether the command trips this rule. Exact rules require
// verbatim equality with one pattern; fuzzy rules run an unanchored regexp
// search.
func (r *Rule) Matches(command string) bool {
	switch r.MatchType {
	case MatchExact:
		for _, p := range r.Patterns {
			if command == p {
				return true
			}
		}
	case MatchFuzzy:
		for _, re := range r.compiled {
			if re.MatchString(command) {
				return true
			}
		}
	}
	return false
}

// RuleCache holds the active rule set in memory. It is read by every session
// on every command and refreshed from the database periodically, so reads
// take an RLock and refreshes swap the whole slice.
type RuleCache struct {
	mu    sync.RWMutex
	db    *gorm.DB
	rules []Rule
}

func NewRuleCache(db *gorm.DB) *RuleCache {
	return &RuleCache{db: db}
}

// Refresh reloads all active rules, ordered by id so evaluation order is
// stable across refreshes.
func (c *RuleCache) Refresh() error {
	var rows []database.CommandAlert
	if err := c.db.Where("is_active = ?", true).Order("id").Find(&rows).Error; err != nil {
		return err
	}

	rules := make([]Rule, 0, len(rows))
	for _, row := range rows {
		rule := parseRule(row)
		if rule != nil {
			rules = append(rules, *rule)
		}
	}

	c.mu.Lock()
	c.rules = rules
	c.mu.Unlock()
	return nil
}

// ForHost returns the active rules covering a host, in stable (id) order.
func (c *RuleCache) ForHost(hostID uint) []Rule {
	c.mu.RLock()
	defer c.mu.RUnlock()

	var out []Rule
	for i := range c.rules {
		if c.rules[i].AppliesTo(hostID) {
			out = append(out, c.rules[i])
		}
	}
	return out
}

// Len returns the number of cached rules.
func (c *RuleCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.rules)
}

// parseRule converts a CommandAlert row. The pattern column holds a JSON
// array of strings; a bare string is accepted for rows written by older
// frontends. Unparseable rows are logged and skipped rather than failing the
// whole refresh.
func parseRule(row database.CommandAlert) *Rule {
	var patterns []string
	if err := json.Unmarshal([]byte(row.CommandRule), &patterns); err != nil {
		var single string
		if err2 := json.Unmarshal([]byte(row.CommandRule), &single); err2 != nil {
			log.Printf("[alerting] rule %q: unparseable pattern list: %v", row.Name, err)
			return nil
		}
		patterns = []string{single}
	}

	rule := &Rule{
		ID:         row.ID,
		Name:       row.Name,
		MatchType:  row.MatchType,
		Patterns:   patterns,
		HostIDs:    parseIDSet(row.Hosts),
		ContactIDs: parseIDList(row.AlertContacts),
	}

	if rule.MatchType == MatchFuzzy {
		for _, p := range patterns {
			re, err := regexp.Compile(strings.TrimSpace(p))
			if err != nil {
				log.Printf("[alerting] rule %q: invalid pattern %q skipped: %v", row.Name, p, err)
				continue
			}
			rule.compiled = append(rule.compiled, re)
		}
	}
	return rule
}

func parseIDSet(csv string) map[uint]struct{} {
	set := make(map[uint]struct{})
	for _, id := range parseIDList(csv) {
		set[id] = struct{}{}
	}
	return set
}

func parseIDList(csv string) []uint {
	var out []uint
	for _, part := range strings.Split(csv, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		n, err := strconv.ParseUint(part, 10, 32)
		if err != nil {
			continue
		}
		out = append(out, uint(n))
	}
	return out
}
