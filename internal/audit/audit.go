// Package audit persists reconstructed commands and fired alerts, and
// serves the query/retention surface over them.
//
// All record operations are best-effort from the caller's perspective:
// failures are logged and returned but must never be allowed to affect the
// terminal relay. Sessions call them from a dispatch goroutine, not the
// byte path.
package audit

import (
	"fmt"
	"log"
	"strings"
	"time"

	"github.com/shellgate/bastion/internal/alerting"
	"github.com/shellgate/bastion/internal/database"
	"github.com/shellgate/bastion/internal/extractor"
	"github.com/shellgate/bastion/internal/logutil"
	"gorm.io/gorm"
)

// DefaultRetentionDays is how long command and alert logs are kept when no
// retention is configured.
const DefaultRetentionDays = 90

// Auditor writes command and alert records to the database and answers
// queries over them.
type Auditor struct {
	db            *gorm.DB
	retentionDays int
	nowFn         func() time.Time // injectable clock for testing
}

// NewAuditor creates an Auditor writing to db. retentionDays <= 0 selects
// DefaultRetentionDays.
func NewAuditor(db *gorm.DB, retentionDays int) *Auditor {
	if retentionDays <= 0 {
		retentionDays = DefaultRetentionDays
	}
	return &Auditor{db: db, retentionDays: retentionDays, nowFn: time.Now}
}

// RecordCommand persists one reconstructed command.
func (a *Auditor) RecordCommand(ev extractor.CommandEvent) error {
	rec := database.CommandLog{
		Username:   ev.Operator,
		HostName:   ev.HostName,
		HostAddr:   ev.HostAddr,
		Credential: ev.Credential,
		Command:    ev.Command,
		CreatedAt:  ev.Time,
	}
	if err := a.db.Create(&rec).Error; err != nil {
		log.Printf("[audit] write command log: %v", err)
		return err
	}
	log.Printf("[audit] command user=%s host=%s cmd=%s",
		ev.Operator, ev.HostName, logutil.SanitizeForLog(ev.Command))
	return nil
}

// RecordAlert persists one fired alert occurrence. Implements
// alerting.Recorder.
func (a *Auditor) RecordAlert(occ alerting.Occurrence) error {
	rec := database.AlertHistoryLog{
		Username:      occ.Operator,
		HostName:      occ.HostName,
		Command:       occ.Command,
		AlertRule:     occ.RuleName,
		AlertContacts: joinIDs(occ.ContactIDs),
		CreatedAt:     occ.Time,
	}
	if err := a.db.Create(&rec).Error; err != nil {
		log.Printf("[audit] write alert log: %v", err)
		return err
	}
	return nil
}

// QueryOptions filters audit queries. Zero fields are ignored.
type QueryOptions struct {
	Username string
	HostName string
	Since    *time.Time
	Until    *time.Time
	Limit    int
	Offset   int
}

func (o *QueryOptions) normalize() {
	if o.Limit <= 0 {
		o.Limit = 50
	}
	if o.Limit > 1000 {
		o.Limit = 1000
	}
}

// QueryCommands returns command logs matching opts, newest first, plus the
// unpaginated total.
func (a *Auditor) QueryCommands(opts QueryOptions) ([]database.CommandLog, int64, error) {
	opts.normalize()
	tx := a.db.Model(&database.CommandLog{})
	tx = applyFilters(tx, opts)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []database.CommandLog
	if err := tx.Order("created_at DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// QueryAlerts returns alert history matching opts, newest first.
func (a *Auditor) QueryAlerts(opts QueryOptions) ([]database.AlertHistoryLog, int64, error) {
	opts.normalize()
	tx := a.db.Model(&database.AlertHistoryLog{})
	tx = applyFilters(tx, opts)

	var total int64
	if err := tx.Count(&total).Error; err != nil {
		return nil, 0, err
	}

	var entries []database.AlertHistoryLog
	if err := tx.Order("created_at DESC").Offset(opts.Offset).Limit(opts.Limit).Find(&entries).Error; err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

func applyFilters(tx *gorm.DB, opts QueryOptions) *gorm.DB {
	if opts.Username != "" {
		tx = tx.Where("username = ?", opts.Username)
	}
	if opts.HostName != "" {
		tx = tx.Where("host_name = ?", opts.HostName)
	}
	if opts.Since != nil {
		tx = tx.Where("created_at >= ?", *opts.Since)
	}
	if opts.Until != nil {
		tx = tx.Where("created_at <= ?", *opts.Until)
	}
	return tx
}

// PurgeOlderThan deletes command and alert logs older than the given number
// of days (the configured retention when days <= 0). Returns the number of
// rows removed.
func (a *Auditor) PurgeOlderThan(days int) (int64, error) {
	if days <= 0 {
		days = a.retentionDays
	}
	cutoff := a.nowFn().AddDate(0, 0, -days)

	var removed int64
	res := a.db.Where("created_at < ?", cutoff).Delete(&database.CommandLog{})
	if res.Error != nil {
		return removed, fmt.Errorf("purge command logs: %w", res.Error)
	}
	removed += res.RowsAffected

	res = a.db.Where("created_at < ?", cutoff).Delete(&database.AlertHistoryLog{})
	if res.Error != nil {
		return removed, fmt.Errorf("purge alert logs: %w", res.Error)
	}
	removed += res.RowsAffected

	if removed > 0 {
		log.Printf("[audit] purged %d log entries older than %d days", removed, days)
	}
	return removed, nil
}

// RetentionDays returns the configured retention period.
func (a *Auditor) RetentionDays() int {
	return a.retentionDays
}

// SetNowFunc sets the clock used for purge cutoffs in tests.
func (a *Auditor) SetNowFunc(fn func() time.Time) {
	a.nowFn = fn
}

func joinIDs(ids []uint) string {
	parts := make([]string, len(ids))
	for i, id := range ids {
		parts[i] = fmt.Sprintf("%d", id)
	}
	return strings.Join(parts, ",")
}
