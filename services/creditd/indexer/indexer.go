// Package indexer archives credit engine events in a SQL database so
// positions and accounts can be audited after the fact.
package indexer

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"fixedcredit/core/events"
)

// EventRecord is one archived event.
type EventRecord struct {
	ID         uuid.UUID `gorm:"type:uuid;primaryKey"`
	Sequence   uint64    `gorm:"uniqueIndex;not null"`
	Type       string    `gorm:"size:64;index;not null"`
	DebtID     *uint64   `gorm:"index"`
	CreditID   *uint64   `gorm:"index"`
	Accounts   string    `gorm:"size:512;index"`
	Attributes string    `gorm:"type:text"`
	CreatedAt  time.Time `gorm:"index"`
}

// Open connects to driver ("postgres" or "sqlite") and migrates the schema.
func Open(driver, dsn string) (*gorm.DB, error) {
	var dialector gorm.Dialector
	switch strings.ToLower(strings.TrimSpace(driver)) {
	case "postgres":
		dialector = postgres.Open(dsn)
	case "sqlite":
		dialector = sqlite.Open(dsn)
	default:
		return nil, fmt.Errorf("indexer: unsupported driver %q", driver)
	}
	db, err := gorm.Open(dialector, &gorm.Config{Logger: logger.Default.LogMode(logger.Warn)})
	if err != nil {
		return nil, fmt.Errorf("indexer: open %s: %w", driver, err)
	}
	if err := AutoMigrate(db); err != nil {
		return nil, err
	}
	return db, nil
}

// AutoMigrate creates or updates the archive tables.
func AutoMigrate(db *gorm.DB) error {
	return db.AutoMigrate(&EventRecord{})
}

// Indexer implements events.Emitter over a gorm database.
type Indexer struct {
	db     *gorm.DB
	logger *slog.Logger
	now    func() time.Time
	seq    uint64
}

// New resumes the sequence from the last archived record.
func New(db *gorm.DB, log *slog.Logger) (*Indexer, error) {
	if db == nil {
		return nil, errors.New("indexer: database required")
	}
	if log == nil {
		log = slog.Default()
	}
	var last EventRecord
	err := db.Order("sequence desc").Limit(1).Find(&last).Error
	if err != nil {
		return nil, fmt.Errorf("indexer: resume: %w", err)
	}
	return &Indexer{db: db, logger: log.With("component", "indexer"), now: time.Now, seq: last.Sequence}, nil
}

// Emit archives evt. Failures are logged; the engine has already committed.
func (i *Indexer) Emit(evt events.Event) {
	if i == nil || evt == nil {
		return
	}
	if err := i.Record(evt); err != nil {
		i.logger.Error("archive event failed", "type", evt.EventType(), "error", err)
	}
}

var accountKeys = []string{"account", "borrower", "lender", "caller", "liquidator", "seller", "keeper", "to"}

// Record stores evt and returns any database error.
func (i *Indexer) Record(evt events.Event) error {
	attrs := events.Attributes(evt)
	if attrs == nil {
		attrs = map[string]string{}
	}
	payload, err := json.Marshal(attrs)
	if err != nil {
		return err
	}
	rec := EventRecord{
		ID:         uuid.New(),
		Sequence:   i.seq + 1,
		Type:       evt.EventType(),
		DebtID:     parseID(attrs, "debtPositionId"),
		CreditID:   parseID(attrs, "creditPositionId"),
		Accounts:   collectAccounts(attrs),
		Attributes: string(payload),
		CreatedAt:  i.now().UTC(),
	}
	if err := i.db.Create(&rec).Error; err != nil {
		return fmt.Errorf("indexer: insert: %w", err)
	}
	i.seq = rec.Sequence
	return nil
}

func parseID(attrs map[string]string, key string) *uint64 {
	raw, ok := attrs[key]
	if !ok {
		return nil
	}
	var id uint64
	if _, err := fmt.Sscan(raw, &id); err != nil {
		return nil
	}
	return &id
}

// collectAccounts renders every address attribute as ",a,b," so a LIKE
// query on ",addr," matches whole accounts.
func collectAccounts(attrs map[string]string) string {
	seen := map[string]struct{}{}
	for _, key := range accountKeys {
		if v := strings.ToLower(strings.TrimSpace(attrs[key])); v != "" {
			seen[v] = struct{}{}
		}
	}
	if len(seen) == 0 {
		return ""
	}
	list := make([]string, 0, len(seen))
	for v := range seen {
		list = append(list, v)
	}
	sort.Strings(list)
	return "," + strings.Join(list, ",") + ","
}

// Query filters archived events. Zero fields are ignored.
type Query struct {
	DebtID   *uint64
	CreditID *uint64
	Account  string
	Type     string
	After    uint64
	Limit    int
}

// Find returns events matching q in sequence order.
func (i *Indexer) Find(q Query) ([]EventRecord, error) {
	tx := i.db.Model(&EventRecord{}).Where("sequence > ?", q.After)
	if q.DebtID != nil {
		tx = tx.Where("debt_id = ?", *q.DebtID)
	}
	if q.CreditID != nil {
		tx = tx.Where("credit_id = ?", *q.CreditID)
	}
	if acct := strings.ToLower(strings.TrimSpace(q.Account)); acct != "" {
		tx = tx.Where("accounts LIKE ?", "%,"+acct+",%")
	}
	if q.Type != "" {
		tx = tx.Where("type = ?", q.Type)
	}
	limit := q.Limit
	if limit <= 0 || limit > 500 {
		limit = 100
	}
	var out []EventRecord
	if err := tx.Order("sequence asc").Limit(limit).Find(&out).Error; err != nil {
		return nil, fmt.Errorf("indexer: query: %w", err)
	}
	return out, nil
}
