package model

import "time"

// Entity is a configured business unit (farm or real-estate operation)
// that documents and transactions are attributed to. The pipeline treats
// entities as read-only configuration.
type Entity struct {
	Slug             string   `json:"slug" yaml:"slug"`
	Name             string   `json:"name" yaml:"name"`
	EntityType       string   `json:"entity_type" yaml:"entity_type"`
	State            string   `json:"state" yaml:"state"`
	AccountingMethod string   `json:"accounting_method" yaml:"accounting_method"`
	APAccount        string   `json:"ap_account" yaml:"ap_account"`
	CheckingAccount  string   `json:"checking_account" yaml:"checking_account"`
	InvoicePrefix    string   `json:"invoice_prefix" yaml:"invoice_prefix"`
	FilingKeywords   []string `json:"filing_keywords,omitempty" yaml:"filing_keywords"`
	Active           bool     `json:"active" yaml:"active"`
}

// Default balance sheet account names used when an entity doesn't
// override them.
const (
	DefaultAPAccount       = "Accounts Payable"
	DefaultCheckingAccount = "Checking"
)

// AccountsPayable returns the entity's AP account, falling back to the
// default name.
func (e Entity) AccountsPayable() string {
	if e.APAccount != "" {
		return e.APAccount
	}
	return DefaultAPAccount
}

// Checking returns the entity's checking account, falling back to the
// default name.
func (e Entity) Checking() string {
	if e.CheckingAccount != "" {
		return e.CheckingAccount
	}
	return DefaultCheckingAccount
}

// AuditSeverity grades audit entries.
type AuditSeverity string

const (
	SeverityInfo    AuditSeverity = "info"
	SeverityWarning AuditSeverity = "warning"
	SeverityError   AuditSeverity = "error"
)

// AuditEntry is one structured audit record. Every stage transition and
// failure produces one.
type AuditEntry struct {
	Timestamp  time.Time      `json:"timestamp"`
	EntitySlug string         `json:"entity_slug,omitempty"`
	Module     string         `json:"module"`
	Action     string         `json:"action"`
	Detail     map[string]any `json:"detail,omitempty"`
	User       string         `json:"user"`
	Severity   AuditSeverity  `json:"severity"`
}
