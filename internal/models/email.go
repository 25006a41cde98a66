package models

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Label is the closed set of detection verdicts.
type Label string

const (
	LabelBenign     Label = "benign"
	LabelSuspicious Label = "suspicious"
	LabelPhishing   Label = "phishing"
)

// JobStatus is the render job lifecycle state.
type JobStatus string

const (
	JobQueued  JobStatus = "queued"
	JobRunning JobStatus = "running"
	JobDone    JobStatus = "done"
	JobFailed  JobStatus = "failed"
)

// Terminal reports whether the status admits no further transition.
func (s JobStatus) Terminal() bool {
	return s == JobDone || s == JobFailed
}

// StringList stores an ordered list of strings in a JSONB column.
type StringList []string

// Value implements driver.Valuer.
func (l StringList) Value() (driver.Value, error) {
	if l == nil {
		l = StringList{}
	}
	return json.Marshal(l)
}

// Scan implements sql.Scanner.
func (l *StringList) Scan(src interface{}) error {
	if src == nil {
		*l = StringList{}
		return nil
	}
	switch v := src.(type) {
	case []byte:
		return json.Unmarshal(v, l)
	case string:
		return json.Unmarshal([]byte(v), l)
	default:
		return fmt.Errorf("cannot scan %T into StringList", src)
	}
}

// Email is one ingested message. It is written once at ingestion and never
// mutated; Detection, Rewrite and RenderJob rows reference it by id.
type Email struct {
	ID            string     `db:"id" json:"id"`
	Source        string     `db:"source" json:"source"`
	Subject       string     `db:"subject" json:"subject"`
	FromAddr      string     `db:"from_addr" json:"from_addr"`
	ToAddr        string     `db:"to_addr" json:"to_addr"`
	DateHdr       string     `db:"date_hdr" json:"date_hdr"`
	RawHeaders    string     `db:"raw_headers" json:"-"`
	BodyText      string     `db:"body_text" json:"-"`
	BodyHTML      string     `db:"body_html" json:"-"`
	ExtractedURLs StringList `db:"extracted_urls" json:"-"`
	DefangedURLs  StringList `db:"defanged_urls" json:"defanged_urls"`
	CreatedAt     time.Time  `db:"created_at" json:"created_at"`
}

// Detection is one scoring outcome for an email. Rows are append-only; the
// newest row for an email is the authoritative verdict.
type Detection struct {
	ID        int64      `db:"id" json:"-"`
	EmailID   string     `db:"email_id" json:"email_id"`
	Label     Label      `db:"label" json:"label"`
	RiskScore int        `db:"risk_score" json:"risk_score"`
	Reasons   StringList `db:"reasons" json:"reasons"`
	CreatedAt time.Time  `db:"created_at" json:"created_at"`
}

// Rewrite is one safe-rewrite outcome for an email. Append-only.
type Rewrite struct {
	ID          int64     `db:"id" json:"-"`
	EmailID     string    `db:"email_id" json:"email_id"`
	SafeSubject string    `db:"safe_subject" json:"safe_subject"`
	SafeBody    string    `db:"safe_body" json:"safe_body"`
	UsedLLM     bool      `db:"used_llm" json:"used_llm"`
	CreatedAt   time.Time `db:"created_at" json:"created_at"`
}

// RenderJob is one sandboxed-open request. It is the only mutable entity:
// queued -> running -> done|failed, each transition persisted in order.
type RenderJob struct {
	JobID             string     `db:"job_id" json:"job_id"`
	EmailID           string     `db:"email_id" json:"email_id"`
	TargetURL         string     `db:"target_url" json:"target_url"`
	AllowTargetOrigin bool       `db:"allow_target_origin" json:"allow_target_origin"`
	Status            JobStatus  `db:"status" json:"status"`
	Error             string     `db:"error" json:"error,omitempty"`
	CreatedAt         time.Time  `db:"created_at" json:"created_at"`
	StartedAt         *time.Time `db:"started_at" json:"started_at,omitempty"`
	FinishedAt        *time.Time `db:"finished_at" json:"finished_at,omitempty"`
}

// Artifact is one output file captured from a finished render job. A row
// exists only if the backing file was present at job finalization.
type Artifact struct {
	ID        int64     `db:"id" json:"-"`
	JobID     string    `db:"job_id" json:"job_id"`
	Name      string    `db:"name" json:"name"`
	RelPath   string    `db:"rel_path" json:"rel_path"`
	SHA256    string    `db:"sha256" json:"sha256"`
	MIME      string    `db:"mime" json:"mime"`
	SizeBytes int64     `db:"size_bytes" json:"size_bytes"`
	CreatedAt time.Time `db:"created_at" json:"created_at"`
}
