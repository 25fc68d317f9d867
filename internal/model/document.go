package model

import (
	"errors"
	"time"
)

// ErrDocumentNotFound is returned when a document row does not exist.
var ErrDocumentNotFound = errors.New("document not found")

// IngestState is a step of the per-document ingestion state machine.
type IngestState string

const (
	StateNotStarted IngestState = "not_started"
	StateExtracting IngestState = "extracting"
	StateSplitting  IngestState = "splitting"
	StateEmbedding  IngestState = "embedding"
	StateComplete   IngestState = "complete"
	StateFailed     IngestState = "failed"
)

// Terminal reports whether no run is in flight for this state.
func (s IngestState) Terminal() bool {
	return s == StateComplete || s == StateFailed || s == StateNotStarted
}

// Document is an uploaded file owned by one user. UserID is the opaque
// subject handed over by the auth provider.
type Document struct {
	ID              string      `gorm:"type:varchar(36);primaryKey" json:"id"`
	UserID          string      `gorm:"type:varchar(128);not null;index" json:"user_id"`
	Name            string      `gorm:"type:varchar(255);not null" json:"name"`
	SourceURL       string      `gorm:"type:varchar(1024);not null" json:"source_url"`
	StorageKey      string      `gorm:"type:varchar(255)" json:"-"`
	State           IngestState `gorm:"type:varchar(32);not null;default:not_started" json:"state"`
	ChunksCompleted int         `gorm:"not null;default:0" json:"chunks_completed"`
	ChunksExpected  int         `gorm:"not null;default:0" json:"chunks_expected"`
	FailureReason   string      `gorm:"type:text" json:"failure_reason,omitempty"`
	CreatedAt       time.Time   `json:"created_at"`
	UpdatedAt       time.Time   `json:"updated_at"`
}

func (Document) TableName() string {
	return "documents"
}

// Progress is the observable ingestion status of a document.
type Progress struct {
	DocumentID    string      `json:"document_id"`
	State         IngestState `json:"state"`
	Completed     int         `json:"completed"`
	Expected      int         `json:"expected"`
	FailureReason string      `json:"failure_reason,omitempty"`
}

func (d *Document) Progress() Progress {
	return Progress{
		DocumentID:    d.ID,
		State:         d.State,
		Completed:     d.ChunksCompleted,
		Expected:      d.ChunksExpected,
		FailureReason: d.FailureReason,
	}
}
