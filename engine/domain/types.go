// Package domain defines the core types, the source status state machine,
// and the sentinel errors shared by the sourcechat ingestion and query
// pipelines. It acts as the validation gate at pipeline entry points.
package domain

import (
	"fmt"
	"time"
)

// SourceKind identifies how a source's content is fetched.
type SourceKind string

const (
	KindAPI SourceKind = "api"
	KindPDF SourceKind = "pdf"
)

// ValidKinds is the set of recognised source kinds.
var ValidKinds = map[SourceKind]bool{
	KindAPI: true,
	KindPDF: true,
}

// SourceStatus tracks a source through the ingestion state machine:
// pending -> ingesting -> {ready, error}, re-entrant from either terminal
// state on re-sync.
type SourceStatus string

const (
	StatusPending   SourceStatus = "pending"
	StatusIngesting SourceStatus = "ingesting"
	StatusReady     SourceStatus = "ready"
	StatusError     SourceStatus = "error"
)

// Source is a configured content origin owned by one user.
type Source struct {
	ID        int64      `json:"id"`
	OwnerID   int64      `json:"owner_id"`
	Kind      SourceKind `json:"kind"`
	Name      string     `json:"name"`
	AgentRole string     `json:"agent_role,omitempty"`

	// API kind configuration.
	APIURL   string            `json:"api_url,omitempty"`
	APIKey   string            `json:"-"`
	Headers  map[string]string `json:"headers,omitempty"`
	DataPath string            `json:"data_path,omitempty"`

	// PDF kind configuration: path of the stored upload.
	PDFPath string `json:"pdf_path,omitempty"`

	Status        SourceStatus `json:"status"`
	DocumentCount int          `json:"document_count"`
	ErrorMessage  string       `json:"error_message,omitempty"`
	LastSynced    *time.Time   `json:"last_synced,omitempty"`

	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// CollectionName derives the vector collection for this source. The name is
// a pure function of (source id, owner id), so it is always derivable
// without a side lookup and cannot collide across owners.
func (s Source) CollectionName() string {
	return fmt.Sprintf("source_%d_%d", s.ID, s.OwnerID)
}

// DocumentUnit is one embeddable chunk of text derived from a source.
type DocumentUnit struct {
	// RawID is stable across re-ingests when derivable from source content
	// (an API item's own id), otherwise positional.
	RawID string
	Text  string
	// Hash is a SHA-256 content hash, kept for observability only.
	Hash string
	// Page is the 1-based PDF page this unit came from; 0 for API items.
	Page int
}
