// Package ingest defines the JSON document payload accepted by the staging
// pipeline and the CLI, validates it at the trust boundary and builds a
// data pack from it.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"time"

	apperrors "github.com/Adithya-Monish-Kumar-K/nlp-datapack/pkg/errors"
)

// Document is a text plus the entries upstream components already produced.
type Document struct {
	DocID      string              `json:"doc_id"`
	Text       string              `json:"text"`
	Entries    []EntryPayload      `json:"entries,omitempty"`
	Provenance []ProvenancePayload `json:"provenance,omitempty"`
	ReceivedAt time.Time           `json:"received_at,omitempty"`
}

// EntryPayload is one annotation, link or group. Which of Span,
// Parent/Child and Members is read depends on Kind.
type EntryPayload struct {
	Kind      string         `json:"kind"`
	Type      string         `json:"type"`
	Component string         `json:"component"`
	TID       string         `json:"tid,omitempty"`
	Span      *[2]int        `json:"span,omitempty"`
	Parent    string         `json:"parent,omitempty"`
	Child     string         `json:"child,omitempty"`
	Members   []string       `json:"members,omitempty"`
	Fields    map[string]any `json:"fields,omitempty"`
}

// ProvenancePayload declares fields a component populated on a type, in
// addition to those inferred from the entries themselves.
type ProvenancePayload struct {
	Kind      string   `json:"kind"`
	Type      string   `json:"type"`
	Component string   `json:"component"`
	Fields    []string `json:"fields"`
}

// Digest fingerprints the content of d: text, entries and provenance. The
// document id and receive time are not part of it, so a document resent
// with new content under the same id gets a new digest.
func (d *Document) Digest() (string, error) {
	content := struct {
		Text       string              `json:"text"`
		Entries    []EntryPayload      `json:"entries"`
		Provenance []ProvenancePayload `json:"provenance"`
	}{d.Text, d.Entries, d.Provenance}
	b, err := json.Marshal(content)
	if err != nil {
		return "", apperrors.Newf(apperrors.ErrInvalidInput, "fingerprinting document %q: %v", d.DocID, err)
	}
	sum := sha256.Sum256(b)
	return hex.EncodeToString(sum[:16]), nil
}
