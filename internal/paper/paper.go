// Package paper stores persons, papers and the paper-side records the
// importer and the authorship reconciler write: author names, keywords,
// subfields, bibliography links and reviews.
package paper

import (
	"time"

	id "litgraph/pkg/domain"
)

// Column limits mirrored from the schema.
const (
	MaxNameLength       = 512
	MaxAuthorNameLength = 128
	MaxKeywordLength    = 32
)

// Person is a registered profile. Bots post imported papers.
type Person struct {
	ID          id.PersonID
	Username    string
	DisplayName string
	Email       string
	Bio         string
	IsActive    bool
	IsBot       bool
	CreatedAt   time.Time
}

// Paper is a publication record.
type Paper struct {
	ID                 id.PaperID
	Name               string
	Abstract           string
	YearPublished      *int
	CiteAs             string
	IncompleteMetadata bool
	Public             bool
	PostedBy           id.PersonID
	ChangedBy          id.PersonID
	DatePosted         time.Time
	LastChanged        time.Time
}

// Review is a person's review of a paper. Deleted reviews are kept.
type Review struct {
	ID        id.ReviewID
	PaperID   id.PaperID
	PostedBy  id.PersonID
	Body      string
	Deleted   bool
	CreatedAt time.Time
}

// Subfield is a science subfield papers are filed under.
type Subfield struct {
	ID    id.SubfieldID
	Field string
	Name  string
}
