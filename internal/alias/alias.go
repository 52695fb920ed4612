// Package alias models external identifiers that resolve to persons or papers.
//
// An alias row is keyed by (scheme, identifier) and points at no more than one
// target. Rows are created unlinked or linked, may be unlinked later, and are
// never duplicated or deleted.
package alias

import (
	"encoding/json"
	"fmt"
	"strconv"

	id "litgraph/pkg/domain"
)

// Scheme tags the namespace of an identifier. The empty scheme is generic.
type Scheme string

const (
	SchemeGeneric Scheme = ""
	SchemeEmail   Scheme = "mailto"
	SchemeORCID   Scheme = "orcid"
	SchemeXMPP    Scheme = "xmpp"
	SchemeTwitter Scheme = "twitter"
	SchemeURL     Scheme = "http"
	SchemeDOI     Scheme = "doi"
	SchemeISBN    Scheme = "isbn"
	SchemeArXiv   Scheme = "arxiv"
	// SchemeInternal holds the platform's own ids (u/<username>, p/<id>).
	// Aliases under it are permanent.
	SchemeInternal Scheme = "swarm"
)

// MaxSchemeLength bounds the scheme column.
const MaxSchemeLength = 16

// Permanent reports whether aliases under s can never be unlinked.
func (s Scheme) Permanent() bool {
	return s == SchemeInternal
}

// Pair is the natural key of an alias row.
type Pair struct {
	Scheme     Scheme
	Identifier string
}

func NewPair(scheme Scheme, identifier string) Pair {
	return Pair{Scheme: scheme, Identifier: identifier}
}

func (p Pair) String() string {
	if p.Scheme == SchemeGeneric {
		return p.Identifier
	}
	return string(p.Scheme) + ":" + p.Identifier
}

// MarshalJSON encodes a pair as a two-element array, the shape harvesters emit.
func (p Pair) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]string{string(p.Scheme), p.Identifier})
}

func (p *Pair) UnmarshalJSON(data []byte) error {
	var raw []string
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode alias pair: %w", err)
	}
	if len(raw) != 2 {
		return fmt.Errorf("decode alias pair: want [scheme, identifier], got %d elements", len(raw))
	}
	p.Scheme = Scheme(raw[0])
	p.Identifier = raw[1]
	return nil
}

// Alias is one row of an alias table. Target is zero while unlinked.
type Alias[T id.Target] struct {
	ID         int64
	Scheme     Scheme
	Identifier string
	Target     T
}

type (
	PersonAlias = Alias[id.PersonID]
	PaperAlias  = Alias[id.PaperID]
)

func (a *Alias[T]) Linked() bool {
	return a.Target != 0
}

func (a *Alias[T]) Pair() Pair {
	return Pair{Scheme: a.Scheme, Identifier: a.Identifier}
}

// Table describes one alias table.
type Table struct {
	Name                string
	MaxIdentifierLength int
}

var (
	PersonTable = Table{Name: "person_aliases", MaxIdentifierLength: 150}
	PaperTable  = Table{Name: "paper_aliases", MaxIdentifierLength: 256}
)

// PersonHandle is the internal identifier of a person profile.
func PersonHandle(username string) Pair {
	return Pair{Scheme: SchemeInternal, Identifier: "u/" + username}
}

// PaperHandle is the internal identifier of a paper.
func PaperHandle(paperID id.PaperID) Pair {
	return Pair{Scheme: SchemeInternal, Identifier: "p/" + strconv.FormatInt(int64(paperID), 10)}
}
