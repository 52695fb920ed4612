// Package domain holds the typed identifiers shared across modules.
//
// Every table key is a bigserial; wrapping them in distinct types keeps a
// PersonID from being passed where a PaperID is expected.
package domain

import (
	"strconv"
	"strings"

	dErrors "litgraph/pkg/domain-errors"
)

type (
	PersonID      int64
	PaperID       int64
	PersonAliasID int64
	PaperAliasID  int64
	ReferenceID   int64
	ReviewID      int64
	SubfieldID    int64
	SourceID      int64
	FeedEventID   int64
)

// Target is the set of ids an alias row may point at.
type Target interface {
	~int64
}

// Valid reports whether id refers to a stored row.
func Valid[T ~int64](id T) bool {
	return id > 0
}

func (id PersonID) String() string { return strconv.FormatInt(int64(id), 10) }
func (id PaperID) String() string  { return strconv.FormatInt(int64(id), 10) }

func ParsePersonID(s string) (PersonID, error) {
	v, err := parsePositive(s, "person id")
	return PersonID(v), err
}

func ParsePaperID(s string) (PaperID, error) {
	v, err := parsePositive(s, "paper id")
	return PaperID(v), err
}

func ParsePersonAliasID(s string) (PersonAliasID, error) {
	v, err := parsePositive(s, "alias id")
	return PersonAliasID(v), err
}

func ParsePaperAliasID(s string) (PaperAliasID, error) {
	v, err := parsePositive(s, "alias id")
	return PaperAliasID(v), err
}

func ParseReferenceID(s string) (ReferenceID, error) {
	v, err := parsePositive(s, "reference id")
	return ReferenceID(v), err
}

func parsePositive(s, what string) (int64, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "%s is required", what)
	}
	v, err := strconv.ParseInt(s, 10, 64)
	if err != nil {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", what)
	}
	if v <= 0 {
		return 0, dErrors.Newf(dErrors.CodeBadRequest, "invalid %s", what)
	}
	return v, nil
}
