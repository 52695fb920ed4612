// Package authorship models the paper to author-alias relation and its
// confirmation state.
package authorship

import (
	"database/sql"

	"litgraph/internal/alias"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

// Confirmation is the trust state of one authorship reference. It is stored
// as a nullable boolean: NULL pending, TRUE confirmed, FALSE rejected.
type Confirmation int8

const (
	Pending Confirmation = iota
	Confirmed
	Rejected
)

func (c Confirmation) String() string {
	switch c {
	case Confirmed:
		return "confirmed"
	case Rejected:
		return "rejected"
	default:
		return "pending"
	}
}

// FromNullBool decodes the column value.
func FromNullBool(v sql.NullBool) Confirmation {
	switch {
	case !v.Valid:
		return Pending
	case v.Bool:
		return Confirmed
	default:
		return Rejected
	}
}

// NullBool encodes c for the column.
func (c Confirmation) NullBool() sql.NullBool {
	switch c {
	case Confirmed:
		return sql.NullBool{Bool: true, Valid: true}
	case Rejected:
		return sql.NullBool{Bool: false, Valid: true}
	default:
		return sql.NullBool{}
	}
}

// ParseAction maps a user action to the state it moves references into.
func ParseAction(action string) (Confirmation, error) {
	switch action {
	case "confirm":
		return Confirmed, nil
	case "reject":
		return Rejected, nil
	default:
		return Pending, dErrors.New(dErrors.CodeNoAction, "choose exactly one action: confirm or reject")
	}
}

// Reference links a paper to one author alias.
type Reference struct {
	ID        id.ReferenceID
	PaperID   id.PaperID
	AliasID   int64
	Confirmed Confirmation

	// Joined from the alias row on reads.
	Alias alias.Pair
	// Author is the alias target, zero while the alias is unlinked.
	Author id.PersonID
}
