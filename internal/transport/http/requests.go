package httptransport

import (
	"strings"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
	"litgraph/internal/authorship"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

// maxPapersPerAction bounds a mass confirm or reject.
const maxPapersPerAction = 500

// IdentifierRequest is the body of every alias link and author entry.
// An empty scheme lets the resolver infer it from the identifier.
type IdentifierRequest struct {
	Scheme     string `json:"scheme"`
	Identifier string `json:"identifier"`
}

func (r *IdentifierRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	r.Scheme = strings.TrimSpace(r.Scheme)
	r.Identifier = strings.TrimSpace(r.Identifier)
	if r.Identifier == "" {
		return dErrors.WithField(dErrors.New(dErrors.CodeInvalid, "identifier is required"), "identifier")
	}
	return nil
}

// ValidateRequest asks for the normalized form of an identifier.
type ValidateRequest struct {
	IdentifierRequest
	// Table is "person", "paper" or empty for any.
	Table string `json:"table"`

	kind resolver.Kind
}

func (r *ValidateRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	switch strings.ToLower(strings.TrimSpace(r.Table)) {
	case "":
		r.kind = resolver.KindAny
	case "person":
		r.kind = resolver.KindPerson
	case "paper":
		r.kind = resolver.KindPaper
	default:
		return dErrors.WithField(dErrors.New(dErrors.CodeBadRequest, "table must be person or paper"), "table")
	}
	return r.IdentifierRequest.Validate()
}

// Kind returns the parsed table.
func (r *ValidateRequest) Kind() resolver.Kind {
	return r.kind
}

// AuthorshipRequest confirms or rejects the caller's references on papers.
type AuthorshipRequest struct {
	Action string  `json:"action"`
	Papers []int64 `json:"papers"`

	state    authorship.Confirmation
	paperIDs []id.PaperID
}

func (r *AuthorshipRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	if len(r.Papers) > maxPapersPerAction {
		return dErrors.WithField(dErrors.Newf(dErrors.CodeBadRequest,
			"at most %d papers per action", maxPapersPerAction), "papers")
	}
	state, err := authorship.ParseAction(strings.ToLower(strings.TrimSpace(r.Action)))
	if err != nil {
		return dErrors.WithField(err, "action")
	}
	r.state = state
	r.paperIDs = make([]id.PaperID, 0, len(r.Papers))
	for _, p := range r.Papers {
		if !id.Valid(p) {
			return dErrors.WithField(dErrors.New(dErrors.CodeBadRequest, "invalid paper id"), "papers")
		}
		r.paperIDs = append(r.paperIDs, id.PaperID(p))
	}
	return nil
}

func (r *AuthorshipRequest) State() authorship.Confirmation {
	return r.state
}

func (r *AuthorshipRequest) PaperIDs() []id.PaperID {
	return r.paperIDs
}

// ReviewRequest is the body of a new review. Emptiness is checked by the
// reconciler so the error names the same field either way.
type ReviewRequest struct {
	Body string `json:"body"`
}

func (r *ReviewRequest) Validate() error {
	if r == nil {
		return dErrors.New(dErrors.CodeBadRequest, "request body is required")
	}
	return nil
}

// PairResponse is a normalized identifier.
type PairResponse struct {
	Scheme     alias.Scheme `json:"scheme"`
	Identifier string       `json:"identifier"`
}

// AliasResponse is a linked alias row.
type AliasResponse struct {
	ID         int64        `json:"id"`
	Scheme     alias.Scheme `json:"scheme"`
	Identifier string       `json:"identifier"`
	Target     int64        `json:"target"`
}

func aliasResponse[T id.Target](a *alias.Alias[T]) AliasResponse {
	return AliasResponse{ID: a.ID, Scheme: a.Scheme, Identifier: a.Identifier, Target: int64(a.Target)}
}

// ReferenceResponse is one authorship reference.
type ReferenceResponse struct {
	ID        int64        `json:"id"`
	PaperID   int64        `json:"paper_id"`
	AliasID   int64        `json:"alias_id"`
	Alias     PairResponse `json:"alias"`
	Author    int64        `json:"author,omitempty"`
	Confirmed string       `json:"confirmed"`
}

func referenceResponse(ref *authorship.Reference) ReferenceResponse {
	return ReferenceResponse{
		ID:        int64(ref.ID),
		PaperID:   int64(ref.PaperID),
		AliasID:   ref.AliasID,
		Alias:     PairResponse{Scheme: ref.Alias.Scheme, Identifier: ref.Alias.Identifier},
		Author:    int64(ref.Author),
		Confirmed: ref.Confirmed.String(),
	}
}

// AuthorshipResponse reports the papers an action covered.
type AuthorshipResponse struct {
	Papers  []int64 `json:"papers"`
	Changed int64   `json:"changed"`
}

// ReviewResponse is a stored review.
type ReviewResponse struct {
	ID      int64  `json:"id"`
	PaperID int64  `json:"paper_id"`
	Body    string `json:"body"`
}
