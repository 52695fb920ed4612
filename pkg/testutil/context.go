package testutil

import (
	"net/http"

	id "litgraph/pkg/domain"
	"litgraph/pkg/requestcontext"
)

// WithPersonID adds the acting person to the request context.
// This simulates what the auth middleware does for authenticated requests.
func WithPersonID(req *http.Request, personID id.PersonID) *http.Request {
	if !id.Valid(personID) {
		return req
	}
	return req.WithContext(requestcontext.WithPersonID(req.Context(), personID))
}
