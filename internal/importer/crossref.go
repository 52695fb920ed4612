package importer

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"

	"golang.org/x/net/html"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
)

const missingAbstract = "(Abstract not available)"

var markupRe = regexp.MustCompile(`(?i)^<[a-z]`)

// crossrefWork is the subset of a Crossref work the importer reads.
type crossrefWork struct {
	DOI      string   `json:"DOI"`
	Title    []string `json:"title"`
	Abstract *string  `json:"abstract"`
	Type     string   `json:"type"`
	ISBN     []string `json:"ISBN"`
	Issued   struct {
		DateParts [][]*int `json:"date-parts"`
	} `json:"issued"`
	Author []struct {
		ORCID  string `json:"ORCID"`
		Family string `json:"family"`
		Given  string `json:"given"`
		Name   string `json:"name"`
	} `json:"author"`
	Reference []struct {
		DOI  string `json:"DOI"`
		ISBN string `json:"ISBN"`
	} `json:"reference"`
}

// ParseCrossrefWork turns one Crossref work object into a record keyed and
// primarily identified by its DOI. Books add their valid ISBNs. Authors with
// a valid ORCID become author identifiers, the rest author names. References
// contribute their DOI, or failing that their ISBN.
func ParseCrossrefWork(data []byte, n Normalizer) (*Record, error) {
	var w crossrefWork
	if err := json.Unmarshal(data, &w); err != nil {
		return nil, fmt.Errorf("decode crossref work: %w", err)
	}
	return w.record(n)
}

func (w *crossrefWork) record(n Normalizer) (*Record, error) {
	doi, err := n.Normalize(resolver.KindPaper, alias.NewPair(alias.SchemeDOI, w.DOI))
	if err != nil {
		return nil, fmt.Errorf("crossref work %q: %w", w.DOI, err)
	}
	r := &Record{
		ID:                doi.Identifier,
		Abstract:          missingAbstract,
		PrimaryIdentifier: &doi,
		Identifiers:       []alias.Pair{doi},
	}
	if len(w.Title) > 0 {
		r.Name = w.Title[0]
	}
	if w.Abstract != nil {
		r.Abstract = *w.Abstract
		if markupRe.MatchString(r.Abstract) {
			r.Abstract = stripMarkup(r.Abstract)
		}
	}
	if len(w.Issued.DateParts) > 0 && len(w.Issued.DateParts[0]) > 0 && w.Issued.DateParts[0][0] != nil {
		year := *w.Issued.DateParts[0][0]
		r.Year = &year
	}

	if w.Type == "book" {
		for _, isbn := range w.ISBN {
			if pair, err := n.Normalize(resolver.KindPaper, alias.NewPair(alias.SchemeISBN, isbn)); err == nil {
				r.Identifiers = append(r.Identifiers, pair)
			}
		}
	}

	for _, a := range w.Author {
		if a.ORCID != "" {
			orcid := a.ORCID[strings.LastIndex(a.ORCID, "/")+1:]
			if pair, err := n.Normalize(resolver.KindPerson, alias.NewPair(alias.SchemeORCID, orcid)); err == nil {
				r.Authors = append(r.Authors, pair)
				continue
			}
		}
		var tokens []string
		for _, t := range []string{a.Family, a.Given, a.Name} {
			if t != "" {
				tokens = append(tokens, t)
			}
		}
		r.AuthorNames = append(r.AuthorNames, strings.Join(tokens, ", "))
	}

	for _, ref := range w.Reference {
		if ref.DOI != "" {
			if pair, err := n.Normalize(resolver.KindPaper, alias.NewPair(alias.SchemeDOI, ref.DOI)); err == nil {
				r.Bibliography = append(r.Bibliography, pair)
				continue
			}
		}
		if ref.ISBN != "" {
			isbn := ref.ISBN[strings.LastIndex(ref.ISBN, "/")+1:]
			if pair, err := n.Normalize(resolver.KindPaper, alias.NewPair(alias.SchemeISBN, isbn)); err == nil {
				r.Bibliography = append(r.Bibliography, pair)
			}
		}
	}
	return r, nil
}

// stripMarkup drops tags and unescapes entities.
func stripMarkup(s string) string {
	z := html.NewTokenizer(strings.NewReader(s))
	var b strings.Builder
	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return strings.TrimSpace(b.String())
			}
			return s
		case html.TextToken:
			b.Write(z.Text())
		}
	}
}

// crossrefList is the envelope of a Crossref works query.
type crossrefList struct {
	Status      string `json:"status"`
	MessageType string `json:"message-type"`
	Message     struct {
		TotalResults int               `json:"total-results"`
		Items        []json.RawMessage `json:"items"`
	} `json:"message"`
}

// ParseCrossrefList decodes a works-list response. Works that fail to parse
// are returned as errors alongside the records that did.
func ParseCrossrefList(data []byte, n Normalizer) ([]*Record, int, []error, error) {
	var l crossrefList
	if err := json.Unmarshal(data, &l); err != nil {
		return nil, 0, nil, fmt.Errorf("decode crossref response: %w", err)
	}
	if l.Status != "ok" || l.MessageType != "work-list" {
		return nil, 0, nil, fmt.Errorf("unexpected crossref response: status %q, type %q", l.Status, l.MessageType)
	}
	records := make([]*Record, 0, len(l.Message.Items))
	var bad []error
	for _, item := range l.Message.Items {
		r, err := ParseCrossrefWork(item, n)
		if err != nil {
			bad = append(bad, err)
			continue
		}
		records = append(records, r)
	}
	return records, l.Message.TotalResults, bad, nil
}
