package resolver

import (
	"context"
	"net/url"
	"regexp"
	"strconv"
	"strings"

	"github.com/go-playground/validator/v10"

	"litgraph/internal/alias"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
)

// Kind selects the validator set for an alias table.
type Kind int

const (
	// KindAny accepts both person and paper schemes.
	KindAny Kind = iota
	KindPerson
	KindPaper
)

func (k Kind) table() alias.Table {
	if k == KindPerson {
		return alias.PersonTable
	}
	return alias.PaperTable
}

var (
	urlSchemeRe = regexp.MustCompile(`^(https?|ftps?)://`)
	isniRe      = regexp.MustCompile(`^[0-9]{4}-[0-9]{4}-[0-9]{4}-[0-9]{3}[0-9X]$`)
	isbnRe      = regexp.MustCompile(`^(?:97[89]-?)?[0-9]+(?:-[0-9]+){0,2}-?[0-9X]$`)
	arxivRe     = regexp.MustCompile(`^(?:arXiv:)?((?:[0-9]{4}\.[0-9]{4,5}|[a-z][a-z-]*(?:\.[A-Z]+)?/[0-9]{7})(?:v[0-9]+)?)$`)
	doiRe       = regexp.MustCompile(`^10\.[0-9]{4,}(?:\.[0-9]+)*/.+`)
	twitterRe   = regexp.MustCompile(`^@[a-zA-Z0-9_]{1,15}$`)
	paperRefRe  = regexp.MustCompile(`^p/([0-9]+)$`)
)

// Directory answers existence questions for internal identifiers.
type Directory interface {
	ActivePersonExists(ctx context.Context, username string) (bool, error)
	PublicPaperExists(ctx context.Context, paperID id.PaperID) (bool, error)
}

// validateFunc checks identifier and returns its canonical form.
type validateFunc func(ctx context.Context, c *checker, identifier string) (string, error)

type checker struct {
	syntax         *validator.Validate
	directory      Directory
	blockedDomains []string
}

var personValidators = map[alias.Scheme]validateFunc{
	alias.SchemeEmail:    validateEmail,
	alias.SchemeORCID:    validateORCID,
	alias.SchemeXMPP:     validateEmail,
	alias.SchemeTwitter:  validateTwitter,
	alias.SchemeInternal: validatePersonRef,
	alias.SchemeURL:      validateURL,
}

var paperValidators = map[alias.Scheme]validateFunc{
	alias.SchemeInternal: validatePaperRef,
	alias.SchemeURL:      validateURL,
	alias.SchemeDOI:      validateDOI,
	alias.SchemeISBN:     validateISBN,
	alias.SchemeArXiv:    validateArXiv,
}

var anyValidators = map[alias.Scheme]validateFunc{
	alias.SchemeEmail:    validateEmail,
	alias.SchemeORCID:    validateORCID,
	alias.SchemeXMPP:     validateEmail,
	alias.SchemeTwitter:  validateTwitter,
	alias.SchemeInternal: validateInternalRef,
	alias.SchemeURL:      validateURL,
	alias.SchemeDOI:      validateDOI,
	alias.SchemeISBN:     validateISBN,
	alias.SchemeArXiv:    validateArXiv,
}

func validatorsFor(kind Kind) map[alias.Scheme]validateFunc {
	switch kind {
	case KindPerson:
		return personValidators
	case KindPaper:
		return paperValidators
	default:
		return anyValidators
	}
}

// splitScheme infers the scheme of an identifier entered without one.
func splitScheme(scheme, identifier string) (alias.Scheme, string, error) {
	if scheme == "" {
		if urlSchemeRe.MatchString(strings.ToLower(identifier)) {
			return alias.SchemeURL, identifier, nil
		}
		prefix, rest, ok := strings.Cut(identifier, ":")
		if !ok || prefix == "" {
			return "", "", dErrors.WithField(dErrors.New(dErrors.CodeInvalid,
				"generic identifier must have a scheme prefix separated by colon (e.g. scheme:identifier)"), "identifier")
		}
		scheme, identifier = prefix, rest
	}
	return alias.Scheme(strings.ToLower(scheme)), identifier, nil
}

func invalid(msg string) error {
	return dErrors.WithField(dErrors.New(dErrors.CodeInvalid, msg), "identifier")
}

func validateEmail(_ context.Context, c *checker, identifier string) (string, error) {
	if err := c.syntax.Var(identifier, "required,email"); err != nil {
		return "", invalid("enter a valid email address")
	}
	return identifier, nil
}

// validateORCID checks the ISNI mod 11-2 check character.
func validateORCID(_ context.Context, _ *checker, identifier string) (string, error) {
	if !isniRe.MatchString(identifier) {
		return "", invalid("invalid identifier format")
	}
	total := 0
	for _, r := range identifier[:len(identifier)-1] {
		if r == '-' {
			continue
		}
		total = (total + int(r-'0')) * 2
	}
	checksum := (12 - total%11) % 11
	if identifier[len(identifier)-1:] != checkChar(checksum) {
		return "", invalid("identifier checksum is incorrect")
	}
	return identifier, nil
}

// validateISBN checks ISBN-10 and ISBN-13 and returns the digits without hyphens.
func validateISBN(_ context.Context, _ *checker, identifier string) (string, error) {
	if !isbnRe.MatchString(identifier) {
		return "", invalid("invalid identifier format")
	}
	number := strings.ReplaceAll(identifier, "-", "")
	var checksum int
	switch len(number) {
	case 13:
		total := 0
		for i, r := range number[:12] {
			weight := 1
			if i%2 == 1 {
				weight = 3
			}
			total += int(r-'0') * weight
		}
		checksum = (10 - total%10) % 10
	case 10:
		total := 0
		for i, r := range number[:9] {
			total += int(r-'0') * (10 - i)
		}
		checksum = (11 - total%11) % 11
	default:
		return "", invalid("invalid identifier format")
	}
	if number[len(number)-1:] != checkChar(checksum) {
		return "", invalid("identifier checksum is incorrect")
	}
	return number, nil
}

func checkChar(checksum int) string {
	if checksum == 10 {
		return "X"
	}
	return strconv.Itoa(checksum)
}

// validateArXiv accepts new (YYMM.NNNNN) and old (archive.SC/YYMMNNN) ids
// with an optional version and strips the "arXiv:" prefix.
func validateArXiv(_ context.Context, _ *checker, identifier string) (string, error) {
	m := arxivRe.FindStringSubmatch(identifier)
	if m == nil {
		return "", invalid("invalid identifier format")
	}
	return m[1], nil
}

func validateDOI(_ context.Context, _ *checker, identifier string) (string, error) {
	if !doiRe.MatchString(identifier) {
		return "", invalid("invalid identifier format")
	}
	return strings.ToLower(identifier), nil
}

func validateTwitter(_ context.Context, _ *checker, identifier string) (string, error) {
	if !twitterRe.MatchString(identifier) {
		return "", invalid("enter a valid handle starting with @")
	}
	return identifier, nil
}

func validateURL(_ context.Context, c *checker, identifier string) (string, error) {
	if err := c.syntax.Var(identifier, "required,url"); err != nil {
		return "", invalid("enter a valid URL")
	}
	u, err := url.Parse(identifier)
	if err != nil || u.Hostname() == "" {
		return "", invalid("enter a valid URL")
	}
	switch strings.ToLower(u.Scheme) {
	case "http", "https", "ftp", "ftps":
	default:
		return "", invalid("enter a valid URL")
	}
	host := strings.ToLower(u.Hostname())
	for _, blocked := range c.blockedDomains {
		if host == blocked || strings.HasSuffix(host, "."+blocked) {
			return "", invalid("links to this site are not permitted")
		}
	}
	return identifier, nil
}

func validatePersonRef(ctx context.Context, c *checker, identifier string) (string, error) {
	username, ok := strings.CutPrefix(identifier, "u/")
	if !ok || username == "" {
		return "", invalid("invalid user identifier")
	}
	if c.directory == nil {
		return "", invalid("internal identifiers are not accepted here")
	}
	exists, err := c.directory.ActivePersonExists(ctx, username)
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up user")
	}
	if !exists {
		return "", invalid("this user does not exist")
	}
	return identifier, nil
}

func validatePaperRef(ctx context.Context, c *checker, identifier string) (string, error) {
	m := paperRefRe.FindStringSubmatch(identifier)
	if m == nil {
		return "", invalid("invalid paper identifier")
	}
	paperID, err := strconv.ParseInt(m[1], 10, 64)
	if err != nil {
		return "", invalid("invalid paper identifier")
	}
	if c.directory == nil {
		return "", invalid("internal identifiers are not accepted here")
	}
	exists, err := c.directory.PublicPaperExists(ctx, id.PaperID(paperID))
	if err != nil {
		return "", dErrors.Wrap(err, dErrors.CodeInternal, "failed to look up paper")
	}
	if !exists {
		return "", invalid("this paper does not exist")
	}
	return identifier, nil
}

func validateInternalRef(ctx context.Context, c *checker, identifier string) (string, error) {
	switch {
	case strings.HasPrefix(identifier, "u/"):
		return validatePersonRef(ctx, c, identifier)
	case strings.HasPrefix(identifier, "p/"):
		return validatePaperRef(ctx, c, identifier)
	default:
		return "", invalid("invalid internal identifier")
	}
}
