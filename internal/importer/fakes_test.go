package importer

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"

	"litgraph/internal/alias"
	"litgraph/internal/alias/resolver"
	aliasstore "litgraph/internal/alias/store"
	"litgraph/internal/feed"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
)

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type memSources struct {
	rows   map[id.SourceID]*Source
	nextID id.SourceID
}

func newMemSources() *memSources {
	return &memSources{rows: map[id.SourceID]*Source{}}
}

func (m *memSources) FindByCode(_ context.Context, code string) (*Source, error) {
	for _, s := range m.rows {
		if s.Code == code {
			cp := *s
			return &cp, nil
		}
	}
	return nil, sentinel.ErrNotFound
}

func (m *memSources) Create(_ context.Context, s *Source) error {
	m.nextID++
	s.ID = m.nextID
	cp := *s
	m.rows[s.ID] = &cp
	return nil
}

func (m *memSources) Lock(_ context.Context, sourceID id.SourceID) (*Source, error) {
	s, ok := m.rows[sourceID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *s
	return &cp, nil
}

func (m *memSources) SetLease(_ context.Context, sourceID id.SourceID, lease uuid.UUID, expires time.Time) error {
	m.rows[sourceID].LeaseID = lease
	m.rows[sourceID].LeaseExpires = expires
	return nil
}

func (m *memSources) SetCursor(_ context.Context, sourceID id.SourceID, cursor string) error {
	m.rows[sourceID].Cursor = cursor
	return nil
}

type memPapers struct {
	persons      map[id.PersonID]*paper.Person
	papers       map[id.PaperID]*paper.Paper
	subfields    map[string]*paper.Subfield
	paperFields  map[id.PaperID][]id.SubfieldID
	authorNames  map[id.PaperID][]string
	keywords     map[id.PaperID][]string
	bibliography map[id.PaperID][]int64
	nextID       int64
	// failOn makes CreatePaper fail for a paper with this name.
	failOn string
}

func newMemPapers() *memPapers {
	return &memPapers{
		persons:      map[id.PersonID]*paper.Person{},
		papers:       map[id.PaperID]*paper.Paper{},
		subfields:    map[string]*paper.Subfield{},
		paperFields:  map[id.PaperID][]id.SubfieldID{},
		authorNames:  map[id.PaperID][]string{},
		keywords:     map[id.PaperID][]string{},
		bibliography: map[id.PaperID][]int64{},
	}
}

func (m *memPapers) next() int64 {
	m.nextID++
	return m.nextID
}

func (m *memPapers) LockPersons(context.Context) error   { return nil }
func (m *memPapers) LockSubfields(context.Context) error { return nil }

func (m *memPapers) CreatePerson(_ context.Context, p *paper.Person) error {
	for _, existing := range m.persons {
		if existing.Username == p.Username {
			return sentinel.ErrConflict
		}
	}
	p.ID = id.PersonID(m.next())
	cp := *p
	m.persons[p.ID] = &cp
	return nil
}

func (m *memPapers) CreatePaper(_ context.Context, p *paper.Paper) error {
	if m.failOn != "" && p.Name == m.failOn {
		return errors.New("disk full")
	}
	p.ID = id.PaperID(m.next())
	cp := *p
	m.papers[p.ID] = &cp
	return nil
}

func (m *memPapers) FindPapers(_ context.Context, paperIDs []id.PaperID) (map[id.PaperID]*paper.Paper, error) {
	out := map[id.PaperID]*paper.Paper{}
	for _, pid := range paperIDs {
		if p, ok := m.papers[pid]; ok {
			out[pid] = p
		}
	}
	return out, nil
}

func (m *memPapers) BibliographyCounts(_ context.Context, paperIDs []id.PaperID) (map[id.PaperID]int, error) {
	out := map[id.PaperID]int{}
	for _, pid := range paperIDs {
		out[pid] = len(m.bibliography[pid])
	}
	return out, nil
}

func (m *memPapers) AddSubfields(_ context.Context, paperID id.PaperID, subfields []id.SubfieldID) error {
	m.paperFields[paperID] = append(m.paperFields[paperID], subfields...)
	return nil
}

func (m *memPapers) AddAuthorNames(_ context.Context, paperID id.PaperID, names []string) error {
	m.authorNames[paperID] = append(m.authorNames[paperID], names...)
	return nil
}

func (m *memPapers) AddKeywords(_ context.Context, paperID id.PaperID, keywords []string) error {
	m.keywords[paperID] = append(m.keywords[paperID], keywords...)
	return nil
}

func (m *memPapers) AddBibliography(_ context.Context, paperID id.PaperID, aliasIDs []int64) error {
	m.bibliography[paperID] = append(m.bibliography[paperID], aliasIDs...)
	return nil
}

func (m *memPapers) ListSubfields(context.Context) (map[string]*paper.Subfield, error) {
	out := make(map[string]*paper.Subfield, len(m.subfields))
	for k, v := range m.subfields {
		out[k] = v
	}
	return out, nil
}

func (m *memPapers) CreateSubfields(_ context.Context, subfields []paper.Subfield) error {
	for _, sf := range subfields {
		if _, ok := m.subfields[sf.Name]; ok {
			continue
		}
		sf.ID = id.SubfieldID(m.next())
		m.subfields[sf.Name] = &sf
	}
	return nil
}

type memAliases[T id.Target] struct {
	table  alias.Table
	rows   []*alias.Alias[T]
	nextID int64
}

func (m *memAliases[T]) Table() alias.Table              { return m.table }
func (m *memAliases[T]) LockTable(context.Context) error { return nil }

func (m *memAliases[T]) find(pair alias.Pair) *alias.Alias[T] {
	for _, a := range m.rows {
		if a.Pair() == pair {
			return a
		}
	}
	return nil
}

func (m *memAliases[T]) create(pair alias.Pair, target T) *alias.Alias[T] {
	m.nextID++
	a := &alias.Alias[T]{ID: m.nextID, Scheme: pair.Scheme, Identifier: pair.Identifier, Target: target}
	m.rows = append(m.rows, a)
	return a
}

func (m *memAliases[T]) FindLinked(_ context.Context, pairs []alias.Pair) (map[alias.Pair]*alias.Alias[T], error) {
	out := map[alias.Pair]*alias.Alias[T]{}
	for _, p := range pairs {
		if a := m.find(p); a != nil && a.Linked() {
			cp := *a
			out[p] = &cp
		}
	}
	return out, nil
}

func (m *memAliases[T]) ListByTargets(_ context.Context, targets []T) ([]*alias.Alias[T], error) {
	var out []*alias.Alias[T]
	for _, a := range m.rows {
		for _, t := range targets {
			if a.Target == t {
				cp := *a
				out = append(out, &cp)
			}
		}
	}
	return out, nil
}

func (m *memAliases[T]) LinkAlias(_ context.Context, pair alias.Pair, target T) (*alias.Alias[T], error) {
	a := m.find(pair)
	if a == nil {
		a = m.create(pair, target)
	}
	if a.Target != 0 && a.Target != target {
		return nil, aliasstore.ErrCollision
	}
	a.Target = target
	cp := *a
	return &cp, nil
}

func (m *memAliases[T]) BulkCreateUnlinked(_ context.Context, pairs []alias.Pair) ([]*alias.Alias[T], error) {
	out := make([]*alias.Alias[T], len(pairs))
	for n, p := range pairs {
		a := m.find(p)
		if a == nil {
			a = m.create(p, 0)
		}
		cp := *a
		out[n] = &cp
	}
	return out, nil
}

func (m *memAliases[T]) targetOf(pair alias.Pair) T {
	if a := m.find(pair); a != nil {
		return a.Target
	}
	return 0
}

type memRefs struct {
	pending map[id.PaperID][]int64
}

func (m *memRefs) BulkCreatePending(_ context.Context, paperID id.PaperID, aliasIDs []int64) error {
	m.pending[paperID] = append(m.pending[paperID], aliasIDs...)
	return nil
}

type memFeed struct {
	events []feed.Event
}

func (m *memFeed) Append(_ context.Context, events ...feed.Event) error {
	m.events = append(m.events, events...)
	return nil
}

// world bundles the fakes behind one importer.
type world struct {
	sources       *memSources
	papers        *memPapers
	paperAliases  *memAliases[id.PaperID]
	personAliases *memAliases[id.PersonID]
	refs          *memRefs
	feed          *memFeed
}

func newWorld() *world {
	return &world{
		sources:       newMemSources(),
		papers:        newMemPapers(),
		paperAliases:  &memAliases[id.PaperID]{table: alias.PaperTable},
		personAliases: &memAliases[id.PersonID]{table: alias.PersonTable},
		refs:          &memRefs{pending: map[id.PaperID][]int64{}},
		feed:          &memFeed{},
	}
}

func (w *world) importer(opts ...Option) *Importer {
	return New(Deps{
		Tx:            passTx{},
		Sources:       w.sources,
		Papers:        w.papers,
		PaperAliases:  w.paperAliases,
		PersonAliases: w.personAliases,
		References:    w.refs,
		Feed:          w.feed,
		Normalizer:    resolver.New(nil, nil, nil),
	}, opts...)
}

func pair(scheme alias.Scheme, identifier string) alias.Pair {
	return alias.NewPair(scheme, identifier)
}

func doi(identifier string) alias.Pair {
	return pair(alias.SchemeDOI, identifier)
}

func arxiv(identifier string) alias.Pair {
	return pair(alias.SchemeArXiv, identifier)
}

func primary(p alias.Pair) *alias.Pair {
	return &p
}
