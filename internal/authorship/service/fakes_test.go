package service

import (
	"context"
	"slices"

	"litgraph/internal/alias"
	"litgraph/internal/alias/store"
	"litgraph/internal/authorship"
	"litgraph/internal/feed"
	"litgraph/internal/paper"
	id "litgraph/pkg/domain"
	"litgraph/pkg/platform/sentinel"
)

// world is an in-memory stand-in for the tables the reconciler writes.
type world struct {
	persons       map[id.PersonID]*paper.Person
	papers        map[id.PaperID]*paper.Paper
	personAliases map[int64]*alias.PersonAlias
	paperAliases  map[int64]*alias.PaperAlias
	refs          map[id.ReferenceID]*authorship.Reference
	reviews       []*paper.Review
	events        []feed.Event
	nextID        int64
	vanished      map[id.PaperID]bool
}

func newWorld() *world {
	return &world{
		persons:       map[id.PersonID]*paper.Person{},
		papers:        map[id.PaperID]*paper.Paper{},
		personAliases: map[int64]*alias.PersonAlias{},
		paperAliases:  map[int64]*alias.PaperAlias{},
		refs:          map[id.ReferenceID]*authorship.Reference{},
		vanished:      map[id.PaperID]bool{},
	}
}

func (w *world) id() int64 {
	w.nextID++
	return w.nextID
}

func (w *world) addPerson(username, email string) id.PersonID {
	p := &paper.Person{ID: id.PersonID(w.id()), Username: username, Email: email, IsActive: true}
	w.persons[p.ID] = p
	return p.ID
}

func (w *world) addPaper(postedBy id.PersonID) id.PaperID {
	p := &paper.Paper{ID: id.PaperID(w.id()), Name: "paper", Public: true, PostedBy: postedBy}
	w.papers[p.ID] = p
	return p.ID
}

func (w *world) addPersonAlias(pair alias.Pair, target id.PersonID) *alias.PersonAlias {
	a := &alias.PersonAlias{ID: w.id(), Scheme: pair.Scheme, Identifier: pair.Identifier, Target: target}
	w.personAliases[a.ID] = a
	return a
}

func (w *world) addRef(paperID id.PaperID, aliasID int64, state authorship.Confirmation) id.ReferenceID {
	ref := &authorship.Reference{ID: id.ReferenceID(w.id()), PaperID: paperID, AliasID: aliasID, Confirmed: state}
	w.refs[ref.ID] = ref
	return ref.ID
}

func (w *world) ref(refID id.ReferenceID) *authorship.Reference {
	ref := *w.refs[refID]
	a := w.personAliases[ref.AliasID]
	ref.Alias = a.Pair()
	ref.Author = a.Target
	return &ref
}

func (w *world) findPersonAlias(pair alias.Pair) *alias.PersonAlias {
	for _, a := range w.personAliases {
		if a.Pair() == pair {
			return a
		}
	}
	return nil
}

func (w *world) authorshipEvents(person id.PersonID, paperID id.PaperID) int {
	n := 0
	for _, e := range w.events {
		if e.Type == feed.AuthorshipConfirmed && e.PersonID == person && e.PaperID == paperID {
			n++
		}
	}
	return n
}

// confirmedBy reports whether person has a confirmed reference on paperID.
func (w *world) confirmedBy(person id.PersonID, paperID id.PaperID) bool {
	for _, ref := range w.refs {
		if ref.PaperID == paperID && ref.Confirmed == authorship.Confirmed && w.personAliases[ref.AliasID].Target == person {
			return true
		}
	}
	return false
}

func (w *world) newReconciler() *Reconciler {
	return New(Deps{
		Tx:          passTx{},
		Resolver:    &fakeResolver{w},
		PersonAlias: &fakePersonAliases{w},
		PaperAlias:  &fakePaperAliases{w},
		References:  &fakeRefs{w},
		Papers:      &fakePapers{w},
		Feed:        &fakeFeed{w},
	})
}

type passTx struct{}

func (passTx) RunInTx(ctx context.Context, fn func(ctx context.Context) error) error {
	return fn(ctx)
}

type fakeResolver struct{ w *world }

func (r *fakeResolver) ResolveAuthor(_ context.Context, scheme, identifier string) (*alias.PersonAlias, error) {
	pair := alias.NewPair(alias.Scheme(scheme), identifier)
	if a := r.w.findPersonAlias(pair); a != nil {
		return a, nil
	}
	return r.w.addPersonAlias(pair, 0), nil
}

func (r *fakeResolver) LinkPersonAlias(_ context.Context, person id.PersonID, scheme, identifier string) (*alias.PersonAlias, error) {
	pair := alias.NewPair(alias.Scheme(scheme), identifier)
	a := r.w.findPersonAlias(pair)
	if a == nil {
		return r.w.addPersonAlias(pair, person), nil
	}
	if a.Linked() && a.Target != person {
		return nil, store.ErrCollision
	}
	a.Target = person
	return a, nil
}

func (r *fakeResolver) LinkPaperAlias(_ context.Context, paperID id.PaperID, scheme, identifier string) (*alias.PaperAlias, error) {
	a := &alias.PaperAlias{ID: r.w.id(), Scheme: alias.Scheme(scheme), Identifier: identifier, Target: paperID}
	r.w.paperAliases[a.ID] = a
	return a, nil
}

type fakePersonAliases struct{ w *world }

func (s *fakePersonAliases) FindByID(_ context.Context, aliasID int64, _ bool) (*alias.PersonAlias, error) {
	a, ok := s.w.personAliases[aliasID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakePersonAliases) Unlink(_ context.Context, a *alias.PersonAlias) (bool, error) {
	if a.Scheme.Permanent() {
		return false, store.ErrPermanent
	}
	stored := s.w.personAliases[a.ID]
	if stored == nil || stored.Target != a.Target {
		return false, nil
	}
	stored.Target = 0
	return true, nil
}

type fakePaperAliases struct{ w *world }

func (s *fakePaperAliases) FindByID(_ context.Context, aliasID int64, _ bool) (*alias.PaperAlias, error) {
	a, ok := s.w.paperAliases[aliasID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	cp := *a
	return &cp, nil
}

func (s *fakePaperAliases) Unlink(_ context.Context, a *alias.PaperAlias) (bool, error) {
	if a.Scheme.Permanent() {
		return false, store.ErrPermanent
	}
	s.w.paperAliases[a.ID].Target = 0
	return true, nil
}

type fakeRefs struct{ w *world }

func (s *fakeRefs) Create(_ context.Context, paperID id.PaperID, aliasID int64) (*authorship.Reference, bool, error) {
	for refID, ref := range s.w.refs {
		if ref.PaperID == paperID && ref.AliasID == aliasID {
			return s.w.ref(refID), false, nil
		}
	}
	return s.w.ref(s.w.addRef(paperID, aliasID, authorship.Pending)), true, nil
}

func (s *fakeRefs) FindByID(_ context.Context, refID id.ReferenceID, _ bool) (*authorship.Reference, error) {
	if _, ok := s.w.refs[refID]; !ok {
		return nil, sentinel.ErrNotFound
	}
	return s.w.ref(refID), nil
}

func (s *fakeRefs) HasRejected(_ context.Context, paperID id.PaperID, person id.PersonID) (bool, error) {
	for _, ref := range s.w.refs {
		if ref.PaperID == paperID && ref.Confirmed == authorship.Rejected && s.w.personAliases[ref.AliasID].Target == person {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakeRefs) filter(person id.PersonID, paperIDs []id.PaperID, keep func(*authorship.Reference) bool) []id.PaperID {
	var out []id.PaperID
	for _, ref := range s.w.refs {
		if s.w.personAliases[ref.AliasID].Target != person || !slices.Contains(paperIDs, ref.PaperID) || !keep(ref) {
			continue
		}
		if !slices.Contains(out, ref.PaperID) {
			out = append(out, ref.PaperID)
		}
	}
	slices.Sort(out)
	return out
}

func (s *fakeRefs) PapersWithReferences(_ context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	return s.filter(person, paperIDs, func(*authorship.Reference) bool { return true }), nil
}

func (s *fakeRefs) ConfirmedPapers(_ context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	return s.filter(person, paperIDs, func(ref *authorship.Reference) bool {
		return ref.Confirmed == authorship.Confirmed
	}), nil
}

func (s *fakeRefs) PapersByAlias(_ context.Context, aliasID int64, confirmedOnly bool) ([]id.PaperID, error) {
	var out []id.PaperID
	for _, ref := range s.w.refs {
		if ref.AliasID != aliasID || (confirmedOnly && ref.Confirmed != authorship.Confirmed) {
			continue
		}
		if !slices.Contains(out, ref.PaperID) {
			out = append(out, ref.PaperID)
		}
	}
	slices.Sort(out)
	return out, nil
}

func (s *fakeRefs) SetStateForPerson(_ context.Context, person id.PersonID, paperIDs []id.PaperID, state authorship.Confirmation) (int64, error) {
	var n int64
	for _, ref := range s.w.refs {
		if s.w.personAliases[ref.AliasID].Target == person && slices.Contains(paperIDs, ref.PaperID) && ref.Confirmed != state {
			ref.Confirmed = state
			n++
		}
	}
	return n, nil
}

func (s *fakeRefs) ResetAlias(_ context.Context, aliasID int64) (int64, error) {
	var n int64
	for _, ref := range s.w.refs {
		if ref.AliasID == aliasID && ref.Confirmed != authorship.Pending {
			ref.Confirmed = authorship.Pending
			n++
		}
	}
	return n, nil
}

func (s *fakeRefs) Delete(_ context.Context, refID id.ReferenceID) error {
	if _, ok := s.w.refs[refID]; !ok {
		return sentinel.ErrNotFound
	}
	delete(s.w.refs, refID)
	return nil
}

func (s *fakeRefs) UnrejectedAuthors(_ context.Context, paperID id.PaperID) ([]id.PersonID, error) {
	var out []id.PersonID
	for _, ref := range s.w.refs {
		target := s.w.personAliases[ref.AliasID].Target
		if ref.PaperID != paperID || !id.Valid(target) || ref.Confirmed == authorship.Rejected {
			continue
		}
		if !slices.Contains(out, target) {
			out = append(out, target)
		}
	}
	return out, nil
}

type fakePapers struct{ w *world }

func (s *fakePapers) FindPerson(_ context.Context, personID id.PersonID) (*paper.Person, error) {
	p, ok := s.w.persons[personID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *fakePapers) FindPaper(_ context.Context, paperID id.PaperID) (*paper.Paper, error) {
	p, ok := s.w.papers[paperID]
	if !ok {
		return nil, sentinel.ErrNotFound
	}
	return p, nil
}

func (s *fakePapers) LockPaper(ctx context.Context, paperID id.PaperID) (*paper.Paper, error) {
	if s.w.vanished[paperID] {
		return nil, sentinel.ErrNotFound
	}
	return s.FindPaper(ctx, paperID)
}

func (s *fakePapers) LockPapers(_ context.Context, paperIDs []id.PaperID) ([]*paper.Paper, error) {
	var out []*paper.Paper
	for _, paperID := range paperIDs {
		if p, ok := s.w.papers[paperID]; ok && !s.w.vanished[paperID] {
			out = append(out, p)
		}
	}
	return out, nil
}

func (s *fakePapers) Touch(_ context.Context, paperID id.PaperID, changedBy id.PersonID) error {
	s.w.papers[paperID].ChangedBy = changedBy
	return nil
}

func (s *fakePapers) CreateReview(_ context.Context, r *paper.Review) error {
	r.ID = id.ReviewID(s.w.id())
	s.w.reviews = append(s.w.reviews, r)
	return nil
}

func (s *fakePapers) ReviewExists(_ context.Context, paperID id.PaperID, person id.PersonID) (bool, error) {
	for _, r := range s.w.reviews {
		if r.PaperID == paperID && r.PostedBy == person {
			return true, nil
		}
	}
	return false, nil
}

func (s *fakePapers) ReviewedPapers(_ context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	var out []id.PaperID
	for _, r := range s.w.reviews {
		if r.PostedBy == person && !r.Deleted && slices.Contains(paperIDs, r.PaperID) {
			out = append(out, r.PaperID)
		}
	}
	return out, nil
}

type fakeFeed struct{ w *world }

func (f *fakeFeed) Append(_ context.Context, events ...feed.Event) error {
	f.w.events = append(f.w.events, events...)
	return nil
}

func (f *fakeFeed) EnsureAuthorship(_ context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	var created []id.PaperID
	for _, paperID := range paperIDs {
		if f.w.authorshipEvents(person, paperID) == 0 {
			f.w.events = append(f.w.events, feed.Event{PersonID: person, PaperID: paperID, Type: feed.AuthorshipConfirmed})
			created = append(created, paperID)
		}
	}
	return created, nil
}

func (f *fakeFeed) DeleteAuthorship(_ context.Context, person id.PersonID, paperIDs []id.PaperID) ([]id.PaperID, error) {
	var deleted []id.PaperID
	kept := f.w.events[:0]
	for _, e := range f.w.events {
		if e.Type == feed.AuthorshipConfirmed && e.PersonID == person && slices.Contains(paperIDs, e.PaperID) {
			deleted = append(deleted, e.PaperID)
			continue
		}
		kept = append(kept, e)
	}
	f.w.events = kept
	return deleted, nil
}
