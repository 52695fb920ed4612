//go:build integration

package store_test

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/suite"

	"litgraph/internal/importer"
	"litgraph/internal/importer/store"
	"litgraph/internal/paper"
	"litgraph/internal/platform/postgres"
	"litgraph/pkg/platform/sentinel"
	"litgraph/pkg/testutil/containers"
)

type SourceStoreSuite struct {
	suite.Suite
	postgres *containers.PostgresContainer
	papers   *paper.PostgresStore
	store    *store.PostgresStore
}

func TestSourceStoreSuite(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}
	suite.Run(t, new(SourceStoreSuite))
}

func (s *SourceStoreSuite) SetupSuite() {
	s.postgres = containers.GetManager().GetPostgres(s.T())
	s.papers = paper.NewPostgres(s.postgres.DB)
	s.store = store.NewPostgres(s.postgres.DB)
}

func (s *SourceStoreSuite) SetupTest() {
	s.Require().NoError(s.postgres.TruncateTables(context.Background(), postgres.Tables...))
}

func (s *SourceStoreSuite) newSource(code string) *importer.Source {
	bot := &paper.Person{Username: code + "-bot", IsBot: true, IsActive: true}
	s.Require().NoError(s.papers.CreatePerson(context.Background(), bot))
	src := &importer.Source{Code: code, Name: code, BotProfile: bot.ID}
	s.Require().NoError(s.store.Create(context.Background(), src))
	return src
}

func (s *SourceStoreSuite) TestCreateAndFind() {
	ctx := context.Background()
	src := s.newSource("arxiv")
	s.NotZero(src.ID)

	found, err := s.store.FindByCode(ctx, "arxiv")
	s.Require().NoError(err)
	s.Equal(src.ID, found.ID)
	s.Equal(src.BotProfile, found.BotProfile)
	s.Empty(found.Cursor)
	s.Equal(uuid.Nil, found.LeaseID)

	_, err = s.store.FindByCode(ctx, "pubmed")
	s.ErrorIs(err, sentinel.ErrNotFound)
}

func (s *SourceStoreSuite) TestDuplicateCode() {
	src := s.newSource("arxiv")
	err := s.store.Create(context.Background(), &importer.Source{Code: "arxiv", Name: "again", BotProfile: src.BotProfile})
	s.True(postgres.IsUniqueViolation(err))
}

func (s *SourceStoreSuite) TestLeaseAndCursor() {
	ctx := context.Background()
	src := s.newSource("arxiv")
	lease := uuid.New()
	expires := time.Now().Add(time.Minute).UTC().Truncate(time.Microsecond)

	s.Require().NoError(s.store.SetLease(ctx, src.ID, lease, expires))
	s.Require().NoError(s.store.SetCursor(ctx, src.ID, "2024-01-01"))
	locked, err := s.store.Lock(ctx, src.ID)
	s.Require().NoError(err)
	s.Equal(lease, locked.LeaseID)
	s.True(expires.Equal(locked.LeaseExpires))
	s.Equal("2024-01-01", locked.Cursor)
	s.True(locked.Leased(time.Now()))

	s.Require().NoError(s.store.SetLease(ctx, src.ID, uuid.Nil, time.Time{}))
	locked, err = s.store.Lock(ctx, src.ID)
	s.Require().NoError(err)
	s.False(locked.Leased(time.Now()))
	s.True(locked.LeaseExpires.IsZero())

	s.ErrorIs(s.store.SetCursor(ctx, src.ID+100, "x"), sentinel.ErrNotFound)
}
