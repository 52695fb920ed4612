package importer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"litgraph/internal/alias"
	"litgraph/internal/paper"
	"litgraph/internal/platform/postgres"
	id "litgraph/pkg/domain"
	dErrors "litgraph/pkg/domain-errors"
	"litgraph/pkg/platform/sentinel"
	"litgraph/pkg/requestcontext"
)

const botBio = "Robot account in charge of automatically importing new papers from %s."

// Source is the import state of one harvested repository. LeaseID is
// uuid.Nil while no run holds the source.
type Source struct {
	ID           id.SourceID
	Code         string
	Name         string
	BotProfile   id.PersonID
	Cursor       string
	LeaseID      uuid.UUID
	LeaseExpires time.Time
}

// Leased reports whether a run holds the source at now.
func (s *Source) Leased(now time.Time) bool {
	return s.LeaseID != uuid.Nil && now.Before(s.LeaseExpires)
}

type SourceStore interface {
	FindByCode(ctx context.Context, code string) (*Source, error)
	Create(ctx context.Context, s *Source) error
	Lock(ctx context.Context, sourceID id.SourceID) (*Source, error)
	SetLease(ctx context.Context, sourceID id.SourceID, lease uuid.UUID, expires time.Time) error
	SetCursor(ctx context.Context, sourceID id.SourceID, cursor string) error
}

// OpenSource returns the import state of code, creating the source and its
// bot profile on first use. The bot is the poster of every paper the source
// imports and carries the permanent handle u/<code>-bot.
func (i *Importer) OpenSource(ctx context.Context, code, name, botName string) (*Source, error) {
	var src *Source
	err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := i.papers.LockPersons(ctx); err != nil {
			return err
		}
		found, err := i.sources.FindByCode(ctx, code)
		if err == nil {
			src = found
			return nil
		}
		if !errors.Is(err, sentinel.ErrNotFound) {
			return err
		}

		bot := &paper.Person{
			Username:    code + "-bot",
			DisplayName: botName,
			Bio:         fmt.Sprintf(botBio, name),
			IsActive:    true,
			IsBot:       true,
		}
		if err := i.papers.CreatePerson(ctx, bot); err != nil {
			return botProfileError(name, err)
		}
		if _, err := i.personAliases.LinkAlias(ctx, alias.PersonHandle(bot.Username), bot.ID); err != nil {
			return botProfileError(name, err)
		}
		src = &Source{Code: code, Name: name, BotProfile: bot.ID}
		if err := i.sources.Create(ctx, src); err != nil {
			return botProfileError(name, err)
		}
		i.logger.InfoContext(ctx, "import source created",
			"source", code,
			"bot_profile", bot.ID,
		)
		return nil
	})
	if err != nil {
		if dErrors.IsFatal(err) {
			return nil, err
		}
		return nil, fmt.Errorf("open import source %s: %w", code, err)
	}
	return src, nil
}

func botProfileError(name string, err error) error {
	if postgres.IsUniqueViolation(err) || errors.Is(err, sentinel.ErrConflict) {
		return dErrors.Wrap(err, dErrors.CodeBotProfile,
			fmt.Sprintf("cannot create bot profile or import source record for %s", name))
	}
	return err
}

// acquire takes the run lease of src. The cursor the run starts from must
// still be the stored one; a live lease or a moved cursor means another run.
func (i *Importer) acquire(ctx context.Context, src *Source) (uuid.UUID, error) {
	lease := uuid.New()
	err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := i.sources.Lock(ctx, src.ID)
		if err != nil {
			return err
		}
		now := requestcontext.Now(ctx)
		if current.Leased(now) || current.Cursor != src.Cursor {
			return i.concurrentImport(ctx, src)
		}
		return i.sources.SetLease(ctx, src.ID, lease, now.Add(i.leaseTTL))
	})
	if err != nil {
		return uuid.Nil, err
	}
	src.LeaseID = lease
	return lease, nil
}

// verify re-checks the lease and cursor inside a batch transaction and
// extends the lease. The source row stays locked until the batch commits.
func (i *Importer) verify(ctx context.Context, src *Source, lease uuid.UUID) error {
	current, err := i.sources.Lock(ctx, src.ID)
	if err != nil {
		return err
	}
	if current.LeaseID != lease || current.Cursor != src.Cursor {
		return i.concurrentImport(ctx, src)
	}
	return i.sources.SetLease(ctx, src.ID, lease, requestcontext.Now(ctx).Add(i.leaseTTL))
}

// finish stores the new cursor and drops the lease.
func (i *Importer) finish(ctx context.Context, src *Source, lease uuid.UUID, cursor string) error {
	err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
		if err := i.verify(ctx, src, lease); err != nil {
			return err
		}
		if err := i.sources.SetCursor(ctx, src.ID, cursor); err != nil {
			return err
		}
		return i.sources.SetLease(ctx, src.ID, uuid.Nil, time.Time{})
	})
	if err != nil {
		return err
	}
	src.Cursor = cursor
	src.LeaseID = uuid.Nil
	return nil
}

// release drops the lease after a failed run if it is still ours.
func (i *Importer) release(ctx context.Context, src *Source, lease uuid.UUID) {
	ctx = context.WithoutCancel(ctx)
	err := i.tx.RunInTx(ctx, func(ctx context.Context) error {
		current, err := i.sources.Lock(ctx, src.ID)
		if err != nil {
			return err
		}
		if current.LeaseID != lease {
			return nil
		}
		return i.sources.SetLease(ctx, src.ID, uuid.Nil, time.Time{})
	})
	if err != nil {
		i.logger.ErrorContext(ctx, "failed to release import lease", "source", src.Code, "error", err)
	}
	src.LeaseID = uuid.Nil
}

func (i *Importer) concurrentImport(ctx context.Context, src *Source) error {
	i.logger.ErrorContext(ctx, "concurrent import detected", "source", src.Code)
	return dErrors.Newf(dErrors.CodeConcurrentImport, "concurrent %s import process detected", src.Name)
}
