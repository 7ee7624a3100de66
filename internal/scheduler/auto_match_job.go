package scheduler

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"bank-reconciliation-backend/internal/services/reconciliation"
)

type AutoMatcher interface {
	AutoMatch(ctx context.Context, req reconciliation.AutoMatchRequest) (*reconciliation.AutoMatchResult, error)
}

// AutoMatchJob drains the unmatched queue across all accounts, one batch at
// a time, following the resume cursor until it is exhausted.
type AutoMatchJob struct {
	ctx       context.Context
	matcher   AutoMatcher
	batchSize int
	log       zerolog.Logger
}

func NewAutoMatchJob(ctx context.Context, matcher AutoMatcher, batchSize int, log zerolog.Logger) *AutoMatchJob {
	return &AutoMatchJob{
		ctx:       ctx,
		matcher:   matcher,
		batchSize: batchSize,
		log:       log.With().Str("job", "auto_match").Logger(),
	}
}

func (j *AutoMatchJob) Name() string { return "auto_match" }

func (j *AutoMatchJob) Run() error {
	total := reconciliation.AutoMatchResult{}
	var errs []error
	cursor := ""
	batches := 0

	for {
		if err := j.ctx.Err(); err != nil {
			return err
		}
		res, err := j.matcher.AutoMatch(j.ctx, reconciliation.AutoMatchRequest{
			Limit:  j.batchSize,
			After:  cursor,
			UserID: reconciliation.SystemUser,
		})
		if err != nil {
			errs = append(errs, err)
			break
		}
		batches++
		total.Processed += res.Processed
		total.Matched += res.Matched
		total.PotentialMatches += res.PotentialMatches
		total.Errors = append(total.Errors, res.Errors...)

		if res.NextCursor == "" || res.NextCursor == cursor {
			break
		}
		cursor = res.NextCursor
	}

	j.log.Info().
		Int("batches", batches).
		Int("processed", total.Processed).
		Int("matched", total.Matched).
		Int("potential_matches", total.PotentialMatches).
		Int("errors", len(total.Errors)).
		Msg("Auto-match run finished")
	return errors.Join(errs...)
}
