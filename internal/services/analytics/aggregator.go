// Package analytics rolls transaction and match state up into summaries for
// the dashboard.
package analytics

import (
	"context"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/shopspring/decimal"
	"gonum.org/v1/gonum/stat"

	"bank-reconciliation-backend/internal/cache"
	"bank-reconciliation-backend/internal/models"
	"bank-reconciliation-backend/internal/repository"
)

type Filter struct {
	AccountID *uuid.UUID
	From      *time.Time
	To        *time.Time
}

func (f Filter) key() string {
	k := "summary:"
	if f.AccountID != nil {
		k += f.AccountID.String()
	}
	k += "|"
	if f.From != nil {
		k += models.DateOnly(*f.From).Format("2006-01-02")
	}
	k += "|"
	if f.To != nil {
		k += models.DateOnly(*f.To).Format("2006-01-02")
	}
	return k
}

type StatusTotal struct {
	Status models.TransactionStatus `json:"status"`
	Count  int64                    `json:"count"`
	Amount decimal.Decimal          `json:"amount"`
}

// ScoreStats describes the distribution of active match scores.
type ScoreStats struct {
	Count  int     `json:"count"`
	Mean   float64 `json:"mean"`
	StdDev float64 `json:"std_dev"`
	Min    float64 `json:"min"`
	P25    float64 `json:"p25"`
	Median float64 `json:"median"`
	P75    float64 `json:"p75"`
	Max    float64 `json:"max"`
}

type Summary struct {
	TotalTransactions     int64            `json:"total_transactions"`
	MatchedTransactions   int64            `json:"matched_transactions"`
	UnmatchedTransactions int64            `json:"unmatched_transactions"`
	RequiresAttention     int64            `json:"requires_attention"`
	MatchRate             float64          `json:"match_rate"`
	MatchedAmount         decimal.Decimal  `json:"matched_amount"`
	UnmatchedAmount       decimal.Decimal  `json:"unmatched_amount"`
	MatchedVarianceAmount decimal.Decimal  `json:"matched_variance_amount"`
	TotalVariance         decimal.Decimal  `json:"total_variance"`
	ClosedPeriods         int64            `json:"closed_periods"`
	PeriodsWithVariance   int64            `json:"periods_with_variance"`
	ByStatus              []StatusTotal    `json:"by_status"`
	AutoMatched           int64            `json:"auto_matched"`
	ManualMatched         int64            `json:"manual_matched"`
	ByConfidence          map[string]int64 `json:"by_confidence"`
	Scores                ScoreStats       `json:"scores"`
	GeneratedAt           time.Time        `json:"generated_at"`
}

// Aggregator builds summaries and caches them until Invalidate is called or
// the cache TTL expires.
type Aggregator struct {
	store *repository.Store
	cache *cache.TTLCache[*Summary]
	now   func() time.Time
	log   zerolog.Logger
}

func NewAggregator(store *repository.Store, summaries *cache.TTLCache[*Summary], log zerolog.Logger) *Aggregator {
	return &Aggregator{
		store: store,
		cache: summaries,
		now:   func() time.Time { return time.Now().UTC() },
		log:   log.With().Str("service", "analytics").Logger(),
	}
}

func (a *Aggregator) WithClock(now func() time.Time) *Aggregator {
	a.now = now
	return a
}

// Invalidate drops every cached summary.
func (a *Aggregator) Invalidate() {
	if a.cache != nil {
		a.cache.Purge()
	}
}

func (a *Aggregator) Summary(ctx context.Context, f Filter) (*Summary, error) {
	key := f.key()
	if a.cache != nil {
		if s, ok := a.cache.Get(key); ok {
			return s, nil
		}
	}

	if f.AccountID != nil {
		if _, err := a.store.Accounts.GetByID(ctx, *f.AccountID); err != nil {
			return nil, err
		}
	}

	rf := repository.StatusFilter{AccountID: f.AccountID, From: f.From, To: f.To}
	var (
		rows      []repository.StatusRow
		attention int64
		scores    []repository.ScoreRow
		variance  repository.VarianceRow
	)
	err := a.store.Retry(ctx, func() error {
		var err error
		if rows, err = a.store.Transactions.StatusStats(ctx, rf); err != nil {
			return err
		}
		if attention, err = a.store.Transactions.AttentionCount(ctx, rf); err != nil {
			return err
		}
		if scores, err = a.store.Matches.ActiveScores(ctx, rf); err != nil {
			return err
		}
		variance, err = a.store.Periods.VarianceTotals(ctx, rf)
		return err
	})
	if err != nil {
		return nil, err
	}

	s := build(rows, scores)
	s.RequiresAttention = attention
	s.TotalVariance = variance.Total
	s.ClosedPeriods = variance.Periods
	s.PeriodsWithVariance = variance.WithVariance
	s.GeneratedAt = a.now()

	if a.cache != nil {
		a.cache.Set(key, s)
	}
	a.log.Debug().Str("key", key).Int64("total", s.TotalTransactions).Msg("Summary computed")
	return s, nil
}

func build(rows []repository.StatusRow, scores []repository.ScoreRow) *Summary {
	s := &Summary{
		MatchedAmount:         decimal.Zero,
		UnmatchedAmount:       decimal.Zero,
		MatchedVarianceAmount: decimal.Zero,
		TotalVariance:         decimal.Zero,
		ByStatus:              make([]StatusTotal, 0, len(rows)),
		ByConfidence:          map[string]int64{},
	}

	var ignored int64
	for _, row := range rows {
		status := models.TransactionStatus(row.Status)
		s.ByStatus = append(s.ByStatus, StatusTotal{Status: status, Count: row.Count, Amount: row.Sum})
		s.TotalTransactions += row.Count
		switch {
		case models.IsMatchedStatus(status):
			s.MatchedTransactions += row.Count
			s.MatchedAmount = s.MatchedAmount.Add(row.Sum)
			s.MatchedVarianceAmount = s.MatchedVarianceAmount.Add(row.Variance)
		case status == models.StatusUnmatched:
			s.UnmatchedTransactions += row.Count
			s.UnmatchedAmount = s.UnmatchedAmount.Add(row.Sum)
		case status == models.StatusIgnored:
			ignored += row.Count
		}
	}
	sort.Slice(s.ByStatus, func(i, j int) bool { return s.ByStatus[i].Status < s.ByStatus[j].Status })

	// Ignored lines are out of scope for the rate.
	if eligible := s.TotalTransactions - ignored; eligible > 0 {
		s.MatchRate = float64(s.MatchedTransactions) / float64(eligible) * 100
	}

	values := make([]float64, 0, len(scores))
	for _, row := range scores {
		if row.AutoMatched {
			s.AutoMatched++
		} else {
			s.ManualMatched++
		}
		s.ByConfidence[row.Confidence]++
		values = append(values, row.MatchingScore)
	}
	s.Scores = describe(values)
	return s
}

func describe(values []float64) ScoreStats {
	out := ScoreStats{Count: len(values)}
	if len(values) == 0 {
		return out
	}
	sort.Float64s(values)

	out.Mean = stat.Mean(values, nil)
	if len(values) > 1 {
		out.StdDev = finite(stat.StdDev(values, nil))
	}
	out.Min = values[0]
	out.Max = values[len(values)-1]
	out.P25 = stat.Quantile(0.25, stat.Empirical, values, nil)
	out.Median = stat.Quantile(0.5, stat.Empirical, values, nil)
	out.P75 = stat.Quantile(0.75, stat.Empirical, values, nil)
	return out
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
