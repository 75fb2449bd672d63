// Package reconciler runs a complete reconciliation: validate the mapping,
// normalize and group both sides, match, and roll up balances.
//
// The two sides have no data dependency until matching, so their
// normalize and group stages run concurrently. Matching and roll-up wait for
// both. Every run builds its own indices and consumption sets; a Service can
// be shared between goroutines.
//
// Example usage:
//
//	service := reconciler.NewService()
//	result, err := service.Run(ctx, &reconciler.Request{
//		Ours:   oursTable,
//		Theirs: theirsTable,
//		Config: config,
//	})
package reconciler

import (
	"context"
	"sort"
	"time"

	"ledger-reconciliation-service/internal/grouper"
	"ledger-reconciliation-service/internal/matcher"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/normalizer"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/rollup"
	"ledger-reconciliation-service/pkg/errors"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/sourcegraph/conc/pool"
)

// Request holds the inputs of one run
type Request struct {
	Ours   *parsers.Table
	Theirs *parsers.Table
	Config *Config
}

// Validate checks that both tables and a configuration are present
func (r *Request) Validate() error {
	if r.Ours == nil {
		return errors.ValidationError(errors.CodeMissingField, "ours", nil, nil).
			WithSuggestion("provide at least one file for our side")
	}
	if r.Theirs == nil {
		return errors.ValidationError(errors.CodeMissingField, "theirs", nil, nil).
			WithSuggestion("provide at least one file for their side")
	}
	if r.Config == nil {
		return errors.ConfigurationError(errors.CodeMissingConfig, "config", nil, nil)
	}
	return nil
}

// Result contains the complete outcome of a run
type Result struct {
	RunID string      `json:"run_id"`
	Mode  models.Mode `json:"mode"`

	MatchedDocuments []*models.MatchResult   `json:"matched_documents"`
	MatchedPayments  []*models.MatchResult   `json:"matched_payments"`
	UnmatchedOurs    []*models.GroupedRecord `json:"unmatched_ours"`
	UnmatchedTheirs  []*models.GroupedRecord `json:"unmatched_theirs"`
	Balances         *rollup.Table           `json:"balances"`

	ForeignCurrencyUsed bool      `json:"foreign_currency_used"`
	Summary             *Summary  `json:"summary"`
	ProcessedAt         time.Time `json:"processed_at"`
}

// Summary provides a high-level overview of a run
type Summary struct {
	OursTable   string           `json:"ours_table"`
	TheirsTable string           `json:"theirs_table"`
	OursStats   normalizer.Stats `json:"ours_stats"`
	TheirsStats normalizer.Stats `json:"theirs_stats"`

	Matching matcher.Summary `json:"matching"`

	// ClosingDifference is the cumulative difference of the last period per currency
	ClosingDifference map[string]decimal.Decimal `json:"closing_difference"`

	Stages             []logger.StageStats `json:"stages"`
	ProcessingDuration time.Duration       `json:"processing_duration"`
}

// Service runs reconciliations
type Service struct {
	logger logger.Logger
}

// NewService creates a new reconciliation service
func NewService() *Service {
	return &Service{logger: logger.GetGlobalLogger().WithComponent("reconciler")}
}

// sideOutput is what the concurrent stage produces for one side
type sideOutput struct {
	normalized *normalizer.Result
	documents  []*models.GroupedRecord
	payments   []*models.GroupedRecord
}

// Run performs a reconciliation. A configuration problem fails the whole run
// before any matching happens; there is never a partial result.
func (s *Service) Run(ctx context.Context, req *Request) (*Result, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	config := *req.Config
	config.ApplyDefaults()
	if err := config.ValidateAgainst(req.Ours, req.Theirs); err != nil {
		s.logger.WithError(err).Warn("Rejected reconciliation configuration")
		return nil, err
	}

	runID := uuid.NewString()
	log := s.logger.WithField("run_id", runID)
	tracker := logger.NewStageTracker("reconcile", log)
	started := time.Now()

	log.WithFields(logger.Fields{
		"mode":   config.Mode,
		"ours":   req.Ours.String(),
		"theirs": req.Theirs.String(),
	}).Info("Starting reconciliation")

	var oursOut, theirsOut sideOutput
	p := pool.New().WithErrors().WithContext(ctx).WithCancelOnError().WithFirstError()
	p.Go(func(ctx context.Context) error {
		return s.prepareSide(ctx, tracker, req.Ours, &config.Ours, models.SideOurs, config.FXPolicy, &oursOut)
	})
	p.Go(func(ctx context.Context) error {
		return s.prepareSide(ctx, tracker, req.Theirs, &config.Theirs, models.SideTheirs, config.FXPolicy, &theirsOut)
	})
	if err := p.Wait(); err != nil {
		return nil, s.wrapStageError(ctx, "normalization", err)
	}

	if err := ctx.Err(); err != nil {
		return nil, errors.ReconciliationError(errors.CodeCancelled, "matching", err)
	}

	var matched *matcher.Result
	_ = tracker.Stage("match", func() (int, error) {
		engine := matcher.NewEngine(&config.Matching)
		matched = engine.Match(oursOut.documents, theirsOut.documents, oursOut.payments, theirsOut.payments)
		return len(oursOut.documents) + len(oursOut.payments), nil
	})

	var balances *rollup.Table
	_ = tracker.Stage("rollup", func() (int, error) {
		oursAll, theirsAll := oursOut.normalized.All(), theirsOut.normalized.All()
		balances = rollup.Compute(oursAll, theirsAll)
		return len(oursAll) + len(theirsAll), nil
	})

	result := &Result{
		RunID:               runID,
		Mode:                config.Mode,
		MatchedDocuments:    matched.MatchedDocuments,
		MatchedPayments:     matched.MatchedPayments,
		UnmatchedOurs:       matched.UnmatchedOurs,
		UnmatchedTheirs:     matched.UnmatchedTheirs,
		Balances:            balances,
		ForeignCurrencyUsed: oursOut.normalized.ForeignCurrencyUsed || theirsOut.normalized.ForeignCurrencyUsed,
		ProcessedAt:         started,
		Summary: &Summary{
			OursTable:          req.Ours.Name,
			TheirsTable:        req.Theirs.Name,
			OursStats:          oursOut.normalized.Stats,
			TheirsStats:        theirsOut.normalized.Stats,
			Matching:           matched.Summary,
			ClosingDifference:  closingDifferences(balances),
			Stages:             tracker.Stages(),
			ProcessingDuration: time.Since(started),
		},
	}

	tracker.Complete()
	log.WithField("summary", matched.Summary.String()).Info("Reconciliation finished")
	return result, nil
}

// prepareSide normalizes one side and groups its document and payment streams
func (s *Service) prepareSide(
	ctx context.Context,
	tracker *logger.StageTracker,
	table *parsers.Table,
	config *parsers.SideConfig,
	side models.Side,
	policy grouper.FXPolicy,
	out *sideOutput,
) error {
	name := "normalize " + string(side)
	err := tracker.Stage(name, func() (int, error) {
		normalized, err := normalizer.New(config, side).Normalize(table)
		if err != nil {
			return 0, err
		}
		out.normalized = normalized
		return len(table.Rows), nil
	})
	if err != nil {
		return err
	}

	if err := ctx.Err(); err != nil {
		return err
	}

	return tracker.Stage("group "+string(side), func() (int, error) {
		keyed, keyless := normalizer.SplitByDocumentKey(out.normalized.Main)
		paymentStream := mergeByRow(keyless, out.normalized.Payments)

		g := grouper.New(policy)
		out.documents = g.Group(keyed, models.StreamDocument)
		out.payments = g.Group(paymentStream, models.StreamPayment)
		return len(keyed) + len(paymentStream), nil
	})
}

func (s *Service) wrapStageError(ctx context.Context, operation string, err error) error {
	if ctx.Err() != nil {
		return errors.ReconciliationError(errors.CodeCancelled, operation, ctx.Err())
	}
	return errors.WrapIfNeeded(err, errors.CategoryReconciliation, errors.CodeProcessingError, "failed during "+operation)
}

// mergeByRow merges two row-ordered streams into one, keeping row order
func mergeByRow(a, b []models.CanonicalRecord) []models.CanonicalRecord {
	out := make([]models.CanonicalRecord, 0, len(a)+len(b))
	out = append(out, a...)
	out = append(out, b...)
	sort.SliceStable(out, func(i, j int) bool { return out[i].Row < out[j].Row })
	return out
}

func closingDifferences(table *rollup.Table) map[string]decimal.Decimal {
	out := make(map[string]decimal.Decimal)
	for _, row := range table.Closing() {
		out[row.Currency] = row.CumulativeDifference
	}
	return out
}
