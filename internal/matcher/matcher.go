package matcher

import (
	"fmt"

	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/pkg/logger"

	"github.com/shopspring/decimal"
)

// Engine runs the document and payment passes
type Engine struct {
	Config *MatchingConfig
	logger logger.Logger
}

// Result holds the outcome of one matching run
type Result struct {
	MatchedDocuments []*models.MatchResult
	MatchedPayments  []*models.MatchResult
	// UnmatchedOurs and UnmatchedTheirs hold leftover documents first, then
	// leftover payments; Stream tells them apart.
	UnmatchedOurs   []*models.GroupedRecord
	UnmatchedTheirs []*models.GroupedRecord
	Summary         Summary
}

// Summary provides aggregate statistics about a matching run
type Summary struct {
	OursDocuments   int `json:"ours_documents"`
	TheirsDocuments int `json:"theirs_documents"`
	OursPayments    int `json:"ours_payments"`
	TheirsPayments  int `json:"theirs_payments"`

	ExactMatches      int `json:"exact_matches"`
	AmountDifferences int `json:"amount_differences"`
	MatchedPayments   int `json:"matched_payments"`
	UnmatchedOurs     int `json:"unmatched_ours"`
	UnmatchedTheirs   int `json:"unmatched_theirs"`

	// Ambiguous counts selections where several candidates were equally good
	// and the first in row order was taken.
	Ambiguous  int                     `json:"ambiguous"`
	ByStrategy map[models.Strategy]int `json:"by_strategy"`

	MatchedDifference  decimal.Decimal `json:"matched_difference"`
	UnmatchedOursNet   decimal.Decimal `json:"unmatched_ours_net"`
	UnmatchedTheirsNet decimal.Decimal `json:"unmatched_theirs_net"`
}

// MatchRate returns the share of our-side records that found a counterpart
func (s Summary) MatchRate() float64 {
	total := s.OursDocuments + s.OursPayments
	if total == 0 {
		return 0
	}
	return float64(s.ExactMatches+s.AmountDifferences) / float64(total)
}

// String returns a one-line summary
func (s Summary) String() string {
	return fmt.Sprintf("%d exact, %d with difference, %d unmatched ours, %d unmatched theirs (%.1f%% matched)",
		s.ExactMatches, s.AmountDifferences, s.UnmatchedOurs, s.UnmatchedTheirs, s.MatchRate()*100)
}

// NewEngine creates a new matching engine with the specified configuration
func NewEngine(config *MatchingConfig) *Engine {
	if config == nil {
		config = DefaultMatchingConfig()
	}

	return &Engine{
		Config: config,
		logger: logger.GetGlobalLogger().WithComponent("matcher"),
	}
}

// Match pairs our-side records with their-side records. Documents and
// payments are matched in separate passes with their own indices and
// consumption sets. Inputs are not modified.
func (e *Engine) Match(oursDocs, theirsDocs, oursPayments, theirsPayments []*models.GroupedRecord) *Result {
	result := &Result{}
	summary := &result.Summary
	summary.ByStrategy = make(map[models.Strategy]int)

	docs := e.matchDocuments(oursDocs, theirsDocs, summary)
	result.MatchedDocuments = docs.matched
	result.UnmatchedOurs = append(result.UnmatchedOurs, docs.unmatchedOurs...)
	result.UnmatchedTheirs = append(result.UnmatchedTheirs, docs.unmatchedTheirs...)

	var pays pass
	if e.Config.MatchPayments {
		pays = e.matchPayments(oursPayments, theirsPayments, summary)
	} else {
		pays = pass{unmatchedOurs: oursPayments, unmatchedTheirs: theirsPayments}
	}
	result.MatchedPayments = pays.matched
	result.UnmatchedOurs = append(result.UnmatchedOurs, pays.unmatchedOurs...)
	result.UnmatchedTheirs = append(result.UnmatchedTheirs, pays.unmatchedTheirs...)

	e.summarize(result, len(oursDocs), len(theirsDocs), len(oursPayments), len(theirsPayments))

	e.logger.WithFields(logger.Fields{
		"documents": len(result.MatchedDocuments),
		"payments":  len(result.MatchedPayments),
		"summary":   summary.String(),
	}).Info("Matching completed")

	return result
}

// pass is the outcome of one matching pass
type pass struct {
	matched         []*models.MatchResult
	unmatchedOurs   []*models.GroupedRecord
	unmatchedTheirs []*models.GroupedRecord
}

// strategy tries to pair ours with an unconsumed candidate of index
type strategy func(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult

func (e *Engine) run(ours, theirs []*models.GroupedRecord, strategies []strategy, summary *Summary) pass {
	index := NewCandidateIndex(theirs, e.Config.AmountPrecision)
	consumed := NewConsumedSet()

	stats := index.GetIndexStats()
	e.logger.WithFields(logger.Fields{
		"records":          stats.Records,
		"document_keys":    stats.DocumentKeys,
		"amount_keys":      stats.AmountKeys,
		"reference_keys":   stats.ReferenceKeys,
		"date_amount_keys": stats.DateAmountKeys,
	}).Debug("Candidate index built")

	var out pass
	for _, o := range ours {
		var match *models.MatchResult
		for _, try := range strategies {
			if match = try(o, index, consumed, summary); match != nil {
				break
			}
		}

		if match == nil {
			out.unmatchedOurs = append(out.unmatchedOurs, o)
			continue
		}
		consumed.Take(match.Theirs)
		out.matched = append(out.matched, match)
	}

	out.unmatchedTheirs = index.Remaining(consumed)
	return out
}

func (e *Engine) matchDocuments(ours, theirs []*models.GroupedRecord, summary *Summary) pass {
	strategies := []strategy{e.byDocumentKey}
	if e.Config.AmountFallback {
		strategies = append(strategies, e.byAmountCurrency)
	}

	out := e.run(ours, theirs, strategies, summary)
	e.logger.WithFields(logger.Fields{
		"ours":     len(ours),
		"theirs":   len(theirs),
		"matched":  len(out.matched),
		"fallback": e.Config.AmountFallback,
	}).Debug("Document pass finished")
	return out
}

func (e *Engine) matchPayments(ours, theirs []*models.GroupedRecord, summary *Summary) pass {
	out := e.run(ours, theirs, []strategy{e.byReference, e.byDateAmount, e.byDateWindow}, summary)
	e.logger.WithFields(logger.Fields{
		"ours":    len(ours),
		"theirs":  len(theirs),
		"matched": len(out.matched),
	}).Debug("Payment pass finished")
	return out
}

// byDocumentKey picks, among unconsumed candidates sharing the document key,
// the one closest to a perfect mirror of ours.
func (e *Engine) byDocumentKey(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult {
	var best *models.GroupedRecord
	var bestDiff decimal.Decimal
	ties := 0

	for _, c := range index.GetByDocument(ours.DocumentKey) {
		if consumed.Has(c) {
			continue
		}

		diff := ours.Net().Add(c.Net()).Abs()
		switch {
		case best == nil || diff.LessThan(bestDiff):
			best, bestDiff, ties = c, diff, 0
		case diff.Equal(bestDiff):
			ties++
		}
	}

	if best == nil {
		return nil
	}
	if ties > 0 {
		summary.Ambiguous++
	}
	return models.NewPairResult(ours, best, models.StrategyDocumentKey, e.Config.documentTolerance())
}

// byAmountCurrency pairs ours with a mirrored candidate of the same rounded
// amount and currency, preferring one booked on the same day.
//
// Candidates are looked up by absolute amount but only opposite-sign ones are
// accepted. Two records carrying the same sign are left unmatched rather than
// paired as an amount difference of twice their size; a side configured with
// the wrong buyer/seller role therefore shows up as unmatched on both sides.
func (e *Engine) byAmountCurrency(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult {
	candidates := index.GetByAmount(ours)
	mirrored := func(c *models.GroupedRecord) bool { return index.IsMirrored(ours, c) }

	pick := firstAvailable(candidates, consumed, func(c *models.GroupedRecord) bool {
		return mirrored(c) && ours.HasDate() && c.OccurredAt.Equal(ours.OccurredAt)
	})
	if pick == nil {
		pick = firstAvailable(candidates, consumed, mirrored)
	}
	if pick == nil {
		return nil
	}
	return models.NewPairResult(ours, pick, models.StrategyAmountCurrency, e.Config.documentTolerance())
}

// byReference pairs payments carrying the same reference key
func (e *Engine) byReference(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult {
	pick := firstAvailable(index.GetByReference(ours.ReferenceKey), consumed, nil)
	if pick == nil {
		return nil
	}
	return models.NewPairResult(ours, pick, models.StrategyPaymentReference, e.Config.referenceTolerance())
}

// byDateAmount pairs mirrored payments settled on the same day
func (e *Engine) byDateAmount(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult {
	pick := firstAvailable(index.GetByDateAmount(ours), consumed, func(c *models.GroupedRecord) bool {
		return index.IsMirrored(ours, c)
	})
	if pick == nil {
		return nil
	}
	return models.NewPairResult(ours, pick, models.StrategyPaymentDateAmount, e.Config.dateAmountTolerance())
}

// byDateWindow pairs mirrored payments whose settlement dates are within the
// configured window
func (e *Engine) byDateWindow(ours *models.GroupedRecord, index *CandidateIndex, consumed *ConsumedSet, summary *Summary) *models.MatchResult {
	pick := firstAvailable(index.GetByAmount(ours), consumed, func(c *models.GroupedRecord) bool {
		return index.IsMirrored(ours, c) && e.Config.IsWithinPaymentWindow(ours.SettlementAt, c.SettlementAt)
	})
	if pick == nil {
		return nil
	}
	return models.NewPairResult(ours, pick, models.StrategyPaymentDateWindow, e.Config.dateAmountTolerance())
}

func (e *Engine) summarize(result *Result, oursDocs, theirsDocs, oursPayments, theirsPayments int) {
	s := &result.Summary
	s.OursDocuments = oursDocs
	s.TheirsDocuments = theirsDocs
	s.OursPayments = oursPayments
	s.TheirsPayments = theirsPayments
	s.MatchedPayments = len(result.MatchedPayments)
	s.UnmatchedOurs = len(result.UnmatchedOurs)
	s.UnmatchedTheirs = len(result.UnmatchedTheirs)
	s.MatchedDifference = decimal.Zero
	s.UnmatchedOursNet = decimal.Zero
	s.UnmatchedTheirsNet = decimal.Zero

	for _, group := range [][]*models.MatchResult{result.MatchedDocuments, result.MatchedPayments} {
		for _, m := range group {
			if m.Status == models.StatusExactMatch {
				s.ExactMatches++
			} else {
				s.AmountDifferences++
			}
			s.ByStrategy[m.Strategy]++
			s.MatchedDifference = s.MatchedDifference.Add(m.AmountDifference)
		}
	}

	for _, r := range result.UnmatchedOurs {
		s.UnmatchedOursNet = s.UnmatchedOursNet.Add(r.Net())
	}
	for _, r := range result.UnmatchedTheirs {
		s.UnmatchedTheirsNet = s.UnmatchedTheirsNet.Add(r.Net())
	}
}

// AllResults returns every outcome as a MatchResult: matched documents,
// matched payments, then unmatched ours and unmatched theirs.
func (r *Result) AllResults() []*models.MatchResult {
	out := make([]*models.MatchResult, 0, len(r.MatchedDocuments)+len(r.MatchedPayments)+len(r.UnmatchedOurs)+len(r.UnmatchedTheirs))
	out = append(out, r.MatchedDocuments...)
	out = append(out, r.MatchedPayments...)
	for _, u := range r.UnmatchedOurs {
		out = append(out, models.NewUnmatchedResult(u))
	}
	for _, u := range r.UnmatchedTheirs {
		out = append(out, models.NewUnmatchedResult(u))
	}
	return out
}
