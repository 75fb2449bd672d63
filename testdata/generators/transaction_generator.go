package main

import (
	"fmt"
	"math/rand"
	"time"

	"ledger-reconciliation-service/internal/models"

	"github.com/shopspring/decimal"
)

// LedgerGenerator builds large random ledger pairs
type LedgerGenerator struct {
	Count      int
	MatchRatio float64
	StartDate  time.Time
	EndDate    time.Time
	MinAmount  decimal.Decimal
	MaxAmount  decimal.Decimal
	Seed       int64
}

// NewLedgerGenerator covers calendar year 2024 with amounts up to 50,000
func NewLedgerGenerator(count int, matchRatio float64, seed int64) *LedgerGenerator {
	return &LedgerGenerator{
		Count:      count,
		MatchRatio: matchRatio,
		StartDate:  time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		EndDate:    time.Date(2024, 12, 31, 0, 0, 0, 0, time.UTC),
		MinAmount:  decimal.NewFromInt(10),
		MaxAmount:  decimal.NewFromInt(50000),
		Seed:       seed,
	}
}

// Generate creates Count invoices. MatchRatio of them appear on both sides,
// some with a differing amount; the rest are split evenly between the sides.
// Every fifth shared invoice is paid with a referenced transfer, and every
// seventh is booked over two lines on our side.
func (g *LedgerGenerator) Generate() *Dataset {
	rng := rand.New(rand.NewSource(g.Seed))
	days := int(g.EndDate.Sub(g.StartDate).Hours()/24) + 1
	spread := g.MaxAmount.Sub(g.MinAmount)

	d := &Dataset{Mode: models.ModeLedger}
	for i := 0; i < g.Count; i++ {
		date := g.StartDate.AddDate(0, 0, rng.Intn(days))
		value := decimal.NewFromFloat(rng.Float64()).Mul(spread).Add(g.MinAmount).Round(2)
		number := fmt.Sprintf("FTR-%06d", i+1)
		key := models.DocumentKey(number)
		ours := Line{Date: date, Document: number, Debit: value, Description: "Satış"}

		draw := rng.Float64()
		switch {
		case draw < g.MatchRatio:
			theirs := Mirror(ours)
			expected := exact(key, key)
			if rng.Float64() < 0.1 {
				delta := decimal.NewFromInt(int64(rng.Intn(500) + 5))
				theirs.Debit = value.Sub(delta)
				expected.Status = models.StatusAmountDifference
				expected.Difference = delta
			}
			d.Theirs = append(d.Theirs, theirs)
			d.Expected = append(d.Expected, expected)

			if i%7 == 0 {
				first := value.Div(decimal.NewFromInt(3)).Round(2)
				head, tail := ours, ours
				head.Debit, tail.Debit, tail.Description = first, value.Sub(first), "KDV"
				d.Ours = append(d.Ours, head, tail)
			} else {
				d.Ours = append(d.Ours, ours)
			}

			if i%5 == 0 {
				d.addPayment(rng, fmt.Sprintf("DK-%07d", i+1), date, theirs.Debit)
			}

		case draw < g.MatchRatio+(1-g.MatchRatio)/2:
			d.Ours = append(d.Ours, ours)
			d.Expected = append(d.Expected, Expectation{Ours: key, Status: models.StatusUnmatchedOurs, Difference: value})

		default:
			d.Theirs = append(d.Theirs, Mirror(ours))
			d.Expected = append(d.Expected, Expectation{Theirs: key, Status: models.StatusUnmatchedTheirs, Difference: value.Neg()})
		}
	}

	rng.Shuffle(len(d.Theirs), func(i, j int) { d.Theirs[i], d.Theirs[j] = d.Theirs[j], d.Theirs[i] })
	return d
}

// addPayment settles an invoice a few days later; the counterparty's value
// date lags by up to two days.
func (d *Dataset) addPayment(rng *rand.Rand, reference string, invoiced time.Time, value decimal.Decimal) {
	paid := invoiced.AddDate(0, 0, 10+rng.Intn(20))
	ours := Line{Date: paid, Type: oursPaymentType, Reference: reference, Credit: value, Description: "Havale"}
	theirs := Mirror(ours)
	theirs.ValueDate = paid.AddDate(0, 0, rng.Intn(3))

	key := models.ReferenceKey(reference)
	d.Ours = append(d.Ours, ours)
	d.Theirs = append(d.Theirs, theirs)
	d.Expected = append(d.Expected, Expectation{Ours: key, Theirs: key, Status: models.StatusExactMatch, Strategy: models.StrategyPaymentReference})
}
