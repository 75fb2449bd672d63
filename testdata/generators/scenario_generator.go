package main

import "ledger-reconciliation-service/internal/models"

func invoice(date int, document, debit, description string) Line {
	return Line{Date: day(date), Document: document, Debit: amount(debit), Description: description}
}

func payment(date int, reference, credit string) Line {
	return Line{Date: day(date), Type: oursPaymentType, Reference: reference, Credit: amount(credit), Description: "Havale"}
}

func exact(ours, theirs string) Expectation {
	return Expectation{Ours: ours, Theirs: theirs, Status: models.StatusExactMatch, Strategy: models.StrategyDocumentKey}
}

// ExactScenario has three invoices and a credit note recorded identically
func ExactScenario() *Dataset {
	ours := []Line{
		invoice(3, "FTR-000101", "1000", "Ocak faturası"),
		invoice(5, "FTR-000102", "2450.75", "Nakliye"),
		invoice(8, "FTR-000103", "12500", "Yazılım lisansı"),
		{Date: day(9), Document: "IADE-000104", Credit: amount("300"), Description: "İade"},
	}

	d := &Dataset{Mode: models.ModeLedger, Ours: ours}
	for _, l := range ours {
		d.Theirs = append(d.Theirs, Mirror(l))
	}
	d.Expected = []Expectation{exact("101", "101"), exact("102", "102"), exact("103", "103"), exact("104", "104")}
	return d
}

// DifferenceScenario has one invoice off by more than the tolerance and one within it
func DifferenceScenario() *Dataset {
	d := &Dataset{
		Mode: models.ModeLedger,
		Ours: []Line{
			invoice(4, "FTR-000201", "1500", "Danışmanlık"),
			invoice(6, "FTR-000202", "980.40", "Kırtasiye"),
		},
		Theirs: []Line{
			{Date: day(4), Document: "201", Debit: amount("1480")},
			{Date: day(6), Document: "202", Debit: amount("980")},
		},
	}
	d.Expected = []Expectation{
		{Ours: "201", Theirs: "201", Status: models.StatusAmountDifference, Strategy: models.StrategyDocumentKey, Difference: amount("20")},
		{Ours: "202", Theirs: "202", Status: models.StatusExactMatch, Strategy: models.StrategyDocumentKey, Difference: amount("0.40")},
	}
	return d
}

// SplitInvoiceScenario books invoices over several lines on our side only
func SplitInvoiceScenario() *Dataset {
	d := &Dataset{
		Mode: models.ModeLedger,
		Ours: []Line{
			invoice(10, "FTR-000301", "600", "Mal bedeli"),
			invoice(10, "FTR-000301", "400", "KDV"),
			invoice(12, "FTR-000302", "800", "Mal bedeli"),
			{Date: day(14), Document: "FTR-000302", Credit: amount("100"), Description: "Kısmi iade"},
		},
		Theirs: []Line{
			{Date: day(10), Document: "301", Debit: amount("1000")},
			{Date: day(12), Document: "302", Debit: amount("700")},
		},
	}
	d.Expected = []Expectation{exact("301", "301"), exact("302", "302")}
	return d
}

// PaymentScenario exercises the three payment strategies in order
func PaymentScenario() *Dataset {
	byReference := payment(10, "DK-7001", "5000")
	byDateAmount := payment(15, "", "2500")
	byWindow := payment(19, "", "1200")
	byWindow.ValueDate = day(20)

	theirsWindow := Mirror(byWindow)
	theirsWindow.Date = day(21)
	theirsWindow.ValueDate = day(22)

	d := &Dataset{
		Mode: models.ModeLedger,
		Ours: []Line{
			invoice(2, "FTR-000401", "8700", "Hizmet bedeli"),
			byReference,
			byDateAmount,
			byWindow,
		},
		Theirs: []Line{
			{Date: day(2), Document: "401", Debit: amount("8700")},
			Mirror(byReference),
			Mirror(byDateAmount),
			theirsWindow,
		},
	}
	d.Expected = []Expectation{
		exact("401", "401"),
		{Ours: "DK7001", Theirs: "DK7001", Status: models.StatusExactMatch, Strategy: models.StrategyPaymentReference},
		{Status: models.StatusExactMatch, Strategy: models.StrategyPaymentDateAmount},
		{Status: models.StatusExactMatch, Strategy: models.StrategyPaymentDateWindow},
	}
	return d
}

// UnmatchedScenario has one document on each side the other side never recorded
func UnmatchedScenario() *Dataset {
	d := &Dataset{
		Mode: models.ModeLedger,
		Ours: []Line{
			invoice(20, "FTR-000501", "900", "Yolda fatura"),
			invoice(21, "FTR-000503", "75", "Kargo"),
		},
		Theirs: []Line{
			{Date: day(22), Document: "502", Debit: amount("350")},
			{Date: day(21), Document: "503", Debit: amount("75")},
		},
	}
	d.Expected = []Expectation{
		{Ours: "501", Status: models.StatusUnmatchedOurs, Difference: amount("900")},
		{Theirs: "502", Status: models.StatusUnmatchedTheirs, Difference: amount("-350")},
		exact("503", "503"),
	}
	return d
}

// ForeignCurrencyScenario carries USD and EUR invoices next to local ones
func ForeignCurrencyScenario() *Dataset {
	usd := invoice(15, "FTR-000601", "32000", "İthalat")
	usd.Currency, usd.FXAmount = "USD", amount("1000")
	eur := invoice(16, "FTR-000602", "17500", "İthalat")
	eur.Currency, eur.FXAmount = "EUR", amount("500")
	local := invoice(16, "FTR-000603", "4200", "Yerel alım")
	local.Currency = "TL"

	theirsEUR := Mirror(eur)
	theirsEUR.Debit, theirsEUR.FXAmount = amount("17450"), amount("498.50")

	d := &Dataset{
		Mode:   models.ModeLedger,
		Ours:   []Line{usd, eur, local},
		Theirs: []Line{Mirror(usd), theirsEUR, Mirror(local)},
	}
	d.Theirs[2].Currency = "TRY"
	d.Expected = []Expectation{
		exact("601", "601"),
		{Ours: "602", Theirs: "602", Status: models.StatusAmountDifference, Strategy: models.StrategyDocumentKey, Difference: amount("50")},
		exact("603", "603"),
	}
	return d
}

// InsuranceScenario keys documents by policy and rider; one policy number was
// mistyped by the broker and pairs on amount and currency instead.
func InsuranceScenario() *Dataset {
	policy := func(date int, number, rider, debit string) Line {
		return Line{Date: day(date), Document: number, Rider: rider, Debit: amount(debit), Description: "Kasko"}
	}

	d := &Dataset{
		Mode: models.ModeInsurance,
		Ours: []Line{
			policy(5, "POL-100200", "0", "1500"),
			policy(5, "POL-100200", "1", "250"),
			policy(9, "POL-100300", "0", "2750"),
			{Date: day(11), Document: "POL-100400", Rider: "0", Credit: amount("400"), Description: "İptal"},
		},
		Theirs: []Line{
			{Date: day(5), Document: "100200", Rider: "0", Debit: amount("1500")},
			{Date: day(6), Document: "100200", Rider: "1", Debit: amount("250")},
			{Date: day(9), Document: "100399", Rider: "0", Debit: amount("2750")},
			{Date: day(11), Document: "100400", Rider: "0", Credit: amount("400")},
		},
	}
	d.Expected = []Expectation{
		exact("1002000", "1002000"),
		exact("1002001", "1002001"),
		{Ours: "1003000", Theirs: "1003990", Status: models.StatusExactMatch, Strategy: models.StrategyAmountCurrency},
		exact("1004000", "1004000"),
	}
	return d
}
