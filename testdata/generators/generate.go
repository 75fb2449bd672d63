package main

import (
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"
)

// Generator writes one dataset into its own directory
type Generator struct {
	Name        string
	Description string
	Build       func(seed int64) *Dataset
}

var generators = []Generator{
	{"exact", "Invoices recorded identically on both sides", func(int64) *Dataset { return ExactScenario() }},
	{"difference", "Invoices whose amounts disagree", func(int64) *Dataset { return DifferenceScenario() }},
	{"split", "Invoices booked over several lines on one side", func(int64) *Dataset { return SplitInvoiceScenario() }},
	{"payments", "Payments paired by reference, date and amount, and date window", func(int64) *Dataset { return PaymentScenario() }},
	{"unmatched", "Documents only one side recorded", func(int64) *Dataset { return UnmatchedScenario() }},
	{"fx", "Foreign currency invoices with local and foreign amounts", func(int64) *Dataset { return ForeignCurrencyScenario() }},
	{"insurance", "Policy registers keyed by policy and rider number", func(int64) *Dataset { return InsuranceScenario() }},
	{"volume", "Random ledgers with a configurable match ratio", nil},
}

func main() {
	var (
		generator  = flag.String("generator", "", "Generator to run, or 'all'")
		list       = flag.Bool("list", false, "List available generators")
		outputDir  = flag.String("output-dir", "../generated", "Output directory for generated files")
		seed       = flag.Int64("seed", time.Now().UnixNano(), "Random seed for the volume generator")
		count      = flag.Int("count", 1000, "Number of documents for the volume generator")
		matchRatio = flag.Float64("match-ratio", 0.85, "Share of volume documents recorded on both sides")
		theirsXLSX = flag.Bool("theirs-xlsx", false, "Write the counterparty ledger as a workbook")
	)
	flag.Parse()

	if *list {
		listGenerators()
		return
	}

	if *generator == "" {
		fmt.Println("Ledger Test Data Generator")
		fmt.Println("==========================")
		fmt.Println()
		fmt.Println("Usage:")
		fmt.Println("  go run . -generator=<name> [options]")
		fmt.Println()
		listGenerators()
		fmt.Println("Examples:")
		fmt.Println("  go run . -generator=all")
		fmt.Println("  go run . -generator=payments -theirs-xlsx")
		fmt.Println("  go run . -generator=volume -count=50000 -match-ratio=0.9 -seed=42")
		return
	}

	selected := generators
	if *generator != "all" {
		selected = nil
		for _, gen := range generators {
			if gen.Name == *generator {
				selected = append(selected, gen)
			}
		}
		if len(selected) == 0 {
			log.Fatalf("Unknown generator: %s", *generator)
		}
	}

	fmt.Printf("Using seed: %d\n", *seed)
	for _, gen := range selected {
		var dataset *Dataset
		if gen.Build != nil {
			dataset = gen.Build(*seed)
		} else {
			dataset = NewLedgerGenerator(*count, *matchRatio, *seed).Generate()
		}
		dataset.Name = gen.Name

		dir := filepath.Join(*outputDir, gen.Name)
		if err := os.MkdirAll(dir, 0o755); err != nil {
			log.Fatalf("Failed to create output directory: %v", err)
		}
		if err := dataset.Write(dir, *theirsXLSX); err != nil {
			log.Fatalf("Failed to write %s: %v", gen.Name, err)
		}
		fmt.Printf("✓ %-10s %4d ours / %4d theirs rows in %s\n", gen.Name, len(dataset.Ours), len(dataset.Theirs), dir)
	}

	if *generator == "all" {
		if err := writeReadme(*outputDir, selected); err != nil {
			log.Fatalf("Failed to write README: %v", err)
		}
	}
}

func listGenerators() {
	fmt.Println("Available generators:")
	names := make([]string, 0, len(generators))
	descriptions := make(map[string]string, len(generators))
	for _, gen := range generators {
		names = append(names, gen.Name)
		descriptions[gen.Name] = gen.Description
	}
	sort.Strings(names)
	for _, name := range names {
		fmt.Printf("  %-12s %s\n", name, descriptions[name])
	}
	fmt.Println()
}

func writeReadme(outputDir string, selected []Generator) error {
	var b strings.Builder
	b.WriteString("# Generated ledger datasets\n\n")
	b.WriteString("Each directory holds ours.csv, theirs.csv (or theirs.xlsx), reconciler.yaml\n")
	b.WriteString("with the matching column mapping, and expected.csv with the outcome per document.\n\n")
	b.WriteString("    reconciler reconcile --config <dir>/reconciler.yaml --ours <dir>/ours.csv --theirs <dir>/theirs.csv\n\n")
	for _, gen := range selected {
		fmt.Fprintf(&b, "- `%s`: %s\n", gen.Name, gen.Description)
	}
	return os.WriteFile(filepath.Join(outputDir, "README.md"), []byte(b.String()), 0o644)
}
