package main

import (
	"context"
	"encoding/csv"
	"flag"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"text/tabwriter"

	"ledger-reconciliation-service/cmd/reconciler/config"
	"ledger-reconciliation-service/internal/models"
	"ledger-reconciliation-service/internal/parsers"
	"ledger-reconciliation-service/internal/reconciler"

	"github.com/shopspring/decimal"
	"github.com/spf13/afero"
	"github.com/spf13/viper"
)

// DatasetReport is the comparison of one dataset's run with its expected.csv
type DatasetReport struct {
	Name       string
	Expected   int
	Missing    []string
	Unexpected []string
}

// Passed reports whether the run produced exactly the expected outcomes
func (r *DatasetReport) Passed() bool {
	return len(r.Missing) == 0 && len(r.Unexpected) == 0
}

func main() {
	var (
		dataDir = flag.String("data-dir", "../generated", "Directory holding generated datasets")
		verbose = flag.Bool("verbose", false, "List every missing and unexpected outcome")
	)
	flag.Parse()

	dirs, err := datasetDirs(*dataDir)
	if err != nil {
		log.Fatalf("Failed to list datasets: %v", err)
	}
	if len(dirs) == 0 {
		log.Fatalf("No datasets found in %s; run the generators first", *dataDir)
	}

	fmt.Println("Ledger Dataset Validator")
	fmt.Println("========================")

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "DATASET\tEXPECTED\tMISSING\tUNEXPECTED\tRESULT")

	failed := 0
	var reports []*DatasetReport
	for _, dir := range dirs {
		report, err := validateDataset(context.Background(), dir)
		if err != nil {
			log.Fatalf("Failed to validate %s: %v", dir, err)
		}
		reports = append(reports, report)

		result := "PASS"
		if !report.Passed() {
			result = "FAIL"
			failed++
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%d\t%s\n", report.Name, report.Expected, len(report.Missing), len(report.Unexpected), result)
	}
	w.Flush()

	if *verbose {
		for _, report := range reports {
			for _, m := range report.Missing {
				fmt.Printf("%s: missing    %s\n", report.Name, m)
			}
			for _, u := range report.Unexpected {
				fmt.Printf("%s: unexpected %s\n", report.Name, u)
			}
		}
	}

	if failed > 0 {
		fmt.Printf("\n%d of %d datasets failed\n", failed, len(reports))
		os.Exit(1)
	}
	fmt.Printf("\nAll %d datasets reconciled as expected\n", len(reports))
}

func datasetDirs(root string) ([]string, error) {
	matches, err := filepath.Glob(filepath.Join(root, "*", "expected.csv"))
	if err != nil {
		return nil, err
	}
	dirs := make([]string, 0, len(matches))
	for _, m := range matches {
		dirs = append(dirs, filepath.Dir(m))
	}
	sort.Strings(dirs)
	return dirs, nil
}

func validateDataset(ctx context.Context, dir string) (*DatasetReport, error) {
	v := viper.New()
	if err := config.ReadFile(v, filepath.Join(dir, "reconciler.yaml")); err != nil {
		return nil, err
	}
	cfg, err := config.Load(v)
	if err != nil {
		return nil, err
	}

	theirsPath := filepath.Join(dir, "theirs.csv")
	if _, err := os.Stat(theirsPath); os.IsNotExist(err) {
		theirsPath = filepath.Join(dir, "theirs.xlsx")
	}

	reader := parsers.NewReader(afero.NewOsFs(), &cfg.Input)
	ours, err := reader.ReadFile(filepath.Join(dir, "ours.csv"))
	if err != nil {
		return nil, err
	}
	theirs, err := reader.ReadFile(theirsPath)
	if err != nil {
		return nil, err
	}

	result, err := reconciler.NewService().Run(ctx, &reconciler.Request{Ours: ours, Theirs: theirs, Config: &cfg.Config})
	if err != nil {
		return nil, err
	}

	expected, err := readExpected(filepath.Join(dir, "expected.csv"))
	if err != nil {
		return nil, err
	}

	report := &DatasetReport{Name: filepath.Base(dir)}
	for _, e := range expected {
		report.Expected += e
	}
	actual := outcomes(result)

	for sig, n := range expected {
		for i := actual[sig]; i < n; i++ {
			report.Missing = append(report.Missing, sig)
		}
	}
	for sig, n := range actual {
		for i := expected[sig]; i < n; i++ {
			report.Unexpected = append(report.Unexpected, sig)
		}
	}
	sort.Strings(report.Missing)
	sort.Strings(report.Unexpected)
	return report, nil
}

func signature(status models.MatchStatus, strategy models.Strategy, ours, theirs string, difference decimal.Decimal) string {
	return fmt.Sprintf("%s strategy=%q ours=%q theirs=%q difference=%s", status, strategy, ours, theirs, difference.StringFixed(2))
}

func readExpected(path string) (map[string]int, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()

	rows, err := csv.NewReader(f).ReadAll()
	if err != nil {
		return nil, err
	}

	counts := make(map[string]int, len(rows))
	for _, row := range rows[1:] {
		difference, err := decimal.NewFromString(row[4])
		if err != nil {
			return nil, fmt.Errorf("%s: bad difference %q", path, row[4])
		}
		counts[signature(models.MatchStatus(row[2]), models.Strategy(row[3]), row[0], row[1], difference)]++
	}
	return counts, nil
}

func outcomes(result *reconciler.Result) map[string]int {
	counts := make(map[string]int)
	for _, m := range result.MatchedDocuments {
		counts[signature(m.Status, m.Strategy, m.Ours.DocumentKey, m.Theirs.DocumentKey, m.AmountDifference)]++
	}
	for _, m := range result.MatchedPayments {
		counts[signature(m.Status, m.Strategy, m.Ours.ReferenceKey, m.Theirs.ReferenceKey, m.AmountDifference)]++
	}
	for _, r := range result.UnmatchedOurs {
		counts[signature(models.StatusUnmatchedOurs, models.StrategyNone, r.DocumentKey, "", r.Net())]++
	}
	for _, r := range result.UnmatchedTheirs {
		counts[signature(models.StatusUnmatchedTheirs, models.StrategyNone, "", r.DocumentKey, r.Net())]++
	}
	return counts
}
