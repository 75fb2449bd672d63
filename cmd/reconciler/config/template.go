package config

import (
	"fmt"
	"io"
	"strconv"
	"time"

	"ledger-reconciliation-service/internal/models"

	"gopkg.in/yaml.v3"
)

// templateComments are attached to the keys of the generated template
var templateComments = map[string]string{
	"mode":      "ledger (current-account statements) or insurance (policy registers)",
	"ours":      "Column mapping of our ledger. Empty settings are not used.",
	"theirs":    "Column mapping of the counterparty ledger",
	"fx_policy": "How foreign amounts of netted lines combine: sum or max",
	"matching":  "Tolerances are absolute amounts in local currency",
	"role":      "Only with amount_mode single: buyer keeps the sign, seller negates it",

	"rider_column":           "Insurance mode: the key becomes policy + rider",
	"type_column":            "Rows whose type matches type_values go to the payment stream",
	"type_filter_mode":       "exclude diverts listed values, include diverts everything else",
	"settlement_date_column": "Value date used for payment matching; falls back to the row date",
	"passthrough_columns":    "Copied to the report next to each record",

	"input":       "CSV encoding: utf-8, windows-1254, iso-8859-9, windows-1252 or iso-8859-1",
	"report":      "format: console, json, csv or xlsx; layout: multi or single",
	"preferences": "Remembered column mappings per file name",
	"server":      "Settings of 'reconciler serve'",
	"log":         "level: debug, info, warn or error; format: text or json",
}

// sampleMapping fills the template with a typical pair of exports
func sampleMapping(cfg *RunConfig) {
	cfg.Ours.DateColumn = "Tarih"
	cfg.Ours.DocumentColumn = "Belge No"
	cfg.Ours.DebitColumn = "Borç"
	cfg.Ours.CreditColumn = "Alacak"
	cfg.Ours.ReferenceColumn = "Dekont No"
	cfg.Ours.ApplyDefaults()

	cfg.Theirs.DateColumn = "Date"
	cfg.Theirs.DocumentColumn = "Invoice"
	cfg.Theirs.AmountColumn = "Amount"
	cfg.Theirs.Role = models.RoleSeller
	cfg.Theirs.CurrencyColumn = "Currency"
	cfg.Theirs.ForeignAmountColumn = "FX Amount"
	cfg.Theirs.ApplyDefaults()
}

// WriteTemplate writes a commented YAML run configuration for mode
func WriteTemplate(w io.Writer, mode models.Mode) error {
	cfg := DefaultRunConfig(mode)
	sampleMapping(cfg)

	var doc yaml.Node
	if err := doc.Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	annotate(&doc)
	doc.HeadComment = "Reconciler run configuration. Pass with --config; flags and RECONCILER_* variables override it."

	encoder := yaml.NewEncoder(w)
	encoder.SetIndent(2)
	if err := encoder.Encode(&doc); err != nil {
		return fmt.Errorf("failed to write template: %w", err)
	}
	return encoder.Close()
}

// annotate attaches comments and renders rune and duration settings the way
// a person would type them
func annotate(node *yaml.Node) {
	if node.Kind != yaml.MappingNode {
		for _, child := range node.Content {
			annotate(child)
		}
		return
	}

	for i := 0; i+1 < len(node.Content); i += 2 {
		key, value := node.Content[i], node.Content[i+1]
		if comment, ok := templateComments[key.Value]; ok && key.HeadComment == "" {
			key.HeadComment = comment
		}
		switch key.Value {
		case "delimiter", "csv_delimiter":
			runeValue(value)
		case "read_timeout", "write_timeout", "shutdown_timeout", "cache_ttl":
			durationValue(value)
		}
		annotate(value)
	}
}

func runeValue(node *yaml.Node) {
	n, err := strconv.Atoi(node.Value)
	if err != nil {
		return
	}
	node.Tag = "!!str"
	node.Style = yaml.DoubleQuotedStyle
	switch rune(n) {
	case 0:
		node.Value = ""
	case '\t':
		node.Value = `\t`
	default:
		node.Value = string(rune(n))
	}
}

func durationValue(node *yaml.Node) {
	n, err := strconv.ParseInt(node.Value, 10, 64)
	if err != nil {
		return
	}
	node.Tag = "!!str"
	node.Value = time.Duration(n).String()
}
