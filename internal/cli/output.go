package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/olekukonko/tablewriter"
	"gopkg.in/yaml.v3"

	"github.com/meigma/opaclient"
)

// OutputFormat specifies the output format for CLI commands.
type OutputFormat string

const (
	FormatTable OutputFormat = "table"
	FormatJSON  OutputFormat = "json"
	FormatYAML  OutputFormat = "yaml"
)

// BatchEntry is the printed form of one batch result.
type BatchEntry struct {
	Result any                    `json:"result,omitempty" yaml:"result,omitempty"`
	Error  *opaclient.ServerError `json:"error,omitempty" yaml:"error,omitempty"`
}

// PrintResult writes a single decision.
func PrintResult(w io.Writer, result any, format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, result)
	case FormatYAML:
		return printYAML(w, result)
	case FormatTable:
		text, err := compact(result)
		if err != nil {
			return err
		}
		table := tablewriter.NewWriter(w)
		table.Header("Result")
		table.Append(text)
		return table.Render()
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

// PrintBatch writes batch results sorted by key.
func PrintBatch(w io.Writer, results opaclient.BatchResults[opaclient.Result], format OutputFormat) error {
	switch format {
	case FormatJSON:
		return printJSON(w, batchEntries(results))
	case FormatYAML:
		return printYAML(w, batchEntries(results))
	case FormatTable:
		return printBatchTable(w, results)
	default:
		return fmt.Errorf("unsupported format: %s", format)
	}
}

func batchEntries(results opaclient.BatchResults[opaclient.Result]) map[string]BatchEntry {
	out := make(map[string]BatchEntry, len(results))
	for key, r := range results {
		out[key] = BatchEntry{Result: r.Result, Error: r.Err}
	}
	return out
}

func printBatchTable(w io.Writer, results opaclient.BatchResults[opaclient.Result]) error {
	keys := make([]string, 0, len(results))
	for key := range results {
		keys = append(keys, key)
	}
	sort.Strings(keys)

	table := tablewriter.NewWriter(w)
	table.Header("Key", "Status", "Result")
	for _, key := range keys {
		r := results[key]
		if !r.OK() {
			table.Append(key, "error", fmt.Sprintf("%s: %s", r.Err.Code, r.Err.Message))
			continue
		}
		text, err := compact(r.Result)
		if err != nil {
			return err
		}
		table.Append(key, "ok", text)
	}
	return table.Render()
}

func compact(v any) (string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", fmt.Errorf("encode result: %w", err)
	}
	return string(data), nil
}

func printJSON(w io.Writer, data any) error {
	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	return encoder.Encode(data)
}

func printYAML(w io.Writer, data any) error {
	encoder := yaml.NewEncoder(w)
	defer encoder.Close()
	encoder.SetIndent(2)
	return encoder.Encode(data)
}
