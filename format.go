package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"time"

	"github.com/pilotdata/pilotcli/internal/platform"
	"github.com/pilotdata/pilotcli/internal/ui"
)

// statusf prints a status message to stderr unless quiet mode is set.
func statusf(quiet bool, format string, args ...any) {
	if !quiet {
		fmt.Fprintf(os.Stderr, format, args...)
	}
}

// Statusf prints a status message to stderr unless --quiet was given.
func (cc *CLIContext) Statusf(format string, args ...any) {
	statusf(cc.Flags.Quiet, format, args...)
}

func jsonEncoder(w io.Writer) *json.Encoder {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")

	return enc
}

// platformTimeLayouts are the timestamp formats the BFF is known to emit.
var platformTimeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02T15:04:05.999999",
	"2006-01-02 15:04:05.999999",
}

// formatTime renders a platform timestamp compactly. Unparseable values are
// shown as given.
func formatTime(raw string, now time.Time) string {
	if raw == "" {
		return "-"
	}

	for _, layout := range platformTimeLayouts {
		t, err := time.Parse(layout, raw)
		if err != nil {
			continue
		}

		if t.Year() == now.Year() {
			return t.Format("Jan _2 15:04")
		}

		return t.Format("Jan _2  2006")
	}

	return raw
}

// printTable writes aligned columns to w. headers and each row must have
// the same length.
func printTable(w io.Writer, headers []string, rows [][]string) {
	widths := make([]int, len(headers))
	for i, h := range headers {
		widths[i] = len(h)
	}

	for _, row := range rows {
		for i, cell := range row {
			widths[i] = max(widths[i], len(cell))
		}
	}

	printRow(w, headers, widths)

	for _, row := range rows {
		printRow(w, row, widths)
	}
}

func printRow(w io.Writer, cells []string, widths []int) {
	parts := make([]string, len(cells))
	for i, cell := range cells {
		parts[i] = fmt.Sprintf("%-*s", widths[i], cell)
	}

	fmt.Fprintln(w, strings.TrimRight(strings.Join(parts, "  "), " "))
}

// itemRows lists folders first, then files, each by name. Folders get a
// trailing slash and no size.
func itemRows(items []platform.Item, now time.Time) [][]string {
	sorted := append([]platform.Item(nil), items...)
	sort.SliceStable(sorted, func(i, j int) bool {
		if sorted[i].IsFolder() != sorted[j].IsFolder() {
			return sorted[i].IsFolder()
		}

		return sorted[i].Name < sorted[j].Name
	})

	rows := make([][]string, len(sorted))

	for i, it := range sorted {
		name, size := it.Name, ui.Size(it.Size)
		if it.IsFolder() {
			name, size = it.Name+"/", "-"
		}

		rows[i] = []string{name, size, it.Owner, formatTime(it.LastUpdated, now)}
	}

	return rows
}

func printItems(w io.Writer, items []platform.Item) {
	printTable(w, []string{"NAME", "SIZE", "OWNER", "MODIFIED"}, itemRows(items, time.Now()))
}
