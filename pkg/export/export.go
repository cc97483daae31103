// Package export writes aggregated worklogs as XLSX workbooks or JSON.
package export

import (
	"cmp"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"slices"
	"strings"

	"github.com/rs/zerolog/log"
	"github.com/xuri/excelize/v2"

	"github.com/Sternrassler/jira-worklog/pkg/grouping"
	"github.com/Sternrassler/jira-worklog/pkg/worklog"
)

// Sheet names of the workbook.
const (
	SheetWorklog = "Worklog"
	SheetSummary = "Summary"
)

// Labels for entries without a change request or epic.
const (
	NoCR   = "No CR"
	NoEpic = "No Epic"
)

var worklogHeader = []string{
	"User", "Name", "Local start", "Issue", "Type", "Task", "Task name",
	"Story", "Story name", "Epic", "Epic name", "CR", "Time spent", "Hours",
}

var summaryHeader = []string{"User", "Name", "CR", "Epics", "Entries", "Hours"}

// Exporter writes worklog files into a directory.
type Exporter struct {
	OutputDir string
}

// NewExporter creates an exporter writing to outputDir.
func NewExporter(outputDir string) *Exporter {
	return &Exporter{OutputDir: outputDir}
}

// ExportXLSX writes entries to <project>_<min>_<max>.xlsx and returns the path.
func (e *Exporter) ExportXLSX(entries []*worklog.Entry, q worklog.Query) (string, error) {
	return e.export(entries, q, "xlsx", WriteXLSX)
}

// ExportJSON writes entries to <project>_<min>_<max>.json and returns the path.
func (e *Exporter) ExportJSON(entries []*worklog.Entry, q worklog.Query) (string, error) {
	return e.export(entries, q, "json", WriteJSON)
}

func (e *Exporter) export(entries []*worklog.Entry, q worklog.Query, ext string, write func(io.Writer, []*worklog.Entry) error) (string, error) {
	if err := os.MkdirAll(e.OutputDir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create output directory: %w", err)
	}

	filename := filepath.Join(e.OutputDir, fmt.Sprintf("%s_%s_%s.%s", q.ProjectKey, q.MinDate, q.MaxDate, ext))
	f, err := os.Create(filename)
	if err != nil {
		return "", err
	}

	if err := write(f, entries); err != nil {
		f.Close()
		return "", err
	}
	if err := f.Close(); err != nil {
		return "", err
	}

	log.Info().Str("file", filename).Int("entries", len(entries)).Msg("Worklog exported")
	return filename, nil
}

// WriteJSON writes entries as an indented JSON array.
func WriteJSON(w io.Writer, entries []*worklog.Entry) error {
	if entries == nil {
		entries = []*worklog.Entry{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "\t")
	return enc.Encode(entries)
}

// WriteXLSX writes a workbook with one row per entry on the Worklog sheet,
// sorted by user then local start, and the time per user and change request
// on the Summary sheet.
func WriteXLSX(w io.Writer, entries []*worklog.Entry) error {
	f := excelize.NewFile()
	defer f.Close()

	headerStyle, err := f.NewStyle(&excelize.Style{
		Fill:      excelize.Fill{Type: "pattern", Color: []string{"#4472C4"}, Pattern: 1},
		Font:      &excelize.Font{Bold: true, Color: "#FFFFFF"},
		Alignment: &excelize.Alignment{Horizontal: "center", Vertical: "center"},
	})
	if err != nil {
		return fmt.Errorf("failed to create header style: %w", err)
	}

	if err := f.SetSheetName("Sheet1", SheetWorklog); err != nil {
		return err
	}
	if err := writeWorklogSheet(f, headerStyle, entries); err != nil {
		return fmt.Errorf("failed to write worklog sheet: %w", err)
	}

	if _, err := f.NewSheet(SheetSummary); err != nil {
		return err
	}
	if err := writeSummarySheet(f, headerStyle, entries); err != nil {
		return fmt.Errorf("failed to write summary sheet: %w", err)
	}

	if _, err := f.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write workbook: %w", err)
	}
	return nil
}

func writeWorklogSheet(f *excelize.File, headerStyle int, entries []*worklog.Entry) error {
	if err := writeRow(f, SheetWorklog, 1, headerStyle, toAny(worklogHeader)); err != nil {
		return err
	}

	sorted := slices.Clone(entries)
	slices.SortStableFunc(sorted, func(a, b *worklog.Entry) int {
		if c := cmp.Compare(a.User, b.User); c != 0 {
			return c
		}
		return a.LocalStart.Compare(b.LocalStart)
	})

	for i, e := range sorted {
		row := []any{
			e.User,
			e.UserDisplayName,
			e.LocalStart.Format("2006-01-02 15:04"),
			e.Issue,
			string(e.Type),
			e.Task,
			e.TaskName,
			e.Story,
			e.StoryName,
			e.Epic,
			e.EpicName,
			e.CR,
			e.TimeSpent,
			hours(e.TimeSpentSeconds),
		}
		if err := writeRow(f, SheetWorklog, i+2, 0, row); err != nil {
			return err
		}
	}

	return f.SetColWidth(SheetWorklog, "A", "N", 16)
}

func writeSummarySheet(f *excelize.File, headerStyle int, entries []*worklog.Entry) error {
	if err := writeRow(f, SheetSummary, 1, headerStyle, toAny(summaryHeader)); err != nil {
		return err
	}

	row := 2
	users, byUser := grouping.Sorted(entries, func(e *worklog.Entry) string { return e.User })
	for _, user := range users {
		userEntries := byUser[user]
		crs, byCR := grouping.Sorted(userEntries, func(e *worklog.Entry) string { return crLabel(e.CR) })
		for _, cr := range crs {
			group := byCR[cr]
			seconds := 0
			for _, e := range group {
				seconds += e.TimeSpentSeconds
			}
			values := []any{
				user,
				userEntries[0].UserDisplayName,
				cr,
				epicNames(group),
				len(group),
				hours(seconds),
			}
			if err := writeRow(f, SheetSummary, row, 0, values); err != nil {
				return err
			}
			row++
		}
	}

	return f.SetColWidth(SheetSummary, "A", "F", 18)
}

func writeRow(f *excelize.File, sheet string, row, style int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	if err := f.SetSheetRow(sheet, cell, &values); err != nil {
		return err
	}
	if style == 0 {
		return nil
	}
	last, err := excelize.CoordinatesToCellName(len(values), row)
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, cell, last, style)
}

// epicNames lists the distinct epic names of entries, sorted.
func epicNames(entries []*worklog.Entry) string {
	names, _ := grouping.Sorted(entries, func(e *worklog.Entry) string {
		if e.EpicName == "" {
			return NoEpic
		}
		return e.EpicName
	})
	return strings.Join(names, ", ")
}

func crLabel(cr string) string {
	if cr == "" {
		return NoCR
	}
	return cr
}

func hours(seconds int) float64 {
	return float64(seconds) / 3600
}

func toAny(values []string) []any {
	out := make([]any, len(values))
	for i, v := range values {
		out[i] = v
	}
	return out
}
