// Package report aggregates summarization metrics into per-day token and
// cost totals.
package report

import (
	"fmt"
	"github.com/xuri/excelize/v2"
	"io"
	"meetmate-worker/entities"
	"sort"
	"text/tabwriter"
	"time"
)

const (
	SheetName  = "Usage"
	dateLayout = "2006-01-02"
)

var header = []interface{}{"date", "calls", "prompt_tokens", "completion_tokens", "total_tokens", "cost"}

type DailyUsage struct {
	Date             time.Time
	Calls            int
	PromptTokens     int
	CompletionTokens int
	TotalTokens      int
	Cost             float64
}

// Daily groups metric rows by UTC calendar day, oldest first.
func Daily(metrics []*entities.SummaryMetrics) []DailyUsage {
	byDay := make(map[time.Time]*DailyUsage)
	for _, m := range metrics {
		t := m.CreatedAt.UTC()
		day := time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)

		d, ok := byDay[day]
		if !ok {
			d = &DailyUsage{Date: day}
			byDay[day] = d
		}
		d.Calls++
		d.PromptTokens += m.PromptTokens
		d.CompletionTokens += m.CompletionTokens
		d.TotalTokens += m.TotalTokens
		d.Cost += m.Cost
	}

	rows := make([]DailyUsage, 0, len(byDay))
	for _, d := range byDay {
		rows = append(rows, *d)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Date.Before(rows[j].Date) })
	return rows
}

func WriteExcel(path string, rows []DailyUsage) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", SheetName); err != nil {
		return err
	}
	if err := f.SetSheetRow(SheetName, "A1", &header); err != nil {
		return err
	}
	for i, r := range rows {
		cell, err := excelize.CoordinatesToCellName(1, i+2)
		if err != nil {
			return err
		}
		values := []interface{}{r.Date.Format(dateLayout), r.Calls, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.Cost}
		if err := f.SetSheetRow(SheetName, cell, &values); err != nil {
			return err
		}
	}

	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save %s: %w", path, err)
	}
	return nil
}

func WriteTable(w io.Writer, rows []DailyUsage) error {
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "DATE\tCALLS\tPROMPT\tCOMPLETION\tTOTAL\tCOST")

	var total DailyUsage
	for _, r := range rows {
		fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%.6f\n",
			r.Date.Format(dateLayout), r.Calls, r.PromptTokens, r.CompletionTokens, r.TotalTokens, r.Cost)
		total.Calls += r.Calls
		total.PromptTokens += r.PromptTokens
		total.CompletionTokens += r.CompletionTokens
		total.TotalTokens += r.TotalTokens
		total.Cost += r.Cost
	}
	fmt.Fprintf(tw, "all\t%d\t%d\t%d\t%d\t%.6f\n",
		total.Calls, total.PromptTokens, total.CompletionTokens, total.TotalTokens, total.Cost)

	return tw.Flush()
}
