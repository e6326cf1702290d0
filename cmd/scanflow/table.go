package main

import (
	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"
)

// statusColumns is the fixed layout of the status table. The session column
// is capped so long archive stems do not push the table past a standard
// terminal width; the validity column is right-aligned so "NO" stands out
// against the run of "yes" entries.
var statusColumns = []struct {
	name     string
	align    text.Align
	maxWidth int
}{
	{name: "Session", align: text.AlignLeft, maxWidth: 44},
	{name: "State", align: text.AlignLeft},
	{name: "Recorded", align: text.AlignLeft},
	{name: "Participant", align: text.AlignLeft},
	{name: "Visit", align: text.AlignLeft},
	{name: "Valid", align: text.AlignRight},
}

func renderSessionTable(rows [][]string) string {
	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, len(statusColumns))
	for i, column := range statusColumns {
		header[i] = column.name
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, len(statusColumns))
		for i := range statusColumns {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	configs := make([]table.ColumnConfig, 0, len(statusColumns))
	for i, column := range statusColumns {
		config := table.ColumnConfig{
			Number:      i + 1,
			Align:       column.align,
			AlignHeader: text.AlignLeft,
		}
		if column.maxWidth > 0 {
			config.WidthMax = column.maxWidth
		}
		configs = append(configs, config)
	}
	tw.SetColumnConfigs(configs)

	return tw.Render()
}
