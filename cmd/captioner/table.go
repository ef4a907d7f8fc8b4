package main

import (
	"strconv"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/jedib0t/go-pretty/v6/text"

	"github.com/billtruong003/video-to-subtitle-converter/pkg/models"
)

type columnAlignment int

const (
	alignLeft columnAlignment = iota
	alignRight
)

func renderTable(headers []string, rows [][]string, aligns []columnAlignment) string {
	columns := len(headers)
	if columns == 0 {
		return ""
	}

	tw := table.NewWriter()
	tw.SetStyle(table.StyleRounded)

	header := make(table.Row, columns)
	for i := 0; i < columns; i++ {
		header[i] = headers[i]
	}
	tw.AppendHeader(header)

	for _, row := range rows {
		r := make(table.Row, columns)
		for i := 0; i < columns; i++ {
			if i < len(row) {
				r[i] = row[i]
			} else {
				r[i] = ""
			}
		}
		tw.AppendRow(r)
	}

	columnConfigs := make([]table.ColumnConfig, 0, columns)
	for i := 0; i < columns; i++ {
		align := text.AlignLeft
		if i < len(aligns) && aligns[i] == alignRight {
			align = text.AlignRight
		}
		columnConfigs = append(columnConfigs, table.ColumnConfig{
			Number:      i + 1,
			Align:       align,
			AlignHeader: text.AlignLeft,
		})
	}
	tw.SetColumnConfigs(columnConfigs)

	return tw.Render()
}

// renderSummary lists one row per job with its outcome
func renderSummary(jobs []*models.Job) string {
	rows := make([][]string, 0, len(jobs))
	for _, job := range jobs {
		rows = append(rows, []string{
			job.InputVideoPath,
			job.Status,
			job.Quality,
			strconv.Itoa(job.SegmentCount),
			jobOutput(job),
			dashIfEmpty(job.FailureReason),
		})
	}

	return renderTable(
		[]string{"Input", "Status", "Quality", "Segments", "Output", "Reason"},
		rows,
		[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft, alignLeft},
	)
}

func jobOutput(job *models.Job) string {
	switch job.Status {
	case models.JobStatusBurned:
		return job.OutputVideoPath
	case models.JobStatusOverwriteDenied:
		return job.OutputVideoPath + " (kept)"
	case models.JobStatusFailed:
		if job.SegmentCount > 0 && fileExists(job.SubtitlePath) {
			return job.SubtitlePath
		}
	}
	return "-"
}

func dashIfEmpty(value string) string {
	if value == "" {
		return "-"
	}
	return value
}
