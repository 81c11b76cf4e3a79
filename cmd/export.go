package main

import (
	"strconv"

	"github.com/rotisserie/eris"
	"github.com/tealeg/xlsx/v2"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

var (
	jobsSheetHeader = []string{"Job ID", "User", "Seller", "Target", "Status", "Overall Score", "Recommendation", "Error", "Created", "Updated"}
	dimsSheetHeader = []string{"Job ID", "Dimension", "Score", "Weight", "Summary", "Sources"}
)

// exportJobsXLSX writes a "Jobs" sheet with one row per job and a
// "Dimensions" sheet with one row per scored dimension of completed jobs.
func exportJobsXLSX(path string, jobs []model.Job) error {
	f := xlsx.NewFile()

	jobsSheet, err := f.AddSheet("Jobs")
	if err != nil {
		return eris.Wrap(err, "export: add jobs sheet")
	}
	dimsSheet, err := f.AddSheet("Dimensions")
	if err != nil {
		return eris.Wrap(err, "export: add dimensions sheet")
	}
	addRow(jobsSheet, jobsSheetHeader...)
	addRow(dimsSheet, dimsSheetHeader...)

	for _, j := range jobs {
		score, verdict := "", ""
		if a := j.AnalysisData; j.Status == model.JobStatusCompleted && a != nil {
			score = strconv.FormatFloat(a.Scorecard.OverallScore, 'f', -1, 64)
			if a.Recommendation != nil {
				verdict = a.Recommendation.Verdict
			}
			for _, d := range a.Scorecard.Dimensions {
				addRow(dimsSheet,
					j.ID,
					d.Name,
					strconv.FormatFloat(d.Score, 'f', -1, 64),
					strconv.FormatFloat(d.Weight, 'f', -1, 64),
					d.Summary,
					strconv.Itoa(len(d.Sources)),
				)
			}
		}

		addRow(jobsSheet,
			j.ID,
			j.UserID,
			j.Seller,
			j.Target,
			string(j.Status),
			score,
			verdict,
			j.Error,
			j.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
			j.UpdatedAt.UTC().Format("2006-01-02 15:04:05"),
		)
	}

	if err := f.Save(path); err != nil {
		return eris.Wrapf(err, "export: save %s", path)
	}
	return nil
}

func addRow(sheet *xlsx.Sheet, values ...string) {
	row := sheet.AddRow()
	for _, v := range values {
		row.AddCell().SetString(v)
	}
}
