package report

import (
	"fmt"
	"io"
	"time"

	"github.com/xuri/excelize/v2"

	"github.com/tupyy/platform-verifier/internal/models"
)

const sheetName = "results"

var outcomeColors = map[models.Outcome]string{
	models.OutcomePassed:          "89C923",
	models.OutcomeAssertionFailed: "FF2D00",
	models.OutcomeUnreachable:     "FF2D00",
	models.OutcomeAuthError:       "DDA100",
	models.OutcomeTimedOut:        "DDA100",
	models.OutcomeCancelled:       "C0C0C0",
	models.OutcomeSkipped:         "C0C0C0",
}

// WriteXLSX exports the report as a spreadsheet for operator handoff.
func WriteXLSX(w io.Writer, r *models.RunReport) error {
	xlsx := excelize.NewFile()
	defer xlsx.Close()
	xlsx.SetSheetName("Sheet1", sheetName)

	xlsx.SetAppProps(&excelize.AppProperties{
		Application: "platform-verifier",
	})
	xlsx.SetDocProps(&excelize.DocProperties{
		Created:  r.FinishedAt.Format(time.RFC3339),
		Modified: r.FinishedAt.Format(time.RFC3339),
		Creator:  "platform-verifier",
		Subject:  fmt.Sprintf("run %s", r.RunID),
	})

	headers := []string{"probe", "check", "phase", "outcome", "attempts", "latency (ms)", "optional", "last error", "completed at"}
	for col, h := range headers {
		pos, err := excelize.CoordinatesToCellName(col+1, 1)
		if err != nil {
			return err
		}
		xlsx.SetCellStr(sheetName, pos, h)
	}

	latencyFmt := "#,##0.000 \"ms\""
	dateFmt := "yyyy-mm-dd hh:mm:ss"

	for i, res := range r.SortedResults() {
		row := i + 2
		color := outcomeColors[res.Outcome]
		style, err := xlsx.NewStyle(&excelize.Style{
			Border: []excelize.Border{{Type: "bottom", Style: 1, Color: color}},
		})
		if err != nil {
			return err
		}
		xlsx.SetRowStyle(sheetName, row, row, style)

		set := func(col int, value any, numFmt *string) error {
			pos, err := excelize.CoordinatesToCellName(col+1, row)
			if err != nil {
				return err
			}
			if err := xlsx.SetCellValue(sheetName, pos, value); err != nil {
				return err
			}
			if numFmt != nil {
				sid, err := xlsx.NewStyle(&excelize.Style{
					CustomNumFmt: numFmt,
					Border:       []excelize.Border{{Type: "bottom", Style: 1, Color: color}},
				})
				if err != nil {
					return err
				}
				if err := xlsx.SetCellStyle(sheetName, pos, pos, sid); err != nil {
					return err
				}
			}
			return nil
		}

		values := []struct {
			v   any
			fmt *string
		}{
			{res.ProbeID, nil},
			{res.Check, nil},
			{res.Phase, nil},
			{string(res.Outcome), nil},
			{res.Attempts, nil},
			{float64(res.Latency.Microseconds()) / 1000, &latencyFmt},
			{res.Optional, nil},
			{res.LastError, nil},
			{res.CompletedAt, &dateFmt},
		}
		for col, v := range values {
			if err := set(col, v.v, v.fmt); err != nil {
				return err
			}
		}
	}

	if _, err := xlsx.WriteTo(w); err != nil {
		return fmt.Errorf("failed to write xlsx report: %w", err)
	}
	return nil
}
