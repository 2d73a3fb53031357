package api

import (
	"fmt"
	"net/http"
	"time"

	"bizdir/internal/metrics"

	"github.com/xuri/excelize/v2"
)

// handleReport streams an xlsx listing of terminally failed queue entries so
// operators can review and manually re-request them.
func (s *HTTPServer) handleReport(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeError(w, http.StatusMethodNotAllowed, "method not allowed")
		return
	}
	metrics.IncHTTP("report")

	entries, err := s.enrichment.FailedEntries(r.Context())
	if err != nil {
		s.writeServiceError(w, err)
		return
	}

	f := excelize.NewFile()
	defer f.Close()

	const sheetName = "Failed enrichments"
	index, err := f.NewSheet(sheetName)
	if err != nil {
		s.log.Error().Err(err).Msg("create report sheet")
		writeError(w, http.StatusInternalServerError, "internal error")
		return
	}
	f.SetActiveSheet(index)
	f.DeleteSheet("Sheet1")

	headers := []string{"Entry ID", "Business ID", "Reason", "Priority", "Attempts", "Last error", "Enqueued at", "Failed at"}
	for i, h := range headers {
		cell, _ := excelize.CoordinatesToCellName(i+1, 1)
		_ = f.SetCellValue(sheetName, cell, h)
	}

	for row, e := range entries {
		lastError := ""
		if e.LastError != nil {
			lastError = *e.LastError
		}
		values := []interface{}{
			e.ID,
			e.BusinessID,
			e.Reason,
			e.Priority,
			e.Attempts,
			lastError,
			e.EnqueuedAt.Format(time.RFC3339),
			e.UpdatedAt.Format(time.RFC3339),
		}
		for col, v := range values {
			cell, _ := excelize.CoordinatesToCellName(col+1, row+2)
			_ = f.SetCellValue(sheetName, cell, v)
		}
	}

	filename := fmt.Sprintf("failed_enrichments_%s.xlsx", time.Now().Format("2006-01-02"))
	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf("attachment; filename=%q", filename))

	if err := f.Write(w); err != nil {
		s.log.Error().Err(err).Msg("write report")
	}
}
