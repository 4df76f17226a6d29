package server

import (
	"errors"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/ahmethakanbesel/stocksent/internal/apperror"
	"github.com/ahmethakanbesel/stocksent/internal/job"
	"github.com/ahmethakanbesel/stocksent/internal/price"
	"github.com/ahmethakanbesel/stocksent/internal/scraper"
)

type handler struct {
	priceSvc *price.Service
	jobSvc   *job.Service
}

func (h *handler) health(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// getPrices fetches a live price table for the requested symbols.
func (h *handler) getPrices(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseDateParam(w, q.Get("from"), "from", true)
	if !ok {
		return
	}
	to, ok := parseDateParam(w, q.Get("to"), "to", true)
	if !ok {
		return
	}

	req := price.Request{Symbols: splitSymbols(q.Get("symbols")), From: from, To: to}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	table, err := h.priceSvc.FetchPrices(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if q.Get("format") == "csv" {
		writeCSV(w, "prices.csv", table)
		return
	}
	writeJSON(w, http.StatusOK, table)
}

// getHistory returns stored closes for one symbol.
func (h *handler) getHistory(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	from, ok := parseDateParam(w, q.Get("from"), "from", false)
	if !ok {
		return
	}
	to, ok := parseDateParam(w, q.Get("to"), "to", false)
	if !ok {
		return
	}

	req := price.HistoryRequest{Symbol: strings.ToUpper(r.PathValue("symbol")), From: from, To: to}
	if appErr := req.Validate(); appErr != nil {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	prices, err := h.priceSvc.History(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	if q.Get("format") == "csv" {
		series := make(price.Series, len(prices))
		for i, p := range prices {
			series[i] = price.Point{Date: p.Date, Close: p.ClosePrice}
		}
		writeCSV(w, req.Symbol+".csv", &price.Table{
			Symbols: []string{req.Symbol},
			Series:  map[string]price.Series{req.Symbol: series},
		})
		return
	}
	writeJSON(w, http.StatusOK, prices)
}

func (h *handler) getJob(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(r.PathValue("id"), 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid job id")
		return
	}

	j, err := h.jobSvc.Get(r.Context(), job.GetJobRequest{ID: id})
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, j)
}

func (h *handler) listJobs(w http.ResponseWriter, r *http.Request) {
	req := job.ListJobsRequest{
		Kind:   r.URL.Query().Get("kind"),
		Symbol: r.URL.Query().Get("symbol"),
	}

	jobs, err := h.jobSvc.List(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, jobs)
}

func parseDateParam(w http.ResponseWriter, v, name string, required bool) (time.Time, bool) {
	if v == "" {
		if required {
			writeError(w, http.StatusBadRequest, name+" is required")
			return time.Time{}, false
		}
		return time.Time{}, true
	}
	t, err := price.ParseDate(v)
	if err != nil {
		writeError(w, http.StatusBadRequest, "invalid "+name+" format, expected YYYY-MM-DD")
		return time.Time{}, false
	}
	return t, true
}

func splitSymbols(v string) []string {
	if strings.TrimSpace(v) == "" {
		return nil
	}
	parts := strings.Split(v, ",")
	for i, p := range parts {
		parts[i] = strings.ToUpper(strings.TrimSpace(p))
	}
	return parts
}

// writeServiceError maps application errors to their status and upstream
// failures to 502.
func writeServiceError(w http.ResponseWriter, err error) {
	if appErr, ok := apperror.As(err); ok {
		writeError(w, appErr.HTTPStatus(), appErr.Message())
		return
	}

	var (
		fetchErr  *price.FetchError
		statusErr *scraper.StatusError
	)
	if errors.As(err, &fetchErr) || errors.As(err, &statusErr) {
		writeError(w, http.StatusBadGateway, err.Error())
		return
	}
	writeError(w, http.StatusInternalServerError, err.Error())
}
