package http

import (
	"encoding/json"
	"log/slog"
	"math"
	"net/http"
	"time"

	"sikdae/internal/core"
	"sikdae/internal/services"
	"sikdae/internal/sheets"
)

type errorResponse struct {
	Error string `json:"error"`
}

type rankView struct {
	Rank          int    `json:"rank"`
	User          string `json:"user"`
	Excess        int64  `json:"excess"`
	ExcessDisplay string `json:"excess_display"`
}

type classView struct {
	Class              string     `json:"class"`
	Rows               int        `json:"rows"`
	FlaggedUsers       int        `json:"flagged_users"`
	HighSpenderRows    int        `json:"high_spender_rows"`
	TotalExcess        int64      `json:"total_excess"`
	TotalExcessDisplay string     `json:"total_excess_display"`
	Ranking            []rankView `json:"ranking"`
}

type analysisResponse struct {
	ID        string             `json:"id"`
	Label     string             `json:"label,omitempty"`
	Source    string             `json:"source"`
	Filename  string             `json:"filename,omitempty"`
	CreatedAt time.Time          `json:"created_at"`
	Ingest    sheets.IngestStats `json:"ingest"`
	Lunch     classView          `json:"lunch"`
	Dinner    classView          `json:"dinner"`
}

type detailView struct {
	Date          string  `json:"date"`
	User          string  `json:"user"`
	CardAlias     string  `json:"card_alias,omitempty"`
	Category      string  `json:"category"`
	Merchant      string  `json:"merchant,omitempty"`
	Amount        float64 `json:"amount"`
	AmountDisplay string  `json:"amount_display"`
}

type detailsResponse struct {
	AnalysisID string       `json:"analysis_id"`
	Class      string       `json:"class"`
	User       *string      `json:"user,omitempty"`
	Rows       []detailView `json:"rows"`
}

type policyResponse struct {
	DailyCap          float64  `json:"daily_cap"`
	DailyCapDisplay   string   `json:"daily_cap_display"`
	LunchCategories   []string `json:"lunch_categories"`
	DinnerCategories  []string `json:"dinner_categories"`
	ExcludedCardAlias string   `json:"excluded_card_alias"`
	UserDelimiter     string   `json:"user_delimiter"`
}

func newAnalysisResponse(rep *services.StoredReport) analysisResponse {
	return analysisResponse{
		ID:        rep.ID,
		Label:     rep.Label,
		Source:    rep.Source,
		Filename:  rep.Filename,
		CreatedAt: rep.CreatedAt,
		Ingest:    rep.Ingest,
		Lunch:     newClassView(rep.Report.Lunch),
		Dinner:    newClassView(rep.Report.Dinner),
	}
}

func newClassView(c core.ClassResult) classView {
	v := classView{
		Class:              c.Class.String(),
		Rows:               c.Rows,
		FlaggedUsers:       len(c.Excess),
		HighSpenderRows:    len(c.HighSpenders),
		TotalExcess:        c.TotalExcess(),
		TotalExcessDisplay: core.FormatWon(c.TotalExcess()),
		Ranking:            make([]rankView, 0, len(c.Excess)),
	}
	for i, e := range c.Excess {
		v.Ranking = append(v.Ranking, rankView{
			Rank:          i + 1,
			User:          e.User,
			Excess:        e.Excess,
			ExcessDisplay: core.FormatWon(e.Excess),
		})
	}
	return v
}

func newDetailViews(rows []core.NormalizedRecord) []detailView {
	out := make([]detailView, 0, len(rows))
	for _, r := range rows {
		out = append(out, detailView{
			Date:          r.Date,
			User:          r.UserField,
			CardAlias:     r.CardAlias,
			Category:      r.Category,
			Merchant:      r.MerchantName,
			Amount:        r.Amount,
			AmountDisplay: core.FormatWon(int64(math.Round(r.Amount))),
		})
	}
	return out
}

func newPolicyResponse(p core.Policy) policyResponse {
	return policyResponse{
		DailyCap:          p.DailyCap,
		DailyCapDisplay:   core.FormatWon(int64(math.Round(p.DailyCap))),
		LunchCategories:   p.LunchCategories,
		DinnerCategories:  p.DinnerCategories,
		ExcludedCardAlias: p.ExcludedCardAlias,
		UserDelimiter:     p.UserDelimiter,
	}
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(v); err != nil {
		slog.Error("Failed to encode response", "error", err)
	}
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}
