package api

import (
	"encoding/csv"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/snarg/cel-logd/internal/database"
	"github.com/snarg/cel-logd/internal/generator"
)

type callLogItem struct {
	ID               int64             `json:"id"`
	TenantUUID       string            `json:"tenant_uuid"`
	Date             time.Time         `json:"date"`
	DateAnswer       *time.Time        `json:"date_answer"`
	DateEnd          *time.Time        `json:"date_end"`
	Duration         float64           `json:"duration"`
	Direction        string            `json:"direction"`
	SourceName       string            `json:"source_name"`
	SourceExten      string            `json:"source_exten"`
	DestinationName  string            `json:"destination_name"`
	DestinationExten string            `json:"destination_exten"`
	RequestedExten   string            `json:"requested_exten"`
	Answered         bool              `json:"answered"`
	Participants     []participantItem `json:"participants"`
}

type participantItem struct {
	UserUUID string   `json:"user_uuid"`
	Role     string   `json:"role"`
	Tags     []string `json:"tags"`
	Answered bool     `json:"answered"`
}

type listCallLogsResponse struct {
	Items    []callLogItem `json:"items"`
	Total    int64         `json:"total"`
	Filtered int           `json:"filtered"`
}

func filterFromRequest(r *http.Request) (database.CallLogFilter, error) {
	f := database.CallLogFilter{
		TenantUUID: r.URL.Query().Get("tenant_uuid"),
		UserUUID:   r.URL.Query().Get("user_uuid"),
	}
	if v := r.URL.Query().Get("from"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid from %q: want RFC3339", v)
		}
		f.From = &t
	}
	if v := r.URL.Query().Get("until"); v != "" {
		t, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return f, fmt.Errorf("invalid until %q: want RFC3339", v)
		}
		f.Until = &t
	}
	return f, nil
}

func toCallLogItem(cl *generator.CallLog) callLogItem {
	item := callLogItem{
		ID:               cl.ID,
		TenantUUID:       cl.TenantUUID,
		Date:             cl.Date,
		DateAnswer:       cl.DateAnswer,
		DateEnd:          cl.DateEnd,
		Duration:         cl.Duration().Seconds(),
		Direction:        string(cl.Direction),
		SourceName:       cl.SourceName,
		SourceExten:      cl.SourceExten,
		DestinationName:  cl.DestinationName,
		DestinationExten: cl.DestinationExten,
		RequestedExten:   cl.RequestedExten,
		Answered:         cl.Answered(),
		Participants:     []participantItem{},
	}
	for _, p := range cl.Participants {
		tags := p.Tags
		if tags == nil {
			tags = []string{}
		}
		item.Participants = append(item.Participants, participantItem{
			UserUUID: p.UserUUID,
			Role:     string(p.Role),
			Tags:     tags,
			Answered: p.Answered,
		})
	}
	return item
}

func (s *Server) handleListCallLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	page, err := ParsePagination(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}
	filter.Limit = page.Limit
	filter.Offset = page.Offset

	logs, err := s.db.ListCallLogs(r.Context(), filter)
	if err != nil {
		s.log.Error().Err(err).Msg("list call logs failed")
		WriteError(w, http.StatusInternalServerError, "failed to list call logs")
		return
	}
	total, err := s.db.CountCallLogs(r.Context(), filter)
	if err != nil {
		s.log.Error().Err(err).Msg("count call logs failed")
		WriteError(w, http.StatusInternalServerError, "failed to count call logs")
		return
	}

	items := make([]callLogItem, 0, len(logs))
	for _, cl := range logs {
		items = append(items, toCallLogItem(cl))
	}
	WriteJSON(w, http.StatusOK, listCallLogsResponse{
		Items:    items,
		Total:    total,
		Filtered: len(items),
	})
}

var exportHeader = []string{
	"id", "tenant_uuid", "date", "date_answer", "date_end", "duration",
	"direction", "source_name", "source_exten",
	"destination_name", "destination_exten", "requested_exten", "answered",
}

func (s *Server) handleExportCallLogs(w http.ResponseWriter, r *http.Request) {
	filter, err := filterFromRequest(r)
	if err != nil {
		WriteError(w, http.StatusBadRequest, err.Error())
		return
	}

	logs, err := s.db.ListCallLogs(r.Context(), filter)
	if err != nil {
		s.log.Error().Err(err).Msg("export call logs failed")
		WriteError(w, http.StatusInternalServerError, "failed to export call logs")
		return
	}

	w.Header().Set("Content-Type", "text/csv")
	w.Header().Set("Content-Disposition", `attachment; filename="call_logs.csv"`)

	cw := csv.NewWriter(w)
	cw.Write(exportHeader)
	for _, cl := range logs {
		record := []string{
			strconv.FormatInt(cl.ID, 10),
			cl.TenantUUID,
			cl.Date.Format(time.RFC3339),
			formatCSVTime(cl.DateAnswer),
			formatCSVTime(cl.DateEnd),
			strconv.FormatFloat(cl.Duration().Seconds(), 'f', 3, 64),
			string(cl.Direction),
			cl.SourceName,
			cl.SourceExten,
			cl.DestinationName,
			cl.DestinationExten,
			cl.RequestedExten,
			strconv.FormatBool(cl.Answered()),
		}
		cw.Write(record)
	}
	cw.Flush()
	if err := cw.Error(); err != nil {
		s.log.Error().Err(err).Msg("csv write failed")
	}
}

func formatCSVTime(t *time.Time) string {
	if t == nil {
		return ""
	}
	return t.Format(time.RFC3339)
}
