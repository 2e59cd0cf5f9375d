package amqp

import (
	"encoding/json"
	"errors"
	"strings"
	"time"

	"sikdae/internal/core"
)

var ErrInvalidMessage = errors.New("invalid message")

// AnalysisRequestMessage asks the worker to analyze one spreadsheet tab.
// Empty SpreadsheetID or SheetName fall back to the worker's configuration.
type AnalysisRequestMessage struct {
	RequestID     string    `json:"request_id"`
	SpreadsheetID string    `json:"spreadsheet_id,omitempty"`
	SheetName     string    `json:"sheet_name,omitempty"`
	Label         string    `json:"label,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
}

func NewAnalysisRequestMessage(requestID, spreadsheetID, sheetName, label string) *AnalysisRequestMessage {
	return &AnalysisRequestMessage{
		RequestID:     requestID,
		SpreadsheetID: spreadsheetID,
		SheetName:     sheetName,
		Label:         label,
		Timestamp:     time.Now(),
	}
}

func (m *AnalysisRequestMessage) Validate() error {
	if strings.TrimSpace(m.RequestID) == "" {
		return errors.Join(ErrInvalidMessage, errors.New("request_id is required"))
	}
	return nil
}

// ToJSON converts the message to JSON bytes
func (m *AnalysisRequestMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

// AnalysisRequestMessageFromJSON decodes and validates a request.
func AnalysisRequestMessageFromJSON(data []byte) (*AnalysisRequestMessage, error) {
	var msg AnalysisRequestMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	if err := msg.Validate(); err != nil {
		return nil, err
	}
	return &msg, nil
}

// Analysis outcome values carried by AnalysisCompletedMessage.Status.
const (
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ClassSummary is the per-class part of a completion message.
type ClassSummary struct {
	Rows         int                 `json:"rows"`
	FlaggedUsers int                 `json:"flagged_users"`
	TotalExcess  int64               `json:"total_excess"`
	Excess       []core.ExcessRecord `json:"excess"`
}

// SummarizeClass builds the message view of one class result.
func SummarizeClass(r core.ClassResult) ClassSummary {
	return ClassSummary{
		Rows:         r.Rows,
		FlaggedUsers: len(r.Excess),
		TotalExcess:  r.TotalExcess(),
		Excess:       r.Excess,
	}
}

// AnalysisCompletedMessage announces the outcome of one analysis.
type AnalysisCompletedMessage struct {
	AnalysisID string       `json:"analysis_id,omitempty"`
	RequestID  string       `json:"request_id,omitempty"`
	Label      string       `json:"label,omitempty"`
	Source     string       `json:"source"`
	Status     string       `json:"status"`
	Error      string       `json:"error,omitempty"`
	Lunch      ClassSummary `json:"lunch"`
	Dinner     ClassSummary `json:"dinner"`
	Timestamp  time.Time    `json:"timestamp"`
}

func (m *AnalysisCompletedMessage) ToJSON() ([]byte, error) {
	return json.Marshal(m)
}

func AnalysisCompletedMessageFromJSON(data []byte) (*AnalysisCompletedMessage, error) {
	var msg AnalysisCompletedMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, errors.Join(ErrInvalidMessage, err)
	}
	return &msg, nil
}
