package protocol

import (
	"encoding/json"
	"time"

	"github.com/smukkama/tsa/internal/analysis"
	"github.com/smukkama/tsa/internal/definition"
	"github.com/smukkama/tsa/internal/evalerr"
)

// MessageType tells result messages apart on the results topic
type MessageType string

const (
	MsgTypeConditionResult  MessageType = "CONDITION_RESULT"
	MsgTypeCollectionReport MessageType = "COLLECTION_REPORT"
)

// AnalysisRequest asks the analyzer to evaluate the collections of a
// definition document
type AnalysisRequest struct {
	RequestID   string          `json:"request_id"`
	RequestedAt time.Time       `json:"requested_at"`
	Definition  definition.File `json:"definition"`
}

// ConditionResultMessage carries the result of one condition
type ConditionResultMessage struct {
	Type       MessageType              `json:"type"`
	RunID      string                   `json:"run_id"`
	RequestID  string                   `json:"request_id,omitempty"`
	Collection string                   `json:"collection"`
	From       time.Time                `json:"from"`
	Until      time.Time                `json:"until"`
	Result     analysis.ConditionResult `json:"result"`
}

// CollectionReportMessage closes the results of one collection
type CollectionReportMessage struct {
	Type       MessageType              `json:"type"`
	RunID      string                   `json:"run_id"`
	RequestID  string                   `json:"request_id,omitempty"`
	Collection string                   `json:"collection"`
	Conditions int                      `json:"conditions"`
	Valid      int                      `json:"valid"`
	Duration   time.Duration            `json:"duration"`
	Report     evalerr.CollectionReport `json:"report"`
}

// NewResultMessages splits a collection result into one message per
// condition followed by the report message
func NewResultMessages(requestID string, res *analysis.CollectionResult) ([]*ConditionResultMessage, *CollectionReportMessage) {
	conditions := make([]*ConditionResultMessage, 0, len(res.Conditions))
	for _, c := range res.Conditions {
		conditions = append(conditions, &ConditionResultMessage{
			Type:       MsgTypeConditionResult,
			RunID:      res.RunID,
			RequestID:  requestID,
			Collection: res.Title,
			From:       res.From,
			Until:      res.Until,
			Result:     c,
		})
	}

	report := &CollectionReportMessage{
		Type:       MsgTypeCollectionReport,
		RunID:      res.RunID,
		RequestID:  requestID,
		Collection: res.Title,
		Conditions: len(res.Conditions),
		Valid:      res.Valid(),
		Duration:   res.Duration,
		Report:     res.Report,
	}
	return conditions, report
}

// EncodeAnalysisRequest encodes an AnalysisRequest to JSON
func EncodeAnalysisRequest(req *AnalysisRequest) ([]byte, error) {
	return json.Marshal(req)
}

// DecodeAnalysisRequest decodes JSON to AnalysisRequest and validates the
// definition it carries
func DecodeAnalysisRequest(data []byte) (*AnalysisRequest, error) {
	var req AnalysisRequest
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, err
	}
	if err := req.Definition.Validate(); err != nil {
		return nil, err
	}
	return &req, nil
}

// EncodeConditionResult encodes a ConditionResultMessage to JSON
func EncodeConditionResult(msg *ConditionResultMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// EncodeCollectionReport encodes a CollectionReportMessage to JSON
func EncodeCollectionReport(msg *CollectionReportMessage) ([]byte, error) {
	return json.Marshal(msg)
}

// PeekType returns the type of a result message
func PeekType(data []byte) (MessageType, error) {
	var base struct {
		Type MessageType `json:"type"`
	}
	if err := json.Unmarshal(data, &base); err != nil {
		return "", err
	}
	return base.Type, nil
}

// DecodeConditionResult decodes JSON to ConditionResultMessage
func DecodeConditionResult(data []byte) (*ConditionResultMessage, error) {
	var msg ConditionResultMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}

// DecodeCollectionReport decodes JSON to CollectionReportMessage
func DecodeCollectionReport(data []byte) (*CollectionReportMessage, error) {
	var msg CollectionReportMessage
	if err := json.Unmarshal(data, &msg); err != nil {
		return nil, err
	}
	return &msg, nil
}
