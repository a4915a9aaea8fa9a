package api

import (
	"time"

	"github.com/yardstick/benchalign/internal/report"
)

// HelloMessage is the initial payload sent on WebSocket connection.
type HelloMessage struct {
	Type     string          `json:"type"`
	Metrics  []report.Metric `json:"metrics"`
	Features map[string]bool `json:"features"`
}

// NewHelloMessage constructs a hello payload.
func NewHelloMessage(metrics []report.Metric, features map[string]bool) HelloMessage {
	return HelloMessage{
		Type:     "hello",
		Metrics:  metrics,
		Features: features,
	}
}

// ReportMessage wraps a completed analysis for transport.
type ReportMessage struct {
	Type       string  `json:"type"`
	Sequence   uint64  `json:"sequence"`
	DurationMS float64 `json:"duration_ms"`
	*report.Report
}

// NewReportMessage constructs a report payload.
func NewReportMessage(sequence uint64, duration time.Duration, rep *report.Report) ReportMessage {
	return ReportMessage{
		Type:       "report",
		Sequence:   sequence,
		DurationMS: float64(duration) / float64(time.Millisecond),
		Report:     rep,
	}
}

// ReloadAckMessage confirms a client reload request.
type ReloadAckMessage struct {
	Type   string `json:"type"`
	Queued bool   `json:"queued"`
}

// ErrorMessage communicates an error condition to the client.
type ErrorMessage struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// ClientMessage is a generic envelope used for decoding inbound client messages.
type ClientMessage struct {
	Type string `json:"type"`
}

// PongMessage is the response to a ping.
type PongMessage struct {
	Type string `json:"type"`
}
