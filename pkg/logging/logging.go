package logging

import (
	"encoding/json"
	"log"
	"time"
)

type Fields struct {
	Service    string `json:"service"`
	RequestID  string `json:"request_id,omitempty"`
	OrderID    int64  `json:"order_id,omitempty"`
	TxHash     string `json:"tx_hash,omitempty"`
	EventID    string `json:"event_id,omitempty"`
	Step       string `json:"step,omitempty"`
	Status     string `json:"status,omitempty"`
	DurationMS int64  `json:"duration_ms,omitempty"`
	Message    string `json:"message,omitempty"`
	Error      string `json:"error,omitempty"`
}

// Logger binds a service name so callers deep in the stack do not repeat it.
type Logger struct {
	Service string
}

func New(service string) Logger {
	return Logger{Service: service}
}

func (l Logger) Log(fields Fields) {
	if fields.Service == "" {
		fields.Service = l.Service
	}
	Log(fields)
}

func Log(fields Fields) {
	payload := map[string]any{
		"service":   fields.Service,
		"step":      fields.Step,
		"status":    fields.Status,
		"timestamp": time.Now().UTC().Format(time.RFC3339Nano),
	}
	if fields.RequestID != "" {
		payload["request_id"] = fields.RequestID
	}
	if fields.OrderID != 0 {
		payload["order_id"] = fields.OrderID
	}
	if fields.TxHash != "" {
		payload["tx_hash"] = fields.TxHash
	}
	if fields.EventID != "" {
		payload["event_id"] = fields.EventID
	}
	if fields.DurationMS != 0 {
		payload["duration_ms"] = fields.DurationMS
	}
	if fields.Message != "" {
		payload["message"] = fields.Message
	}
	if fields.Error != "" {
		payload["error"] = fields.Error
	}
	data, err := json.Marshal(payload)
	if err != nil {
		log.Printf("{\"service\":%q,\"status\":\"log_error\",\"error\":%q}", fields.Service, err.Error())
		return
	}
	log.Print(string(data))
}
