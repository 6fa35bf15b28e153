package api

import (
	"encoding/json"
	"math"
	"net/http"
	"reflect"
	"time"
)

// timestampLayout renders UTC instants with a literal Z suffix.
const timestampLayout = "2006-01-02T15:04:05.000000Z"

// Meta describes one response.
type Meta struct {
	DataLength        int     `json:"data_length"`
	Message           string  `json:"message"`
	RequestURL        string  `json:"request_url"`
	Status            string  `json:"status"`
	StatusCode        int     `json:"status_code"`
	TimestampElapsed  float64 `json:"timestamp_elapsed"`
	TimestampReceived string  `json:"timestamp_received"`
	TimestampReturned string  `json:"timestamp_returned"`
	TraceID           string  `json:"trace_id"`
}

// Envelope is the body of every response.
type Envelope struct {
	Meta    Meta `json:"meta"`
	Service any  `json:"service"`
	Data    any  `json:"data"`
}

func newMeta(r *http.Request, status int, message string, data any, received, returned time.Time, traceID string) Meta {
	outcome := "error"
	if status >= 200 && status < 300 {
		outcome = "success"
	}
	elapsed := returned.Sub(received).Seconds()
	return Meta{
		DataLength:        dataLength(data),
		Message:           message,
		RequestURL:        requestURL(r),
		Status:            outcome,
		StatusCode:        status,
		TimestampElapsed:  math.Round(elapsed*1e6) / 1e6,
		TimestampReceived: received.UTC().Format(timestampLayout),
		TimestampReturned: returned.UTC().Format(timestampLayout),
		TraceID:           traceID,
	}
}

// dataLength is the element count of a list payload and 1 for an object.
func dataLength(data any) int {
	if data == nil {
		return 0
	}
	v := reflect.ValueOf(data)
	if v.Kind() == reflect.Slice || v.Kind() == reflect.Array {
		return v.Len()
	}
	return 1
}

func requestURL(r *http.Request) string {
	scheme := "http"
	if r.TLS != nil {
		scheme = "https"
	}
	if proto := r.Header.Get("X-Forwarded-Proto"); proto != "" {
		scheme = proto
	}
	return scheme + "://" + r.Host + r.URL.RequestURI()
}

func writeJSON(w http.ResponseWriter, status int, body any) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(body)
}
