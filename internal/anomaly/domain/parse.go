package anomaly

import (
	"bytes"
	"encoding/json"
	"errors"
	"strconv"
	"strings"

	alerts "watertap/internal/alerts/domain"
)

// ErrUnparseableResponse indicates a classifier reply with no usable JSON.
var ErrUnparseableResponse = errors.New("anomaly: unparseable classifier response")

type response struct {
	Alerts []json.RawMessage `json:"alerts"`
}

type responseAlert struct {
	SensorID    json.RawMessage `json:"sensorId"`
	Severity    json.RawMessage `json:"severity"`
	Description json.RawMessage `json:"description"`
	Solution    json.RawMessage `json:"solution"`
}

// ParseResponse extracts alert candidates from a classifier reply. The reply
// is decoded whole, then from its outermost {...} span. Each entry is decoded
// on its own: entries that are not objects or lack a usable sensorId are
// dropped, and text fields holding numbers or booleans are read as their
// literal while objects, arrays and null count as missing.
func ParseResponse(text string) ([]alerts.Candidate, error) {
	var resp response
	if err := json.Unmarshal([]byte(strings.TrimSpace(text)), &resp); err != nil {
		start := strings.Index(text, "{")
		end := strings.LastIndex(text, "}")
		if start < 0 || end <= start {
			return nil, ErrUnparseableResponse
		}
		resp = response{}
		if err := json.Unmarshal([]byte(text[start:end+1]), &resp); err != nil {
			return nil, ErrUnparseableResponse
		}
	}

	out := make([]alerts.Candidate, 0, len(resp.Alerts))
	for _, raw := range resp.Alerts {
		var a responseAlert
		if err := json.Unmarshal(raw, &a); err != nil {
			continue
		}
		id, ok := decodeSensorID(a.SensorID)
		if !ok {
			continue
		}
		description := decodeText(a.Description)
		if description == "" {
			description = alerts.DefaultDescription
		}
		out = append(out, alerts.Candidate{
			SensorID:    id,
			Severity:    alerts.ParseSeverity(decodeText(a.Severity)),
			Description: description,
			Solution:    decodeText(a.Solution),
		})
	}
	return out, nil
}

func decodeSensorID(raw json.RawMessage) (int, bool) {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return 0, false
	}
	var n json.Number
	if err := json.Unmarshal(raw, &n); err == nil {
		return numberToID(string(n))
	}
	var s string
	if err := json.Unmarshal(raw, &s); err != nil {
		return 0, false
	}
	return numberToID(strings.TrimSpace(s))
}

// decodeText reads a scalar JSON value as trimmed text.
func decodeText(raw json.RawMessage) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}
	switch raw[0] {
	case '"':
		var s string
		if err := json.Unmarshal(raw, &s); err != nil {
			return ""
		}
		return strings.TrimSpace(s)
	case '{', '[', 'n':
		return ""
	default:
		return string(raw)
	}
}

func numberToID(value string) (int, bool) {
	if id, err := strconv.Atoi(value); err == nil {
		return id, true
	}
	f, err := strconv.ParseFloat(value, 64)
	if err != nil || f != float64(int(f)) {
		return 0, false
	}
	return int(f), true
}
