package api

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"unicode/utf8"
)

// maxRawErrorLength caps how much of an unparseable detail ends up in a message
const maxRawErrorLength = 200

// ValidationError is returned when a caller-side precondition is violated.
// No request is sent to the backend.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	if e.Field == "" {
		return "validation error: " + e.Message
	}
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// UpstreamError represents a failed exchange with the backend: either the
// backend answered with an error or it could not be reached. Message is the
// normalised, human-readable text regardless of the payload shape.
type UpstreamError struct {
	Op         string
	StatusCode int // 0 when the backend was unreachable
	Message    string
	Retryable  bool
}

func (e *UpstreamError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("%s failed (status %d): %s", e.Op, e.StatusCode, e.Message)
	}
	return fmt.Sprintf("%s failed: %s", e.Op, e.Message)
}

// NotFound reports whether the backend could not resolve the requested resource
func (e *UpstreamError) NotFound() bool {
	return e.StatusCode == http.StatusNotFound
}

// IsValidation reports whether err is (or wraps) a *ValidationError
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}

// IsUpstream reports whether err is (or wraps) an *UpstreamError
func IsUpstream(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue)
}

// IsNotFound reports whether err is an upstream 404
func IsNotFound(err error) bool {
	var ue *UpstreamError
	return errors.As(err, &ue) && ue.NotFound()
}

// Message returns the text suitable for showing to a user: the normalised
// message for client errors, err.Error() for anything else
func Message(err error) string {
	if err == nil {
		return ""
	}
	var ue *UpstreamError
	if errors.As(err, &ue) {
		return ue.Message
	}
	var ve *ValidationError
	if errors.As(err, &ve) {
		return ve.Error()
	}
	return err.Error()
}

// normalizeErrorBody turns whatever the backend returned into one line of text.
// Handles the FastAPI envelope {"detail": ...} where detail may be a string,
// an object or a list of validation issues, plus {"message": ...} and
// {"error": ...} shapes.
func normalizeErrorBody(method, path string, statusCode int, body []byte) string {
	trimmed := bytes.TrimSpace(body)
	if len(trimmed) == 0 {
		return fallbackMessage(method, path, statusCode)
	}

	var envelope map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &envelope); err != nil {
		if json.Valid(trimmed) {
			return compact(trimmed)
		}
		// Proxies answer with HTML or plain text
		return fallbackMessage(method, path, statusCode)
	}

	for _, key := range []string{"detail", "message", "error"} {
		raw, ok := envelope[key]
		if !ok || string(raw) == "null" {
			continue
		}
		if msg := detailText(raw); msg != "" {
			return msg
		}
	}

	return compact(trimmed)
}

// detailText renders a single detail value
func detailText(raw json.RawMessage) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return strings.TrimSpace(s)
	}

	// List of pydantic validation issues: join their "msg" fields
	var issues []map[string]interface{}
	if err := json.Unmarshal(raw, &issues); err == nil && len(issues) > 0 {
		var msgs []string
		for _, issue := range issues {
			msg, ok := issue["msg"].(string)
			if !ok {
				msgs = nil
				break
			}
			if loc, ok := issue["loc"].([]interface{}); ok && len(loc) > 0 {
				msg = fmt.Sprintf("%v: %s", loc[len(loc)-1], msg)
			}
			msgs = append(msgs, msg)
		}
		if len(msgs) > 0 {
			return strings.Join(msgs, "; ")
		}
	}

	// Nested {"message": ...} objects
	var obj map[string]json.RawMessage
	if err := json.Unmarshal(raw, &obj); err == nil {
		if inner, ok := obj["message"]; ok {
			if msg := detailText(inner); msg != "" {
				return msg
			}
		}
	}

	return compact(raw)
}

func compact(raw []byte) string {
	var buf bytes.Buffer
	if err := json.Compact(&buf, raw); err != nil {
		return truncate(string(raw))
	}
	return buf.String()
}

func truncate(s string) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= maxRawErrorLength {
		return s
	}
	runes := []rune(s)
	return string(runes[:maxRawErrorLength]) + "..."
}

func fallbackMessage(method, path string, statusCode int) string {
	return fmt.Sprintf("%s %s: status %d", method, path, statusCode)
}
