package ocrspace

import (
	"bytes"
	"encoding/json"
	"strconv"
	"strings"
)

// response is the subset of the OCR.space /parse/image body we interpret.
type response struct {
	ParsedResults                []parsedResult `json:"ParsedResults"`
	OCRExitCode                  int            `json:"OCRExitCode"`
	IsErroredOnProcessing        bool           `json:"IsErroredOnProcessing"`
	ErrorMessage                 flexString     `json:"ErrorMessage"`
	ErrorDetails                 flexString     `json:"ErrorDetails"`
	ProcessingTimeInMilliseconds flexString     `json:"ProcessingTimeInMilliseconds"`
}

type parsedResult struct {
	FileParseExitCode int        `json:"FileParseExitCode"`
	ParsedText        string     `json:"ParsedText"`
	ErrorMessage      flexString `json:"ErrorMessage"`
}

// flexString accepts a JSON string, number, array of strings or null.
// The provider is not consistent about these fields across engines and plans.
type flexString string

func (f *flexString) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*f = ""
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*f = flexString(s)
	case '[':
		var parts []string
		if err := json.Unmarshal(b, &parts); err != nil {
			return err
		}
		*f = flexString(strings.Join(parts, "; "))
	default:
		*f = flexString(b)
	}
	return nil
}

// text joins every page's parsed text.
func (r response) text() string {
	parts := make([]string, 0, len(r.ParsedResults))
	for _, p := range r.ParsedResults {
		if t := strings.TrimSpace(p.ParsedText); t != "" {
			parts = append(parts, t)
		}
	}
	return strings.Join(parts, "\n")
}

// providerTimeMs is the provider-reported processing time, if parseable.
func (r response) providerTimeMs() (int64, bool) {
	s := strings.TrimSpace(string(r.ProcessingTimeInMilliseconds))
	if s == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(s, 10, 64); err == nil && n >= 0 {
		return n, true
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil && f >= 0 {
		return int64(f), true
	}
	return 0, false
}

// failed reports the provider-level error flags.
func (r response) failed() bool {
	return r.IsErroredOnProcessing || r.OCRExitCode != 1
}

func (r response) errorMessage() string {
	msg := string(r.ErrorMessage)
	if msg == "" {
		for _, p := range r.ParsedResults {
			if p.ErrorMessage != "" {
				msg = string(p.ErrorMessage)
				break
			}
		}
	}
	if msg == "" {
		msg = "Unknown error"
	}
	if d := string(r.ErrorDetails); d != "" {
		msg += " (" + d + ")"
	}
	return msg
}
