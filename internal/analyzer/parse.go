// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package analyzer

import (
	"bytes"
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

// rawCandidate mirrors what models actually return: confidence may be a
// string and severity is free text.
type rawCandidate struct {
	Title      string    `json:"title"`
	Severity   string    `json:"severity"`
	Confidence flexFloat `json:"confidence"`
	DedupeKey  string    `json:"dedupe_key"`
	Summary    string    `json:"summary"`
	Tags       []string  `json:"tags"`
	Group      string    `json:"affected_group"`
}

type flexFloat float64

func (f *flexFloat) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "null" {
		*f = 0
		return nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return err
	}
	*f = flexFloat(v)
	return nil
}

// ParseCandidates extracts candidates from a model response. It accepts a
// bare array, an object with an "incidents" or "candidates" array, and
// either wrapped in prose or markdown code fences. Entries with an empty
// title or unknown severity are dropped and confidence is clamped to [0,1].
func ParseCandidates(text string) ([]Candidate, error) {
	body := extractJSON(text)
	if body == nil {
		return nil, autoirerr.New(autoirerr.CodeAnalyzerResponseInvalid, "no JSON found in analyzer response")
	}

	var raws []rawCandidate
	if body[0] == '[' {
		if err := json.Unmarshal(body, &raws); err != nil {
			return nil, autoirerr.Wrap(err, autoirerr.CodeAnalyzerResponseInvalid, "decoding candidate array")
		}
	} else {
		var envelope struct {
			Incidents  []rawCandidate `json:"incidents"`
			Candidates []rawCandidate `json:"candidates"`
		}
		if err := json.Unmarshal(body, &envelope); err != nil {
			return nil, autoirerr.Wrap(err, autoirerr.CodeAnalyzerResponseInvalid, "decoding candidate object")
		}
		raws = append(envelope.Incidents, envelope.Candidates...)
	}

	out := make([]Candidate, 0, len(raws))
	for _, r := range raws {
		title := strings.TrimSpace(r.Title)
		sev, ok := store.ParseSeverity(r.Severity)
		if title == "" || !ok {
			continue
		}
		out = append(out, Candidate{
			Title:      title,
			Severity:   sev,
			Confidence: clamp01(float64(r.Confidence)),
			DedupeKey:  strings.TrimSpace(r.DedupeKey),
			Summary:    strings.TrimSpace(r.Summary),
			Tags:       r.Tags,
			Group:      strings.TrimSpace(r.Group),
		})
	}
	return out, nil
}

// extractJSON returns the JSON object or array embedded in text, or nil.
// Both the outermost {...} and [...] spans are considered and the one that
// is valid JSON wins; when both are, the enclosing (earlier) one does. If
// neither is valid the object span is returned so decoding reports why.
func extractJSON(text string) []byte {
	b := bytes.TrimSpace([]byte(text))
	objAt, obj := jsonSpan(b, '{', '}')
	arrAt, arr := jsonSpan(b, '[', ']')
	objOK := obj != nil && json.Valid(obj)
	arrOK := arr != nil && json.Valid(arr)

	switch {
	case objOK && arrOK:
		if arrAt < objAt {
			return arr
		}
		return obj
	case objOK:
		return obj
	case arrOK:
		return arr
	case obj != nil:
		return obj
	default:
		return arr
	}
}

// jsonSpan returns the offset and bytes from the first open to the last
// closer, or -1 and nil.
func jsonSpan(b []byte, open, closer byte) (int, []byte) {
	start := bytes.IndexByte(b, open)
	end := bytes.LastIndexByte(b, closer)
	if start < 0 || end <= start {
		return -1, nil
	}
	return start, b[start : end+1]
}

func clamp01(v float64) float64 {
	switch {
	case math.IsNaN(v), v < 0:
		return 0
	case v > 1:
		return 1
	default:
		return v
	}
}
