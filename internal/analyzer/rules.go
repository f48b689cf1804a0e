// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AutoIR Contributors

package analyzer

import (
	"context"
	"fmt"
	"os"
	"regexp"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/autoir-dev/autoir/internal/store"
	autoirerr "github.com/autoir-dev/autoir/pkg/errors"
)

const rulesAnalyzerName = "rules"

// Rule matches sample messages against a regular expression. Every log
// group with at least one match yields one candidate.
type Rule struct {
	Name       string         `yaml:"name"`
	Pattern    string         `yaml:"pattern"`
	Title      string         `yaml:"title"`
	Severity   store.Severity `yaml:"severity"`
	Confidence float64        `yaml:"confidence"`

	re *regexp.Regexp
}

// ruleFile is the on-disk layout of a rules file.
type ruleFile struct {
	Rules []Rule `yaml:"rules"`
}

// DefaultRules returns the built-in heuristics.
func DefaultRules() []Rule {
	return []Rule{
		{Name: "oom", Pattern: `(?i)out of memory|oomkilled|oom-kill|cannot allocate memory`, Title: "Out of memory", Severity: store.SeverityCritical, Confidence: 0.9},
		{Name: "panic", Pattern: `(?i)\bpanic:|\bfatal\b|segmentation fault|unhandled exception`, Title: "Process crash", Severity: store.SeverityHigh, Confidence: 0.85},
		{Name: "http_5xx", Pattern: `\b5\d\d\b.*(?i:error|status|response)|(?i:status[=: ]+)5\d\d\b`, Title: "HTTP 5xx responses", Severity: store.SeverityHigh, Confidence: 0.75},
		{Name: "connection", Pattern: `(?i)connection refused|connection reset|no route to host|broken pipe`, Title: "Connection failures", Severity: store.SeverityHigh, Confidence: 0.7},
		{Name: "timeout", Pattern: `(?i)timed? ?out|deadline exceeded`, Title: "Timeouts", Severity: store.SeverityMedium, Confidence: 0.7},
		{Name: "error", Pattern: `(?i)\berror\b|\bexception\b`, Title: "Errors", Severity: store.SeverityMedium, Confidence: 0.6},
	}
}

// ParseRules parses YAML rule definitions and validates them.
func ParseRules(data []byte) ([]Rule, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rules parse: %s", err)
	}
	if len(f.Rules) == 0 {
		return nil, autoirerr.New(autoirerr.CodeAnalyzerConfigInvalid, "rules file defines no rules")
	}
	return f.Rules, nil
}

// LoadRules reads and parses a rules file.
func LoadRules(path string) ([]Rule, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, autoirerr.Wrapf(err, autoirerr.CodeAnalyzerConfigInvalid, "reading rules file %s", path)
	}
	return ParseRules(data)
}

// Rules is an Analyzer backed by regular-expression heuristics. It makes no
// network calls.
type Rules struct {
	rules []Rule
}

// NewRules compiles rules. All validation errors are reported together.
func NewRules(rules []Rule) (*Rules, error) {
	var errs []error
	seen := make(map[string]bool, len(rules))
	compiled := make([]Rule, 0, len(rules))

	for i, r := range rules {
		if strings.TrimSpace(r.Name) == "" {
			errs = append(errs, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rule %d: name must not be empty", i))
			continue
		}
		if seen[r.Name] {
			errs = append(errs, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rule %q: duplicate name", r.Name))
		}
		seen[r.Name] = true

		re, err := regexp.Compile(r.Pattern)
		if err != nil || r.Pattern == "" {
			errs = append(errs, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rule %q: invalid pattern %q", r.Name, r.Pattern))
			continue
		}
		if !r.Severity.Valid() {
			errs = append(errs, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rule %q: unknown severity %q", r.Name, r.Severity))
		}
		if r.Confidence < 0 || r.Confidence > 1 {
			errs = append(errs, autoirerr.Errorf(autoirerr.CodeAnalyzerConfigInvalid, "rule %q: confidence must be in [0,1]", r.Name))
		}
		if r.Title == "" {
			r.Title = r.Name
		}
		r.re = re
		compiled = append(compiled, r)
	}

	if len(errs) > 0 {
		return nil, autoirerr.Join(errs...)
	}
	return &Rules{rules: compiled}, nil
}

func (a *Rules) Name() string { return rulesAnalyzerName }

// Analyze assigns each sample to the first rule it matches, then emits one
// candidate per (rule, group) in rule order and group name order.
func (a *Rules) Analyze(ctx context.Context, in Input) ([]Candidate, error) {
	type hit struct {
		count   int
		example string
	}
	hits := make([]map[string]*hit, len(a.rules))

	for _, s := range in.Samples {
		if err := ctx.Err(); err != nil {
			return nil, autoirerr.Wrap(err, autoirerr.CodeAnalyzerTimeout, "rules analysis interrupted")
		}
		for i, r := range a.rules {
			if !r.re.MatchString(s.Message) {
				continue
			}
			if hits[i] == nil {
				hits[i] = make(map[string]*hit)
			}
			h := hits[i][s.Group]
			if h == nil {
				h = &hit{example: truncate(s.Message, 200)}
				hits[i][s.Group] = h
			}
			h.count++
			break
		}
	}

	var out []Candidate
	for i, r := range a.rules {
		groups := make([]string, 0, len(hits[i]))
		for g := range hits[i] {
			groups = append(groups, g)
		}
		sort.Strings(groups)

		for _, g := range groups {
			h := hits[i][g]
			title := r.Title
			if g != "" {
				title = fmt.Sprintf("%s in %s", r.Title, g)
			}
			out = append(out, Candidate{
				Title:      title,
				Severity:   r.Severity,
				Confidence: r.Confidence,
				DedupeKey:  fmt.Sprintf("rule:%s:%s", r.Name, g),
				Summary:    fmt.Sprintf("%d sampled events matched %q, e.g. %q", h.count, r.Name, h.example),
				Tags:       []string{r.Name},
				Group:      g,
			})
		}
	}
	return out, nil
}
