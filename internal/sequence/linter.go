package sequence

import (
	"encoding/json"
	"fmt"
	"regexp"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/osteele/liquid"
)

// Severity classifies a lint issue.
type Severity string

const (
	SeverityError   Severity = "error"
	SeverityWarning Severity = "warning"
	SeverityInfo    Severity = "info"
)

var severityRank = map[Severity]int{
	SeverityError:   0,
	SeverityWarning: 1,
	SeverityInfo:    2,
}

// Issue types form the linter's external contract; dashboards key off them.
const (
	IssueMissingSubject       = "missing_subject"
	IssueMissingContent       = "missing_content"
	IssueMalformedTemplate    = "malformed_template"
	IssueUnknownToken         = "unknown_token"
	IssueEmptyLink            = "empty_link"
	IssueSuspiciousLink       = "suspicious_link"
	IssueMissingAltText       = "missing_alt_text"
	IssueZeroDelay            = "zero_delay"
	IssueExcessiveDelay       = "excessive_delay"
	IssueMalformedConditions  = "malformed_send_conditions"
	IssueMissingUnsubscribe   = "missing_unsubscribe"
	IssueMissingTriggerConfig = "missing_trigger_config"
	IssueNoSteps              = "no_steps"
	IssueStepGap              = "step_gap"
)

// Issue is a single linter finding.
type Issue struct {
	Severity Severity   `json:"severity"`
	Type     string     `json:"type"`
	Message  string     `json:"message"`
	StepID   *uuid.UUID `json:"step_id,omitempty"`
	Field    string     `json:"field,omitempty"`

	stepNumber int
}

// knownTokens is the merge-field vocabulary steps may reference.
var knownTokens = map[string]bool{
	"first_name":      true,
	"last_name":       true,
	"email":           true,
	"company":         true,
	"pos_system":      true,
	"geographic_tier": true,
	"city":            true,
	"state":           true,
	"sender_name":     true,
	"sender_email":    true,
	"unsubscribe_url": true,
}

var (
	tokenRegex = regexp.MustCompile(`\{\{[-\s]*([a-zA-Z_][a-zA-Z0-9_]*)`)
	hrefRegex  = regexp.MustCompile(`(?i)href\s*=\s*["']([^"']*)["']`)
	imgRegex   = regexp.MustCompile(`(?i)<img\b[^>]*>`)
	altRegex   = regexp.MustCompile(`(?i)\balt\s*=`)
)

// Linter runs rule-based validation over sequence content. It is stateless
// apart from the shared Liquid engine and safe for concurrent use.
type Linter struct {
	engine   *liquid.Engine
	maxDelay time.Duration
}

// NewLinter creates a Linter. maxDelay <= 0 defaults to 30 days.
func NewLinter(maxDelay time.Duration) *Linter {
	if maxDelay <= 0 {
		maxDelay = 30 * 24 * time.Hour
	}
	return &Linter{
		engine:   liquid.NewEngine(),
		maxDelay: maxDelay,
	}
}

// Validate lints a sequence and its steps. Issues are sorted by severity
// (errors first) then step number.
func (l *Linter) Validate(seq *Sequence) []Issue {
	var issues []Issue

	if seq.TriggerType == "triggered" && len(seq.TriggerConfig) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityWarning,
			Type:     IssueMissingTriggerConfig,
			Message:  "sequence is triggered but has no trigger configuration",
			Field:    "trigger_config",
		})
	}

	if len(seq.Steps) == 0 {
		issues = append(issues, Issue{
			Severity: SeverityError,
			Type:     IssueNoSteps,
			Message:  "sequence has no steps",
		})
	}

	for i, step := range seq.Steps {
		if step.StepNumber != i+1 {
			issues = append(issues, Issue{
				Severity:   SeverityError,
				Type:       IssueStepGap,
				Message:    fmt.Sprintf("step numbering is not contiguous: expected %d, got %d", i+1, step.StepNumber),
				stepNumber: step.StepNumber,
			})
		}
		issues = append(issues, l.lintStep(step)...)
	}

	sort.SliceStable(issues, func(a, b int) bool {
		if severityRank[issues[a].Severity] != severityRank[issues[b].Severity] {
			return severityRank[issues[a].Severity] < severityRank[issues[b].Severity]
		}
		return issues[a].stepNumber < issues[b].stepNumber
	})
	return issues
}

func (l *Linter) lintStep(step Step) []Issue {
	var issues []Issue
	stepID := step.ID
	add := func(sev Severity, typ, msg, field string) {
		issues = append(issues, Issue{
			Severity:   sev,
			Type:       typ,
			Message:    fmt.Sprintf("step %d: %s", step.StepNumber, msg),
			StepID:     &stepID,
			Field:      field,
			stepNumber: step.StepNumber,
		})
	}

	if strings.TrimSpace(step.Subject) == "" {
		add(SeverityError, IssueMissingSubject, "subject is empty", "subject")
	}
	if strings.TrimSpace(step.HTMLContent) == "" {
		add(SeverityError, IssueMissingContent, "body content is empty", "html_content")
	} else {
		l.lintContent(step, add)
	}

	if step.DelayValue == 0 && step.StepNumber > 1 {
		add(SeverityWarning, IssueZeroDelay, "zero delay after the previous step; both emails will send together", "delay_value")
	}
	if step.Delay() > l.maxDelay {
		add(SeverityWarning, IssueExcessiveDelay,
			fmt.Sprintf("delay of %d %s exceeds %s", step.DelayValue, step.DelayUnit, l.maxDelay), "delay_value")
	}

	if len(step.SendConditions) > 0 && !json.Valid(step.SendConditions) {
		add(SeverityError, IssueMalformedConditions, "send conditions are not valid JSON", "send_conditions")
	}

	return issues
}

// lintContent checks template syntax, merge tokens, links, and images.
func (l *Linter) lintContent(step Step, add func(sev Severity, typ, msg, field string)) {
	content := step.Subject + "\n" + step.HTMLContent

	if _, err := l.engine.ParseString(content); err != nil {
		add(SeverityError, IssueMalformedTemplate, fmt.Sprintf("template does not parse: %v", err), "html_content")
	}

	for _, m := range tokenRegex.FindAllStringSubmatch(content, -1) {
		if !knownTokens[m[1]] {
			add(SeverityWarning, IssueUnknownToken,
				fmt.Sprintf("unknown merge token {{%s}}", m[1]), "html_content")
		}
	}

	hasUnsubscribe := strings.Contains(content, "unsubscribe_url") ||
		strings.Contains(strings.ToLower(step.HTMLContent), "unsubscribe")

	for _, m := range hrefRegex.FindAllStringSubmatch(step.HTMLContent, -1) {
		href := strings.TrimSpace(m[1])
		switch {
		case href == "" || href == "#":
			add(SeverityWarning, IssueEmptyLink, "link with an empty href", "html_content")
		case strings.Contains(href, "localhost") || strings.Contains(href, "example.com"):
			add(SeverityWarning, IssueSuspiciousLink,
				fmt.Sprintf("link points at a placeholder host: %s", href), "html_content")
		}
	}

	for _, img := range imgRegex.FindAllString(step.HTMLContent, -1) {
		if !altRegex.MatchString(img) {
			add(SeverityInfo, IssueMissingAltText, "image without alt text", "html_content")
		}
	}

	if !hasUnsubscribe {
		add(SeverityError, IssueMissingUnsubscribe, "no unsubscribe link in body", "html_content")
	}
}
