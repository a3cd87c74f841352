package sequence

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/google/uuid"
)

func validStep(num int) Step {
	return Step{
		ID:          uuid.New(),
		StepNumber:  num,
		Subject:     "Welcome, {{first_name}}",
		HTMLContent: `<p>Hi {{first_name}}</p><a href="{{unsubscribe_url}}">Unsubscribe</a>`,
		DelayValue:  1,
		DelayUnit:   UnitDays,
		Status:      "active",
	}
}

func hasIssue(issues []Issue, typ string) bool {
	for _, i := range issues {
		if i.Type == typ {
			return true
		}
	}
	return false
}

func TestLintValidSequence(t *testing.T) {
	l := NewLinter(0)
	seq := &Sequence{
		Name:        "welcome",
		TriggerType: "manual",
		Steps:       []Step{validStep(1), validStep(2)},
	}

	issues := l.Validate(seq)
	for _, i := range issues {
		if i.Severity == SeverityError {
			t.Errorf("valid sequence produced error: %+v", i)
		}
	}
}

func TestLintNoSteps(t *testing.T) {
	l := NewLinter(0)
	issues := l.Validate(&Sequence{Name: "empty", TriggerType: "manual"})
	if !hasIssue(issues, IssueNoSteps) {
		t.Errorf("want no_steps issue, got %+v", issues)
	}
}

func TestLintMissingTriggerConfig(t *testing.T) {
	l := NewLinter(0)
	issues := l.Validate(&Sequence{
		Name:        "triggered",
		TriggerType: "triggered",
		Steps:       []Step{validStep(1)},
	})
	if !hasIssue(issues, IssueMissingTriggerConfig) {
		t.Errorf("want missing_trigger_config, got %+v", issues)
	}

	issues = l.Validate(&Sequence{
		Name:          "triggered",
		TriggerType:   "triggered",
		TriggerConfig: json.RawMessage(`{"event":"signup"}`),
		Steps:         []Step{validStep(1)},
	})
	if hasIssue(issues, IssueMissingTriggerConfig) {
		t.Errorf("configured trigger should not be flagged")
	}
}

func TestLintMissingSubjectAndContent(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.Subject = "  "
	step.HTMLContent = ""

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueMissingSubject) {
		t.Error("want missing_subject")
	}
	if !hasIssue(issues, IssueMissingContent) {
		t.Error("want missing_content")
	}
}

func TestLintUnknownToken(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.HTMLContent = `<p>{{favorite_color}}</p><a href="{{unsubscribe_url}}">Unsubscribe</a>`

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueUnknownToken) {
		t.Errorf("want unknown_token, got %+v", issues)
	}
}

func TestLintMalformedTemplate(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.HTMLContent = `{% if first_name %}no closing tag<a href="{{unsubscribe_url}}">Unsubscribe</a>`

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueMalformedTemplate) {
		t.Errorf("want malformed_template, got %+v", issues)
	}
}

func TestLintLinks(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.HTMLContent = `<a href="#">click</a><a href="http://localhost:3000/x">dev</a>` +
		`<a href="{{unsubscribe_url}}">Unsubscribe</a>`

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueEmptyLink) {
		t.Error("want empty_link for href=#")
	}
	if !hasIssue(issues, IssueSuspiciousLink) {
		t.Error("want suspicious_link for localhost")
	}
}

func TestLintMissingAltText(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.HTMLContent = `<img src="banner.png"><a href="{{unsubscribe_url}}">Unsubscribe</a>`

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueMissingAltText) {
		t.Error("want missing_alt_text")
	}

	step.HTMLContent = `<img src="banner.png" alt="Banner"><a href="{{unsubscribe_url}}">Unsubscribe</a>`
	issues = l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if hasIssue(issues, IssueMissingAltText) {
		t.Error("alt text present, should not be flagged")
	}
}

func TestLintDelays(t *testing.T) {
	l := NewLinter(30 * 24 * time.Hour)

	step1 := validStep(1)
	step1.DelayValue = 0
	step2 := validStep(2)
	step2.DelayValue = 0

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step1, step2}})
	zeroDelays := 0
	for _, i := range issues {
		if i.Type == IssueZeroDelay {
			zeroDelays++
		}
	}
	// Zero delay on step 1 means "send on enrollment" and is fine.
	if zeroDelays != 1 {
		t.Errorf("zero_delay count = %d, want 1 (step 2 only)", zeroDelays)
	}

	long := validStep(2)
	long.DelayValue = 8
	long.DelayUnit = UnitWeeks
	issues = l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{validStep(1), long}})
	if !hasIssue(issues, IssueExcessiveDelay) {
		t.Error("want excessive_delay for 8 weeks")
	}
}

func TestLintStepGap(t *testing.T) {
	l := NewLinter(0)
	issues := l.Validate(&Sequence{
		Name:        "s",
		TriggerType: "manual",
		Steps:       []Step{validStep(1), validStep(3)},
	})
	if !hasIssue(issues, IssueStepGap) {
		t.Errorf("want step_gap for 1,3 numbering, got %+v", issues)
	}
}

func TestLintMalformedSendConditions(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.SendConditions = json.RawMessage(`{"field": `)

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueMalformedConditions) {
		t.Error("want malformed_send_conditions")
	}
}

func TestLintMissingUnsubscribe(t *testing.T) {
	l := NewLinter(0)
	step := validStep(1)
	step.HTMLContent = `<p>Hi {{first_name}}</p>`

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step}})
	if !hasIssue(issues, IssueMissingUnsubscribe) {
		t.Error("want missing_unsubscribe")
	}
}

func TestLintIssueOrdering(t *testing.T) {
	l := NewLinter(0)
	// Step 1: warning (unknown token). Step 2: error (missing subject).
	step1 := validStep(1)
	step1.HTMLContent = `<p>{{nope}}</p><a href="{{unsubscribe_url}}">Unsubscribe</a>`
	step2 := validStep(2)
	step2.Subject = ""

	issues := l.Validate(&Sequence{Name: "s", TriggerType: "manual", Steps: []Step{step1, step2}})
	if len(issues) < 2 {
		t.Fatalf("issues = %+v", issues)
	}
	lastRank := -1
	for _, i := range issues {
		r := severityRank[i.Severity]
		if r < lastRank {
			t.Fatalf("issues not sorted by severity: %+v", issues)
		}
		lastRank = r
	}
	if issues[0].Severity != SeverityError {
		t.Errorf("first issue should be the error, got %+v", issues[0])
	}
}
