// Package quality runs the ordered post-generation checks over a draft
// response: content filtering, fact-check disclaimers, personalization, and
// the final confidence gate. No stage may fail the pipeline; a stage that
// errors or panics defaults to passing the draft through unchanged.
package quality

import (
	"fmt"
	"regexp"
	"strings"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"github.com/meridian-cloud/contextd/internal/domain"
)

// EscalationFallback replaces a draft that tripped the content filter.
const EscalationFallback = "I'm not able to share that information here. Let me connect you with a member of our team who can help."

// factCheckDisclaimer is appended to low-confidence drafts.
const factCheckDisclaimer = "Please double-check this with our team, as I may not have the full picture."

var (
	// cardNumberPattern matches 13-16 digit runs with optional separators.
	cardNumberPattern = regexp.MustCompile(`\b(?:\d[ -]?){13,16}\b`)

	// secretPatterns match credential-looking fragments that must never
	// reach a customer.
	secretPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)\b(api[_-]?key|secret|token|password)\b\s*[:=]\s*\S+`),
		regexp.MustCompile(`\bsk-[A-Za-z0-9]{16,}\b`),
		regexp.MustCompile(`\bAKIA[0-9A-Z]{16}\b`),
	}
)

// Config tunes the pipeline thresholds.
type Config struct {
	ConfidenceThreshold float64
}

// Pipeline applies the quality stages in order.
type Pipeline struct {
	cfg     Config
	actions *prometheus.CounterVec
	logger  *zap.Logger
}

// New creates a quality pipeline. actions is a counter vec with labels
// "stage" and "action"; nil disables instrumentation.
func New(cfg Config, actions *prometheus.CounterVec, logger *zap.Logger) *Pipeline {
	return &Pipeline{cfg: cfg, actions: actions, logger: logger}
}

// Process runs all stages over the draft and returns the final response.
// Stage failures are contained per stage: the draft continues through the
// remaining stages as-is.
func (p *Pipeline) Process(draft domain.Response, req domain.Request) domain.Response {
	out := draft

	domain.BestEffort(p.logger, "quality: content filter", func() error {
		return p.contentFilter(&out)
	})
	domain.BestEffort(p.logger, "quality: fact check", func() error {
		return p.factCheck(&out)
	})
	domain.BestEffort(p.logger, "quality: personalize", func() error {
		return p.personalize(&out, req.CustomerName)
	})
	domain.BestEffort(p.logger, "quality: confidence gate", func() error {
		return p.confidenceGate(&out)
	})

	return out
}

// contentFilter replaces drafts leaking credentials or card numbers with the
// escalation fallback.
func (p *Pipeline) contentFilter(r *domain.Response) error {
	if !containsSensitive(r.Text) {
		p.record("content_filter", "pass")
		return nil
	}

	p.logger.Warn("Draft tripped the content filter, escalating")
	r.Text = EscalationFallback
	r.ShouldEscalate = true
	p.record("content_filter", "replaced")
	return nil
}

// factCheck appends a disclaimer to low-confidence drafts and floors the
// confidence at 0.4. It never lowers confidence.
func (p *Pipeline) factCheck(r *domain.Response) error {
	if r.Confidence >= 0.6 {
		p.record("fact_check", "pass")
		return nil
	}

	if !strings.Contains(r.Text, factCheckDisclaimer) {
		r.Text = strings.TrimRight(r.Text, " ") + "\n\n" + factCheckDisclaimer
	}
	if r.Confidence < 0.4 {
		r.Confidence = 0.4
	}
	p.record("fact_check", "disclaimer")
	return nil
}

// personalize addresses the customer by name when the draft does not
// already mention it.
func (p *Pipeline) personalize(r *domain.Response, customerName string) error {
	name := strings.TrimSpace(customerName)
	if name == "" || strings.Contains(strings.ToLower(r.Text), strings.ToLower(name)) {
		p.record("personalize", "pass")
		return nil
	}

	r.Text = fmt.Sprintf("%s, %s", name, lowerFirst(r.Text))
	p.record("personalize", "inserted")
	return nil
}

// confidenceGate flags sub-threshold drafts for escalation without touching
// the text.
func (p *Pipeline) confidenceGate(r *domain.Response) error {
	if r.Confidence < p.cfg.ConfidenceThreshold {
		r.ShouldEscalate = true
		p.record("confidence_gate", "escalate")
		return nil
	}
	p.record("confidence_gate", "pass")
	return nil
}

func (p *Pipeline) record(stage, action string) {
	if p.actions != nil {
		p.actions.WithLabelValues(stage, action).Inc()
	}
}

func containsSensitive(text string) bool {
	if cardNumberPattern.MatchString(text) {
		return true
	}
	for _, re := range secretPatterns {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}

func lowerFirst(s string) string {
	if s == "" {
		return s
	}
	return strings.ToLower(s[:1]) + s[1:]
}
