package analysis

import (
	"context"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/MuhaiminulSajid16/image-to-text/internal/domain"
	"github.com/MuhaiminulSajid16/image-to-text/internal/metrics"
)

var (
	medicationEndings = []string{"ol", "in", "um", "ide", "one", "cin", "xin"}
	dosageUnits       = []string{"mg", "ml", "g", "mcg"}
	frequencyTerms    = []string{"daily", "twice", "times", "hourly", "weekly", "every"}
	durationTerms     = []string{"days", "weeks", "months", "for"}
)

const (
	frequencyBefore, frequencyAfter = 10, 20
	durationBefore, durationAfter   = 10, 10
)

// RuleAnalyzer extracts fields with keyword heuristics. It never fails and
// needs no model, so it backs the model-based analyzer.
type RuleAnalyzer struct{}

func NewRuleAnalyzer() *RuleAnalyzer { return &RuleAnalyzer{} }

func (RuleAnalyzer) Analyze(_ context.Context, text string) (domain.Analysis, error) {
	start := time.Now()
	defer func() {
		metrics.RecordInferenceDuration(domain.SourceRules, time.Since(start).Seconds())
	}()

	var meds, doses, freqs, durs hits
	for _, line := range strings.Split(text, "\n") {
		line = strings.ToLower(strings.TrimSpace(line))
		if line == "" {
			continue
		}

		for _, word := range strings.Fields(line) {
			if containsAny(word, medicationEndings) && utf8.RuneCountInString(word) > 3 {
				meds.add(word)
			}
		}

		for _, unit := range dosageUnits {
			idx := strings.Index(line, unit)
			if idx <= 0 {
				continue
			}
			if words := strings.Fields(line[:idx]); len(words) > 0 {
				doses.add(words[len(words)-1] + unit)
			}
		}

		if phrase, ok := window(line, frequencyTerms, frequencyBefore, frequencyAfter); ok {
			freqs.add(phrase)
		}
		if phrase, ok := window(line, durationTerms, durationBefore, durationAfter); ok {
			durs.add(phrase)
		}
	}

	return domain.Analysis{
		Medication: meds.String(),
		Dosage:     doses.String(),
		Frequency:  freqs.String(),
		Duration:   durs.String(),
	}, nil
}

// window returns the text around the first term (in term order) that occurs
// in line, measured in characters.
func window(line string, terms []string, before, after int) (string, bool) {
	for _, term := range terms {
		idx := strings.Index(line, term)
		if idx < 0 {
			continue
		}
		runes := []rune(line)
		pos := utf8.RuneCountInString(line[:idx])
		start := max(0, pos-before)
		end := min(len(runes), pos+after)
		return strings.TrimSpace(string(runes[start:end])), true
	}
	return "", false
}

func containsAny(s string, subs []string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}

// hits collects values without duplicates, in first-seen order.
type hits struct {
	values []string
	seen   map[string]struct{}
}

func (h *hits) add(v string) {
	if v == "" {
		return
	}
	if h.seen == nil {
		h.seen = make(map[string]struct{})
	}
	if _, ok := h.seen[v]; ok {
		return
	}
	h.seen[v] = struct{}{}
	h.values = append(h.values, v)
}

func (h *hits) String() string {
	return strings.Join(h.values, ", ")
}
