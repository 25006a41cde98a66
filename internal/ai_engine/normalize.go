package ai_engine

import (
	"strconv"
	"strings"

	"github.com/Mananshah237/PhishNet/internal/heuristics"
	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/urlutil"
)

// guardrailScore is the floor forced when a hard technical indicator is
// present in any URL. A probabilistic model never under-rules it.
const guardrailScore = 80

// DetectionResult is the adapter's normalized verdict.
type DetectionResult struct {
	Label   models.Label
	Score   int
	Reasons []string
}

// FailureResult is the sentinel returned when the backend is unreachable or
// emits garbage. Matches the deterministic fallback contract: a mid-range
// suspicious verdict with the failure spelled out.
func FailureResult(reason string) DetectionResult {
	return DetectionResult{
		Label:   models.LabelSuspicious,
		Score:   50,
		Reasons: []string{reason},
	}
}

// Normalize folds a raw structured model response into a DetectionResult:
// keys are case-folded, a risk_score field substitutes for score, the score
// is coerced to a clamped integer and a missing or unknown label is derived
// from the score.
func Normalize(raw map[string]interface{}) DetectionResult {
	folded := make(map[string]interface{}, len(raw))
	for k, v := range raw {
		folded[strings.ToLower(k)] = v
	}

	scoreVal, ok := folded["score"]
	if !ok {
		scoreVal = folded["risk_score"]
	}
	score := heuristics.Clamp(coerceInt(scoreVal))

	label := models.Label(strings.ToLower(coerceString(folded["label"])))
	switch label {
	case models.LabelBenign, models.LabelSuspicious, models.LabelPhishing:
	default:
		label = heuristics.LabelFor(score)
	}

	return DetectionResult{
		Label:   label,
		Score:   score,
		Reasons: dedupReasons(coerceStrings(folded["reasons"])),
	}
}

// ApplyGuardrail forces a phishing verdict when any URL has an IP-literal
// or punycode host: the score is floored at the guardrail threshold and the
// label pinned to phishing no matter what the model reported.
func ApplyGuardrail(res DetectionResult, urls []string) DetectionResult {
	for _, u := range urls {
		host := urlutil.Hostname(u)
		if host == "" {
			continue
		}
		if urlutil.IsIPLiteral(host) || urlutil.IsPunycode(host) {
			if res.Score < guardrailScore {
				res.Score = guardrailScore
			}
			res.Label = models.LabelPhishing
			res.Reasons = dedupReasons(append(res.Reasons,
				"Score raised: link with raw IP or punycode host"))
			return res
		}
	}
	return res
}

// RepairConsistency pulls the score into the band the label names, under
// the same threshold table the heuristics use. Handles classifiers that
// emit self-contradictory structured output.
func RepairConsistency(res DetectionResult) DetectionResult {
	switch res.Label {
	case models.LabelBenign:
		if res.Score > 29 {
			res.Score = 29
		}
	case models.LabelSuspicious:
		if res.Score < 30 {
			res.Score = 30
		} else if res.Score > 59 {
			res.Score = 59
		}
	case models.LabelPhishing:
		if res.Score < 60 {
			res.Score = 60
		}
	}
	return res
}

// dedupReasons removes duplicates preserving first-seen order.
func dedupReasons(reasons []string) []string {
	seen := make(map[string]struct{}, len(reasons))
	out := make([]string, 0, len(reasons))
	for _, r := range reasons {
		if r == "" {
			continue
		}
		if _, dup := seen[r]; dup {
			continue
		}
		seen[r] = struct{}{}
		out = append(out, r)
	}
	return out
}

func coerceInt(v interface{}) int {
	switch n := v.(type) {
	case float64:
		return int(n)
	case int:
		return n
	case string:
		if parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64); err == nil {
			return int(parsed)
		}
	}
	return 0
}

func coerceString(v interface{}) string {
	s, _ := v.(string)
	return s
}

func coerceStrings(v interface{}) []string {
	items, ok := v.([]interface{})
	if !ok {
		return nil
	}
	out := make([]string, 0, len(items))
	for _, item := range items {
		if s, ok := item.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
