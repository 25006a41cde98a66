package heuristics

import (
	"fmt"
	"strings"
	"testing"

	"github.com/Mananshah237/PhishNet/internal/models"
)

func TestScoreSuspendedAccountWithRawIP(t *testing.T) {
	res := Score(Input{
		Subject: "Account notice",
		Body:    "Your account is suspended, verify immediately at http://192.168.1.5/login",
		URLs:    []string{"http://192.168.1.5/login"},
	})

	if res.Score < 60 {
		t.Errorf("score = %d, want >= 60", res.Score)
	}
	if res.Label != models.LabelPhishing {
		t.Errorf("label = %q, want phishing", res.Label)
	}
	wantReasons := []string{
		"Urgent or coercive language",
		"Link points at a raw IP address",
	}
	for _, want := range wantReasons {
		found := false
		for _, r := range res.Reasons {
			if r == want {
				found = true
			}
		}
		if !found {
			t.Errorf("reasons %v missing %q", res.Reasons, want)
		}
	}
}

func TestScoreNeutralMessage(t *testing.T) {
	res := Score(Input{
		Subject: "Lunch on Tuesday",
		Body:    "Shall we meet at noon by the park entrance?",
	})

	if res.Score != 0 {
		t.Errorf("score = %d, want 0", res.Score)
	}
	if res.Label != models.LabelBenign {
		t.Errorf("label = %q, want benign", res.Label)
	}
	if len(res.Reasons) != 0 {
		t.Errorf("reasons = %v, want empty", res.Reasons)
	}
}

func TestLabelFor(t *testing.T) {
	tests := []struct {
		score int
		want  models.Label
	}{
		{0, models.LabelBenign},
		{29, models.LabelBenign},
		{30, models.LabelSuspicious},
		{59, models.LabelSuspicious},
		{60, models.LabelPhishing},
		{100, models.LabelPhishing},
	}
	for _, tt := range tests {
		if got := LabelFor(tt.score); got != tt.want {
			t.Errorf("LabelFor(%d) = %q, want %q", tt.score, got, tt.want)
		}
	}
}

func TestScoreStaysClamped(t *testing.T) {
	// Stack every rule at once; the result must stay within [0,100] and the
	// label must agree with the final score.
	urls := []string{
		"http://192.168.1.5/a",
		"http://xn--pypal-4ve.com/b",
		"http://bit.ly/c",
		"http://evil.xyz/d",
		"http://user@paypa1.com/e",
		"http://another.test/%2e%2e",
	}
	res := Score(Input{
		Subject: "URGENT: verify your password now",
		From:    "IT <support@corp.example>",
		Body:    "Security alert: confirm your account to claim your prize " + strings.Join(urls, " "),
		URLs:    urls,
	})

	if res.Score < 0 || res.Score > 100 {
		t.Fatalf("score out of range: %d", res.Score)
	}
	if res.Label != LabelFor(res.Score) {
		t.Errorf("label %q inconsistent with score %d", res.Label, res.Score)
	}
	// Heavily stacked signals should clamp exactly at 100.
	if res.Score != 100 {
		t.Errorf("score = %d, want 100", res.Score)
	}
}

func TestScoreDomainMismatchSuppression(t *testing.T) {
	tests := []struct {
		name    string
		from    string
		url     string
		flagged bool
	}{
		{
			name:    "corporate sender, foreign link",
			from:    "billing@stripe-payments.example",
			url:     "http://collect.evil.test/pay",
			flagged: true,
		},
		{
			name:    "freemail sender is exempt",
			from:    "someone@gmail.com",
			url:     "http://random.example/x",
			flagged: false,
		},
		{
			name:    "sibling domain is exempt",
			from:    "no-reply@microsoft.com",
			url:     "https://login.microsoftonline.com/oauth",
			flagged: false,
		},
		{
			name:    "same registrable domain",
			from:    "news@example.com",
			url:     "https://www.example.com/story",
			flagged: false,
		},
	}

	const reason = "Link domain does not match sender domain"
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Score(Input{From: tt.from, Body: tt.url, URLs: []string{tt.url}})
			got := false
			for _, r := range res.Reasons {
				if r == reason {
					got = true
				}
			}
			if got != tt.flagged {
				t.Errorf("mismatch flag = %v, want %v (reasons: %v)", got, tt.flagged, res.Reasons)
			}
		})
	}
}

func TestScoreBoundsURLWork(t *testing.T) {
	// 100 shortener URLs: per-URL rules are bounded, the per-category dedup
	// means the shortener reason appears exactly once.
	urls := make([]string, 100)
	for i := range urls {
		urls[i] = fmt.Sprintf("http://bit.ly/x%d", i)
	}
	res := Score(Input{Body: "links", URLs: urls})

	count := 0
	for _, r := range res.Reasons {
		if r == "Link uses a URL shortener" {
			count++
		}
	}
	if count != 1 {
		t.Errorf("shortener reason appeared %d times, want 1", count)
	}
}

func TestScoreDeterministic(t *testing.T) {
	in := Input{
		Subject: "Invoice overdue",
		From:    "billing@vendor.example",
		Body:    "payment required http://pay.vendor.example/i http://bit.ly/q",
		URLs:    []string{"http://bit.ly/q", "http://pay.vendor.example/i"},
	}
	first := Score(in)
	for i := 0; i < 5; i++ {
		again := Score(in)
		if again.Score != first.Score || again.Label != first.Label {
			t.Fatalf("non-deterministic result: %+v vs %+v", again, first)
		}
		if len(again.Reasons) != len(first.Reasons) {
			t.Fatalf("reasons differ: %v vs %v", again.Reasons, first.Reasons)
		}
		for j := range again.Reasons {
			if again.Reasons[j] != first.Reasons[j] {
				t.Fatalf("reason order unstable: %v vs %v", again.Reasons, first.Reasons)
			}
		}
	}
}
