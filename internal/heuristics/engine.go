// Package heuristics scores a message for phishing risk with deterministic
// rules only. It has no network or storage dependency and is the required
// fallback whenever the AI classifier is unavailable.
package heuristics

import (
	"fmt"
	"net/mail"
	"sort"
	"strings"

	"github.com/Mananshah237/PhishNet/internal/models"
	"github.com/Mananshah237/PhishNet/internal/urlutil"
)

// maxScoredURLs bounds per-URL rule evaluation on adversarially large
// messages.
const maxScoredURLs = 15

// Input is everything the engine looks at.
type Input struct {
	Subject string
	From    string
	To      string
	Body    string
	URLs    []string
}

// Result is a deterministic function of Input.
type Result struct {
	Score   int
	Label   models.Label
	Reasons []string
}

// Phrase lists are matched against the lower-cased subject+body. Each
// category contributes its weight at most once.
var (
	urgencyPhrases = []string{
		"urgent", "immediately", "act now", "verify", "password",
		"suspended", "locked", "invoice", "payment", "final notice",
		"within 24 hours",
	}
	credentialPhrases = []string{
		"confirm your account", "verify your identity", "update your billing",
		"reset your password", "login to your account", "security alert",
		"unusual activity", "confirm your identity",
	}
	incentivePhrases = []string{
		"gift", "prize", "winner", "lottery", "claim your reward",
		"you have been selected", "free money",
	}
)

// freemailDomains are generic consumer providers: a sender/link domain
// mismatch carries no signal for them.
var freemailDomains = map[string]struct{}{
	"gmail.com":      {},
	"googlemail.com": {},
	"outlook.com":    {},
	"hotmail.com":    {},
	"live.com":       {},
	"yahoo.com":      {},
	"aol.com":        {},
	"icloud.com":     {},
	"proton.me":      {},
	"protonmail.com": {},
	"gmx.com":        {},
	"mail.ru":        {},
}

var shortenerHosts = map[string]struct{}{
	"bit.ly":      {},
	"tinyurl.com": {},
	"t.co":        {},
	"goo.gl":      {},
	"is.gd":       {},
	"ow.ly":       {},
	"buff.ly":     {},
	"cutt.ly":     {},
	"rebrand.ly":  {},
	"rb.gy":       {},
}

var suspiciousTLDs = map[string]struct{}{
	"zip":   {},
	"mov":   {},
	"xyz":   {},
	"top":   {},
	"click": {},
	"link":  {},
	"tk":    {},
	"ml":    {},
	"ga":    {},
	"cf":    {},
	"gq":    {},
	"icu":   {},
	"rest":  {},
	"work":  {},
}

// LabelFor maps a clamped score to a verdict: >=60 phishing, >=30
// suspicious, otherwise benign.
func LabelFor(score int) models.Label {
	switch {
	case score >= 60:
		return models.LabelPhishing
	case score >= 30:
		return models.LabelSuspicious
	default:
		return models.LabelBenign
	}
}

// Clamp bounds a score to [0,100].
func Clamp(score int) int {
	if score < 0 {
		return 0
	}
	if score > 100 {
		return 100
	}
	return score
}

// Score evaluates every rule against the input. It never fails: parsing
// problems degrade to an absent signal.
func Score(in Input) Result {
	score := 0
	reasons := make(map[string]struct{})
	add := func(points int, reason string) {
		if _, dup := reasons[reason]; dup {
			return
		}
		reasons[reason] = struct{}{}
		score += points
	}

	text := strings.ToLower(in.Subject + "\n" + in.Body)

	if matchesAny(text, urgencyPhrases) {
		add(25, "Urgent or coercive language")
	}
	if matchesAny(text, credentialPhrases) {
		add(20, "Credential-harvesting language")
	}
	if matchesAny(text, incentivePhrases) {
		add(15, "Too-good-to-be-true incentive language")
	}

	if n := len(in.URLs); n > 0 {
		points := 10 + 5*n
		if points > 30 {
			points = 30
		}
		add(points, fmt.Sprintf("Contains %d URL(s)", n))
	}

	senderDomain := senderDomain(in.From)
	senderReg := urlutil.RegistrableDomain(senderDomain)
	_, senderIsFreemail := freemailDomains[senderReg]

	urls := in.URLs
	if len(urls) > maxScoredURLs {
		urls = urls[:maxScoredURLs]
	}
	for _, u := range urls {
		host := urlutil.Hostname(u)
		if host == "" {
			continue
		}
		if urlutil.IsIPLiteral(host) {
			add(25, "Link points at a raw IP address")
		}
		if urlutil.IsPunycode(host) {
			add(20, "Link uses a punycode hostname")
		}
		if _, ok := shortenerHosts[urlutil.RegistrableDomain(host)]; ok {
			add(10, "Link uses a URL shortener")
		}
		if tld := lastLabel(host); tld != "" {
			if _, ok := suspiciousTLDs[tld]; ok {
				add(10, "Link uses a suspicious top-level domain")
			}
		}
		if brand := urlutil.LookalikeBrand(host); brand != "" {
			add(25, fmt.Sprintf("Link domain resembles %s", brand))
		}
		if senderDomain != "" && !senderIsFreemail &&
			!urlutil.DomainsMatch(senderDomain, host) &&
			!urlutil.AreSiblings(senderReg, urlutil.RegistrableDomain(host)) {
			add(15, "Link domain does not match sender domain")
		}
		if hasAuthorityAt(u) {
			add(15, "URL contains an @ sign before the host path")
		}
		if strings.Contains(u, "%") {
			add(5, "URL contains percent-encoded characters")
		}
	}

	final := Clamp(score)
	return Result{
		Score:   final,
		Label:   LabelFor(final),
		Reasons: sortedReasons(reasons),
	}
}

func matchesAny(text string, phrases []string) bool {
	for _, p := range phrases {
		if strings.Contains(text, p) {
			return true
		}
	}
	return false
}

// senderDomain pulls the domain out of a From header, tolerating display
// names and malformed addresses.
func senderDomain(from string) string {
	if from == "" {
		return ""
	}
	addr := from
	if parsed, err := mail.ParseAddress(from); err == nil {
		addr = parsed.Address
	}
	_, domain, found := strings.Cut(strings.ToLower(addr), "@")
	if !found {
		return ""
	}
	return strings.TrimSpace(domain)
}

func lastLabel(host string) string {
	labels := strings.Split(host, ".")
	return labels[len(labels)-1]
}

// hasAuthorityAt flags the userinfo@host obfuscation trick: an @ appearing
// after the scheme but before the first path slash.
func hasAuthorityAt(u string) bool {
	rest := u
	if i := strings.Index(rest, "://"); i >= 0 {
		rest = rest[i+3:]
	}
	if i := strings.IndexByte(rest, '/'); i >= 0 {
		rest = rest[:i]
	}
	return strings.ContainsRune(rest, '@')
}

func sortedReasons(set map[string]struct{}) []string {
	out := make([]string, 0, len(set))
	for r := range set {
		out = append(out, r)
	}
	sort.Strings(out)
	return out
}
