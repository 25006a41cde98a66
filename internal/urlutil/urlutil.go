// Package urlutil holds the URL and domain helpers the detection pipeline
// is built on: extraction, defanging, registrable-domain comparison and the
// small curated lookup tables for sibling domains and brand lookalikes.
// Everything here is pure and best-effort: malformed input degrades to an
// empty result, never an error.
package urlutil

import (
	"net/url"
	"regexp"
	"sort"
	"strings"

	"github.com/lithammer/fuzzysearch/fuzzy"
)

// urlPattern is deliberately loose: a scheme prefix followed by any run of
// non-whitespace, non-quote characters. Token-boundary false positives are
// acceptable for heuristic use.
var urlPattern = regexp.MustCompile(`(?i)https?://[^\s'"]+`)

// ExtractURLs scans text for scheme-prefixed tokens and returns them
// deduplicated in lexicographic order. Empty input yields an empty slice.
func ExtractURLs(text string) []string {
	if text == "" {
		return []string{}
	}
	seen := make(map[string]struct{})
	for _, m := range urlPattern.FindAllString(text, -1) {
		seen[m] = struct{}{}
	}
	out := make([]string, 0, len(seen))
	for u := range seen {
		out = append(out, u)
	}
	sort.Strings(out)
	return out
}

// Defang rewrites a URL so it cannot be clicked or auto-linked: the scheme
// is broken (hxxp) and every dot is bracketed. Lossy and one-way; display
// purposes only.
func Defang(u string) string {
	u = strings.ReplaceAll(u, "https://", "hxxps://")
	u = strings.ReplaceAll(u, "http://", "hxxp://")
	return strings.ReplaceAll(u, ".", "[.]")
}

// DefangAll defangs every URL in order.
func DefangAll(urls []string) []string {
	out := make([]string, len(urls))
	for i, u := range urls {
		out[i] = Defang(u)
	}
	return out
}

// Hostname extracts the lower-cased host from a URL. Malformed input
// returns "" rather than an error.
func Hostname(raw string) string {
	parsed, err := url.Parse(raw)
	if err != nil || parsed.Hostname() == "" {
		return ""
	}
	return strings.ToLower(parsed.Hostname())
}

// IsIPLiteral reports whether host looks like a dotted IPv4 literal:
// exactly four dot-separated groups of 1-3 digits. No range validation.
func IsIPLiteral(host string) bool {
	parts := strings.Split(host, ".")
	if len(parts) != 4 {
		return false
	}
	for _, p := range parts {
		if len(p) < 1 || len(p) > 3 {
			return false
		}
		for _, c := range p {
			if c < '0' || c > '9' {
				return false
			}
		}
	}
	return true
}

// IsPunycode reports whether any label of the host carries the IDNA
// "xn--" ACE prefix.
func IsPunycode(host string) bool {
	for _, label := range strings.Split(strings.ToLower(host), ".") {
		if strings.HasPrefix(label, "xn--") {
			return true
		}
	}
	return false
}

// multiLabelSuffixes is a small curated stand-in for the public suffix
// list: second-level suffixes under which a third label is required to name
// a registrable domain. Suffixes missing from this table are classified as
// plain TLDs; callers must tolerate that.
var multiLabelSuffixes = map[string]struct{}{
	"co.uk":  {},
	"org.uk": {},
	"ac.uk":  {},
	"gov.uk": {},
	"com.au": {},
	"net.au": {},
	"co.nz":  {},
	"co.jp":  {},
	"co.kr":  {},
	"co.in":  {},
	"co.za":  {},
	"com.br": {},
	"com.mx": {},
	"com.cn": {},
	"com.tr": {},
	"com.ar": {},
	"com.sg": {},
}

// RegistrableDomain returns the shortest suffix of host considered
// independently owned: the last two labels, or the last three when the last
// two form a known multi-label public suffix.
func RegistrableDomain(host string) string {
	host = strings.Trim(strings.ToLower(host), ".")
	labels := strings.Split(host, ".")
	if len(labels) <= 2 {
		return host
	}
	lastTwo := strings.Join(labels[len(labels)-2:], ".")
	if _, ok := multiLabelSuffixes[lastTwo]; ok && len(labels) >= 3 {
		return strings.Join(labels[len(labels)-3:], ".")
	}
	return lastTwo
}

// DomainsMatch reports whether two hosts belong to the same registrable
// domain, treating a subdomain of either side's registrable domain as a
// match.
func DomainsMatch(a, b string) bool {
	if a == "" || b == "" {
		return false
	}
	ra, rb := RegistrableDomain(a), RegistrableDomain(b)
	if ra == rb {
		return true
	}
	return strings.HasSuffix(strings.ToLower(a), "."+rb) ||
		strings.HasSuffix(strings.ToLower(b), "."+ra)
}

// siblingDomains maps a brand's primary registrable domain to domains the
// same organization legitimately operates. Used to suppress false
// sender/link mismatch signals for large multi-domain senders.
var siblingDomains = map[string][]string{
	"google.com": {
		"googleapis.com", "gstatic.com", "googleusercontent.com",
		"youtube.com", "goo.gl", "withgoogle.com",
	},
	"microsoft.com": {
		"live.com", "office.com", "office365.com", "outlook.com",
		"microsoftonline.com", "azure.com", "sharepoint.com", "windows.net",
	},
	"amazon.com": {
		"amazonaws.com", "awsstatic.com", "media-amazon.com",
		"ssl-images-amazon.com", "primevideo.com",
	},
	"apple.com": {
		"icloud.com", "mzstatic.com", "apple-cloudkit.com",
	},
	"paypal.com": {
		"paypalobjects.com", "pypl.com",
	},
}

// SiblingDomains returns the curated set of affiliated registrable domains
// for reg, or an empty set when the domain is not listed.
func SiblingDomains(reg string) map[string]struct{} {
	out := make(map[string]struct{})
	for _, d := range siblingDomains[strings.ToLower(reg)] {
		out[d] = struct{}{}
	}
	return out
}

// AreSiblings reports whether b is a curated sibling of a or vice versa.
func AreSiblings(a, b string) bool {
	if _, ok := SiblingDomains(a)[strings.ToLower(b)]; ok {
		return true
	}
	_, ok := SiblingDomains(b)[strings.ToLower(a)]
	return ok
}

// brandDomains are frequent impersonation targets for the lookalike check.
var brandDomains = []string{
	"paypal.com", "google.com", "microsoft.com", "apple.com", "amazon.com",
	"netflix.com", "facebook.com", "instagram.com", "whatsapp.com",
	"chase.com", "wellsfargo.com", "dhl.com", "fedex.com", "ups.com",
}

// LookalikeBrand returns the brand domain that host's registrable domain
// closely resembles without being, or "" when none. The edit-distance
// threshold scales with length the way a short typo-squat does: 1 for short
// names, 2 for longer ones.
func LookalikeBrand(host string) string {
	reg := RegistrableDomain(host)
	if reg == "" {
		return ""
	}
	for _, brand := range brandDomains {
		if reg == brand || AreSiblings(brand, reg) {
			return ""
		}
	}
	thresh := 1
	if len(reg) > 11 {
		thresh = 2
	}
	for _, brand := range brandDomains {
		if d := fuzzy.LevenshteinDistance(reg, brand); d > 0 && d <= thresh {
			return brand
		}
	}
	return ""
}
