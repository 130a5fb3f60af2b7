// Package redact implements a secret-likelihood check applied to memory
// content before it is persisted.
package redact

import (
	"math"
	"regexp"
	"sort"
)

// Report is the outcome of scanning a candidate string.
type Report struct {
	// Masked is the input with suspicious spans replaced by "[REDACTED]".
	Masked string
	// Issues describes each suspicious span found.
	Issues []string
	// Blocked is true when at least one issue was found.
	Blocked bool
}

var (
	apiKeyRe = regexp.MustCompile(`(?i)(api[_-]?key|token|secret|password)[\s:=]+([A-Za-z0-9_\-]{16,})`)
	sshKeyRe = regexp.MustCompile(`ssh-(rsa|ed25519) [A-Za-z0-9+/=]{20,}`)
	pemRe    = regexp.MustCompile(`-----BEGIN [A-Z ]*PRIVATE KEY-----(?s:.+?)-----END [A-Z ]*PRIVATE KEY-----`)
	longTok  = regexp.MustCompile(`[A-Za-z0-9+/=_-]{20,}`)
)

// entropyThreshold is the Shannon entropy (bits per byte) above which a
// long token counts as a likely secret.
const entropyThreshold = 4.5

type span struct {
	start, end int
	issue      string
}

// Scan checks s for likely secrets: NAME=VALUE credential assignments,
// SSH or PEM key material, and long high-entropy tokens.
func Scan(s string) Report {
	var spans []span

	add := func(start, end int, issue string) {
		for _, sp := range spans {
			if start >= sp.start && end <= sp.end {
				return
			}
		}
		spans = append(spans, span{start, end, issue})
	}

	for _, m := range apiKeyRe.FindAllStringSubmatchIndex(s, -1) {
		// group 2 is the value
		add(m[4], m[5], "possible API key")
	}
	for _, m := range sshKeyRe.FindAllStringIndex(s, -1) {
		add(m[0], m[1], "possible SSH key")
	}
	for _, m := range pemRe.FindAllStringIndex(s, -1) {
		add(m[0], m[1], "possible private key")
	}
	for _, m := range longTok.FindAllStringIndex(s, -1) {
		if overlaps(spans, m[0], m[1]) {
			continue
		}
		if shannonEntropy(s[m[0]:m[1]]) >= entropyThreshold {
			add(m[0], m[1], "high-entropy string")
		}
	}

	sort.Slice(spans, func(i, j int) bool { return spans[i].start < spans[j].start })

	var merged []span
	var issues []string
	for _, sp := range spans {
		issues = append(issues, sp.issue)
		if n := len(merged); n > 0 && sp.start <= merged[n-1].end {
			if sp.end > merged[n-1].end {
				merged[n-1].end = sp.end
			}
			continue
		}
		merged = append(merged, sp)
	}

	masked := make([]byte, 0, len(s))
	last := 0
	for _, sp := range merged {
		masked = append(masked, s[last:sp.start]...)
		masked = append(masked, "[REDACTED]"...)
		last = sp.end
	}
	masked = append(masked, s[last:]...)

	return Report{
		Masked:  string(masked),
		Issues:  issues,
		Blocked: len(issues) > 0,
	}
}

func overlaps(spans []span, start, end int) bool {
	for _, sp := range spans {
		if start < sp.end && end > sp.start {
			return true
		}
	}
	return false
}

func shannonEntropy(s string) float64 {
	var freq [256]int
	for i := 0; i < len(s); i++ {
		freq[s[i]]++
	}
	var ent float64
	for _, c := range freq {
		if c == 0 {
			continue
		}
		p := float64(c) / float64(len(s))
		ent -= p * math.Log2(p)
	}
	return ent
}
