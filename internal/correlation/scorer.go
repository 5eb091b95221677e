package correlation

import (
	"math"
	"sort"
	"strings"
	"unicode"

	"macsleuth/internal/domain"
)

// Evidence weights. The three binary criteria and the maximum port
// contribution sum to exactly 1.0.
const (
	WeightIPv6Suffix      = 0.40
	WeightDeviceType      = 0.30
	WeightHostnamePattern = 0.20
	WeightOpenPorts       = 0.10
)

// scorePrecision is the rounding applied to every contribution and to the
// total so threshold comparisons are not at the mercy of float addition.
const scorePrecision = 1e6

// minContainmentLen is the shortest candidate or stem allowed to match by
// containment. Shorter names ("a", "pc") only match exactly, so they cannot
// match every hostname that happens to contain them.
const minContainmentLen = 3

// Score compares a candidate fingerprint against a reference and returns a
// confidence in [0,1] with the criteria that contributed. Pure and
// deterministic; a reference with no evidence always scores 0.
func Score(candidate, reference domain.Fingerprint) (float64, []domain.EvidenceItem) {
	var (
		total    float64
		evidence []domain.EvidenceItem
	)

	add := func(kind domain.EvidenceKind, weight float64) {
		weight = round(weight)
		if weight <= 0 {
			return
		}
		total += weight
		evidence = append(evidence, domain.EvidenceItem{Kind: kind, Weight: weight})
	}

	if intersects(candidate.IPv6Suffixes, reference.IPv6Suffixes, strings.EqualFold) {
		add(domain.EvidenceIPv6Suffix, WeightIPv6Suffix)
	}

	if intersects(candidate.DeviceTypes, reference.DeviceTypes, strings.EqualFold) {
		add(domain.EvidenceDeviceType, WeightDeviceType)
	}

	if hostnamesMatch(candidate.Hostnames, reference.Hostnames) {
		add(domain.EvidenceHostnamePattern, WeightHostnamePattern)
	}

	if j := jaccard(candidate.OpenPorts, reference.OpenPorts); j > 0 {
		add(domain.EvidenceOpenPorts, WeightOpenPorts*j)
	}

	return clamp(round(total)), evidence
}

// BestScore scores candidate against each reference and keeps the best.
// References are visited in identifier order so ties resolve to the
// lowest identifier. Returns the matched reference identifier, or "" when
// nothing scored above zero.
func BestScore(candidate domain.Fingerprint, references map[string]domain.Fingerprint) (float64, []domain.EvidenceItem, string) {
	ids := make([]string, 0, len(references))
	for id := range references {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var (
		best     float64
		evidence []domain.EvidenceItem
		matched  string
	)
	for _, id := range ids {
		score, ev := Score(candidate, references[id])
		if score > best {
			best, evidence, matched = score, ev, id
		}
	}
	return best, evidence, matched
}

func intersects(a, b []string, eq func(string, string) bool) bool {
	for _, x := range a {
		for _, y := range b {
			if eq(x, y) {
				return true
			}
		}
	}
	return false
}

// jaccard computes |a∩b| / |a∪b| over two sorted, de-duplicated port sets
func jaccard(a, b []int) float64 {
	if len(a) == 0 && len(b) == 0 {
		return 0
	}

	var inter, i, j int
	for i < len(a) && j < len(b) {
		switch {
		case a[i] == b[j]:
			inter++
			i++
			j++
		case a[i] < b[j]:
			i++
		default:
			j++
		}
	}

	union := len(a) + len(b) - inter
	return float64(inter) / float64(union)
}

func hostnamesMatch(candidates, references []string) bool {
	for _, c := range candidates {
		for _, r := range references {
			if hostnamePatternMatch(c, r) {
				return true
			}
		}
	}
	return false
}

// hostnamePatternMatch reports whether two hostnames look like the same
// device naming pattern. The candidate matches when it equals the reference,
// when it is a case-insensitive substring of the reference at least
// minContainmentLen long, when the stems (domain and trailing numbering
// removed) are equal or one contains the other, or when both stems have the
// same number of tokens and each token pair is related by containment
// ("nick-phone" vs "nicks-iphone").
func hostnamePatternMatch(candidate, reference string) bool {
	c := strings.ToLower(strings.TrimSpace(candidate))
	r := strings.ToLower(strings.TrimSpace(reference))
	if c == "" || r == "" {
		return false
	}
	if c == r || (len(c) >= minContainmentLen && strings.Contains(r, c)) {
		return true
	}

	cs, rs := hostnameStem(c), hostnameStem(r)
	if cs == "" || rs == "" {
		return false
	}
	if cs == rs {
		return true
	}
	if len(cs) >= minContainmentLen && len(rs) >= minContainmentLen &&
		(strings.Contains(rs, cs) || strings.Contains(cs, rs)) {
		return true
	}

	ct, rt := hostnameTokens(cs), hostnameTokens(rs)
	if len(ct) < 2 || len(ct) != len(rt) {
		return false
	}
	for i := range ct {
		if len(ct[i]) < 2 || len(rt[i]) < 2 {
			return false
		}
		if !strings.Contains(ct[i], rt[i]) && !strings.Contains(rt[i], ct[i]) {
			return false
		}
	}
	return true
}

// hostnameStem drops the domain part and any trailing numbering
// ("Nicks-iPhone-2.lan" -> "nicks-iphone").
func hostnameStem(h string) string {
	if idx := strings.IndexByte(h, '.'); idx > 0 {
		h = h[:idx]
	}
	return strings.TrimRight(h, "0123456789-_ ")
}

func hostnameTokens(stem string) []string {
	return strings.FieldsFunc(stem, func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

func round(v float64) float64 {
	return math.Round(v*scorePrecision) / scorePrecision
}

func clamp(v float64) float64 {
	return math.Max(0, math.Min(1, v))
}
