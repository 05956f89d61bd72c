// Package insight mines user utterances for self-realizations about
// the habit: noticing a pattern, naming a cause, identifying a trigger
// moment. It is a heuristic layer tuned for precision over recall —
// plain chatter must yield nothing, and a clearly self-reflective
// statement should yield exactly one phrase.
package insight

import (
	"regexp"
	"strings"
	"unicode/utf8"

	"github.com/mindloop-app/mindloop/pkg/memory"
)

const (
	// MaxInsights caps one extraction pass. Later messages are not
	// evaluated once the cap is reached.
	MaxInsights = 5
	// MinInsightLength rejects fragments too short to mean anything.
	MinInsightLength = 8
)

// thoughtCueWords gates the generic "I think that ..." pattern: without
// one of these the statement is usually unrelated reflection.
var thoughtCueWords = []string{"原因", "理由", "癖", "せい", "パターン", "習慣", "きっかけ"}

// pattern pairs a linguistic regex with an extractor deriving the
// candidate phrase from its capture groups. Order is priority order;
// only the regex dialect would change for another target language.
type pattern struct {
	re      *regexp.Regexp
	extract func(m []string) string
	gate    func(content string) bool
}

var patterns = []pattern{
	{
		// Self-realization: 「…に気づいた」
		re:      regexp.MustCompile(`([^。！？!?\n]{4,60}?)(?:ということ|こと)?に気づ(?:いた|きました|いてしまった)`),
		extract: func(m []string) string { return m[0] },
	},
	{
		// Cause and effect: 「退屈だからついつい開いてしまう」
		re:      regexp.MustCompile(`([^。！？!?\n]{2,40}?)(?:だから|なので|が原因で|のせいで)(?:ついつい|つい)?([^。！？!?\n]{2,40}?)(?:してしまう|しちゃう|てしまう|ちゃう)`),
		extract: func(m []string) string { return m[0] },
	},
	{
		// Trigger timing: 「暇な時につい開いてしまう」
		re:      regexp.MustCompile(`([^。！？!?\n]{2,40}?)(?:の時|のとき|時|とき|たび)に?(?:ついつい|つい)?(?:開いて|見て|眺めて|触って|手に取って)しまう`),
		extract: func(m []string) string { return m[0] },
	},
	{
		// Confessional: 「実は…」
		re:      regexp.MustCompile(`(?:実は|本当は|正直)([^。！？!?\n]{6,80})`),
		extract: func(m []string) string { return m[0] },
	},
	{
		// Generic reflection, only when the message names a cause/habit word.
		re:      regexp.MustCompile(`([^。！？!?\n]{4,60}?)(?:だと思う|と思う|と思います|な気がする|気がする)`),
		extract: func(m []string) string { return m[0] },
		gate: func(content string) bool {
			for _, w := range thoughtCueWords {
				if strings.Contains(content, w) {
					return true
				}
			}
			return false
		},
	},
}

// Extract scans messages in order and returns candidate insight
// phrases: user messages only, pattern priority order within each
// message, exact-string dedup with first occurrence winning, capped at
// MaxInsights. Crisis-flagged messages are never mined — they are a
// safety intervention, not a behavioral data point.
func Extract(messages []memory.Message) []string {
	out := []string{}
	seen := map[string]struct{}{}

	for _, msg := range messages {
		if msg.Role != memory.RoleUser || msg.Crisis {
			continue
		}
		content := strings.TrimSpace(msg.Content)
		if content == "" {
			continue
		}
		for _, p := range patterns {
			if p.gate != nil && !p.gate(content) {
				continue
			}
			m := p.re.FindStringSubmatch(content)
			if m == nil {
				continue
			}
			candidate := normalizeInsight(p.extract(m))
			if candidate == "" || utf8.RuneCountInString(candidate) < MinInsightLength {
				continue
			}
			if _, dup := seen[candidate]; dup {
				continue
			}
			seen[candidate] = struct{}{}
			out = append(out, candidate)
			if len(out) >= MaxInsights {
				return out
			}
		}
	}
	return out
}

func normalizeInsight(in string) string {
	in = strings.TrimSpace(in)
	return strings.Trim(in, " 。、！？!?.,:;\"'")
}
