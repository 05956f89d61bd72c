// Package prompt assembles the coach's generation prompt: persona and
// conversation-mode instruction, a digest of long-term memory, and the
// recent conversation history, all under a hard token budget.
package prompt

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/mindloop-app/mindloop/pkg/memory"
	"github.com/mindloop-app/mindloop/pkg/tokens"
)

// ErrMessageTooLarge means the new user message alone cannot fit the
// context window. User input is never silently truncated.
var ErrMessageTooLarge = errors.New("prompt: user message exceeds context budget")

// DefaultPersona is used when the caller passes an unknown persona id.
const DefaultPersona = "supportive"

var personas = map[string]string{
	"supportive": "あなたは「ミル」という名前の、やさしく寄り添うAIコーチです。" +
		"ショート動画アプリとの付き合い方を変えたいユーザーの習慣づくりを支えます。" +
		"説教はせず、共感しながら短い質問で本人の気づきを引き出してください。回答は3文以内。",
	"direct": "あなたは「ミル」という名前の、率直で具体的なAIコーチです。" +
		"ショート動画アプリの使いすぎを減らしたいユーザーに、遠回しな表現を避けて" +
		"実行しやすい一歩をはっきり提案してください。回答は3文以内。",
}

var modeInstructions = map[string]string{
	"explore": "今はexploreモードです。開いてしまう場面や気持ちを一緒に掘り下げ、背景にあるきっかけを言葉にする手伝いをしてください。",
	"plan":    "今はplanモードです。「もし〜したら、代わりに〜する」という形の具体的なif-thenプランづくりに集中してください。",
	"train":   "今はtrainモードです。いま来ている衝動を数分やり過ごす練習に付き合い、呼吸や注意の向け先を短く案内してください。",
	"reflect": "今はreflectモードです。今日の使い方を責めずに振り返り、うまくいった点をひとつ見つけてください。",
	"free":    "今はフリートークです。ユーザーのペースに合わせて自由に対話してください。",
}

// Config carries the token budget and digest tunables.
type Config struct {
	MaxContextTokens     int
	ResponseBufferTokens int
	// TopTriggers bounds how many triggers the memory digest lists.
	TopTriggers int
	// StrategyThreshold is the minimum effectiveness for a strategy to
	// be surfaced back into prompts.
	StrategyThreshold float64
}

func DefaultConfig() Config {
	return Config{
		MaxContextTokens:     2048,
		ResponseBufferTokens: 256,
		TopTriggers:          5,
		StrategyThreshold:    0.6,
	}
}

// Builder assembles prompts under the configured budget.
type Builder struct {
	cfg Config
}

func NewBuilder(cfg Config) *Builder {
	def := DefaultConfig()
	if cfg.MaxContextTokens <= 0 {
		cfg.MaxContextTokens = def.MaxContextTokens
	}
	if cfg.ResponseBufferTokens <= 0 {
		cfg.ResponseBufferTokens = def.ResponseBufferTokens
	}
	if cfg.TopTriggers <= 0 {
		cfg.TopTriggers = def.TopTriggers
	}
	if cfg.StrategyThreshold <= 0 {
		cfg.StrategyThreshold = def.StrategyThreshold
	}
	return &Builder{cfg: cfg}
}

// BuildSystemPrompt concatenates the persona voice with the mode
// instruction. Unknown personas fall back to the supportive default;
// an empty or unknown mode gets the free-talk instruction.
func (b *Builder) BuildSystemPrompt(personaID, modeID string) string {
	persona, ok := personas[personaID]
	if !ok {
		persona = personas[DefaultPersona]
	}
	mode, ok := modeInstructions[modeID]
	if !ok {
		mode = modeInstructions["free"]
	}
	return persona + "\n\n" + mode
}

// BuildLongTermSummary renders a compact digest of long-term memory:
// user-confirmed insights verbatim, the top triggers by frequency, and
// strategies above the effectiveness threshold. An empty string means
// nothing qualified; callers omit the section rather than erroring.
func (b *Builder) BuildLongTermSummary(mem memory.LongTermMemory) string {
	var sections []string

	var confirmed []string
	for _, in := range mem.ConfirmedInsights {
		if in.ConfirmedByUser {
			confirmed = append(confirmed, "- "+in.Content)
		}
	}
	if len(confirmed) > 0 {
		sections = append(sections, "本人が確認した気づき:\n"+strings.Join(confirmed, "\n"))
	}

	if len(mem.IdentifiedTriggers) > 0 {
		triggers := append([]memory.Trigger(nil), mem.IdentifiedTriggers...)
		sort.SliceStable(triggers, func(i, j int) bool {
			return triggers[i].Frequency > triggers[j].Frequency
		})
		if len(triggers) > b.cfg.TopTriggers {
			triggers = triggers[:b.cfg.TopTriggers]
		}
		lines := make([]string, 0, len(triggers))
		for _, tr := range triggers {
			lines = append(lines, fmt.Sprintf("- %s(%d回)", tr.Trigger, tr.Frequency))
		}
		sections = append(sections, "特定されているきっかけ:\n"+strings.Join(lines, "\n"))
	}

	var strategies []string
	for _, st := range mem.EffectiveStrategies {
		if st.Effectiveness > b.cfg.StrategyThreshold {
			strategies = append(strategies, "- "+st.Description)
		}
	}
	if len(strategies) > 0 {
		sections = append(sections, "効果があった対処法:\n"+strings.Join(strategies, "\n"))
	}

	if len(sections) == 0 {
		return ""
	}
	return "これまでの対話でわかっていること:\n\n" + strings.Join(sections, "\n\n")
}

func roleLabel(role string) string {
	if role == memory.RoleAssistant {
		return "コーチ"
	}
	return "ユーザー"
}

// FormatConversationHistory renders messages oldest-to-newest as
// "label: content" lines, selecting which to include by walking from
// the most recent message backward under tokenBudget. Recency decides
// what survives; chronology decides how it reads.
func (b *Builder) FormatConversationHistory(msgs []memory.Message, tokenBudget int) string {
	selected := b.SelectHistory(msgs, tokenBudget)
	if len(selected) == 0 {
		return ""
	}
	lines := make([]string, 0, len(selected))
	for _, m := range selected {
		lines = append(lines, roleLabel(m.Role)+": "+m.Content)
	}
	return strings.Join(lines, "\n")
}

// SelectHistory returns the subset of msgs that fits tokenBudget,
// chosen newest-first and returned in chronological order.
func (b *Builder) SelectHistory(msgs []memory.Message, tokenBudget int) []memory.Message {
	if tokenBudget <= 0 || len(msgs) == 0 {
		return nil
	}
	selected := make([]memory.Message, 0, len(msgs))
	used := 0
	for i := len(msgs) - 1; i >= 0; i-- {
		est := msgs[i].TokenEstimate
		if est == 0 {
			est = tokens.Estimate(msgs[i].Content)
		}
		if used+est > tokenBudget {
			break
		}
		selected = append(selected, msgs[i])
		used += est
	}
	for i, j := 0, len(selected)-1; i < j; i, j = i+1, j-1 {
		selected[i], selected[j] = selected[j], selected[i]
	}
	return selected
}

// WouldExceedContext reports whether adding addedTokens on top of
// currentTokens would leave less than the response buffer free.
func (b *Builder) WouldExceedContext(currentTokens, addedTokens int) bool {
	return currentTokens+addedTokens+b.cfg.ResponseBufferTokens > b.cfg.MaxContextTokens
}

// Prompt is a fully assembled generation request.
type Prompt struct {
	SystemPrompt  string
	MemorySummary string
	History       string
	UserMessage   string
	TokenEstimate int
	// HistoryMessages is the structured form of History, for
	// generators that take chat messages instead of a flat prompt.
	HistoryMessages []memory.Message
}

// Text renders the prompt sections in order for single-string
// generators.
func (p Prompt) Text() string {
	parts := make([]string, 0, 4)
	for _, s := range []string{p.SystemPrompt, p.MemorySummary, p.History} {
		if s != "" {
			parts = append(parts, s)
		}
	}
	parts = append(parts, "ユーザー: "+p.UserMessage, "コーチ:")
	return strings.Join(parts, "\n\n")
}

// Build assembles the full prompt under the budget. Eviction order
// when over budget: the memory digest is dropped first, then history
// is truncated oldest-first. Persona instruction and the new user
// message are never dropped; a user message that cannot fit on its own
// is an error, not a truncation.
func (b *Builder) Build(personaID, modeID string, mem memory.LongTermMemory, history []memory.Message, userText string) (Prompt, error) {
	system := b.BuildSystemPrompt(personaID, modeID)
	used := tokens.Estimate(system)

	userTokens := tokens.Estimate(userText)
	if b.WouldExceedContext(used, userTokens) {
		return Prompt{}, ErrMessageTooLarge
	}
	used += userTokens

	out := Prompt{SystemPrompt: system, UserMessage: userText}

	if digest := b.BuildLongTermSummary(mem); digest != "" {
		if est := tokens.Estimate(digest); !b.WouldExceedContext(used, est) {
			out.MemorySummary = digest
			used += est
		}
	}

	historyBudget := b.cfg.MaxContextTokens - b.cfg.ResponseBufferTokens - used
	if selected := b.SelectHistory(history, historyBudget); len(selected) > 0 {
		out.HistoryMessages = selected
		lines := make([]string, 0, len(selected))
		for _, m := range selected {
			lines = append(lines, roleLabel(m.Role)+": "+m.Content)
		}
		out.History = strings.Join(lines, "\n")
		used += tokens.Estimate(out.History)
	}

	out.TokenEstimate = used
	return out, nil
}
