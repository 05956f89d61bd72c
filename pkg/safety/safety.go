// Package safety screens user input for mental-health crisis language
// before any other message processing happens. A match bypasses the
// generator entirely and produces a fixed guidance response.
package safety

import "strings"

// crisisKeywords lists phrases that indicate potential self-harm risk.
// Kanji and kana spellings are both listed so an IME or typing-mode
// difference cannot slip past the check. Table order is significant:
// Detect reports the first keyword that matches.
var crisisKeywords = []string{
	"死にたい",
	"しにたい",
	"自殺",
	"じさつ",
	"死のうと",
	"消えてしまいたい",
	"消えたい",
	"きえたい",
	"自分を傷つけ",
	"自傷",
	"リストカット",
	"りすとかっと",
	"生きる意味がない",
	"いきる意味がない",
}

// CrisisResponse is the fixed safety reply returned instead of a
// generated message whenever crisis language is detected.
const CrisisResponse = "つらい気持ちを打ち明けてくれてありがとうございます。" +
	"その気持ちはとても大切なサインです。私はAIなので、今のあなたに本当に必要な支えにはなれません。" +
	"どうか一人で抱え込まず、信頼できる人や専門の窓口に話してみてください。\n\n" +
	"・よりそいホットライン 0120-279-338(24時間・無料)\n" +
	"・いのちの電話 0570-783-556\n\n" +
	"あなたの命と気持ちを、何よりも大事にしてください。"

// Result reports the outcome of a crisis scan.
type Result struct {
	IsCrisis       bool
	MatchedKeyword string
}

// match holds the scan implementation. A variable so tests can swap in
// a failing matcher and exercise the recovery path in Detect.
var match = func(text string) Result {
	lowered := strings.ToLower(text)
	for _, kw := range crisisKeywords {
		if strings.Contains(lowered, strings.ToLower(kw)) {
			return Result{IsCrisis: true, MatchedKeyword: kw}
		}
	}
	return Result{}
}

// Detect runs a case-insensitive substring scan over the keyword table
// and returns the first match in table order. If the scan itself
// panics it fails safe: the input is treated as crisis-positive rather
// than silently passed through to normal processing.
func Detect(text string) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			result = Result{IsCrisis: true}
		}
	}()
	return match(text)
}

// HandleCrisisIfDetected returns the fixed safety response and true
// when text contains crisis language, otherwise ("", false) to signal
// that normal processing should continue.
func HandleCrisisIfDetected(text string) (string, bool) {
	if Detect(text).IsCrisis {
		return CrisisResponse, true
	}
	return "", false
}

// Keywords returns a copy of the keyword table, primarily for tests
// and diagnostic tooling.
func Keywords() []string {
	out := make([]string, len(crisisKeywords))
	copy(out, crisisKeywords)
	return out
}
