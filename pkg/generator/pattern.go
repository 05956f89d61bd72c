package generator

import (
	"context"
	"strings"
	"unicode/utf8"
)

// rule maps trigger words in the user's message to a set of canned
// coach replies. First rule whose keyword matches wins.
type rule struct {
	keywords  []string
	responses []string
}

var patternRules = []rule{
	{
		keywords: []string{"退屈", "暇", "ひま"},
		responses: []string{
			"退屈な時間が入り口になっているんですね。その瞬間、体はどんな感じがしますか?",
			"退屈を感じた時、動画以外で少しでも気がまぎれたことはありますか?",
		},
	},
	{
		keywords: []string{"ストレス", "疲れ", "しんどい", "つらい"},
		responses: []string{
			"疲れている時ほど手が伸びやすいですよね。今日は特に何が消耗しましたか?",
			"ストレスの逃げ場として使っているのかもしれませんね。他にほっとできる瞬間はありますか?",
		},
	},
	{
		keywords: []string{"寝る前", "夜中", "ベッド", "布団"},
		responses: []string{
			"寝る前の時間帯がきっかけになっているようですね。スマホを置く場所を変えたことはありますか?",
			"ベッドとスマホの組み合わせは強力ですよね。寝室に持ち込まない日を一日だけ試せそうですか?",
		},
	},
	{
		keywords: []string{"やめたい", "減らしたい", "時間を無駄"},
		responses: []string{
			"変えたい気持ちがはっきりしているのは大きな一歩です。まずどの場面から減らしてみたいですか?",
			"その気持ちを具体的な計画にしてみませんか。一番よく開いてしまうのはどんな時ですか?",
		},
	},
	{
		keywords: []string{"できた", "開かなかった", "我慢でき"},
		responses: []string{
			"それはすごい変化です。その時、何が助けになったと思いますか?",
			"うまくいった場面を覚えておきましょう。次も同じ方法が使えそうですか?",
		},
	},
}

var defaultResponses = []string{
	"なるほど。もう少し詳しく聞かせてもらえますか?",
	"そう感じたのは、どんな場面でしたか?",
	"その時の気持ちを言葉にすると、どれが一番近いですか?",
}

// PatternGenerator is the offline fallback: a fixed rule table keyed
// on the user's words. Same input always yields the same reply.
type PatternGenerator struct{}

func NewPatternGenerator() *PatternGenerator { return &PatternGenerator{} }

func (g *PatternGenerator) Generate(_ context.Context, req Request) (string, error) {
	content := lastUserContent(req.Messages)
	for _, r := range patternRules {
		for _, kw := range r.keywords {
			if strings.Contains(content, kw) {
				return pick(r.responses, content), nil
			}
		}
	}
	return pick(defaultResponses, content), nil
}

// pick selects deterministically by input length so repeated identical
// input cannot flap between replies.
func pick(responses []string, content string) string {
	if len(responses) == 0 {
		return ""
	}
	return responses[utf8.RuneCountInString(content)%len(responses)]
}
