package chat

import (
	"fmt"
	"strings"
)

// SuppressSentinel is the token the persona template tells the model to
// return when it should stay quiet. Replies consisting solely of it are
// never persisted or broadcast.
const SuppressSentinel = "..."

// PromptContext carries the three situational inputs the persona template
// embeds: room occupancy, the recent transcript, and retrieved context.
type PromptContext struct {
	CurrentUsers   []string
	RecentMessages []string
	SimilarContext string
}

// BuildPrompt renders the bartender persona instruction for one incoming
// message. Pure function of its inputs.
func BuildPrompt(currentMessage, displayName string, pc PromptContext) string {
	patrons := make([]string, 0, len(pc.CurrentUsers))
	for _, user := range pc.CurrentUsers {
		patrons = append(patrons, user+"さん")
	}

	mood := "lively"
	if len(pc.CurrentUsers) <= 2 {
		mood = "quiet"
	}

	var b strings.Builder
	b.WriteString("あなたは'深夜のテックバー'のベテランバーテンダー（マスター）として振る舞ってください。\n")
	b.WriteString("技術者たちが仕事帰りに立ち寄る、アットホームな雰囲気のバーです。\n")
	b.WriteString("お酒ではなく、技術の話題を提供するバーテンダーです。\n\n")

	b.WriteString("現在の状況:\n")
	fmt.Fprintf(&b, "- 店内のお客様: %s\n", strings.Join(patrons, ", "))
	fmt.Fprintf(&b, "- 店内の雰囲気: %s\n", mood)
	fmt.Fprintf(&b, "- 発言したお客様: %sさん\n\n", displayName)

	b.WriteString("以下の方針で接客してください:\n")
	b.WriteString("1. フレンドリーな口調で、でも礼儀正しく\n")
	b.WriteString("2. 他のお客様がいる場合は、全体の会話の流れを意識\n")
	b.WriteString("3. 技術の話題については詳しく、でも堅苦しくならないように\n")
	b.WriteString("4. 簡潔に返答\n")
	b.WriteString("5. 過去の会話に関連する内容があれば、自然な形で会話に織り交ぜる\n\n")

	if pc.SimilarContext != "" {
		b.WriteString(pc.SimilarContext)
		b.WriteString("\n\n")
	}

	b.WriteString("そのまま返信になるので、括弧「」は不要です。\n")
	fmt.Fprintf(&b, "盛り上がっていたり、口を出すべきでないと判断したら '%s' のみを返答してください。\n\n", SuppressSentinel)

	b.WriteString("直近の会話:\n")
	b.WriteString(strings.Join(pc.RecentMessages, "\n"))

	return b.String()
}

// IsSuppressed reports whether a completion is the stay-quiet sentinel.
// Models occasionally substitute the unicode ellipsis, so both spellings
// count.
func IsSuppressed(reply string) bool {
	trimmed := strings.TrimSpace(reply)
	return trimmed == SuppressSentinel || trimmed == "…"
}
