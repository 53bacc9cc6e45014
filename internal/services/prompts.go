// internal/services/prompts.go
package services

import (
	"fmt"
	"strings"
)

// 故事生成使用的模型参数
const (
	StoryTemperature = 0.4
	StoryMaxTokens   = 600
	JudgeTemperature = 0.3
	JudgeMaxTokens   = 500
	FactTemperature  = 0.5
	FactMaxTokens    = 120
	TermMaxTokens    = 3
)

// 场景生成模板，三幕式结构，每幕约150词
const sceneTemplate = `
You are a children's storyteller. Write **SCENE %d/3** of an
age-5-to-10 bedtime story (≈ 150 words).

**Category:** %s
**Child's idea:** "%s"
👉 *Work the idea into the first two sentences.*

### Story-Arc Requirements
- **Scene 1** – introduce the main character and their WANT/PROBLEM.
- **Scene 2** – raise the stakes; a challenge appears.
- **Scene 3** – climax and satisfying resolution. No numbered choices.

### Style Rules
1. Use vivid language and **relevant emojis** (😀🐉🍪🌟🚀 …).
2. Keep sentences short and clear.
3. Leave a blank line between paragraphs.
4. **Scenes 1 & 2:** end with *exactly two* **bold** numbered choices ("1." & "2.").
5. **Scene 3:** wrap up the tale (no choices). Do **not** write "The end." before Scene 3.
6. Each scene should clearly advance the arc.

Story so far:
"""%s"""

` + "`last_choice`" + ` = "%s"
If ` + "`last_choice`" + ` == "N/A" this is the opening scene, otherwise nod to the child's choice in one friendly sentence before continuing.
`

// 修订模板，要求至少改动两句
const revisionTemplate = `
You previously wrote SCENE %d/3 …

Rewrite the scene so it satisfies the feedback below. **Change at least two sentences visibly** and keep to the style rules (including **bold** choice text).

Feedback: "%s"

Original scene:
"""%s"""
`

// 评审模板，三项指标各1-10分
const judgePromptTemplate = `
You are an expert in children's literature and child development. Evaluate this bedtime story for ages 5-10.

Story to evaluate:
"""
%s
"""

Please evaluate the story on these 3 key criteria (score 1-10 for each):

1. **Age Appropriateness**: Is the vocabulary, themes, and content suitable for ages 5-10?
2. **Ease of Reading**: How easy is it for children to follow and understand?
3. **Clarity of Moral/Takeaway**: Is there a clear, positive lesson or message?

For each criterion:
- Give a score (1-10)
- Provide a brief explanation (1-2 sentences)

End with:
- Overall Score (average of the 3 scores)
- Final Verdict (2-3 sentences summarizing the story's quality as a bedtime story)

Format your response clearly with scores and explanations.
`

const judgeSystemPrompt = "You are an expert evaluator of children's bedtime stories."

// 科普小知识模板
const factPromptTemplate = `Explain "%s" to a 7-year-old in **three short lines**.
Use friendly language and finish with a question to make them curious.`

// 兜底的关键词抽取模板，启发式失败时才会调用
const termFallbackTemplate = "From the story below, name ONE interesting action, object, or animal " +
	"that a 7-year-old could learn about (just the single word, no quotes):\n\"\"\"\n%s\n\"\"\""

// 想法润色模板
const enrichIdeaTemplate = `
You are a children's creative-writing assistant.
The child's idea is: "%s"

Expand it into ONE or TWO sentences that:
• keep the core topic intact,
• add colourful, child-friendly details (who, where, why),
• remain suitable for a 5-10-year-old,
• end with a period.

Return ONLY the enriched idea – no bullet points, prefixes, or quotes.
`

// BuildScenePrompt 构造场景生成提示词
// 开场时storySoFar为空、lastChoice为"N/A"
func BuildScenePrompt(sceneNo int, category, idea, storySoFar, lastChoice string) string {
	if lastChoice == "" {
		lastChoice = "N/A"
	}
	return fmt.Sprintf(sceneTemplate, sceneNo, category, idea, storySoFar, lastChoice)
}

// BuildRevisionPrompt 构造场景修订提示词
func BuildRevisionPrompt(sceneNo int, feedback, originalScene string) string {
	return fmt.Sprintf(revisionTemplate, sceneNo, feedback, originalScene)
}

// BuildJudgePrompt 构造评审提示词
func BuildJudgePrompt(story string) string {
	return fmt.Sprintf(judgePromptTemplate, story)
}

// BuildFactPrompt 构造科普小知识提示词
func BuildFactPrompt(term string) string {
	return fmt.Sprintf(factPromptTemplate, term)
}

// BuildTermFallbackPrompt 构造关键词抽取兜底提示词
// 只取故事前1200个字符，足够模型判断主题
func BuildTermFallbackPrompt(story string) string {
	runes := []rune(story)
	if len(runes) > 1200 {
		story = string(runes[:1200])
	}
	return fmt.Sprintf(termFallbackTemplate, story)
}

// BuildEnrichPrompt 构造想法润色提示词
func BuildEnrichPrompt(rawIdea string) string {
	return fmt.Sprintf(enrichIdeaTemplate, rawIdea)
}

// BuildPosterPrompt 构造插画提示词，故事全文压缩到约200字符
func BuildPosterPrompt(story string) string {
	essence := shortenText(strings.Join(strings.Fields(story), " "), 200)
	return fmt.Sprintf("A fantasy scene with %s\n\n"+
		"Medium: Digital painting\n"+
		"Style: Soft, dreamlike, no text\n\n"+
		"Rule: Image only. Zero text. No words. No letters. No writing. No labels. No captions. Visual only.",
		essence)
}

// shortenText 在词边界截断文本，超长时追加省略号
func shortenText(text string, width int) string {
	if len(text) <= width {
		return text
	}

	words := strings.Fields(text)
	var b strings.Builder
	for _, w := range words {
		// 预留省略号的位置
		if b.Len()+len(w)+2 > width {
			break
		}
		if b.Len() > 0 {
			b.WriteByte(' ')
		}
		b.WriteString(w)
	}

	if b.Len() == 0 {
		return string([]rune(text)[:1]) + "…"
	}
	return b.String() + "…"
}
