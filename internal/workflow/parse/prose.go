package parse

import (
	"strings"

	wfmodel "z-novel-forge/internal/workflow/model"
)

var (
	firstChapterHeader = re(`(?m)^## Chapter`)
	proseHeader        = re(`(?m)^##[ \t]*Chapter[ \t]+\d+[ \t]*:[ \t]*([^\n]*)\n`)
	proseHeaderNoTitle = re(`(?m)^## Chapter \d+[ \t]*\n`)
	novelHeader        = re(`^#[^\n]*\n\n?(?:Logline:[^\n]*\n\n?)?(?:Synopsis:[^\n]*\n\n?)?`)

	// 正文之后如果模型继续输出了审阅或下一轮规划，从这里截断
	proseTerminators = re(`(?i)<chapter_review_analysis>|Initiating Review Analysis for completed Chapter|AUTO_REVISION_RECOMMENDED:|Phase 4: Hyper-Detailed Blueprint for Chapter|Phase 1: Concept & Premise Development`)
	planningLeakage  = re(`(?i)<planning_rules>|<output>|Checklist \d`)
)

// ChapterProse 解析章节正文输出
//
// 依次尝试带标题的章节头、不带标题的章节头、去掉书名头后的全文；
// 都不满足时返回空正文，由调用方决定如何处理。
func ChapterProse(raw string) *wfmodel.ParsedChapterProse {
	content := raw
	if strings.HasPrefix(strings.TrimSpace(raw), "#") {
		if loc := firstChapterHeader.FindStringIndex(raw); loc != nil {
			content = raw[loc[0]:]
		}
	}

	if loc := proseHeader.FindStringSubmatchIndex(content); loc != nil {
		title := cleanTitle(content[loc[2]:loc[3]])
		if prose, ok := acceptProse(content[loc[1]:]); ok {
			return &wfmodel.ParsedChapterProse{Title: title, Prose: prose}
		}
	}

	if loc := proseHeaderNoTitle.FindStringIndex(content); loc != nil {
		if prose, ok := acceptProse(content[loc[1]:]); ok {
			fallback("chapter_prose", "untitled_header")
			return &wfmodel.ParsedChapterProse{Prose: prose}
		}
	}

	cleaned := novelHeader.ReplaceAllString(strings.TrimSpace(content), "")
	if prose, ok := acceptProse(cleaned); ok && !firstChapterHeader.MatchString(prose) {
		fallback("chapter_prose", "full_text")
		return &wfmodel.ParsedChapterProse{Prose: prose}
	}

	fallback("chapter_prose", "empty")
	return &wfmodel.ParsedChapterProse{}
}

// acceptProse 截断尾部的审阅与规划内容，并拒绝混入规划指令的文本
func acceptProse(text string) (string, bool) {
	text, _ = cut(text, proseTerminators)
	text = strings.TrimSpace(text)
	if planningLeakage.MatchString(text) || runeLen(text) <= MinSubstantialLength {
		return "", false
	}
	return text, true
}
