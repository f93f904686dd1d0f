package parse

import (
	"strings"

	wfmodel "z-novel-forge/internal/workflow/model"
)

const continuityCheckMarker = "Critical Continuity & Consistency Check"

var (
	suggestedTitleSignal = Signal{
		Section: Section{
			Name:  "suggested_title",
			Start: re(`(?i)SUGGESTED_TITLE:[ \t]*`),
			Ends:  res(`\n`),
		},
		NoOps: []string{
			"current title is appropriate",
			"no change needed",
			"existing title is suitable",
			"title is suitable",
			"title is appropriate",
			"keep current title",
			"no title suggestion",
		},
		MaxLen: 150,
		Clean:  cleanTitle,
	}
	suggestedTitleLine = re(`(?im)^[^\n]*SUGGESTED_TITLE:[^\n]*\n?`)

	reviewNotesSignal = Signal{
		Section: Section{
			Name:  "review_context_notes",
			Start: re(`(?i)SUGGESTED_CHAPTER_CONTEXT_LOG_UPDATE:[ \t]*`),
			Ends: res(
				`(?i)\n[ \t*#>\-]*2\.7\.?\s*\**\s*Stylistic Alignment`,
				`(?i)\n[ \t*#>\-]*(?:3\.\s*\**\s*)?Critical Continuity & Consistency Check`,
				`(?i)\n[ \t*#>\-]*5\.\s*\**\s*Automated Revision Recommendation`,
			),
		},
		NoOps:      []string{"prose aligned with plan; context updates primarily logged during planning phase."},
		ExactNoOps: []string{"none", "none."},
		MinLen:     5,
		Clean:      trimQuotes,
	}

	recommendationLine    = re(`(?i)AUTO_REVISION_RECOMMENDED:\s*\**\s*(YES|NO)\b\**\.?\**`)
	recommendationSection = Section{
		Name:  "auto_revision",
		Start: recommendationLine,
		Ends: res(
			`(?i)\n\s*\d+\.\s*\**\s*Verbalize:\**\s*"?Chapter \d+ Review Analysis complete`,
			`(?i)</chapter_review_analysis>`,
		),
	}
	reasonsPrefix = re(`(?i)^[*\s]*Reasons?[*\s]*:[*\s]*`)
	reasonBullet  = re(`(?m)^[ \t]*[-*•][ \t]+`)

	reviewSection = Section{
		Name:  "chapter_review",
		Start: re(`(?im)^[^\n]*Initiating Review Analysis for completed Chapter`),
		Ends: res(
			`(?i)\n[ \t*#>\-]*5\.\s*\**\s*Automated Revision Recommendation`,
			`(?i)</chapter_review_analysis>`,
			`(?i)<output>`,
			`(?i)Phase 4: Hyper-Detailed Blueprint for Chapter`,
		),
		IncludeStart: true,
	}
	stylisticSection = Section{
		Name:         "stylistic_alignment",
		Start:        re(`(?im)^[ \t*#>\-]*2\.7\.?\s*\**\s*Stylistic Alignment`),
		Ends:         res(`(?i)\n[ \t*#>\-]*3\.\s*\**\s*Critical Continuity & Consistency Check`),
		IncludeStart: true,
	}

	reviewTags       = re(`(?i)</?chapter_review_analysis>`)
	reviewCompletion = re(`(?is)\n\s*6\.\s*\**\s*Verbalize:\**\s*"?Chapter \d+ Review Analysis complete.*`)
	nextPlanMarker   = re(`(?i)Phase 4: Hyper-Detailed Blueprint for Chapter|Phase 1: Concept & Premise Development`)
)

// ChapterReview 解析章节审阅输出
//
// 建议标题、上下文记录与修订建议作为独立字段返回，并从审阅正文中剔除。
func ChapterReview(raw string) *wfmodel.ParsedChapterReview {
	text := strings.TrimSpace(raw)
	out := &wfmodel.ParsedChapterReview{}

	if v, _, _, ok := suggestedTitleSignal.Find(text); ok {
		out.SuggestedTitle = v
	}
	if v, _, _, ok := reviewNotesSignal.Find(text); ok {
		out.ContextNotes = v
	}
	if m, ok := recommendationSection.Locate(text); ok {
		out.RecommendationFound = true
		decision := recommendationLine.FindStringSubmatch(text[m.Start:])
		out.AutoRevisionRecommended = strings.EqualFold(decision[1], "YES")
		if out.AutoRevisionRecommended {
			out.AutoRevisionReasons = cleanReasons(m.Text)
		}
	}

	if m, ok := reviewSection.Locate(text); ok {
		block := stripReviewMetadata(m.Text)
		if runeLen(block) > MinSubstantialLength {
			out.Review = block
			return out
		}
	}

	if runeLen(text) <= MinSubstantialLength {
		return out
	}
	cleaned := stripReviewMetadata(text)
	cleaned = strings.TrimSpace(reviewCompletion.ReplaceAllString(cleaned, ""))
	cleaned, _ = cut(cleaned, nextPlanMarker)
	cleaned = strings.TrimSpace(cleaned)

	hasCheck := strings.Contains(cleaned, continuityCheckMarker)
	switch {
	case hasCheck && runeLen(cleaned) > MinSubstantialLength:
		fallback("chapter_review", "full_text")
		out.Review = cleaned
	case !hasCheck && runeLen(cleaned) > MinSubstantialLength/2:
		fallback("chapter_review", "partial_text")
		out.Review = cleaned
	}
	return out
}

// stripReviewMetadata 去掉审阅文本中的信号行、上下文记录、修订建议与风格对照小节
func stripReviewMetadata(text string) string {
	text = suggestedTitleLine.ReplaceAllString(text, "")
	if m, ok := reviewNotesSignal.Locate(text); ok {
		text = removeSpan(text, m)
	}
	if m, ok := recommendationSection.Locate(text); ok {
		text = removeSpan(text, m)
	}
	if m, ok := stylisticSection.Locate(text); ok {
		text = removeSpan(text, m)
	}
	text = reviewTags.ReplaceAllString(text, "")
	return strings.TrimSpace(text)
}

func cleanReasons(s string) string {
	s = strings.TrimSpace(s)
	s = reasonsPrefix.ReplaceAllString(s, "")
	s = reasonBullet.ReplaceAllString(s, "")
	return strings.Trim(strings.TrimSpace(s), "\"")
}
