package parse

import (
	"regexp"
	"strings"

	wfmodel "z-novel-forge/internal/workflow/model"
)

var (
	chapterPlanSection = Section{
		Name:         "chapter_plan",
		Start:        re(`(?i)Initiating Hyper-Detailed Planning for Chapter`),
		Ends:         res(`(?i)Final Readiness Check for Generating Chapter`, `(?i)</planning_rules>`, `(?i)<output>`),
		IncludeStart: true,
	}

	readinessResidue  = re(`(?is)Final Readiness Check for Generating Chapter.*?Readiness to generate confirmed\.?`)
	prohibitedResidue = re(`(?im)^[\s*-]*\[\s*x?\s*\]\s*Prohibited information check passed\.?\s*$`)
	phase5Residue     = re(`(?im)^[\s*-]*\**Phase 5:[^\n]*$`)

	workingTitleSignals = []Signal{
		{
			Section: Section{
				Name:  "working_title_line",
				Start: re(`(?im)^[ \t*#>\-]*(?:Proposed\s+)?(?:working\s*title|workingTitle|title)[*\x60]*\s*:[ \t]*`),
				Ends:  res(`\n`),
			},
			MaxLen: 150,
			Clean:  cleanTitle,
		},
		{
			Section: Section{
				Name:  "working_title_marker",
				Start: re("(?i)Propose a concise\\s*`?workingTitle`?\\s*for Chapter \\d+[.*\\s]*?[:\\-][*\\s]*"),
				Ends:  res(`\n`),
			},
			MaxLen: 150,
			Clean:  cleanTitle,
		},
		{
			Section: Section{
				Name:  "working_title_inline",
				Start: re(`(?i)workingTitle:[ \t]*`),
				Ends:  res(`\n`),
			},
			MaxLen: 150,
			Clean:  cleanTitle,
		},
	}

	planNotesSignal = Signal{
		Section: Section{
			Name:  "plan_context_notes",
			Start: re(`(?i)KEY_CHAPTER_DEVELOPMENTS_FROM_PLAN:[ \t]*`),
			Ends:  res(`(?i)\n[\s*-]*Checklist 4`, `(?i)\n[\s*-]*Phase 5`, `(?i)Final Readiness Check`),
		},
		NoOps: []string{
			"plan primarily executes existing threads; no major new context points to log from this plan.",
			"none from this chapter's plan.",
		},
		ExactNoOps: []string{"none", "none."},
		MinLen:     5,
		Clean:      trimQuotes,
	}
)

// ChapterPlan 解析章节规划输出
//
// 规划区块不足时使用全文兜底；Plan 为空表示输出没有可用内容。
func ChapterPlan(raw string) *wfmodel.ParsedChapterPlan {
	out := &wfmodel.ParsedChapterPlan{}

	if m, ok := chapterPlanSection.Locate(raw); ok {
		text := readinessResidue.ReplaceAllString(m.Text, "")
		text = prohibitedResidue.ReplaceAllString(text, "")
		text = strings.TrimSpace(text)
		text = trimTrailing(text, phase5Residue)
		text = trimMarkup(text)
		if runeLen(text) > MinSubstantialLength {
			out.Plan = text
			out.WorkingTitle = PlanWorkingTitle(text)
			if notes, _, _, ok := planNotesSignal.Find(text); ok {
				out.ContextNotes = notes
			}
		}
	}

	trimmed := strings.TrimSpace(raw)
	if out.Plan == "" && runeLen(trimmed) > MinSubstantialLength {
		fallback("chapter_plan", "full_text")
		out.Plan = trimmed
		out.WorkingTitle = PlanWorkingTitle(trimmed)
		if notes, _, _, ok := planNotesSignal.Find(trimmed); ok {
			out.ContextNotes = notes
		}
	}
	return out
}

// PlanWorkingTitle 从章节规划中找出提议的工作标题
func PlanWorkingTitle(plan string) string {
	for _, s := range workingTitleSignals {
		if v, _, _, ok := s.Find(plan); ok {
			return v
		}
	}
	return ""
}

func cleanTitle(s string) string {
	s = trimQuotes(s)
	s = strings.Trim(s, "*`")
	return trimQuotes(s)
}

// trimTrailing 去掉文本末尾匹配的残留行
func trimTrailing(text string, residue *regexp.Regexp) string {
	locs := residue.FindAllStringIndex(text, -1)
	if len(locs) == 0 {
		return text
	}
	last := locs[len(locs)-1]
	if strings.TrimSpace(text[last[1]:]) != "" {
		return text
	}
	return strings.TrimSpace(text[:last[0]])
}
