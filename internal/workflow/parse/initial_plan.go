package parse

import (
	"regexp"
	"slices"
	"strconv"
	"strings"

	"z-novel-forge/internal/domain/entity"
	wfmodel "z-novel-forge/internal/workflow/model"
)

var (
	headerEnd = re(`(?i)Phase 1:|Initiating Creative Planning Phase`)
	titleLine = re(`(?m)^#[ \t]+(.+?)[ \t]*$`)
	blankLine = re(`\n[ \t]*\n`)

	loglineSection = Section{
		Name:  "logline",
		Start: re(`(?i)\bLog\s*line[*_]*\s*:[*_]*[ \t]*`),
		Ends:  []*regexp.Regexp{blankLine, re(`(?im)^[ \t>*_-]*Synopsis[*_]*\s*:`)},
	}
	synopsisSection = Section{
		Name:  "synopsis",
		Start: re(`(?i)\bSynopsis[*_]*\s*:[*_]*[ \t]*`),
		Ends:  []*regexp.Regexp{blankLine},
	}

	conceptSection = Section{
		Name:  "concept_and_premise",
		Start: re(`(?i)Phase 1:\s*Concept & Premise Development(?:\s*\(Verbalize\))?|Initiating Creative Planning Phase 1:\s*Concept & Premise\.?`),
		Ends:  res(`(?i)Phase 2:\s*Characters? & Setting Development`, `(?i)Moving to Creative Planning Phase 2`),
	}
	charactersSection = Section{
		Name:  "characters_and_setting",
		Start: re(`(?i)Phase 2:\s*Characters? & Setting Development(?:\s*\(Verbalize\))?|Moving to Creative Planning Phase 2:\s*Characters? & Setting\.?`),
		Ends:  res(`(?i)Phase 3:\s*Overall Plot Outline`, `(?i)Proceeding to Creative Planning Phase 3`),
	}
	plotSection = Section{
		Name:  "overall_plot_outline",
		Start: re(`(?i)Phase 3:\s*Overall Plot Outline(?:\s*&\s*Chapter Structure)?(?:\s*\(Verbalize\))?|Proceeding to Creative Planning Phase 3:\s*Overall Plot Outline(?:\s*&\s*Chapter Structure)?\.?`),
		Ends: res(
			`(?i)Initiating Hyper-Detailed Planning for Chapter`,
			`(?i)Phase 4:\s*Hyper-Detailed Blueprint`,
			`(?i)<planning_rules>`,
			`(?i)<output>`,
		),
	}

	seedSection = Section{
		Name:  "continuity_seed",
		Start: re("(?i)evolvingStoryContextLog`?\\**\\s*:\\s*\"?"),
		Ends:  res(`\n[ \t]*\n`, `(?i)Checklist 3`, `(?i)<output>`),
	}

	outlineStart = re("(?im)^[\\s*#>`-]*ChapterOutline\\s*(\\d+)[ \\t*`]*:?")
	outlineEnd   = re(`(?i)Action 3\.3|Checklist 3|evolvingStoryContextLog`)

	outlineTitle    = re(`(?im)^[\s*\-]*\**working\s*Title\**\s*:\s*(.+)$`)
	outlineSynopsis = re(`(?im)^[\s*\-]*\**brief\s*Synopsis\**\s*:\s*(.+)$`)
	outlinePoints   = re(`(?im)^[\s*\-]*\**key\s*Continuity\s*Points\**\s*:[ \t]*(.*)$`)
	outlineLabel    = re(`^[*\x60]*[A-Za-z][A-Za-z ]*[*\x60]*\s*:`)
	bulletPrefix    = re(`^(?:[-*•+]|\d+[.)])\s*`)

	protagonistLine = re(`(?i)Protagonist:\s*\{\s*name:\s*"(.*?)",\s*archetype:\s*"(.*?)",\s*goal:\s*"(.*?)"\s*\}`)
	antagonistLine  = re(`(?i)Antagonist:\s*\{\s*name:\s*"(.*?)",\s*archetype:\s*"(.*?)".*?\}`)
	supportingLine  = re(`(?i)SupportingCharacter:\s*\{\s*name:\s*"(.*?)",\s*role:\s*"(.*?)"\s*\}`)
)

// Header 解析阶段标记之前的书名、一句话梗概与简介
func Header(raw string) wfmodel.ParsedHeader {
	region, _ := cut(raw, headerEnd)

	var h wfmodel.ParsedHeader
	if m := titleLine.FindStringSubmatch(region); m != nil {
		h.Title = trimQuotes(m[1])
	}
	h.LogLine = trimMarkup(loglineSection.Extract(region, 0))
	h.Synopsis = trimMarkup(synopsisSection.Extract(region, 0))
	return h
}

// InitialPlan 解析初始规划输出
//
// 整体大纲缺失而原文非空时，以原文作为大纲，保证流程可以继续推进。
func InitialPlan(raw string) *wfmodel.ParsedInitialPlan {
	header := Header(raw)
	out := &wfmodel.ParsedInitialPlan{
		Title:                header.Title,
		LogLine:              header.LogLine,
		Synopsis:             header.Synopsis,
		ConceptAndPremise:    conceptSection.Extract(raw, MinSubstantialLength),
		CharactersAndSetting: charactersSection.Extract(raw, MinSubstantialLength),
		OverallPlotOutline:   plotSection.Extract(raw, MinSubstantialLength),
	}

	out.ChapterOutlines = ChapterOutlines(out.OverallPlotOutline)
	if len(out.ChapterOutlines) == 0 {
		out.ChapterOutlines = ChapterOutlines(raw)
	}
	out.ContinuitySeed = continuitySeed(out.OverallPlotOutline)
	if out.ContinuitySeed == "" {
		out.ContinuitySeed = continuitySeed(raw)
	}

	if out.ConceptAndPremise != "" {
		if out.LogLine == "" {
			out.LogLine = loglineSection.Extract(out.ConceptAndPremise, 0)
		}
		if out.Synopsis == "" {
			out.Synopsis = synopsisSection.Extract(out.ConceptAndPremise, 0)
		}
	}

	trimmed := strings.TrimSpace(raw)
	if out.OverallPlotOutline == "" && trimmed != "" {
		fallback("initial_plan", "raw_text")
		out.OverallPlotOutline = trimmed
		out.OutlineFromRawText = true
	}
	if out.LogLine == "" || out.Synopsis == "" {
		h := Header(out.OverallPlotOutline)
		if out.LogLine == "" {
			out.LogLine = h.LogLine
		}
		if out.Synopsis == "" {
			out.Synopsis = h.Synopsis
		}
	}
	if out.ConceptAndPremise == "" {
		out.ConceptAndPremise = trimmed
	}
	return out
}

// ChapterOutlines 解析结构化章节大纲，按章节号排序，重复编号只保留首次出现
func ChapterOutlines(text string) []entity.ChapterOutline {
	starts := outlineStart.FindAllStringSubmatchIndex(text, -1)
	if len(starts) == 0 {
		return nil
	}

	seen := make(map[int]bool, len(starts))
	outlines := make([]entity.ChapterOutline, 0, len(starts))
	for i, loc := range starts {
		n, err := strconv.Atoi(text[loc[2]:loc[3]])
		if err != nil || n < 1 || seen[n] {
			continue
		}
		end := len(text)
		if i+1 < len(starts) {
			end = starts[i+1][0]
		}
		body := text[loc[1]:end]
		body, _ = cut(body, outlineEnd)

		o := entity.ChapterOutline{ChapterNumber: n}
		if m := outlineTitle.FindStringSubmatch(body); m != nil {
			o.WorkingTitle = trimQuotes(m[1])
		}
		if m := outlineSynopsis.FindStringSubmatch(body); m != nil {
			o.BriefSynopsis = trimQuotes(m[1])
		}
		o.KeyContinuityPoints = continuityPoints(body)

		seen[n] = true
		outlines = append(outlines, o)
	}
	slices.SortStableFunc(outlines, func(a, b entity.ChapterOutline) int {
		return a.ChapterNumber - b.ChapterNumber
	})
	return outlines
}

func continuityPoints(body string) []string {
	loc := outlinePoints.FindStringSubmatchIndex(body)
	if loc == nil {
		return nil
	}
	var points []string
	if inline := strings.TrimSpace(body[loc[2]:loc[3]]); inline != "" {
		for _, p := range strings.Split(inline, ";") {
			if p = trimQuotes(bulletPrefix.ReplaceAllString(strings.TrimSpace(p), "")); p != "" {
				points = append(points, p)
			}
		}
	}
	for _, line := range strings.Split(body[loc[1]:], "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			if len(points) > 0 {
				break
			}
			continue
		}
		item := bulletPrefix.ReplaceAllString(line, "")
		if item == line && outlineLabel.MatchString(line) {
			break
		}
		if item = trimQuotes(item); item != "" {
			points = append(points, item)
		}
	}
	return points
}

func continuitySeed(text string) string {
	m, ok := seedSection.Locate(text)
	if !ok {
		return ""
	}
	return trimQuotes(m.Text)
}

// GlobalElements 从角色与设定区块中提取主角、反派与配角，供跨项目上下文记录
func GlobalElements(charactersAndSetting string) []entity.GlobalContextEntry {
	var out []entity.GlobalContextEntry
	if m := protagonistLine.FindStringSubmatch(charactersAndSetting); m != nil && strings.TrimSpace(m[1]) != "" {
		out = append(out, entity.GlobalContextEntry{
			Type:      entity.GlobalContextCharacter,
			Element:   strings.TrimSpace(m[1]),
			Role:      "Protagonist",
			Archetype: strings.TrimSpace(m[2]),
		})
	}
	if m := antagonistLine.FindStringSubmatch(charactersAndSetting); m != nil && strings.TrimSpace(m[1]) != "" {
		out = append(out, entity.GlobalContextEntry{
			Type:      entity.GlobalContextCharacter,
			Element:   strings.TrimSpace(m[1]),
			Role:      "Antagonist",
			Archetype: strings.TrimSpace(m[2]),
		})
	}
	for _, m := range supportingLine.FindAllStringSubmatch(charactersAndSetting, -1) {
		if strings.TrimSpace(m[1]) == "" {
			continue
		}
		out = append(out, entity.GlobalContextEntry{
			Type:    entity.GlobalContextCharacter,
			Element: strings.TrimSpace(m[1]),
			Role:    "Supporting",
		})
	}
	return out
}
