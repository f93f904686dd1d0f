package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"z-novel-forge/internal/domain/entity"
)

// ParsedHeader 初始规划输出顶部的书名、一句话梗概与简介
type ParsedHeader struct {
	Title    string
	LogLine  string
	Synopsis string
}

// ParsedInitialPlan 初始规划解析结果
type ParsedInitialPlan struct {
	Title                string
	ConceptAndPremise    string
	CharactersAndSetting string
	OverallPlotOutline   string
	LogLine              string
	Synopsis             string
	ChapterOutlines      []entity.ChapterOutline
	ContinuitySeed       string
	// OutlineFromRawText 整体大纲缺失时使用了全文兜底
	OutlineFromRawText bool
}

// ParsedChapterPlan 章节规划解析结果
type ParsedChapterPlan struct {
	Plan         string
	WorkingTitle string
	ContextNotes string
}

// ParsedChapterProse 章节正文解析结果，Prose 可能为空
type ParsedChapterProse struct {
	Title string
	Prose string
}

// ParsedChapterReview 章节审阅解析结果
type ParsedChapterReview struct {
	Review                  string `json:"review"`
	SuggestedTitle          string `json:"suggestedTitle,omitempty"`
	ContextNotes            string `json:"contextNotes,omitempty"`
	RecommendationFound     bool   `json:"recommendationFound"`
	AutoRevisionRecommended bool   `json:"autoRevisionRecommended"`
	AutoRevisionReasons     string `json:"autoRevisionReasons,omitempty"`
}

// FlexInt 兼容模型输出的数字或数字字符串
type FlexInt int

func (n *FlexInt) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if bytes.Equal(data, []byte("null")) {
		return nil
	}
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		s = strings.TrimSpace(s)
		if s == "" {
			return nil
		}
		v, err := strconv.Atoi(s)
		if err != nil {
			return fmt.Errorf("invalid number %q", s)
		}
		*n = FlexInt(v)
		return nil
	}
	var f float64
	if err := json.Unmarshal(data, &f); err != nil {
		return err
	}
	*n = FlexInt(int(f))
	return nil
}

// IdeaSuggestions 灵感建议，字段均为可选
type IdeaSuggestions struct {
	SuggestedProjectTitle          string  `json:"suggestedProjectTitle,omitempty"`
	SuggestedInitialIdeaRefinement string  `json:"suggestedInitialIdeaRefinement,omitempty"`
	Genre                          string  `json:"genre,omitempty"`
	SubGenre                       string  `json:"subGenre,omitempty"`
	TargetNovelLength              string  `json:"targetNovelLength,omitempty"`
	TargetChapterWordCount         FlexInt `json:"targetChapterWordCount,omitempty"`
	TargetChapterCount             FlexInt `json:"targetChapterCount,omitempty"`
	PointOfView                    string  `json:"pointOfView,omitempty"`
	PointOfViewTense               string  `json:"pointOfViewTense,omitempty"`
	NarrativeTone                  string  `json:"narrativeTone,omitempty"`
	ProseComplexity                string  `json:"proseComplexity,omitempty"`
	Pacing                         string  `json:"pacing,omitempty"`
	CoreThemes                     string  `json:"coreThemes,omitempty"`
	SettingEraLocation             string  `json:"settingEraLocation,omitempty"`
	SettingAtmosphere              string  `json:"settingAtmosphere,omitempty"`
	CharacterCount                 string  `json:"characterCount,omitempty"`
	LiteraryInfluences             string  `json:"literaryInfluences,omitempty"`
}

// ApplyTo 将建议合并到创意参数，只覆盖建议中给出的字段
func (s *IdeaSuggestions) ApplyTo(idea *entity.Idea) {
	if s == nil || idea == nil {
		return
	}
	set := func(dst *string, v string) {
		if v = strings.TrimSpace(v); v != "" {
			*dst = v
		}
	}
	set(&idea.InitialIdea, s.SuggestedInitialIdeaRefinement)
	set(&idea.Genre, s.Genre)
	set(&idea.SubGenre, s.SubGenre)
	set(&idea.TargetNovelLength, s.TargetNovelLength)
	set(&idea.PointOfView, s.PointOfView)
	set(&idea.PointOfViewTense, s.PointOfViewTense)
	set(&idea.NarrativeTone, s.NarrativeTone)
	set(&idea.ProseComplexity, s.ProseComplexity)
	set(&idea.Pacing, s.Pacing)
	set(&idea.CoreThemes, s.CoreThemes)
	set(&idea.SettingEraLocation, s.SettingEraLocation)
	set(&idea.SettingAtmosphere, s.SettingAtmosphere)
	set(&idea.CharacterCount, s.CharacterCount)
	set(&idea.LiteraryInfluences, s.LiteraryInfluences)
	if s.TargetChapterWordCount > 0 {
		idea.TargetChapterWordCount = int(s.TargetChapterWordCount)
	}
	if s.TargetChapterCount > 0 {
		idea.TargetChapterCount = int(s.TargetChapterCount)
	}
}
