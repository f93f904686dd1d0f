package entity

import (
	"fmt"
	"strings"
)

// MinChapterWordCount 目标章节字数下限
const MinChapterWordCount = 1000

// 小说篇幅
const (
	NovelLengthNovella  = "novella"
	NovelLengthStandard = "standard_novel"
	NovelLengthEpic     = "epic_novel"
)

// NovelLength 篇幅档位及其默认值
type NovelLength struct {
	ID                  string
	Label               string
	DefaultChapterWords int
	DefaultChapterCount int
}

// NovelLengths 篇幅目录
var NovelLengths = []NovelLength{
	{ID: NovelLengthNovella, Label: "Novella (Approx. 20k-40k words total)", DefaultChapterWords: 3000, DefaultChapterCount: 10},
	{ID: NovelLengthStandard, Label: "Standard Novel (Approx. 60k-90k words total)", DefaultChapterWords: 7500, DefaultChapterCount: 20},
	{ID: NovelLengthEpic, Label: "Epic Novel (Approx. 120k+ words total)", DefaultChapterWords: 10000, DefaultChapterCount: 30},
}

// LookupNovelLength 按 ID 查找篇幅档位
func LookupNovelLength(id string) (NovelLength, bool) {
	for _, l := range NovelLengths {
		if l.ID == id {
			return l, true
		}
	}
	return NovelLength{}, false
}

// 表单可选项目录，创意建议提示词与导入补全共用
var (
	Genres = []string{
		"Fantasy",
		"Science Fiction (Sci-Fi)",
		"Mystery",
		"Thriller & Suspense",
		"Horror",
		"Romance",
		"Historical Fiction",
		"Contemporary Fiction",
		"Literary Fiction",
		"Young Adult (YA)",
		"Children's Fiction",
		"Adventure",
		"Dystopian",
		"Crime",
		"Comedy/Humor",
	}
	PointsOfView = []string{
		"First Person (I, me, my)",
		"Third Person Limited (he/she/they, one character's perspective at a time)",
		"Third Person Omniscient (he/she/they, narrator knows all characters' thoughts/feelings)",
	}
	PointOfViewTenses = []string{
		"Past Tense (e.g., He walked)",
		"Present Tense (e.g., He walks)",
	}
	ProseComplexityOptions = []string{
		"Simple / Young Adult",
		"Standard / Accessible",
		"Complex / Literary",
	}
	PacingOptions = []string{
		"Slow-burn (detailed, deliberate, character-focused)",
		"Moderate Pacing (balanced plot and character development)",
		"Fast-paced (action-oriented, plot-driven)",
		"Varied (mix of slow and fast sections as per narrative needs)",
	}
	CharacterCounts = []string{
		"1-2 main characters",
		"3-5 key characters",
		"Ensemble cast (6+ characters)",
	}
	NarrativeToneExamples = []string{
		"Lyrical & Poetic",
		"Gritty & Cynical",
		"Fast-Paced & Action-Oriented",
		"Introspective & Philosophical",
		"Sparse & Minimalist",
		"Humorous & Witty",
	}
	SettingAtmosphereExamples = []string{
		"Oppressive & Dystopian",
		"Hopeful & Utopian",
		"Mysterious & Eerie",
		"Whimsical & Adventurous",
		"Grim & Perilous",
	}
)

// Idea 小说创意参数，创建后不再修改
type Idea struct {
	InitialIdea            string `json:"initialIdea"`
	Genre                  string `json:"genre"`
	SubGenre               string `json:"subGenre,omitempty"`
	TargetNovelLength      string `json:"targetNovelLength"`
	TargetChapterWordCount int    `json:"targetChapterWordCount"`
	TargetChapterCount     int    `json:"targetChapterCount,omitempty"`
	PointOfView            string `json:"pointOfView"`
	PointOfViewTense       string `json:"pointOfViewTense"`
	NarrativeTone          string `json:"narrativeTone"`
	ProseComplexity        string `json:"proseComplexity"`
	Pacing                 string `json:"pacing"`
	CoreThemes             string `json:"coreThemes"`
	SettingEraLocation     string `json:"settingEraLocation"`
	SettingAtmosphere      string `json:"settingAtmosphere"`
	CharacterCount         string `json:"characterCount"`
	LiteraryInfluences     string `json:"literaryInfluences,omitempty"`
}

// Validate 校验数值参数
func (i *Idea) Validate() error {
	if i.TargetChapterCount < 1 {
		return fmt.Errorf("target chapter count must be at least 1, got %d", i.TargetChapterCount)
	}
	if i.TargetChapterWordCount < MinChapterWordCount {
		return fmt.Errorf("target chapter word count must be at least %d, got %d", MinChapterWordCount, i.TargetChapterWordCount)
	}
	return nil
}

// HasValidChapterCount 目标章节数是否可用
func (i *Idea) HasValidChapterCount() bool {
	return i != nil && i.TargetChapterCount >= 1
}

// ApplyDefaults 为缺失字段填充默认值
// defaultWordCount 用于未设置章节字数且篇幅档位未知的情况
func (i *Idea) ApplyDefaults(defaultWordCount int) {
	if i.TargetNovelLength == "" {
		i.TargetNovelLength = NovelLengthStandard
	}
	length, known := LookupNovelLength(i.TargetNovelLength)
	if !known {
		length, _ = LookupNovelLength(NovelLengthStandard)
	}
	if i.TargetChapterWordCount <= 0 {
		if defaultWordCount > 0 {
			i.TargetChapterWordCount = defaultWordCount
		} else {
			i.TargetChapterWordCount = length.DefaultChapterWords
		}
	}
	if i.TargetChapterCount <= 0 {
		i.TargetChapterCount = length.DefaultChapterCount
	}
	if i.PointOfView == "" {
		i.PointOfView = PointsOfView[1]
	}
	if i.PointOfViewTense == "" {
		i.PointOfViewTense = PointOfViewTenses[0]
	}
	if i.ProseComplexity == "" {
		i.ProseComplexity = ProseComplexityOptions[1]
	}
	if i.Pacing == "" {
		i.Pacing = PacingOptions[1]
	}
	if i.CharacterCount == "" {
		i.CharacterCount = CharacterCounts[1]
	}
}

// InfluencesOrNone 返回文学影响描述，未设置时为 "None specified"
func (i *Idea) InfluencesOrNone() string {
	if s := strings.TrimSpace(i.LiteraryInfluences); s != "" {
		return s
	}
	return "None specified"
}

// ThemeList 拆分逗号分隔的主题
func (i *Idea) ThemeList() []string {
	var out []string
	for _, t := range strings.Split(i.CoreThemes, ",") {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}
