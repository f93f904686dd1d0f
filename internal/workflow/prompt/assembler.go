package prompt

import (
	"context"
	"fmt"
	"strings"

	"github.com/cloudwego/eino/schema"

	"z-novel-forge/internal/domain/entity"
	wfmodel "z-novel-forge/internal/workflow/model"
	wfnode "z-novel-forge/internal/workflow/node"
)

const (
	DefaultSourceCharBudget       = 4000
	DefaultReviewSourceCharBudget = 2000

	unspecifiedForGenre   = "User did not specify, develop appropriately for genre."
	noSourceForPlan       = "No source data provided."
	noSourceForChapter    = "No source data provided. Adhere to established plot."
	noSourceForReview     = "No source data to check against."
	noOutlineSynopsis     = "Not specifically outlined; refer to overall plot for this chapter's role."
	emptyContinuityLog    = "No context logged yet."
	unspecifiedInfluences = "User did not specify. If none, proceed without direct influence modeling."
	unspecifiedCount      = "Not specified, assume standard novel length (e.g., 20-30 chapters)"
	noIdeaOrSources       = " No initial idea or source data provided. Please create an interesting and unique concept from scratch."
)

// Prompt 待渲染的提示词：模板 ID 与完整变量集
type Prompt struct {
	ID        PromptID
	Vars      map[string]any
	WantsJSON bool
}

// Assembler 按阶段组装提示词变量，纯函数式，不访问外部状态
type Assembler struct {
	registry           *Registry
	sourceBudget       int
	reviewSourceBudget int
}

// NewAssembler 创建组装器，预算小于等于 0 时使用默认值
func NewAssembler(registry *Registry, sourceBudget, reviewSourceBudget int) *Assembler {
	if registry == nil {
		registry = NewRegistry()
	}
	if sourceBudget <= 0 {
		sourceBudget = DefaultSourceCharBudget
	}
	if reviewSourceBudget <= 0 {
		reviewSourceBudget = DefaultReviewSourceCharBudget
	}
	return &Assembler{registry: registry, sourceBudget: sourceBudget, reviewSourceBudget: reviewSourceBudget}
}

// Render 渲染为 system + user 两条消息
func (a *Assembler) Render(ctx context.Context, p *Prompt) ([]*schema.Message, error) {
	if p == nil {
		return nil, fmt.Errorf("prompt is nil")
	}
	tpl, err := a.registry.ChatTemplate(p.ID)
	if err != nil {
		return nil, err
	}
	return tpl.Format(ctx, p.Vars)
}

// InitialPlan 初始规划提示词
func (a *Assembler) InitialPlan(in wfmodel.InitialPlanInput) *Prompt {
	idea := in.Idea
	count := unspecifiedCount
	if idea.TargetChapterCount > 0 {
		count = fmt.Sprintf("%d", idea.TargetChapterCount)
	}
	globalContext := strings.TrimSpace(in.GlobalContext)
	if globalContext == "" {
		globalContext = entity.EmptyGlobalContext
	}
	return &Prompt{
		ID: PromptInitialPlanV1,
		Vars: map[string]any{
			"target_chapter_word_count": idea.TargetChapterWordCount,
			"source_summary":            orDefault(SourceSummary(in.Sources, a.sourceBudget), noSourceForPlan),
			"global_context":            globalContext,
			"initial_idea":              strings.TrimSpace(idea.InitialIdea),
			"genre":                     orDefault(idea.Genre, unspecifiedForGenre),
			"sub_genre":                 orDefault(idea.SubGenre, unspecifiedForGenre),
			"target_novel_length":       novelLengthLabel(idea.TargetNovelLength),
			"target_chapter_count":      count,
			"point_of_view":             idea.PointOfView,
			"point_of_view_tense":       idea.PointOfViewTense,
			"narrative_tone":            orDefault(idea.NarrativeTone, unspecifiedForGenre),
			"prose_complexity":          idea.ProseComplexity,
			"pacing":                    idea.Pacing,
			"core_themes":               orDefault(idea.CoreThemes, unspecifiedForGenre),
			"setting_era_location":      orDefault(idea.SettingEraLocation, unspecifiedForGenre),
			"setting_atmosphere":        orDefault(idea.SettingAtmosphere, unspecifiedForGenre),
			"character_count":           idea.CharacterCount,
			"literary_influences":       orDefault(idea.LiteraryInfluences, unspecifiedInfluences),
			"influences_or_none":        idea.InfluencesOrNone(),
			"rewrite_context":           strings.TrimSpace(in.RewriteContext),
		},
	}
}

// ChapterPlan 章节规划提示词
func (a *Assembler) ChapterPlan(in wfmodel.ChapterPlanInput) *Prompt {
	prevLabel := "N/A"
	if in.ChapterNumber > 1 {
		prevLabel = fmt.Sprintf("%d", in.ChapterNumber-1)
	}
	return &Prompt{
		ID: PromptChapterPlanV1,
		Vars: map[string]any{
			"project_title":             strings.TrimSpace(in.ProjectTitle),
			"chapter_number":            in.ChapterNumber,
			"previous_chapter_number":   in.ChapterNumber - 1,
			"previous_chapter_label":    prevLabel,
			"overall_plot_outline":      strings.TrimSpace(in.OverallPlotOutline),
			"outline_synopsis":          orDefault(in.OutlineSynopsis, noOutlineSynopsis),
			"continuity_log":            orDefault(in.ContinuityLog, emptyContinuityLog),
			"target_chapter_word_count": in.TargetWordCount,
			"influences_or_none":        orDefault(in.LiteraryInfluences, "None specified"),
			"source_summary":            orDefault(SourceSummary(in.Sources, a.sourceBudget), noSourceForChapter),
			"previous_review":           strings.TrimSpace(in.PreviousReview),
			"revision_feedback":         strings.TrimSpace(in.RevisionFeedback),
		},
	}
}

// ChapterProse 章节正文提示词；workingTitle 为规划中提出的标题，可为空
func (a *Assembler) ChapterProse(in wfmodel.ChapterProseInput, workingTitle string) *Prompt {
	instruction := fmt.Sprintf("Use the workingTitle proposed in the plan in the chapter header '## Chapter %d: [Title]'.", in.ChapterNumber)
	if t := strings.TrimSpace(workingTitle); t != "" {
		instruction = fmt.Sprintf("The working title for this chapter is \"%s\". Ensure the chapter header is formatted as '## Chapter %d: %s'.", t, in.ChapterNumber, t)
	}
	return &Prompt{
		ID: PromptChapterProseV1,
		Vars: map[string]any{
			"project_title":             strings.TrimSpace(in.ProjectTitle),
			"chapter_number":            in.ChapterNumber,
			"title_instruction":         instruction,
			"plan":                      strings.TrimSpace(in.Plan),
			"target_chapter_word_count": in.TargetWordCount,
			"rewrite_context":           strings.TrimSpace(in.RevisionFeedback),
		},
	}
}

// ChapterReview 章节审阅提示词
func (a *Assembler) ChapterReview(in wfmodel.ChapterReviewInput) *Prompt {
	return &Prompt{
		ID: PromptChapterReviewV1,
		Vars: map[string]any{
			"project_title":             strings.TrimSpace(in.ProjectTitle),
			"chapter_number":            in.ChapterNumber,
			"next_chapter_number":       in.ChapterNumber + 1,
			"plan":                      strings.TrimSpace(in.Plan),
			"prose":                     strings.TrimSpace(in.Prose),
			"target_chapter_word_count": in.TargetWordCount,
			"is_final_chapter":          in.IsFinalChapter,
			"influences_or_none":        orDefault(in.LiteraryInfluences, "None specified"),
			"source_summary":            orDefault(SourceSummary(in.Sources, a.reviewSourceBudget), noSourceForReview),
			"review_feedback":           strings.TrimSpace(in.RevisionFeedback),
		},
	}
}

// IdeaSpark 灵感建议提示词，要求模型只返回 JSON
func (a *Assembler) IdeaSpark(in wfmodel.IdeaSparkInput) *Prompt {
	idea := strings.TrimSpace(in.Idea)
	content := FileSummary(in.Sources, a.sourceBudget)

	description := noIdeaOrSources
	if idea != "" || content != "" {
		var b strings.Builder
		if idea != "" {
			fmt.Fprintf(&b, "\n- An initial idea: \"%s\"", idea)
		}
		if content != "" {
			b.WriteString("\n- Source data for context.")
		}
		description = b.String()
	}

	lengths := make([]string, 0, len(entity.NovelLengths))
	for _, l := range entity.NovelLengths {
		lengths = append(lengths, l.ID)
	}

	return &Prompt{
		ID:        PromptIdeaSparkV1,
		WantsJSON: true,
		Vars: map[string]any{
			"input_description":        description,
			"source_content":           content,
			"genre":                    strings.TrimSpace(in.Genre),
			"sub_genre":                strings.TrimSpace(in.SubGenre),
			"genre_examples":           strings.Join(firstN(entity.Genres, 5), ", "),
			"novel_lengths":            strings.Join(lengths, ", "),
			"points_of_view":           strings.Join(entity.PointsOfView, "; "),
			"point_of_view_tenses":     strings.Join(entity.PointOfViewTenses, "; "),
			"tone_examples":            strings.Join(firstN(entity.NarrativeToneExamples, 3), "; "),
			"prose_complexity_options": strings.Join(entity.ProseComplexityOptions, "; "),
			"pacing_options":           strings.Join(entity.PacingOptions, "; "),
			"atmosphere_examples":      strings.Join(firstN(entity.SettingAtmosphereExamples, 3), "; "),
			"character_counts":         strings.Join(entity.CharacterCounts, "; "),
		},
	}
}

// SourceSummary 参考资料摘要，每个文件截断到 budget 个字符
func SourceSummary(files []entity.SourceDataFile, budget int) string {
	return summarize(files, budget, "--- Source File: %s ---\n%s")
}

// FileSummary 灵感建议使用的资料格式
func FileSummary(files []entity.SourceDataFile, budget int) string {
	return summarize(files, budget, "--- File: %s ---\n%s")
}

func summarize(files []entity.SourceDataFile, budget int, format string) string {
	if len(files) == 0 {
		return ""
	}
	blocks := make([]string, 0, len(files))
	for _, f := range files {
		blocks = append(blocks, fmt.Sprintf(format, f.Name, wfnode.TruncateRunes(f.Content, budget)))
	}
	return strings.Join(blocks, "\n\n")
}

func novelLengthLabel(id string) string {
	if l, ok := entity.LookupNovelLength(id); ok {
		return l.Label
	}
	return orDefault(id, unspecifiedForGenre)
}

func orDefault(v, def string) string {
	if s := strings.TrimSpace(v); s != "" {
		return s
	}
	return def
}

func firstN(items []string, n int) []string {
	if len(items) < n {
		return items
	}
	return items[:n]
}
