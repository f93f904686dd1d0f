package orchestrator

import (
	"context"
	"fmt"
	"strings"

	"z-novel-forge/internal/domain/entity"
	wfmodel "z-novel-forge/internal/workflow/model"
	"z-novel-forge/internal/workflow/parse"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// 操作名称，同时用作指标、Span 与消息分发的标签
const (
	OpInitialPlan         = "initial_plan"
	OpChapterPlan         = "chapter_plan"
	OpChapterProse        = "chapter_prose"
	OpChapterReview       = "chapter_review"
	OpReviseChapter       = "revise_chapter"
	OpRewriteInitialPlan  = "rewrite_initial_plan"
	OpRewriteChapterPlan  = "rewrite_chapter_plan"
	OpRewriteChapterProse = "rewrite_chapter_prose"
	OpRewriteReview       = "rewrite_chapter_review"
	OpUpdateChapterTitle  = "update_chapter_title"
	OpUpdateModel         = "update_model"
	OpAdvanceCursor       = "advance_cursor"
	OpIdeaSpark           = "idea_spark"
)

// GenerateInitialPlan 生成全书初始规划；rewriteContext 非空时作为重写要求
func (o *Orchestrator) GenerateInitialPlan(ctx context.Context, projectID, rewriteContext string) error {
	return o.execute(ctx, projectID, OpInitialPlan, 0, failedAs("Initial plan generation failed"),
		func(ctx context.Context, s *session) error {
			return o.initialPlan(ctx, s, rewriteContext)
		})
}

// RewriteInitialPlan 清空规划与全部章节、游标回到第 1 章后重新生成
func (o *Orchestrator) RewriteInitialPlan(ctx context.Context, projectID, rewriteContext string) error {
	return o.execute(ctx, projectID, OpRewriteInitialPlan, 0, failedAs("Initial plan generation failed"),
		func(ctx context.Context, s *session) error {
			p := s.work
			seed := entity.ContinuitySeedCreated
			p.InitialPlan = &entity.InitialSetupPlan{
				ChapterOutlines: []entity.ChapterOutline{},
				ContinuityLog:   entity.NewContinuityLog(fmt.Sprintf(seed, p.Idea.InfluencesOrNone())),
			}
			p.Chapters = []entity.Chapter{}
			p.CurrentChapterProcessing = 1
			if err := o.checkpoint(ctx, s); err != nil {
				return err
			}
			return o.initialPlan(ctx, s, rewriteContext)
		})
}

func (o *Orchestrator) initialPlan(ctx context.Context, s *session, rewriteContext string) error {
	p := s.work
	rewriteContext = strings.TrimSpace(rewriteContext)
	if rewriteContext != "" {
		o.log(s, "Rewriting initial novel plan with new context...")
	} else {
		o.log(s, "Generating initial novel plan...")
	}

	var globalContext string
	if o.globals != nil {
		entries, err := o.globals.List(ctx, p.ID)
		if err != nil {
			return apperrors.Wrap(err, apperrors.CodeStorageError, "failed to load global context log")
		}
		globalContext = entity.RenderGlobalContext(entries)
	}

	raw, err := o.generate(ctx, s, o.assembler().InitialPlan(wfmodel.InitialPlanInput{
		Idea:           p.Idea,
		GlobalContext:  globalContext,
		Sources:        p.SourceData,
		RewriteContext: rewriteContext,
	}))
	if err != nil {
		return err
	}
	if strings.TrimSpace(raw) == "" {
		return apperrors.New(apperrors.CodeParseFailed,
			"AI failed to generate any content for the initial plan. Please try again or adjust your idea")
	}

	timing := o.finish(s)
	o.log(s, "Initial plan generated in %s.", entity.FormatDurationShort(timing.DurationMs))

	parsed := parse.InitialPlan(raw)
	if parsed.OutlineFromRawText {
		logger.Warn(ctx, "overall plot outline missing after parsing, using full response")
	}

	seed := parsed.ContinuitySeed
	if seed == "" {
		seed = fmt.Sprintf(entity.ContinuitySeedPlanned, p.Idea.InfluencesOrNone())
	}
	outlines := parsed.ChapterOutlines
	if outlines == nil {
		outlines = []entity.ChapterOutline{}
	}
	p.InitialPlan = &entity.InitialSetupPlan{
		ConceptAndPremise:    parsed.ConceptAndPremise,
		CharactersAndSetting: parsed.CharactersAndSetting,
		OverallPlotOutline:   parsed.OverallPlotOutline,
		LogLine:              parsed.LogLine,
		Synopsis:             parsed.Synopsis,
		ChapterOutlines:      outlines,
		ContinuityLog:        entity.NewContinuityLog(seed),
		Timing:               timing,
	}
	if parsed.Title != "" {
		p.Title = parsed.Title
	}
	if len(outlines) > 0 {
		p.Chapters = make([]entity.Chapter, 0, len(outlines))
		for _, co := range outlines {
			p.Chapters = append(p.Chapters, entity.NewChapter(co.ChapterNumber, co.WorkingTitle))
		}
	}

	if entries := o.globalElements(p); len(entries) > 0 {
		s.replaceGlobals = true
		s.globals = entries
	}
	return nil
}

// globalElements 提取角色与核心主题，写入跨项目上下文
func (o *Orchestrator) globalElements(p *entity.Project) []entity.GlobalContextEntry {
	entries := parse.GlobalElements(p.InitialPlan.CharactersAndSetting)
	for _, theme := range p.Idea.ThemeList() {
		entries = append(entries, entity.GlobalContextEntry{
			Type:    entity.GlobalContextCoreConcept,
			Element: theme,
		})
	}
	now := o.now()
	for i := range entries {
		entries[i].ID = o.newID()
		entries[i].ProjectID = p.ID
		entries[i].ProjectName = p.Title
		entries[i].CreatedAt = now
	}
	return entries
}
