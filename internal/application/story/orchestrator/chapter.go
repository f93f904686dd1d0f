package orchestrator

import (
	"context"
	"fmt"
	"slices"
	"strings"

	"z-novel-forge/internal/domain/entity"
	wfmodel "z-novel-forge/internal/workflow/model"
	"z-novel-forge/internal/workflow/parse"
	apperrors "z-novel-forge/pkg/errors"
)

const (
	noOutlineSynopsis   = "Refer to overall plot."
	genericAIRevision   = "AI recommended revision. Please address feedback from review."
	aiRevisionReasonsFm = "AI Recommended Revisions based on its review:\n%s"
)

// ReviseOptions 修订选项
type ReviseOptions struct {
	// Automatic 由自动运行发起，不重置该章节的自动修订计数
	Automatic bool
}

// AIRevisionFeedback 由审阅给出的修订理由生成修订反馈
func AIRevisionFeedback(reasons string) string {
	if r := strings.TrimSpace(reasons); r != "" {
		return fmt.Sprintf(aiRevisionReasonsFm, r)
	}
	return genericAIRevision
}

// GenerateChapterPlan 生成章节规划；新规划使该章正文与审阅失效
func (o *Orchestrator) GenerateChapterPlan(ctx context.Context, projectID string, chapter int, feedback string) error {
	err := o.execute(ctx, projectID, OpChapterPlan, chapter, failedAs("Plan generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			return o.chapterPlan(ctx, s, chapter, feedback)
		})
	if err == nil {
		o.notifyPlanRegenerated(projectID, chapter)
	}
	return err
}

// RewriteChapterPlan 清空章节规划及下游后按 context 重新规划
func (o *Orchestrator) RewriteChapterPlan(ctx context.Context, projectID string, chapter int, rewriteContext string) error {
	err := o.execute(ctx, projectID, OpRewriteChapterPlan, chapter, failedAs("Plan generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			if err := requireChapterNumber(chapter); err != nil {
				return err
			}
			s.work.EnsureChapter(chapter).ClearFromPlan()
			if err := o.checkpoint(ctx, s); err != nil {
				return err
			}
			return o.chapterPlan(ctx, s, chapter, rewriteContext)
		})
	if err == nil {
		o.notifyPlanRegenerated(projectID, chapter)
	}
	return err
}

func requireChapterNumber(chapter int) error {
	if chapter < 1 {
		return apperrors.Newf(apperrors.CodeInvalidParam, "invalid chapter number %d", chapter)
	}
	return nil
}

func (o *Orchestrator) requirePlanningContext(p *entity.Project) error {
	if !p.InitialPlan.HasOutline() {
		return precondition("Initial plan is missing. Generate the initial plan first")
	}
	if strings.TrimSpace(p.Idea.InitialIdea) == "" && p.Idea.Genre == "" && len(p.SourceData) == 0 {
		return precondition("Project idea is missing")
	}
	return nil
}

// planInput 章节规划提示词输入，沿用上一章审阅、大纲梗概与连续性日志
func (o *Orchestrator) planInput(p *entity.Project, chapter int, feedback string) wfmodel.ChapterPlanInput {
	in := wfmodel.ChapterPlanInput{
		ProjectTitle:       p.Title,
		ChapterNumber:      chapter,
		OverallPlotOutline: p.InitialPlan.OverallPlotOutline,
		OutlineSynopsis:    noOutlineSynopsis,
		ContinuityLog:      p.ContinuityText(),
		TargetWordCount:    p.Idea.TargetChapterWordCount,
		LiteraryInfluences: p.Idea.LiteraryInfluences,
		RevisionFeedback:   feedback,
		Sources:            p.SourceData,
	}
	if co := p.Outline(chapter); co != nil && strings.TrimSpace(co.BriefSynopsis) != "" {
		in.OutlineSynopsis = co.BriefSynopsis
	}
	if chapter > 1 {
		if prev := p.Chapter(chapter - 1); prev != nil {
			in.PreviousReview = prev.Review
		}
	}
	return in
}

func (o *Orchestrator) chapterPlan(ctx context.Context, s *session, chapter int, feedback string) error {
	p := s.work
	if err := requireChapterNumber(chapter); err != nil {
		return err
	}
	if err := o.requirePlanningContext(p); err != nil {
		return err
	}
	feedback = strings.TrimSpace(feedback)
	o.log(s, "Generating plan for Chapter %d...", chapter)

	raw, err := o.generate(ctx, s, o.assembler().ChapterPlan(o.planInput(p, chapter, feedback)))
	if err != nil {
		return err
	}
	timing := o.finish(s)
	o.log(s, "Plan for Chapter %d generated in %s.", chapter, entity.FormatDurationShort(timing.DurationMs))

	parsed := parse.ChapterPlan(raw)
	if parsed.Plan == "" {
		return apperrors.Newf(apperrors.CodeParseFailed, "AI returned an empty plan for Chapter %d", chapter)
	}

	c := p.EnsureChapter(chapter)
	c.ClearFromPlan()
	c.Plan = parsed.Plan
	c.PlanTiming = timing
	c.IsRevised = feedback != ""
	c.PlanUserFeedback = feedback
	c.ModelUsed = p.SelectedModel
	switch {
	case parsed.WorkingTitle != "":
		c.Title = parsed.WorkingTitle
	case p.Outline(chapter) != nil && p.Outline(chapter).WorkingTitle != "":
		c.Title = p.Outline(chapter).WorkingTitle
	default:
		c.Title = fmt.Sprintf("Chapter %d Plan", chapter)
	}

	p.InitialPlan.ContinuityLog.Append(chapter, entity.ContinuityPhasePlan, parsed.ContextNotes, o.now())
	if parsed.WorkingTitle != "" {
		p.InitialPlan.SetWorkingTitle(chapter, parsed.WorkingTitle, false)
	}
	return nil
}

// GenerateChapterProse 生成章节正文；新正文使审阅失效
func (o *Orchestrator) GenerateChapterProse(ctx context.Context, projectID string, chapter int, feedback string) error {
	return o.execute(ctx, projectID, OpChapterProse, chapter, failedAs("Prose generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			return o.chapterProse(ctx, s, chapter, feedback)
		})
}

// RewriteChapterProse 清空正文及审阅后重新生成
func (o *Orchestrator) RewriteChapterProse(ctx context.Context, projectID string, chapter int, rewriteContext string) error {
	return o.execute(ctx, projectID, OpRewriteChapterProse, chapter, failedAs("Prose generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			c := s.work.Chapter(chapter)
			if !c.HasPlan() {
				return precondition("Plan for Chapter %d is missing", chapter)
			}
			c.ClearFromProse()
			if err := o.checkpoint(ctx, s); err != nil {
				return err
			}
			return o.chapterProse(ctx, s, chapter, rewriteContext)
		})
}

func (o *Orchestrator) chapterProse(ctx context.Context, s *session, chapter int, feedback string) error {
	p := s.work
	c := p.Chapter(chapter)
	if !c.HasPlan() {
		return precondition("Plan for Chapter %d is missing", chapter)
	}
	feedback = strings.TrimSpace(feedback)
	o.log(s, "Generating prose for Chapter %d...", chapter)

	text, title, err := o.writeProse(ctx, s, c, feedback)
	if err != nil {
		return err
	}
	timing := o.finish(s)
	o.log(s, "Prose for Chapter %d generated in %s.", chapter, entity.FormatDurationShort(timing.DurationMs))

	c.ClearFromProse()
	c.Prose = text
	c.ProseTiming = timing
	c.ProseUserFeedback = feedback
	switch {
	case title != "":
		c.Title = title
	case c.Title == "":
		c.Title = fmt.Sprintf("Chapter %d", chapter)
	}
	return nil
}

// writeProse 按章节当前规划生成并解析正文
func (o *Orchestrator) writeProse(ctx context.Context, s *session, c *entity.Chapter, feedback string) (prose, title string, err error) {
	p := s.work
	raw, err := o.generate(ctx, s, o.assembler().ChapterProse(wfmodel.ChapterProseInput{
		ProjectTitle:     p.Title,
		ChapterNumber:    c.ChapterNumber,
		Plan:             c.Plan,
		TargetWordCount:  p.Idea.TargetChapterWordCount,
		RevisionFeedback: feedback,
	}, parse.PlanWorkingTitle(c.Plan)))
	if err != nil {
		return "", "", err
	}
	parsed := parse.ChapterProse(raw)
	if parsed.Prose == "" {
		return "", "", apperrors.Newf(apperrors.CodeParseFailed,
			"Could not extract prose for Chapter %d from the AI response", c.ChapterNumber)
	}
	return parsed.Prose, parsed.Title, nil
}

// GenerateChapterReview 生成章节审阅并返回解析结果
func (o *Orchestrator) GenerateChapterReview(ctx context.Context, projectID string, chapter int, feedback string) (*wfmodel.ParsedChapterReview, error) {
	var out *wfmodel.ParsedChapterReview
	err := o.execute(ctx, projectID, OpChapterReview, chapter, failedAs("Review generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			var err error
			out, err = o.chapterReview(ctx, s, chapter, feedback)
			return err
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// RewriteChapterReview 清空审阅后重新生成
func (o *Orchestrator) RewriteChapterReview(ctx context.Context, projectID string, chapter int, rewriteContext string) (*wfmodel.ParsedChapterReview, error) {
	var out *wfmodel.ParsedChapterReview
	err := o.execute(ctx, projectID, OpRewriteReview, chapter, failedAs("Review generation for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			c := s.work.Chapter(chapter)
			if !c.HasPlan() || !c.HasProse() {
				return precondition("Prose or plan for Chapter %d is missing", chapter)
			}
			c.ClearReview()
			if err := o.checkpoint(ctx, s); err != nil {
				return err
			}
			var err error
			out, err = o.chapterReview(ctx, s, chapter, rewriteContext)
			return err
		})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (o *Orchestrator) chapterReview(ctx context.Context, s *session, chapter int, feedback string) (*wfmodel.ParsedChapterReview, error) {
	p := s.work
	if !p.Idea.HasValidChapterCount() {
		return nil, apperrors.New(apperrors.CodeConfiguration, "Target chapter count is not defined for this project")
	}
	c := p.Chapter(chapter)
	if !c.HasPlan() || !c.HasProse() {
		return nil, precondition("Prose or plan for Chapter %d is missing", chapter)
	}
	feedback = strings.TrimSpace(feedback)
	o.log(s, "Generating AI review for Chapter %d...", chapter)

	raw, err := o.generate(ctx, s, o.assembler().ChapterReview(wfmodel.ChapterReviewInput{
		ProjectTitle:       p.Title,
		ChapterNumber:      chapter,
		Prose:              c.Prose,
		Plan:               c.Plan,
		TargetWordCount:    p.Idea.TargetChapterWordCount,
		IsFinalChapter:     chapter == p.TargetChapterCount(),
		LiteraryInfluences: p.Idea.LiteraryInfluences,
		RevisionFeedback:   feedback,
		Sources:            p.SourceData,
	}))
	if err != nil {
		return nil, err
	}
	timing := o.finish(s)
	o.log(s, "Review for Chapter %d generated in %s.", chapter, entity.FormatDurationShort(timing.DurationMs))

	parsed := parse.ChapterReview(raw)
	if parsed.Review == "" {
		if !parsed.RecommendationFound {
			return nil, apperrors.Newf(apperrors.CodeParseFailed,
				"Could not extract a review for Chapter %d from the AI response", chapter)
		}
		parsed.Review = strings.TrimSpace(raw)
	}

	c.Review = parsed.Review
	c.ReviewTiming = timing
	c.ReviewUserFeedback = feedback
	c.AutoRevisionRecommendedByAI = parsed.AutoRevisionRecommended
	c.AutoRevisionReasonsFromAI = parsed.AutoRevisionReasons
	if parsed.SuggestedTitle != "" {
		c.Title = parsed.SuggestedTitle
		p.InitialPlan.SetWorkingTitle(chapter, parsed.SuggestedTitle, false)
		o.log(s, "AI suggested new title for Chapter %d: %q.", chapter, parsed.SuggestedTitle)
	}
	p.InitialPlan.ContinuityLog.Append(chapter, entity.ContinuityPhaseReview, parsed.ContextNotes, o.now())
	return parsed, nil
}

// ReviseChapter 按反馈重新规划并重写正文，清空审阅并标记为已修订
func (o *Orchestrator) ReviseChapter(ctx context.Context, projectID string, chapter int, feedback string, opts ReviseOptions) error {
	err := o.execute(ctx, projectID, OpReviseChapter, chapter, failedAs("Revision for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			return o.revise(ctx, s, chapter, feedback)
		})
	if err == nil && !opts.Automatic {
		o.notifyPlanRegenerated(projectID, chapter)
	}
	return err
}

func (o *Orchestrator) revise(ctx context.Context, s *session, chapter int, feedback string) error {
	p := s.work
	feedback = strings.TrimSpace(feedback)
	if feedback == "" {
		return apperrors.New(apperrors.CodeInvalidParam, "Revision feedback is required")
	}
	if err := o.requirePlanningContext(p); err != nil {
		return err
	}
	c := p.Chapter(chapter)
	if c == nil {
		return precondition("Chapter %d not found for revision", chapter)
	}
	o.log(s, "Starting revision for Chapter %d with feedback...", chapter)

	o.log(s, "Revising plan for Chapter %d...", chapter)
	raw, err := o.generate(ctx, s, o.assembler().ChapterPlan(o.planInput(p, chapter, feedback)))
	if err != nil {
		return err
	}
	plan := parse.ChapterPlan(raw)
	if plan.Plan == "" {
		return apperrors.Newf(apperrors.CodeParseFailed, "AI returned an empty plan for Chapter %d", chapter)
	}

	o.log(s, "Revising prose for Chapter %d...", chapter)
	revised := c.Clone()
	revised.Plan = plan.Plan
	prose, title, err := o.writeProse(ctx, s, &revised, "")
	if err != nil {
		return err
	}
	timing := o.finish(s)
	o.log(s, "Chapter %d fully revised in %s.", chapter, entity.FormatDurationShort(timing.DurationMs))

	c.ClearFromPlan()
	c.Plan = plan.Plan
	c.Prose = prose
	switch {
	case title != "":
		c.Title = title
	case plan.WorkingTitle != "":
		c.Title = plan.WorkingTitle
	}
	c.UserFeedbackForRevision = feedback
	c.PlanUserFeedback = feedback
	c.IsRevised = true
	c.RevisionTimings = append(c.RevisionTimings, *timing)
	c.ModelUsed = p.SelectedModel

	p.InitialPlan.ContinuityLog.Append(chapter, entity.ContinuityPhaseReplan, plan.ContextNotes, o.now())
	if plan.WorkingTitle != "" {
		p.InitialPlan.SetWorkingTitle(chapter, plan.WorkingTitle, false)
	}
	return nil
}

// UpdateChapterTitle 直接修改章节与大纲标题，大纲不存在时以占位梗概创建
func (o *Orchestrator) UpdateChapterTitle(ctx context.Context, projectID string, chapter int, title string) error {
	return o.execute(ctx, projectID, OpUpdateChapterTitle, chapter, failedAs("Title update for Chapter %d failed"),
		func(ctx context.Context, s *session) error {
			if err := requireChapterNumber(chapter); err != nil {
				return err
			}
			title = strings.TrimSpace(title)
			if title == "" {
				return apperrors.New(apperrors.CodeInvalidParam, "Chapter title must not be empty")
			}
			p := s.work
			if p.InitialPlan == nil {
				p.InitialPlan = &entity.InitialSetupPlan{}
			}
			o.log(s, "Updating title for Chapter %d to %q.", chapter, title)
			p.EnsureChapter(chapter).Title = title
			p.InitialPlan.SetWorkingTitle(chapter, title, true)
			slices.SortStableFunc(p.InitialPlan.ChapterOutlines, func(a, b entity.ChapterOutline) int {
				return a.ChapterNumber - b.ChapterNumber
			})
			return nil
		})
}
