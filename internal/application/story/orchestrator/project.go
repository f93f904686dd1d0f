package orchestrator

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/workflow/chain"
	wfmodel "z-novel-forge/internal/workflow/model"
	"z-novel-forge/internal/workflow/parse"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
	"z-novel-forge/pkg/metrics"
	"z-novel-forge/pkg/tracer"
)

const (
	untitledProject     = "Untitled Novel"
	invalidProjectFile  = "Invalid project file format. Missing essential fields."
	projectImportedNote = "Project imported successfully."
)

// CreateProjectRequest 新建项目请求
type CreateProjectRequest struct {
	Title   string                  `json:"title"`
	Idea    entity.Idea             `json:"idea"`
	Sources []entity.SourceDataFile `json:"sourceData,omitempty"`
	Model   string                  `json:"selectedGlobalAIModel,omitempty"`
}

// CreateProject 新建项目，游标指向第 1 章并写入连续性日志种子
func (o *Orchestrator) CreateProject(ctx context.Context, req CreateProjectRequest) (*entity.Project, error) {
	idea := req.Idea
	if strings.TrimSpace(idea.InitialIdea) == "" && len(req.Sources) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "An initial idea or source data is required")
	}
	idea.ApplyDefaults(o.cfg.DefaultChapterWordCount)
	if err := idea.Validate(); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, "invalid idea parameters")
	}

	title := strings.TrimSpace(req.Title)
	if title == "" {
		title = untitledProject
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.cfg.DefaultModel
	}
	sources := make([]entity.SourceDataFile, 0, len(req.Sources))
	for _, f := range req.Sources {
		if f.ID == "" {
			f.ID = o.newID()
		}
		sources = append(sources, f)
	}

	p := entity.NewProject(o.newID(), title, idea, sources, model, o.now())
	if err := o.store.Save(ctx, p); err != nil {
		return nil, err
	}
	logger.Info(ctx, "project created", "project_id", p.ID, "title", p.Title)
	return p, nil
}

// IdeaSparkRequest 灵感建议请求
type IdeaSparkRequest struct {
	Idea     string                  `json:"idea"`
	Genre    string                  `json:"genre,omitempty"`
	SubGenre string                  `json:"subGenre,omitempty"`
	Sources  []entity.SourceDataFile `json:"sourceData,omitempty"`
	Model    string                  `json:"model,omitempty"`
}

// SuggestIdea 根据创意文本或参考资料生成项目参数建议
func (o *Orchestrator) SuggestIdea(ctx context.Context, req IdeaSparkRequest) (_ *wfmodel.IdeaSuggestions, err error) {
	if strings.TrimSpace(req.Idea) == "" && len(req.Sources) == 0 {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "Please provide an initial idea or source data for suggestions")
	}
	model := strings.TrimSpace(req.Model)
	if model == "" {
		model = o.cfg.DefaultModel
	}

	ctx, span := tracer.StartOperation(ctx, OpIdeaSpark, "", 0)
	defer func() {
		metrics.GenerationOperationsTotal.WithLabelValues(OpIdeaSpark, metrics.StatusOf(err)).Inc()
		tracer.End(span, err)
	}()

	raw, err := o.phase.Run(ctx, &chain.PhaseRequest{
		Operation: OpIdeaSpark,
		ModelID:   model,
		Prompt: o.assembler().IdeaSpark(wfmodel.IdeaSparkInput{
			Idea:     req.Idea,
			Genre:    req.Genre,
			SubGenre: req.SubGenre,
			Sources:  req.Sources,
		}),
	})
	if err != nil {
		return nil, err
	}
	return parse.IdeaSpark(raw)
}

// ImportProject 导入单个 JSON 项目文档
func (o *Orchestrator) ImportProject(ctx context.Context, data []byte) (*entity.Project, error) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(data, &fields); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, invalidProjectFile)
	}
	if !hasString(fields["id"]) || !hasString(fields["title"]) || !hasObject(fields["idea"]) || !hasArray(fields["chapters"]) {
		return nil, apperrors.New(apperrors.CodeInvalidParam, invalidProjectFile)
	}

	var p entity.Project
	if err := json.Unmarshal(data, &p); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeInvalidParam, invalidProjectFile)
	}
	if err := o.acquire(p.ID, "import"); err != nil {
		return nil, err
	}
	defer o.unlock(p.ID)

	now := o.now()
	p.Idea.ApplyDefaults(o.cfg.DefaultChapterWordCount)
	p.Normalize(o.cfg.DefaultModel, entity.ContinuitySeedImported, now)
	p.AppendSystemLog(projectImportedNote, now)
	if err := o.store.Save(ctx, &p); err != nil {
		return nil, err
	}
	logger.Info(ctx, "project imported", "project_id", p.ID, "chapters", len(p.Chapters))
	return &p, nil
}

// ExportProject 导出项目 JSON 文档
func (o *Orchestrator) ExportProject(ctx context.Context, projectID string) ([]byte, error) {
	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return nil, err
	}
	data, err := json.MarshalIndent(p, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode project: %w", err)
	}
	return data, nil
}

// UpdateSelectedModel 切换项目使用的模型
func (o *Orchestrator) UpdateSelectedModel(ctx context.Context, projectID, model string) error {
	return o.execute(ctx, projectID, OpUpdateModel, 0, failedAs("AI model update failed"),
		func(ctx context.Context, s *session) error {
			model = strings.TrimSpace(model)
			if model == "" {
				return apperrors.New(apperrors.CodeInvalidParam, "Model must not be empty")
			}
			o.log(s, "Updating AI model to %s.", model)
			s.work.SelectedModel = model
			return nil
		})
}

// AdvanceCursor 游标章节完成后移动到下一章，返回新的游标
func (o *Orchestrator) AdvanceCursor(ctx context.Context, projectID string) (int, error) {
	var next int
	err := o.execute(ctx, projectID, OpAdvanceCursor, 0, failedAs("Advancing to the next chapter failed"),
		func(ctx context.Context, s *session) error {
			p := s.work
			cur := p.CurrentChapterProcessing
			if cur > p.TargetChapterCount() {
				return precondition("Novel already reached its target chapter count")
			}
			if !p.Chapter(cur).IsComplete() {
				return precondition("Chapter %d is not complete yet", cur)
			}
			next = cur + 1
			p.CurrentChapterProcessing = next
			o.log(s, "Finished Chapter %d. Moving to Chapter %d.", cur, next)
			return nil
		})
	if err != nil {
		return 0, err
	}
	return next, nil
}

// AppendLog 追加一条系统日志（自动运行的状态记录使用）
func (o *Orchestrator) AppendLog(ctx context.Context, projectID, message string) error {
	if err := o.acquire(projectID, "append_log"); err != nil {
		return err
	}
	defer o.unlock(projectID)

	p, err := o.store.Get(ctx, projectID)
	if err != nil {
		return err
	}
	p.AppendSystemLog(message, o.now())
	return o.store.Save(ctx, p)
}

func hasString(raw json.RawMessage) bool {
	var s string
	return json.Unmarshal(raw, &s) == nil && strings.TrimSpace(s) != ""
}

func hasObject(raw json.RawMessage) bool {
	var m map[string]json.RawMessage
	return json.Unmarshal(raw, &m) == nil && m != nil
}

func hasArray(raw json.RawMessage) bool {
	var a []json.RawMessage
	return json.Unmarshal(raw, &a) == nil && a != nil
}
