package orchestrator_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	"z-novel-forge/internal/workflow/chain"
	apperrors "z-novel-forge/pkg/errors"
)

func TestScenarioA_ChapterLifecycle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)

	assert.Equal(t, "The Salt Door", p.Title)
	require.Len(t, p.InitialPlan.ChapterOutlines, 3)
	require.Len(t, p.Chapters, 3)
	assert.Equal(t, 1, p.CurrentChapterProcessing)
	assert.Equal(t, "The Speaking Tide", p.Chapters[0].Title)
	assert.NotNil(t, p.InitialPlan.Timing)
	assert.Equal(t, entity.PhaseChapterPlanning, entity.DerivePhase(p))

	h.gen.push(reply{out: chapterPlanOutput(1)})
	require.NoError(t, h.orch.GenerateChapterPlan(ctx, p.ID, 1, ""))
	p = h.load(t, p.ID)
	c := p.Chapter(1)
	assert.NotEmpty(t, c.Plan)
	assert.Empty(t, c.Prose)
	assert.Empty(t, c.Review)
	assert.Equal(t, "Tide 1", c.Title)
	assert.Equal(t, "Tide 1", p.Outline(1).WorkingTitle)
	assert.Equal(t, "openai/gpt-4o-mini", c.ModelUsed)
	assert.Contains(t, p.ContinuityText(), "--- Chapter 1 Plan - Key Developments ---")
	assert.Contains(t, p.ContinuityText(), "Development from plan 1.")
	assert.Equal(t, entity.PhaseChapterWriting, entity.DerivePhase(p))

	h.gen.push(reply{out: proseOutput(1, "The Speaking Tide")})
	require.NoError(t, h.orch.GenerateChapterProse(ctx, p.ID, 1, ""))
	p = h.load(t, p.ID)
	assert.Equal(t, proseBody, p.Chapter(1).Prose)
	assert.Equal(t, "The Speaking Tide", p.Chapter(1).Title)

	h.gen.push(reply{out: reviewOutput(1, false)})
	parsed, err := h.orch.GenerateChapterReview(ctx, p.ID, 1, "")
	require.NoError(t, err)
	assert.True(t, parsed.RecommendationFound)
	assert.False(t, parsed.AutoRevisionRecommended)
	assert.Empty(t, parsed.SuggestedTitle)

	p = h.load(t, p.ID)
	assert.NotEmpty(t, p.Chapter(1).Review)
	assert.False(t, p.Chapter(1).AutoRevisionRecommendedByAI)
	assert.Equal(t, "The Speaking Tide", p.Chapter(1).Title)
	assert.Equal(t, entity.PhaseChapterReviewed, entity.DerivePhase(p))
	assert.Equal(t, 2, p.InitialPlan.ContinuityLog.Len())

	next, err := h.orch.AdvanceCursor(ctx, p.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, next)
	assert.Empty(t, errorEntries(h.load(t, p.ID)))
}

func TestInitialPlan_LogsGlobalContext(t *testing.T) {
	h := newHarness(t)
	p := h.planned(t)

	entries, err := h.globals.List(context.Background(), "")
	require.NoError(t, err)
	require.Len(t, entries, 5)
	assert.Equal(t, "Mara Vell", entries[0].Element)
	assert.Equal(t, "Protagonist", entries[0].Role)
	assert.Equal(t, "Reluctant Keeper", entries[0].Archetype)
	assert.Equal(t, "Supporting", entries[2].Role)
	assert.Equal(t, entity.GlobalContextCoreConcept, entries[3].Type)
	assert.Equal(t, "grief", entries[3].Element)
	for _, e := range entries {
		assert.Equal(t, p.ID, e.ProjectID)
		assert.Equal(t, "The Salt Door", e.ProjectName)
	}

	// 重写规划时替换而不是追加
	h.gen.push(reply{out: initialPlanOutput})
	require.NoError(t, h.orch.RewriteInitialPlan(context.Background(), p.ID, "darker"))
	entries, err = h.globals.List(context.Background(), "")
	require.NoError(t, err)
	assert.Len(t, entries, 5)

	// 自身条目不会出现在提示词中
	other, err := h.globals.List(context.Background(), p.ID)
	require.NoError(t, err)
	assert.Empty(t, other)
}

func TestDownstreamInvalidation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)
	h.completeChapter(t, p.ID, 1, false)

	h.gen.push(reply{out: chapterPlanOutput(1)})
	require.NoError(t, h.orch.GenerateChapterPlan(ctx, p.ID, 1, ""))
	c := h.load(t, p.ID).Chapter(1)
	assert.NotEmpty(t, c.Plan)
	assert.Empty(t, c.Prose)
	assert.Empty(t, c.Review)

	h.gen.push(reply{out: proseOutput(1, "Again")}, reply{out: reviewOutput(1, true)})
	require.NoError(t, h.orch.GenerateChapterProse(ctx, p.ID, 1, ""))
	_, err := h.orch.GenerateChapterReview(ctx, p.ID, 1, "")
	require.NoError(t, err)
	require.True(t, h.load(t, p.ID).Chapter(1).AutoRevisionRecommendedByAI)

	h.gen.push(reply{out: proseOutput(1, "Rewritten")})
	require.NoError(t, h.orch.RewriteChapterProse(ctx, p.ID, 1, "more dialogue"))
	c = h.load(t, p.ID).Chapter(1)
	assert.NotEmpty(t, c.Prose)
	assert.Empty(t, c.Review)
	assert.False(t, c.AutoRevisionRecommendedByAI)
	assert.Equal(t, "more dialogue", c.ProseUserFeedback)

	h.gen.push(reply{out: reviewOutput(1, false)}, reply{out: chapterPlanOutput(1)})
	_, err = h.orch.GenerateChapterReview(ctx, p.ID, 1, "")
	require.NoError(t, err)
	require.NoError(t, h.orch.RewriteChapterPlan(ctx, p.ID, 1, "new angle"))
	c = h.load(t, p.ID).Chapter(1)
	assert.NotEmpty(t, c.Plan)
	assert.Empty(t, c.Prose)
	assert.Empty(t, c.Review)
	assert.True(t, c.IsRevised)
	assert.Equal(t, "new angle", c.PlanUserFeedback)
}

func TestReviseChapter(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)
	h.completeChapter(t, p.ID, 1, true)

	obs := &recordingObserver{}
	h.orch.AddObserver(obs)

	h.gen.push(reply{out: chapterPlanOutput(1)}, reply{out: proseOutput(1, "Revised Tide")})
	require.NoError(t, h.orch.ReviseChapter(ctx, p.ID, 1, orchestrator.AIRevisionFeedback("pacing too slow"), orchestrator.ReviseOptions{Automatic: true}))

	c := h.load(t, p.ID).Chapter(1)
	assert.NotEmpty(t, c.Plan)
	assert.Equal(t, proseBody, c.Prose)
	assert.Empty(t, c.Review)
	assert.True(t, c.IsRevised)
	assert.False(t, c.AutoRevisionRecommendedByAI)
	assert.Equal(t, "Revised Tide", c.Title)
	assert.Len(t, c.RevisionTimings, 1)
	assert.Contains(t, c.UserFeedbackForRevision, "pacing too slow")
	assert.Contains(t, h.load(t, p.ID).ContinuityText(), "--- Chapter 1 Re-Plan - Key Developments ---")
	assert.Empty(t, obs.manual, "automatic revisions do not reset counters")

	// 修订时正文提示词不再附带反馈
	assert.Contains(t, h.gen.prompts[len(h.gen.prompts)-2], "pacing too slow")

	h.gen.push(reply{out: chapterPlanOutput(1)}, reply{out: proseOutput(1, "Manual")})
	require.NoError(t, h.orch.ReviseChapter(ctx, p.ID, 1, "make it colder", orchestrator.ReviseOptions{}))
	assert.Equal(t, []int{1}, obs.manual)
	assert.Len(t, h.load(t, p.ID).Chapter(1).RevisionTimings, 2)

	err := h.orch.ReviseChapter(ctx, p.ID, 1, "  ", orchestrator.ReviseOptions{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}

func TestScenarioB_ReviewWithOnlyRecommendation(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)
	h.gen.push(reply{out: chapterPlanOutput(1)}, reply{out: proseOutput(1, "T")})
	require.NoError(t, h.orch.GenerateChapterPlan(ctx, p.ID, 1, ""))
	require.NoError(t, h.orch.GenerateChapterProse(ctx, p.ID, 1, ""))

	raw := "AUTO_REVISION_RECOMMENDED: YES.\nReasons:\n- pacing too slow"
	h.gen.push(reply{out: raw})
	parsed, err := h.orch.GenerateChapterReview(ctx, p.ID, 1, "")
	require.NoError(t, err)
	assert.True(t, parsed.AutoRevisionRecommended)

	c := h.load(t, p.ID).Chapter(1)
	assert.Equal(t, raw, c.Review)
	assert.True(t, c.AutoRevisionRecommendedByAI)
	assert.Contains(t, c.AutoRevisionReasonsFromAI, "pacing too slow")
	assert.NotContains(t, c.AutoRevisionReasonsFromAI, "Reasons:")
}

func TestScenarioC_GatewayFailureKeepsPersistedState(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)
	h.completeChapter(t, p.ID, 1, false)

	obs := &recordingObserver{}
	h.orch.AddObserver(obs)
	before := h.load(t, p.ID)

	h.gen.push(reply{err: apperrors.Wrap(errors.New("dial tcp: connection refused"), apperrors.CodeGatewayFailed, "AI generation request failed")})
	err := h.orch.GenerateChapterProse(ctx, p.ID, 1, "")
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewayFailed))
	assert.True(t, orchestrator.Logged(err))

	after := h.load(t, p.ID)
	assert.Equal(t, before.Chapter(1).Prose, after.Chapter(1).Prose)
	assert.Equal(t, before.Chapter(1).Review, after.Chapter(1).Review)
	assert.Len(t, after.SystemLog, len(before.SystemLog)+1)
	errs := errorEntries(after)
	require.Len(t, errs, 1)
	assert.Contains(t, errs[0], "ERROR: Prose generation for Chapter 1 failed:")
	assert.Contains(t, errs[0], "connection refused")

	require.Len(t, obs.failed, 1)
	assert.Equal(t, orchestrator.OpChapterProse, obs.failed[0])

	st := h.orch.RunState(p.ID)
	assert.False(t, st.Busy)
	assert.Equal(t, apperrors.CodeGatewayFailed, st.LastErrorCode)
	h.orch.ClearError(p.ID)
	assert.Empty(t, h.orch.RunState(p.ID).LastError)
}

func TestPreconditionsFailBeforeGateway(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.create(t)

	err := h.orch.GenerateChapterPlan(ctx, p.ID, 1, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePrecondition))

	p = h.planned(t)
	calls := h.gen.calls()
	err = h.orch.GenerateChapterProse(ctx, p.ID, 1, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePrecondition))
	_, err = h.orch.GenerateChapterReview(ctx, p.ID, 1, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodePrecondition))
	assert.Equal(t, calls, h.gen.calls())
	assert.Len(t, errorEntries(h.load(t, p.ID)), 2)
}

func TestEmptyProseIsParseError(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)
	h.gen.push(reply{out: chapterPlanOutput(1)}, reply{out: "## Chapter 1: Short\nToo short."})
	require.NoError(t, h.orch.GenerateChapterPlan(ctx, p.ID, 1, ""))

	err := h.orch.GenerateChapterProse(ctx, p.ID, 1, "")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParseFailed))
	assert.Empty(t, h.load(t, p.ID).Chapter(1).Prose)
}

func TestUpdateChapterTitle(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)

	require.NoError(t, h.orch.UpdateChapterTitle(ctx, p.ID, 2, "Salt Ledger"))
	p = h.load(t, p.ID)
	assert.Equal(t, "Salt Ledger", p.Chapter(2).Title)
	assert.Equal(t, "Salt Ledger", p.Outline(2).WorkingTitle)
	assert.Equal(t, "Mara trades a memory for a clue.", p.Outline(2).BriefSynopsis)

	require.NoError(t, h.orch.UpdateChapterTitle(ctx, p.ID, 5, "Coda"))
	p = h.load(t, p.ID)
	require.NotNil(t, p.Outline(5))
	assert.Equal(t, "Coda", p.Outline(5).WorkingTitle)
	assert.Equal(t, entity.PlaceholderOutlineSynopsis, p.Outline(5).BriefSynopsis)
	assert.Empty(t, p.Outline(5).KeyContinuityPoints)
	assert.Equal(t, "Coda", p.Chapter(5).Title)

	// 再次设置相同标题结果不变
	require.NoError(t, h.orch.UpdateChapterTitle(ctx, p.ID, 5, "Coda"))
	p = h.load(t, p.ID)
	assert.Len(t, p.InitialPlan.ChapterOutlines, 4)
	assert.Equal(t, 5, p.InitialPlan.ChapterOutlines[3].ChapterNumber)
}

func TestOperationGate(t *testing.T) {
	gen := &blockingGenerator{started: make(chan struct{}), release: make(chan struct{})}
	store := memory.NewProjectStore(0)
	orch := orchestrator.New(store, memory.NewGlobalContextLog(), memory.Transactor{}, chain.NewPhaseChain(nil, gen), orchestrator.Config{})
	ctx := context.Background()

	p, err := orch.CreateProject(ctx, orchestrator.CreateProjectRequest{Idea: testIdea()})
	require.NoError(t, err)

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		assert.NoError(t, orch.GenerateInitialPlan(ctx, p.ID, ""))
	}()

	select {
	case <-gen.started:
	case <-time.After(5 * time.Second):
		t.Fatal("generation did not start")
	}
	st := orch.RunState(p.ID)
	assert.True(t, st.Busy)
	assert.Equal(t, orchestrator.OpInitialPlan, st.Operation)

	err = orch.UpdateChapterTitle(ctx, p.ID, 1, "x")
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOperationInFlight))

	// 导入同 ID 项目同样受占用保护，不能覆盖进行中的操作
	doc := []byte(`{"id":"` + p.ID + `","title":"Overwrite","idea":{"initialIdea":"x"},"chapters":[]}`)
	_, err = orch.ImportProject(ctx, doc)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeOperationInFlight))
	assert.Equal(t, orchestrator.OpInitialPlan, orch.RunState(p.ID).Operation)

	close(gen.release)
	wg.Wait()
	assert.False(t, orch.Busy(p.ID))

	imported, err := orch.ImportProject(ctx, doc)
	require.NoError(t, err)
	assert.Equal(t, "Overwrite", imported.Title)
	assert.False(t, orch.Busy(p.ID))

	saved, err := store.Get(ctx, p.ID)
	require.NoError(t, err)
	assert.Empty(t, errorEntries(saved), "a rejected call must not log against the running operation")
}

func TestCreateProjectDefaults(t *testing.T) {
	h := newHarness(t)
	p, err := h.orch.CreateProject(context.Background(), orchestrator.CreateProjectRequest{
		Title: "Tidewright",
		Idea:  entity.Idea{InitialIdea: "A keeper and a sea.", TargetNovelLength: entity.NovelLengthStandard},
	})
	require.NoError(t, err)
	assert.Equal(t, 8000, p.Idea.TargetChapterWordCount)
	assert.Equal(t, 20, p.Idea.TargetChapterCount)
	assert.Equal(t, 1, p.CurrentChapterProcessing)
	assert.Equal(t, "openai/gpt-4o-mini", p.SelectedModel)
	assert.Equal(t, `Project "Tidewright" created.`, p.SystemLog[0].Message)
	assert.Contains(t, p.ContinuityText(), "Stated Literary Influences: None specified.")

	_, err = h.orch.CreateProject(context.Background(), orchestrator.CreateProjectRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}

func TestImportExport(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()
	p := h.planned(t)

	data, err := h.orch.ExportProject(ctx, p.ID)
	require.NoError(t, err)

	other := newHarness(t)
	imported, err := other.orch.ImportProject(ctx, data)
	require.NoError(t, err)
	assert.Equal(t, p.ID, imported.ID)
	assert.Equal(t, p.Title, imported.Title)
	assert.Len(t, imported.InitialPlan.ChapterOutlines, 3)
	assert.Equal(t, "Project imported successfully.", imported.SystemLog[len(imported.SystemLog)-1].Message)

	minimal := `{"id":"legacy-1","title":"Legacy","idea":{"initialIdea":"old"},"chapters":[]}`
	imported, err = other.orch.ImportProject(ctx, []byte(minimal))
	require.NoError(t, err)
	assert.Equal(t, entity.NovelLengthStandard, imported.Idea.TargetNovelLength)
	assert.Equal(t, 20, imported.Idea.TargetChapterCount)
	assert.Equal(t, 1, imported.CurrentChapterProcessing)
	assert.Equal(t, "openai/gpt-4o-mini", imported.SelectedModel)
	assert.Equal(t, entity.ContinuitySeedImported, imported.ContinuityText())

	for _, bad := range []string{
		`{"title":"x","idea":{},"chapters":[]}`,
		`{"id":"x","title":"x","idea":{}}`,
		`{"id":"x","title":"x","idea":"text","chapters":[]}`,
		`not json`,
	} {
		_, err := other.orch.ImportProject(ctx, []byte(bad))
		require.Error(t, err, bad)
		assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam), bad)
		assert.Contains(t, err.Error(), "Missing essential fields")
	}
}

func TestUpdateSelectedModel(t *testing.T) {
	h := newHarness(t)
	p := h.create(t)
	require.NoError(t, h.orch.UpdateSelectedModel(context.Background(), p.ID, "deepseek/deepseek-chat"))
	saved := h.load(t, p.ID)
	assert.Equal(t, "deepseek/deepseek-chat", saved.SelectedModel)
	assert.Equal(t, "Updating AI model to deepseek/deepseek-chat.", saved.SystemLog[len(saved.SystemLog)-1].Message)
}

func TestSuggestIdea(t *testing.T) {
	h := newHarness(t)
	ctx := context.Background()

	h.gen.push(reply{out: "```json\n{\"suggestedProjectTitle\":\"Tidewright\",\"genre\":\"Fantasy\",\"targetChapterCount\":\"12\"}\n```"})
	out, err := h.orch.SuggestIdea(ctx, orchestrator.IdeaSparkRequest{Idea: "a lighthouse"})
	require.NoError(t, err)
	assert.Equal(t, "Tidewright", out.SuggestedProjectTitle)
	assert.EqualValues(t, 12, out.TargetChapterCount)

	h.gen.push(reply{out: "not json at all"})
	_, err = h.orch.SuggestIdea(ctx, orchestrator.IdeaSparkRequest{Idea: "a lighthouse"})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeParseFailed))

	_, err = h.orch.SuggestIdea(ctx, orchestrator.IdeaSparkRequest{})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}

func TestDispatch(t *testing.T) {
	h := newHarness(t)
	p := h.planned(t)
	h.gen.push(reply{out: chapterPlanOutput(1)})

	require.NoError(t, h.orch.Dispatch(context.Background(), orchestrator.OperationRequest{
		Operation: orchestrator.OpChapterPlan,
		ProjectID: p.ID,
		Chapter:   1,
	}))
	assert.NotEmpty(t, h.load(t, p.ID).Chapter(1).Plan)

	err := h.orch.Dispatch(context.Background(), orchestrator.OperationRequest{Operation: "nope", ProjectID: p.ID})
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
	assert.False(t, orchestrator.Retryable(err))
}

func TestExportIsJSONDocument(t *testing.T) {
	h := newHarness(t)
	p := h.create(t)
	data, err := h.orch.ExportProject(context.Background(), p.ID)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, key := range []string{"id", "title", "idea", "chapters", "initialAISetupPlan", "systemLog", "selectedGlobalAIModel"} {
		assert.Contains(t, doc, key)
	}
}

type recordingObserver struct {
	mu     sync.Mutex
	failed []string
	manual []int
}

func (o *recordingObserver) OperationFailed(_ context.Context, _, operation string, _ error) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.failed = append(o.failed, operation)
}

func (o *recordingObserver) PlanRegenerated(_ string, chapter int) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.manual = append(o.manual, chapter)
}

type blockingGenerator struct {
	started chan struct{}
	release chan struct{}
}

func (g *blockingGenerator) Generate(context.Context, string, []*schema.Message, bool) (string, error) {
	close(g.started)
	<-g.release
	return initialPlanOutput, nil
}
