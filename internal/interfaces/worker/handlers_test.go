package worker_test

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/infrastructure/messaging"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	"z-novel-forge/internal/interfaces/worker"
	"z-novel-forge/internal/workflow/chain"
	apperrors "z-novel-forge/pkg/errors"
)

const planOutput = `# The Salt Door

Logline: A lighthouse keeper bargains with the sea.

Phase 1: Concept & Premise Development (Verbalize)
The premise centres on grief given a voice. The sea is a character with its own wants, and every bargain costs a memory.

Phase 2: Character & Setting Development (Verbalize)
Protagonist: { name: "Mara Vell", archetype: "Reluctant Keeper" }
The coast is a ring of failing villages under constant fog, and every village keeps one lamp lit for the drowned.

Phase 3: Overall Plot Outline & Chapter Structure (Verbalize)
The story moves in three movements: the first bargain, the cost, and the final refusal that frees Mara from the tide.
ChapterOutline 1:
workingTitle: The Speaking Tide
briefSynopsis: Mara hears the sea.
ChapterOutline 2:
workingTitle: The First Bargain
briefSynopsis: Mara trades a memory.
ChapterOutline 3:
workingTitle: Low Water
briefSynopsis: Mara refuses the sea.
evolvingStoryContextLog: "Novel Context Log Initiated."
`

type fixedGenerator struct {
	out string
	err error
}

func (g fixedGenerator) Generate(context.Context, string, []*schema.Message, bool) (string, error) {
	return g.out, g.err
}

type recordingPublisher struct {
	mu    sync.Mutex
	steps []string
}

func (p *recordingPublisher) PublishAutoRunStep(_ context.Context, projectID string, _ bool) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.steps = append(p.steps, projectID)
	return "1-0", nil
}

func setup(t *testing.T, gen fixedGenerator) (*worker.Handlers, *orchestrator.Orchestrator, *autorun.Runner, *recordingPublisher, string) {
	t.Helper()
	orch := orchestrator.New(memory.NewProjectStore(0), memory.NewGlobalContextLog(), memory.Transactor{},
		chain.NewPhaseChain(nil, gen), orchestrator.Config{})
	runner := autorun.NewRunner(orch)
	pub := &recordingPublisher{}
	p, err := orch.CreateProject(context.Background(), orchestrator.CreateProjectRequest{
		Title: "Salt",
		Idea: entity.Idea{
			InitialIdea:        "A lighthouse keeper hears the sea speak.",
			TargetNovelLength:  entity.NovelLengthNovella,
			TargetChapterCount: 3,
		},
	})
	require.NoError(t, err)
	return worker.NewHandlers(orch, runner, pub, 0), orch, runner, pub, p.ID
}

func TestHandleOperation(t *testing.T) {
	h, orch, _, _, id := setup(t, fixedGenerator{out: planOutput})
	ctx := context.Background()

	msg, err := messaging.NewMessage("m1", messaging.TypeGenerationOperation, id,
		orchestrator.OperationRequest{Operation: orchestrator.OpInitialPlan})
	require.NoError(t, err)
	require.NoError(t, h.HandleOperation(ctx, msg))

	p, err := orch.GetProject(ctx, id)
	require.NoError(t, err)
	assert.Len(t, p.InitialPlan.ChapterOutlines, 3)

	// 前置条件失败不交给队列重试
	msg, err = messaging.NewMessage("m2", messaging.TypeGenerationOperation, id,
		orchestrator.OperationRequest{Operation: orchestrator.OpChapterProse, Chapter: 1})
	require.NoError(t, err)
	err = h.HandleOperation(ctx, msg)
	require.Error(t, err)
	assert.True(t, messaging.IsPermanent(err))
	assert.True(t, apperrors.HasCode(err, apperrors.CodePrecondition))
}

func TestHandleOperationUnknownProject(t *testing.T) {
	h, _, _, _, _ := setup(t, fixedGenerator{out: planOutput})
	msg, err := messaging.NewMessage("m1", messaging.TypeGenerationOperation, "",
		orchestrator.OperationRequest{Operation: orchestrator.OpInitialPlan})
	require.NoError(t, err)
	err = h.HandleOperation(context.Background(), msg)
	assert.True(t, messaging.IsPermanent(err))
	assert.True(t, apperrors.HasCode(err, apperrors.CodeInvalidParam))
}

func TestHandleAutoRunStep(t *testing.T) {
	h, _, runner, pub, id := setup(t, fixedGenerator{out: planOutput})
	ctx := context.Background()

	msg, err := messaging.NewMessage("m1", messaging.TypeAutoRunStep, id, messaging.AutoRunStepPayload{Start: true})
	require.NoError(t, err)
	require.NoError(t, h.HandleAutoRunStep(ctx, msg))

	assert.True(t, runner.Status(id).Active)
	assert.Equal(t, []string{id}, pub.steps)

	// 停止后的步骤直接丢弃
	require.NoError(t, runner.Stop(ctx, id))
	msg, err = messaging.NewMessage("m2", messaging.TypeAutoRunStep, id, messaging.AutoRunStepPayload{})
	require.NoError(t, err)
	require.NoError(t, h.HandleAutoRunStep(ctx, msg))
	assert.Len(t, pub.steps, 1)
}

func TestHandleAutoRunStepFailurePauses(t *testing.T) {
	h, _, runner, pub, id := setup(t, fixedGenerator{err: errors.New("upstream 500")})
	msg, err := messaging.NewMessage("m1", messaging.TypeAutoRunStep, id, messaging.AutoRunStepPayload{Start: true})
	require.NoError(t, err)

	err = h.HandleAutoRunStep(context.Background(), msg)
	assert.True(t, messaging.IsPermanent(err))
	assert.True(t, runner.Status(id).Paused)
	assert.Empty(t, pub.steps)
}
