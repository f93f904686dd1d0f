package orchestrator_test

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/domain/entity"
	llmctx "z-novel-forge/internal/domain/service"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	"z-novel-forge/internal/workflow/chain"
)

const initialPlanOutput = `# The Salt Door

Logline: A lighthouse keeper must bargain with the sea to save her drowned brother.

Synopsis: Mara tends the last lighthouse on a dying coast. When the tide begins to speak, she learns the price of every answer.

Phase 1: Concept & Premise Development (Verbalize)
"Initiating Creative Planning Phase 1: Concept & Premise."
The premise centres on grief given a voice. The sea is a character with its own wants, and every bargain costs Mara a memory she cannot spare.

Phase 2: Character & Setting Development (Verbalize)
Protagonist: { name: "Mara Vell", archetype: "Reluctant Keeper", goal: "Bring her brother home" }
Antagonist: { name: "The Tide", archetype: "Hungry Sea" }
SupportingCharacter: { name: "Ives", role: "Harbour master" }
The coast is a ring of failing villages under constant fog, and every village keeps one lamp lit for the drowned.

Phase 3: Overall Plot Outline & Chapter Structure (Verbalize)
The story moves in three movements: the first bargain, the cost, and the final refusal that frees Mara from the tide.
ChapterOutline 1:
workingTitle: "The Speaking Tide"
briefSynopsis: Mara hears the sea for the first time.
keyContinuityPoints:
- The lamp never goes out
ChapterOutline 2:
workingTitle: The First Bargain
briefSynopsis: Mara trades a memory for a clue.
keyContinuityPoints:
- Mara forgets her mother's voice
ChapterOutline 3:
workingTitle: Low Water
briefSynopsis: Mara refuses the final bargain.
keyContinuityPoints:
- The tide retreats for good
evolvingStoryContextLog: "Novel Context Log Initiated. Overall plot and character foundations established."
Checklist 3 (Verbalize completion):
- [x] Overall narrative structure chosen.
`

func chapterPlanOutput(n int) string {
	return fmt.Sprintf(`Initiating Hyper-Detailed Planning for Chapter %d.
Action 4.1: Review Context. There is no source data, so the plan follows the overall outline closely.
Action 4.2: Goal & Arc.
workingTitle: "Tide %d"
Action 4.3: Scene breakdown. Scene 1 on the lamp gallery, Scene 2 in the flooded cellar.
KEY_CHAPTER_DEVELOPMENTS_FROM_PLAN: - Development from plan %d.
Checklist 4 (Verbalize completion for Chapter %d Plan):
- [x] Context reviewed.
Final Readiness Check for Generating Chapter %d.
- [x] Readiness to generate confirmed.
`, n, n, n, n, n)
}

const proseBody = "The lamp turned above her like a slow thought. Mara counted the flashes the way her brother had taught her, " +
	"one for the rocks and two for the harbour, and on the third night the sea answered in his voice."

func proseOutput(n int, title string) string {
	return fmt.Sprintf("## Chapter %d: %s\n%s\n", n, title, proseBody)
}

func reviewOutput(n int, recommend bool) string {
	recommendation := "AUTO_REVISION_RECOMMENDED: NO."
	if recommend {
		recommendation = "AUTO_REVISION_RECOMMENDED: YES.\nReasons:\n- pacing too slow"
	}
	return fmt.Sprintf(`<chapter_review_analysis>
1. Verbalize: "Initiating Review Analysis for completed Chapter %d."
2. Analyze Generated Chapter %d:
Depth is good and the pacing mirrors the plan closely, with the cellar scene earning its length.
2.5. Title Review & Refinement:
SUGGESTED_TITLE: Current title is appropriate.
2.6. Key Developments:
SUGGESTED_CHAPTER_CONTEXT_LOG_UPDATE: - Development from review %d.
3. Critical Continuity & Consistency Check (CRUCIAL):
No discrepancies with the plan or earlier chapters were found.
5. Automated Revision Recommendation (FOR AUTO MODE):
%s
6. Verbalize: "Chapter %d Review Analysis complete."
</chapter_review_analysis>`, n, n, n, recommendation, n)
}

type reply struct {
	out string
	err error
}

// scriptedGenerator 按顺序返回预设回复，并记录每次调用的操作名
type scriptedGenerator struct {
	mu      sync.Mutex
	replies []reply
	ops     []string
	prompts []string
}

func (g *scriptedGenerator) push(rs ...reply) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.replies = append(g.replies, rs...)
}

func (g *scriptedGenerator) Generate(ctx context.Context, _ string, messages []*schema.Message, _ bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.ops = append(g.ops, llmctx.OperationFromContext(ctx))
	if len(messages) > 0 {
		g.prompts = append(g.prompts, messages[len(messages)-1].Content)
	}
	if len(g.replies) == 0 {
		return "", fmt.Errorf("no scripted reply left")
	}
	r := g.replies[0]
	g.replies = g.replies[1:]
	return r.out, r.err
}

func (g *scriptedGenerator) calls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.ops)
}

type harness struct {
	orch    *orchestrator.Orchestrator
	store   *memory.ProjectStore
	globals *memory.GlobalContextLog
	gen     *scriptedGenerator
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	gen := &scriptedGenerator{}
	store := memory.NewProjectStore(0)
	globals := memory.NewGlobalContextLog()
	orch := orchestrator.New(store, globals, memory.Transactor{}, chain.NewPhaseChain(nil, gen), orchestrator.Config{
		DefaultModel: "openai/gpt-4o-mini",
	})
	return &harness{orch: orch, store: store, globals: globals, gen: gen}
}

func testIdea() entity.Idea {
	return entity.Idea{
		InitialIdea:            "A lighthouse keeper hears the sea speak.",
		Genre:                  "Fantasy",
		TargetNovelLength:      entity.NovelLengthNovella,
		TargetChapterWordCount: 2000,
		TargetChapterCount:     3,
		CoreThemes:             "grief, memory",
	}
}

func (h *harness) create(t *testing.T) *entity.Project {
	t.Helper()
	p, err := h.orch.CreateProject(context.Background(), orchestrator.CreateProjectRequest{
		Title: "Working Title",
		Idea:  testIdea(),
	})
	require.NoError(t, err)
	return p
}

func (h *harness) load(t *testing.T, id string) *entity.Project {
	t.Helper()
	p, err := h.store.Get(context.Background(), id)
	require.NoError(t, err)
	return p
}

// completeChapter 为游标章节生成规划、正文与审阅
func (h *harness) completeChapter(t *testing.T, id string, n int, recommend bool) {
	t.Helper()
	ctx := context.Background()
	h.gen.push(reply{out: chapterPlanOutput(n)}, reply{out: proseOutput(n, fmt.Sprintf("Tide %d", n))}, reply{out: reviewOutput(n, recommend)})
	require.NoError(t, h.orch.GenerateChapterPlan(ctx, id, n, ""))
	require.NoError(t, h.orch.GenerateChapterProse(ctx, id, n, ""))
	_, err := h.orch.GenerateChapterReview(ctx, id, n, "")
	require.NoError(t, err)
}

func (h *harness) planned(t *testing.T) *entity.Project {
	t.Helper()
	p := h.create(t)
	h.gen.push(reply{out: initialPlanOutput})
	require.NoError(t, h.orch.GenerateInitialPlan(context.Background(), p.ID, ""))
	return h.load(t, p.ID)
}

func errorEntries(p *entity.Project) []string {
	var out []string
	for _, e := range p.SystemLog {
		if strings.HasPrefix(e.Message, entity.ErrorLogPrefix) {
			out = append(out, e.Message)
		}
	}
	return out
}
