package prompt_test

import (
	"context"
	"strings"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/domain/entity"
	wfmodel "z-novel-forge/internal/workflow/model"
	"z-novel-forge/internal/workflow/prompt"
)

func render(t *testing.T, a *prompt.Assembler, p *prompt.Prompt) (string, string) {
	t.Helper()
	msgs, err := a.Render(context.Background(), p)
	require.NoError(t, err)
	require.Len(t, msgs, 2)
	assert.Equal(t, schema.System, msgs[0].Role)
	assert.Equal(t, schema.User, msgs[1].Role)
	for _, m := range msgs {
		assert.NotContains(t, m.Content, "<no value>")
		assert.NotContains(t, m.Content, "{{")
	}
	return msgs[0].Content, msgs[1].Content
}

func testIdea() entity.Idea {
	idea := entity.Idea{
		InitialIdea:        "A lighthouse keeper hears the sea speak.",
		Genre:              "Fantasy",
		TargetNovelLength:  entity.NovelLengthNovella,
		LiteraryInfluences: "Le Guin",
	}
	idea.ApplyDefaults(2000)
	idea.TargetChapterCount = 3
	return idea
}

func TestAssembler_InitialPlan(t *testing.T) {
	a := prompt.NewAssembler(nil, 0, 0)
	p := a.InitialPlan(wfmodel.InitialPlanInput{
		Idea:    testIdea(),
		Sources: []entity.SourceDataFile{{Name: "notes.txt", Content: strings.Repeat("x", 5000)}},
	})
	assert.False(t, p.WantsJSON)

	system, user := render(t, a, p)
	assert.Contains(t, system, "2000")
	assert.Contains(t, user, "A lighthouse keeper hears the sea speak.")
	assert.Contains(t, user, "--- Source File: notes.txt ---")
	assert.Contains(t, user, "Phase 1: Concept & Premise Development")
	assert.Contains(t, user, entity.EmptyGlobalContext)
	assert.Contains(t, user, "Stated Literary Influences: Le Guin")
	assert.NotContains(t, user, strings.Repeat("x", prompt.DefaultSourceCharBudget+1))
	assert.NotContains(t, user, "IMPORTANT REWRITE CONTEXT")

	p = a.InitialPlan(wfmodel.InitialPlanInput{Idea: testIdea(), RewriteContext: "Make it darker."})
	_, user = render(t, a, p)
	assert.Contains(t, user, "IMPORTANT REWRITE CONTEXT")
	assert.Contains(t, user, "Make it darker.")
}

func TestAssembler_ChapterPlan(t *testing.T) {
	a := prompt.NewAssembler(nil, 0, 0)

	first := a.ChapterPlan(wfmodel.ChapterPlanInput{
		ProjectTitle:       "The Salt Door",
		ChapterNumber:      1,
		OverallPlotOutline: "Three movements.",
		TargetWordCount:    2000,
	})
	_, user := render(t, a, first)
	assert.Contains(t, user, "Initiating Hyper-Detailed Planning for Chapter 1.")
	assert.Contains(t, user, "This is the first chapter")
	assert.Contains(t, user, "No context logged yet.")
	assert.NotContains(t, user, "being REVISED")

	second := a.ChapterPlan(wfmodel.ChapterPlanInput{
		ProjectTitle:       "The Salt Door",
		ChapterNumber:      2,
		OverallPlotOutline: "Three movements.",
		OutlineSynopsis:    "Mara trades a memory.",
		ContinuityLog:      "Seed.",
		PreviousReview:     "Chapter 1 rushed the ending.",
		RevisionFeedback:   "Slow it down.",
		TargetWordCount:    2000,
	})
	_, user = render(t, a, second)
	assert.Contains(t, user, "<previous_chapter_review>")
	assert.Contains(t, user, "Chapter 1 rushed the ending.")
	assert.Contains(t, user, "being REVISED")
	assert.Contains(t, user, "Slow it down.")
	assert.Contains(t, user, "Mara trades a memory.")
}

func TestAssembler_ChapterProse(t *testing.T) {
	a := prompt.NewAssembler(nil, 0, 0)
	in := wfmodel.ChapterProseInput{ProjectTitle: "The Salt Door", ChapterNumber: 2, Plan: "The plan.", TargetWordCount: 2000}

	_, user := render(t, a, a.ChapterProse(in, "Low Water"))
	assert.Contains(t, user, `The working title for this chapter is "Low Water". Ensure the chapter header is formatted as '## Chapter 2: Low Water'.`)
	assert.Contains(t, user, "The plan.")

	_, user = render(t, a, a.ChapterProse(in, ""))
	assert.Contains(t, user, "'## Chapter 2: [Title]'")
}

func TestAssembler_ChapterReview(t *testing.T) {
	a := prompt.NewAssembler(nil, 0, 0)
	in := wfmodel.ChapterReviewInput{ProjectTitle: "The Salt Door", ChapterNumber: 3, Plan: "Plan.", Prose: "Prose.", TargetWordCount: 2000, IsFinalChapter: true}

	_, user := render(t, a, a.ChapterReview(in))
	assert.Contains(t, user, "AUTO_REVISION_RECOMMENDED")
	assert.Contains(t, user, "This is the final chapter")
	assert.Contains(t, user, "No source data to check against.")

	in.IsFinalChapter = false
	in.RevisionFeedback = "Focus on Ives."
	_, user = render(t, a, a.ChapterReview(in))
	assert.Contains(t, user, "Chapter 4")
	assert.Contains(t, user, "Focus on Ives.")
}

func TestAssembler_IdeaSpark(t *testing.T) {
	a := prompt.NewAssembler(nil, 0, 0)

	p := a.IdeaSpark(wfmodel.IdeaSparkInput{})
	assert.True(t, p.WantsJSON)
	_, user := render(t, a, p)
	assert.Contains(t, user, "No initial idea or source data provided.")

	p = a.IdeaSpark(wfmodel.IdeaSparkInput{
		Idea:    "Tides that talk",
		Sources: []entity.SourceDataFile{{Name: "world.md", Content: "Fog everywhere."}},
	})
	_, user = render(t, a, p)
	assert.Contains(t, user, `An initial idea: "Tides that talk"`)
	assert.Contains(t, user, "--- File: world.md ---")
}

func TestSourceSummary(t *testing.T) {
	assert.Empty(t, prompt.SourceSummary(nil, 10))

	out := prompt.SourceSummary([]entity.SourceDataFile{
		{Name: "a.txt", Content: "海风吹过灯塔的每一层"},
		{Name: "b.txt", Content: "short"},
	}, 4)
	assert.Equal(t, "--- Source File: a.txt ---\n海风吹过\n\n--- Source File: b.txt ---\nshor", out)
}
