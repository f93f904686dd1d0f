package entity_test

import (
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/domain/entity"
)

var t0 = time.Date(2025, 3, 1, 12, 0, 0, 0, time.UTC)

func newIdea() entity.Idea {
	return entity.Idea{
		InitialIdea:            "A lighthouse keeper hears the sea speak.",
		Genre:                  "Fantasy",
		TargetNovelLength:      entity.NovelLengthNovella,
		TargetChapterWordCount: 2000,
		TargetChapterCount:     3,
	}
}

func TestContinuityLog_AppendOnlyRender(t *testing.T) {
	log := entity.NewContinuityLog("Seed text.")
	assert.False(t, log.Append(1, entity.ContinuityPhasePlan, "   ", t0))
	require.True(t, log.Append(1, entity.ContinuityPhasePlan, "Mara finds the key.", t0))
	require.True(t, log.Append(1, entity.ContinuityPhaseReview, "The key is cursed.", t0.Add(time.Minute)))
	require.True(t, log.Append(1, entity.ContinuityPhaseReplan, "Key now hidden.", t0.Add(2*time.Minute)))

	want := "Seed text.\n\n" +
		"--- Chapter 1 Plan - Key Developments ---\nMara finds the key.\n\n" +
		"--- Chapter 1 Review - Key Developments & Insights from Prose ---\nThe key is cursed.\n\n" +
		"--- Chapter 1 Re-Plan - Key Developments ---\nKey now hidden."
	assert.Equal(t, want, log.Render())
	assert.Equal(t, 3, log.Len())

	// 返回的条目是副本
	entries := log.Entries()
	entries[0].Note = "tampered"
	assert.Equal(t, "Mara finds the key.", log.Entries()[0].Note)
}

func TestContinuityLog_JSON(t *testing.T) {
	log := entity.NewContinuityLog("Seed.")
	log.Append(2, entity.ContinuityPhasePlan, "note", t0)

	data, err := json.Marshal(log)
	require.NoError(t, err)

	var decoded entity.ContinuityLog
	require.NoError(t, json.Unmarshal(data, &decoded))
	assert.Equal(t, log.Render(), decoded.Render())

	t.Run("legacy string", func(t *testing.T) {
		var legacy entity.ContinuityLog
		require.NoError(t, json.Unmarshal([]byte(`"Old free text log"`), &legacy))
		assert.Equal(t, "Old free text log", legacy.Seed())
		assert.Equal(t, 0, legacy.Len())
	})

	t.Run("null", func(t *testing.T) {
		var empty entity.ContinuityLog
		require.NoError(t, json.Unmarshal([]byte(`null`), &empty))
		assert.True(t, empty.IsZero())
	})
}

func TestProject_SystemLogRing(t *testing.T) {
	p := entity.NewProject("p1", "Tide", newIdea(), nil, "gpt-4o-mini", t0)
	for i := 0; i < entity.SystemLogCapacity+10; i++ {
		p.AppendSystemLog(fmt.Sprintf("msg %d", i), t0)
	}
	require.Len(t, p.SystemLog, entity.SystemLogCapacity)
	assert.Equal(t, "msg 10", p.SystemLog[0].Message)
	assert.Equal(t, fmt.Sprintf("msg %d", entity.SystemLogCapacity+9), p.SystemLog[len(p.SystemLog)-1].Message)

	p.AppendErrorLog("boom", t0)
	p.AppendErrorLog("ERROR: already prefixed", t0)
	assert.Equal(t, "ERROR: boom", p.SystemLog[len(p.SystemLog)-2].Message)
	assert.Equal(t, "ERROR: already prefixed", p.SystemLog[len(p.SystemLog)-1].Message)
	assert.Equal(t, 2, p.CountErrorLogs())
}

func TestNewProject_Seeds(t *testing.T) {
	p := entity.NewProject("p1", "Tide", newIdea(), nil, "m", t0)
	assert.Equal(t, 1, p.CurrentChapterProcessing)
	assert.Equal(t, "Novel Context Log Initiated. Stated Literary Influences: None specified. Initial setup pending.", p.ContinuityText())
	require.Len(t, p.SystemLog, 1)
	assert.Equal(t, `Project "Tide" created.`, p.SystemLog[0].Message)
}

func TestChapter_ClearDownstream(t *testing.T) {
	tl := entity.NewTimeLog(t0, t0.Add(time.Second))
	c := entity.Chapter{
		ChapterNumber: 1, Plan: "plan", Prose: "prose", Review: "review",
		PlanTiming: tl, ProseTiming: tl, ReviewTiming: tl,
		AutoRevisionRecommendedByAI: true, AutoRevisionReasonsFromAI: "slow",
	}

	prose := c.Clone()
	prose.ClearFromProse()
	assert.Equal(t, "plan", prose.Plan)
	assert.Empty(t, prose.Prose)
	assert.Empty(t, prose.Review)
	assert.False(t, prose.AutoRevisionRecommendedByAI)
	assert.Empty(t, prose.AutoRevisionReasonsFromAI)

	plan := c.Clone()
	plan.ClearFromPlan()
	assert.Empty(t, plan.Plan)
	assert.Empty(t, plan.Prose)
	assert.Empty(t, plan.Review)
	assert.Nil(t, plan.PlanTiming)

	// 原对象不受影响
	assert.Equal(t, "review", c.Review)
}

func TestDerivePhase(t *testing.T) {
	p := entity.NewProject("p1", "Tide", newIdea(), nil, "m", t0)
	assert.Equal(t, entity.PhaseSetup, entity.DerivePhase(p))

	p.InitialPlan.OverallPlotOutline = "Outline"
	assert.Equal(t, entity.PhaseChapterPlanning, entity.DerivePhase(p))

	c := p.EnsureChapter(1)
	c.Plan = "plan"
	assert.Equal(t, entity.PhaseChapterWriting, entity.DerivePhase(p))

	c.Prose = "prose"
	assert.Equal(t, entity.PhaseChapterReviewing, entity.DerivePhase(p))

	c.Review = "review"
	assert.Equal(t, entity.PhaseChapterReviewed, entity.DerivePhase(p))

	// 带反馈的新规划已就绪，下一步写正文
	c.IsRevised = true
	c.Prose = ""
	c.Review = ""
	assert.Equal(t, entity.PhaseChapterWriting, entity.DerivePhase(p))

	// 修订中断时规划已被清空
	c.Plan = ""
	assert.Equal(t, entity.PhaseChapterPlanning, entity.DerivePhase(p))

	p.CurrentChapterProcessing = 4
	assert.Equal(t, entity.PhaseCompleted, entity.DerivePhase(p))
}

func TestProject_EnsureChapterKeepsOrder(t *testing.T) {
	p := entity.NewProject("p1", "Tide", newIdea(), nil, "m", t0)
	p.InitialPlan.ChapterOutlines = []entity.ChapterOutline{{ChapterNumber: 2, WorkingTitle: "Low Tide"}}

	p.EnsureChapter(3)
	assert.Equal(t, "Low Tide", p.EnsureChapter(2).Title)
	p.EnsureChapter(1)

	require.Len(t, p.Chapters, 3)
	for i, c := range p.Chapters {
		assert.Equal(t, i+1, c.ChapterNumber)
	}
	assert.Same(t, p.Chapter(2), p.EnsureChapter(2))
}

func TestProject_CloneIsDeep(t *testing.T) {
	p := entity.NewProject("p1", "Tide", newIdea(), nil, "m", t0)
	p.InitialPlan.ChapterOutlines = []entity.ChapterOutline{{ChapterNumber: 1, WorkingTitle: "A", KeyContinuityPoints: []string{"x"}}}
	p.EnsureChapter(1).Plan = "plan"

	cp := p.Clone()
	cp.Chapter(1).Plan = "changed"
	cp.InitialPlan.ChapterOutlines[0].KeyContinuityPoints[0] = "y"
	cp.InitialPlan.ContinuityLog.Append(1, entity.ContinuityPhasePlan, "note", t0)
	cp.AppendSystemLog("only in clone", t0)

	assert.Equal(t, "plan", p.Chapter(1).Plan)
	assert.Equal(t, "x", p.InitialPlan.ChapterOutlines[0].KeyContinuityPoints[0])
	assert.Equal(t, 0, p.InitialPlan.ContinuityLog.Len())
	assert.Len(t, p.SystemLog, 1)
}

func TestInitialSetupPlan_SetWorkingTitle(t *testing.T) {
	plan := &entity.InitialSetupPlan{ChapterOutlines: []entity.ChapterOutline{{ChapterNumber: 1, WorkingTitle: "Old"}}}

	plan.SetWorkingTitle(1, "New", false)
	assert.Equal(t, "New", plan.Outline(1).WorkingTitle)

	plan.SetWorkingTitle(2, "Skipped", false)
	assert.Nil(t, plan.Outline(2))

	plan.SetWorkingTitle(2, "Created", true)
	require.NotNil(t, plan.Outline(2))
	assert.Equal(t, entity.PlaceholderOutlineSynopsis, plan.Outline(2).BriefSynopsis)
}

func TestRenderGlobalContext(t *testing.T) {
	assert.Equal(t, entity.EmptyGlobalContext, entity.RenderGlobalContext(nil))

	out := entity.RenderGlobalContext([]entity.GlobalContextEntry{
		{ProjectID: "a", ProjectName: "Tide", Type: entity.GlobalContextCoreConcept, Element: "Grief"},
		{ProjectID: "a", ProjectName: "Tide", Type: entity.GlobalContextCharacter, Element: "Mara", Role: "Protagonist"},
		{ProjectID: entity.ManualProjectID, Type: entity.GlobalContextSetting, Element: "Salt marsh"},
		{ProjectID: "a", ProjectName: "Tide", Type: entity.GlobalContextCharacter, Element: "Ives"},
	})

	want := "From Project: \"Tide\":\n" +
		"  - Character: Mara (Protagonist)\n" +
		"  - Character: Ives (Unknown Role)\n" +
		"  - Core Concept: Grief\n\n" +
		"Manually Added Entries:\n" +
		"  - Setting: Salt marsh"
	assert.Equal(t, want, out)
}

func TestIdea_ApplyDefaultsAndValidate(t *testing.T) {
	var idea entity.Idea
	idea.ApplyDefaults(0)
	assert.Equal(t, entity.NovelLengthStandard, idea.TargetNovelLength)
	assert.Equal(t, 7500, idea.TargetChapterWordCount)
	assert.Equal(t, 20, idea.TargetChapterCount)
	assert.Equal(t, entity.PointsOfView[1], idea.PointOfView)
	require.NoError(t, idea.Validate())

	idea.TargetChapterCount = 0
	assert.Error(t, idea.Validate())

	idea = entity.Idea{TargetNovelLength: entity.NovelLengthEpic}
	idea.ApplyDefaults(8000)
	assert.Equal(t, 8000, idea.TargetChapterWordCount)
	assert.Equal(t, 30, idea.TargetChapterCount)
}

func TestFormatDurationShort(t *testing.T) {
	cases := map[int64]string{
		0:       "0ms",
		850:     "850ms",
		12_400:  "12s",
		120_000: "2m",
		125_000: "2m 5s",
	}
	for ms, want := range cases {
		assert.Equal(t, want, entity.FormatDurationShort(ms), "ms=%d", ms)
	}
}
