package entity

// Phase 项目当前所处阶段，由数据推导而来，不单独存储
type Phase string

const (
	PhaseSetup            Phase = "SETUP"
	PhaseChapterPlanning  Phase = "CHAPTER_PLANNING"
	PhaseChapterWriting   Phase = "CHAPTER_WRITING"
	PhaseChapterReviewing Phase = "CHAPTER_REVIEWING"
	PhaseChapterReviewed  Phase = "CHAPTER_REVIEWED"
	PhaseCompleted        Phase = "COMPLETED"
)

// DerivePhase 根据初始规划与游标章节的数据推导阶段
func DerivePhase(p *Project) Phase {
	if p == nil || !p.InitialPlan.HasOutline() {
		return PhaseSetup
	}
	if target := p.TargetChapterCount(); target >= 1 && p.CurrentChapterProcessing > target {
		return PhaseCompleted
	}
	c := p.Chapter(p.CurrentChapterProcessing)
	switch {
	case c.NeedsPlan():
		return PhaseChapterPlanning
	case !c.HasProse():
		return PhaseChapterWriting
	case !c.HasReview():
		return PhaseChapterReviewing
	default:
		return PhaseChapterReviewed
	}
}
