// Package prompt 管理生成流程的提示词模板与组装
package prompt

import (
	"embed"
	"fmt"
	"strings"
	"sync"

	einoprompt "github.com/cloudwego/eino/components/prompt"
	"github.com/cloudwego/eino/schema"
)

//go:embed templates/*.txt
var templatesFS embed.FS

type PromptID string

const (
	PromptInitialPlanV1   PromptID = "initial_plan_v1"
	PromptChapterPlanV1   PromptID = "chapter_plan_v1"
	PromptChapterProseV1  PromptID = "chapter_prose_v1"
	PromptChapterReviewV1 PromptID = "chapter_review_v1"
	PromptIdeaSparkV1     PromptID = "idea_spark_v1"
)

// layout 每个提示词的 system / user 消息由若干模板片段按顺序拼接
type layout struct {
	system []string
	user   []string
}

var (
	novelSystemParts = []string{"part_goal", "part_structure_style"}

	layouts = map[PromptID]layout{
		PromptInitialPlanV1: {
			system: novelSystemParts,
			user:   []string{"initial_plan_v1.user", "part_output_quality", "part_user_commands", "initial_plan_v1.closing"},
		},
		PromptChapterPlanV1: {
			system: novelSystemParts,
			user:   []string{"chapter_plan_v1.user", "part_output_quality", "part_user_commands", "chapter_plan_v1.closing"},
		},
		PromptChapterProseV1: {
			system: novelSystemParts,
			user:   []string{"chapter_prose_v1.user", "part_output_quality", "part_user_commands", "chapter_prose_v1.closing"},
		},
		PromptChapterReviewV1: {
			system: novelSystemParts,
			user:   []string{"chapter_review_v1.user", "part_output_quality", "part_user_commands", "chapter_review_v1.closing"},
		},
		PromptIdeaSparkV1: {
			system: []string{"idea_spark_v1.system"},
			user:   []string{"idea_spark_v1.user"},
		},
	}
)

type Registry struct {
	mu    sync.RWMutex
	cache map[PromptID]einoprompt.ChatTemplate
}

func NewRegistry() *Registry {
	return &Registry{
		cache: make(map[PromptID]einoprompt.ChatTemplate),
	}
}

// ChatTemplate 返回编译好的模板；模板使用 Go template 语法，
// 提示词正文中大量出现的 `{ ... }` 结构化示例因此无需转义
func (r *Registry) ChatTemplate(id PromptID) (einoprompt.ChatTemplate, error) {
	if r == nil {
		return nil, fmt.Errorf("prompt registry is nil")
	}

	r.mu.RLock()
	if tpl, ok := r.cache[id]; ok {
		r.mu.RUnlock()
		return tpl, nil
	}
	r.mu.RUnlock()

	r.mu.Lock()
	defer r.mu.Unlock()
	if tpl, ok := r.cache[id]; ok {
		return tpl, nil
	}

	l, ok := layouts[id]
	if !ok {
		return nil, fmt.Errorf("unknown prompt id: %s", id)
	}
	system, err := joinParts(l.system)
	if err != nil {
		return nil, err
	}
	user, err := joinParts(l.user)
	if err != nil {
		return nil, err
	}

	tpl := einoprompt.FromMessages(
		schema.GoTemplate,
		schema.SystemMessage(system),
		schema.UserMessage(user),
	)
	r.cache[id] = tpl
	return tpl, nil
}

func joinParts(names []string) (string, error) {
	parts := make([]string, 0, len(names))
	for _, name := range names {
		text, err := readEmbeddedText("templates/" + name + ".txt")
		if err != nil {
			return "", fmt.Errorf("read prompt part %s: %w", name, err)
		}
		parts = append(parts, text)
	}
	return strings.Join(parts, "\n\n"), nil
}

func readEmbeddedText(path string) (string, error) {
	b, err := templatesFS.ReadFile(path)
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(string(b)), nil
}
