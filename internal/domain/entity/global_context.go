package entity

import (
	"fmt"
	"strings"
	"time"
)

// GlobalContextType 跨项目上下文元素类型
type GlobalContextType string

const (
	GlobalContextCharacter   GlobalContextType = "characterName"
	GlobalContextCoreConcept GlobalContextType = "coreConcept"
	GlobalContextKeyTrope    GlobalContextType = "keyTrope"
	GlobalContextSetting     GlobalContextType = "setting"
)

// ManualProjectID 手动添加条目的项目标识
const ManualProjectID = "manual"

// EmptyGlobalContext 无条目时的提示文本
const EmptyGlobalContext = "No previous creative elements logged."

// GlobalContextEntry 跨项目上下文条目，用于在新项目中避免重复
type GlobalContextEntry struct {
	ID          string            `json:"id" gorm:"type:varchar(64);primaryKey"`
	ProjectID   string            `json:"projectId" gorm:"type:varchar(64);index;not null"`
	ProjectName string            `json:"projectName" gorm:"type:varchar(255)"`
	Type        GlobalContextType `json:"type" gorm:"type:varchar(32);not null"`
	Element     string            `json:"element" gorm:"type:text;not null"`
	Role        string            `json:"role,omitempty" gorm:"type:varchar(255)"`
	Archetype   string            `json:"archetype,omitempty" gorm:"type:varchar(255)"`
	CreatedAt   time.Time         `json:"createdAt" gorm:"autoCreateTime"`
}

// TableName 指定表名
func (GlobalContextEntry) TableName() string {
	return "global_context_entries"
}

// IsValidGlobalContextType 校验元素类型
func IsValidGlobalContextType(t GlobalContextType) bool {
	switch t {
	case GlobalContextCharacter, GlobalContextCoreConcept, GlobalContextKeyTrope, GlobalContextSetting:
		return true
	}
	return false
}

// RenderGlobalContext 按项目分组渲染为提示词文本，保持首次出现顺序
func RenderGlobalContext(entries []GlobalContextEntry) string {
	if len(entries) == 0 {
		return EmptyGlobalContext
	}

	var order []string
	groups := make(map[string][]GlobalContextEntry)
	for _, e := range entries {
		key := fmt.Sprintf("From Project: %q", e.ProjectName)
		if e.ProjectID == ManualProjectID {
			key = "Manually Added Entries"
		}
		if _, ok := groups[key]; !ok {
			order = append(order, key)
		}
		groups[key] = append(groups[key], e)
	}

	var b strings.Builder
	for _, key := range order {
		b.WriteString(key)
		b.WriteString(":\n")
		group := groups[key]
		for _, t := range []GlobalContextType{GlobalContextCharacter, GlobalContextCoreConcept, GlobalContextKeyTrope, GlobalContextSetting} {
			for _, e := range group {
				if e.Type != t {
					continue
				}
				b.WriteString(renderGlobalContextLine(e))
				b.WriteString("\n")
			}
		}
		b.WriteString("\n")
	}
	return strings.TrimSpace(b.String())
}

func renderGlobalContextLine(e GlobalContextEntry) string {
	switch e.Type {
	case GlobalContextCharacter:
		role := e.Role
		if role == "" {
			role = "Unknown Role"
		}
		return fmt.Sprintf("  - Character: %s (%s)", e.Element, role)
	case GlobalContextCoreConcept:
		return "  - Core Concept: " + e.Element
	case GlobalContextKeyTrope:
		return "  - Key Trope: " + e.Element
	default:
		return "  - Setting: " + e.Element
	}
}
