package dto

import (
	"strings"

	"z-novel-forge/internal/domain/entity"
	apperrors "z-novel-forge/pkg/errors"
)

// AddGlobalContextRequest 手动添加跨项目上下文条目
type AddGlobalContextRequest struct {
	Type      entity.GlobalContextType `json:"type" binding:"required"`
	Element   string                   `json:"element" binding:"required"`
	Role      string                   `json:"role,omitempty"`
	Archetype string                   `json:"archetype,omitempty"`
}

// ToEntity 校验并转换为实体
func (r *AddGlobalContextRequest) ToEntity() (*entity.GlobalContextEntry, error) {
	if !entity.IsValidGlobalContextType(r.Type) {
		return nil, apperrors.Newf(apperrors.CodeInvalidParam, "invalid global context type %q", r.Type)
	}
	element := strings.TrimSpace(r.Element)
	if element == "" {
		return nil, apperrors.New(apperrors.CodeInvalidParam, "element is required")
	}
	return &entity.GlobalContextEntry{
		ProjectID: entity.ManualProjectID,
		Type:      r.Type,
		Element:   element,
		Role:      strings.TrimSpace(r.Role),
		Archetype: strings.TrimSpace(r.Archetype),
	}, nil
}

// GlobalContextResponse 条目列表与渲染后的提示词文本
type GlobalContextResponse struct {
	Entries  []entity.GlobalContextEntry `json:"entries"`
	Rendered string                      `json:"rendered"`
}
