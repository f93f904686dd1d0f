package parse

import (
	"encoding/json"
	"strings"

	wfmodel "z-novel-forge/internal/workflow/model"
	wfnode "z-novel-forge/internal/workflow/node"
	apperrors "z-novel-forge/pkg/errors"
)

var codeFence = re("(?s)^```(?:json)?\\s*\\n?(.*?)\\n?\\s*```$")

// IdeaSpark 解析灵感建议 JSON，容忍代码围栏与前后多余文本
func IdeaSpark(raw string) (*wfmodel.IdeaSuggestions, error) {
	text := strings.TrimSpace(raw)
	if m := codeFence.FindStringSubmatch(text); m != nil {
		text = strings.TrimSpace(m[1])
	}
	text = wfnode.ExtractJSON(text)

	var out wfmodel.IdeaSuggestions
	if err := json.Unmarshal([]byte(text), &out); err != nil {
		return nil, apperrors.Wrap(err, apperrors.CodeParseFailed,
			"AI returned an invalid JSON format for Idea Spark suggestions. Please try again")
	}
	return &out, nil
}
