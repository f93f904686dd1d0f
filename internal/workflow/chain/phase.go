// Package chain 将提示词渲染与模型调用编排为 Eino 链
package chain

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/cloudwego/eino/compose"
	"github.com/cloudwego/eino/schema"

	llmctx "z-novel-forge/internal/domain/service"
	workflowport "z-novel-forge/internal/workflow/port"
	workflowprompt "z-novel-forge/internal/workflow/prompt"
	apperrors "z-novel-forge/pkg/errors"
	"z-novel-forge/pkg/logger"
)

// PhaseRequest 一次阶段生成请求
type PhaseRequest struct {
	Operation string
	ProjectID string
	ModelID   string
	Prompt    *workflowprompt.Prompt
}

// PhaseChain 渲染提示词并调用模型，返回原始文本；解析由调用方完成
type PhaseChain struct {
	assembler *workflowprompt.Assembler
	generator workflowport.TextGenerator

	chainOnce sync.Once
	chain     compose.Runnable[*phaseState, string]
	chainErr  error
}

func NewPhaseChain(assembler *workflowprompt.Assembler, generator workflowport.TextGenerator) *PhaseChain {
	if assembler == nil {
		assembler = workflowprompt.NewAssembler(nil, 0, 0)
	}
	return &PhaseChain{assembler: assembler, generator: generator}
}

// Assembler 返回链使用的提示词组装器
func (c *PhaseChain) Assembler() *workflowprompt.Assembler {
	return c.assembler
}

type phaseState struct {
	Req      *PhaseRequest
	Messages []*schema.Message
	Raw      string
	// Err 节点内的原始错误；链运行时会再包一层，这里保留错误码
	Err error
}

// Run 执行一次生成
func (c *PhaseChain) Run(ctx context.Context, req *PhaseRequest) (string, error) {
	if c == nil || c.generator == nil {
		return "", apperrors.New(apperrors.CodeConfiguration, "text generator not configured")
	}
	if req == nil || req.Prompt == nil {
		return "", fmt.Errorf("phase request is nil")
	}

	chain, err := c.getChain()
	if err != nil {
		return "", err
	}

	st := &phaseState{Req: req}
	out, err := chain.Invoke(ctx, st)
	if st.Err != nil {
		return "", st.Err
	}
	if err != nil {
		return "", err
	}
	return out, nil
}

func (c *PhaseChain) getChain() (compose.Runnable[*phaseState, string], error) {
	c.chainOnce.Do(func() {
		c.chain, c.chainErr = c.buildChain(context.Background())
	})
	return c.chain, c.chainErr
}

func (c *PhaseChain) buildChain(ctx context.Context) (compose.Runnable[*phaseState, string], error) {
	chain := compose.NewChain[*phaseState, string]()

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *phaseState) (*phaseState, error) {
			if st == nil || st.Req == nil || st.Req.Prompt == nil {
				return nil, fmt.Errorf("state is nil")
			}
			return st, nil
		}),
		compose.WithNodeName("phase.init"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *phaseState) (*phaseState, error) {
			msgs, err := c.assembler.Render(ctx, st.Req.Prompt)
			if err != nil {
				st.Err = fmt.Errorf("render prompt %s: %w", st.Req.Prompt.ID, err)
				return nil, st.Err
			}
			st.Messages = msgs
			return st, nil
		}),
		compose.WithNodeName("phase.template"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(ctx context.Context, st *phaseState) (*phaseState, error) {
			ctx = llmctx.WithProject(llmctx.WithOperation(ctx, st.Req.Operation), st.Req.ProjectID)
			raw, err := c.generator.Generate(ctx, strings.TrimSpace(st.Req.ModelID), st.Messages, st.Req.Prompt.WantsJSON)
			if err != nil {
				st.Err = err
				return nil, err
			}
			logger.Debug(ctx, "phase generation finished",
				"prompt_id", string(st.Req.Prompt.ID),
				"model", st.Req.ModelID,
				"response_chars", len(raw),
			)
			st.Raw = raw
			return st, nil
		}),
		compose.WithNodeName("phase.generate"),
	)

	chain.AppendLambda(
		compose.InvokableLambda(func(_ context.Context, st *phaseState) (string, error) {
			return st.Raw, nil
		}),
		compose.WithNodeName("phase.finalize"),
	)

	return chain.Compile(ctx)
}
