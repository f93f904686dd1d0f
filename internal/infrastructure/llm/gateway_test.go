package llm_test

import (
	"context"
	"errors"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/config"
	"z-novel-forge/internal/infrastructure/llm"
	apperrors "z-novel-forge/pkg/errors"
)

type scriptedModel struct {
	replies []*schema.Message
	errs    []error
	models  []string
	calls   int
}

func (m *scriptedModel) Generate(_ context.Context, _ []*schema.Message, opts ...model.Option) (*schema.Message, error) {
	i := m.calls
	m.calls++
	o := model.GetCommonOptions(&model.Options{}, opts...)
	name := ""
	if o.Model != nil {
		name = *o.Model
	}
	m.models = append(m.models, name)
	var err error
	if i < len(m.errs) {
		err = m.errs[i]
	}
	var reply *schema.Message
	if i < len(m.replies) {
		reply = m.replies[i]
	}
	return reply, err
}

func (m *scriptedModel) Stream(context.Context, []*schema.Message, ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	return nil, errors.New("not implemented")
}

type staticFactory struct {
	model     *scriptedModel
	providers []string
}

func (f *staticFactory) Get(_ context.Context, name string) (model.BaseChatModel, error) {
	f.providers = append(f.providers, name)
	return f.model, nil
}

func testConfig() *config.Config {
	return &config.Config{LLM: config.LLMConfig{
		DefaultProvider: "openai",
		Providers: map[string]config.ProviderConfig{
			"openai":   {APIKey: "sk-test", Model: "gpt-4o-mini"},
			"deepseek": {APIKey: "ds-test", Model: "deepseek-chat"},
			"local":    {},
		},
	}}
}

func TestGateway_Resolve(t *testing.T) {
	g := llm.NewGateway(testConfig(), nil)

	cases := map[string][2]string{
		"deepseek/deepseek-reasoner": {"deepseek", "deepseek-reasoner"},
		"gpt-4o":                     {"openai", "gpt-4o"},
		"meta/llama-3":               {"openai", "meta/llama-3"},
		"":                           {"openai", ""},
	}
	for in, want := range cases {
		provider, name := g.Resolve(in)
		assert.Equal(t, want[0], provider, in)
		assert.Equal(t, want[1], name, in)
	}
}

func TestGateway_MissingCredentialIsConfigurationError(t *testing.T) {
	factory := &staticFactory{model: &scriptedModel{}}
	g := llm.NewGateway(testConfig(), factory)

	_, err := g.Generate(context.Background(), "local/any", nil, false)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))
	assert.Empty(t, factory.providers, "no client should be created without a credential")

	cfg := testConfig()
	cfg.LLM.DefaultProvider = "missing"
	_, err = llm.NewGateway(cfg, factory).Generate(context.Background(), "gpt-4o", nil, false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeConfiguration))
}

func TestGateway_Generate(t *testing.T) {
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("hello", nil)}}
	factory := &staticFactory{model: m}
	g := llm.NewGateway(testConfig(), factory)

	out, err := g.Generate(context.Background(), "deepseek/deepseek-chat", []*schema.Message{schema.UserMessage("hi")}, false)
	require.NoError(t, err)
	assert.Equal(t, "hello", out)
	assert.Equal(t, []string{"deepseek"}, factory.providers)
	assert.Equal(t, []string{"deepseek-chat"}, m.models)
}

func TestGateway_JSONFallback(t *testing.T) {
	m := &scriptedModel{
		errs:    []error{errors.New("400: unknown parameter response_format")},
		replies: []*schema.Message{nil, schema.AssistantMessage(`{"genre":"Fantasy"}`, nil)},
	}
	g := llm.NewGateway(testConfig(), &staticFactory{model: m})

	out, err := g.Generate(context.Background(), "gpt-4o", nil, true)
	require.NoError(t, err)
	assert.Equal(t, `{"genre":"Fantasy"}`, out)
	assert.Equal(t, 2, m.calls)
}

func TestGateway_FailuresAreGatewayErrors(t *testing.T) {
	m := &scriptedModel{errs: []error{errors.New("dial tcp: connection refused")}}
	_, err := llm.NewGateway(testConfig(), &staticFactory{model: m}).Generate(context.Background(), "", nil, true)
	require.Error(t, err)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewayFailed))
	assert.Equal(t, 1, m.calls, "network errors are not retried")

	empty := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("  ", nil)}}
	_, err = llm.NewGateway(testConfig(), &staticFactory{model: empty}).Generate(context.Background(), "", nil, false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewayFailed))
}

func TestGateway_CancelledWhileRateLimited(t *testing.T) {
	cfg := testConfig()
	cfg.LLM.RequestsPerMinute = 1
	m := &scriptedModel{replies: []*schema.Message{schema.AssistantMessage("first", nil)}}
	g := llm.NewGateway(cfg, &staticFactory{model: m})

	_, err := g.Generate(context.Background(), "", nil, false)
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = g.Generate(ctx, "", nil, false)
	assert.True(t, apperrors.HasCode(err, apperrors.CodeGatewayFailed))
	assert.Equal(t, 1, m.calls)
}
