package router_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"github.com/cloudwego/eino/schema"
	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"z-novel-forge/internal/application/quota"
	"z-novel-forge/internal/application/story/autorun"
	"z-novel-forge/internal/application/story/orchestrator"
	"z-novel-forge/internal/config"
	"z-novel-forge/internal/domain/entity"
	"z-novel-forge/internal/infrastructure/persistence/memory"
	"z-novel-forge/internal/interfaces/http/handler"
	"z-novel-forge/internal/interfaces/http/router"
	"z-novel-forge/internal/workflow/chain"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const planOutput = `# The Salt Door

Logline: A lighthouse keeper bargains with the sea.

Synopsis: Mara tends the last lighthouse on a dying coast.

Phase 1: Concept & Premise Development (Verbalize)
The premise centres on grief given a voice.

Phase 2: Character & Setting Development (Verbalize)
Protagonist: { name: "Mara Vell", archetype: "Reluctant Keeper", goal: "Bring her brother home" }
The coast is a ring of failing villages under constant fog.

Phase 3: Overall Plot Outline & Chapter Structure (Verbalize)
Two movements: the bargain and the refusal.
ChapterOutline 1:
workingTitle: "The Speaking Tide"
briefSynopsis: Mara hears the sea for the first time.
keyContinuityPoints:
- The lamp never goes out
ChapterOutline 2:
workingTitle: Low Water
briefSynopsis: Mara refuses the final bargain.
keyContinuityPoints:
- The tide retreats for good
evolvingStoryContextLog: "Novel Context Log Initiated."
`

// cannedGenerator 依次返回预设文本
type cannedGenerator struct {
	mu      sync.Mutex
	replies []string
}

func (g *cannedGenerator) Generate(_ context.Context, _ string, _ []*schema.Message, _ bool) (string, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	if len(g.replies) == 0 {
		return "", errors.New("no reply left")
	}
	out := g.replies[0]
	g.replies = g.replies[1:]
	return out, nil
}

type failingPinger struct{}

func (failingPinger) HealthCheck(context.Context) error { return errors.New("connection refused") }

type env struct {
	engine  *gin.Engine
	gen     *cannedGenerator
	globals *memory.GlobalContextLog
}

func newEnv(t *testing.T, redisPinger handler.Pinger) *env {
	t.Helper()
	gen := &cannedGenerator{}
	store := memory.NewProjectStore(0)
	globals := memory.NewGlobalContextLog()
	usage := memory.NewLLMUsageEventRepository()

	orch := orchestrator.New(store, globals, memory.Transactor{}, chain.NewPhaseChain(nil, gen), orchestrator.Config{
		DefaultModel: "openai/gpt-4o-mini",
	})
	runner := autorun.NewRunner(orch)

	cfg := &config.Config{}
	cfg.App.Env = "test"
	cfg.App.Name = "z-novel-forge"

	r := router.New(cfg, &router.Handlers{
		Health:        handler.NewHealthHandler("test", nil, redisPinger),
		Project:       handler.NewProjectHandler(orch, runner),
		Generation:    handler.NewGenerationHandler(orch, nil),
		AutoRun:       handler.NewAutoRunHandler(context.Background(), runner, 0),
		GlobalContext: handler.NewGlobalContextHandler(globals),
		Usage:         handler.NewUsageHandler(quota.NewChecker(usage, 0)),
	}, nil)
	return &env{engine: r.Engine(), gen: gen, globals: globals}
}

func (e *env) do(t *testing.T, method, path string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.engine.ServeHTTP(w, req)

	var out map[string]any
	if w.Body.Len() > 0 && w.Header().Get("Content-Type") != "" {
		_ = json.Unmarshal(w.Body.Bytes(), &out)
	}
	return w, out
}

func (e *env) createProject(t *testing.T) string {
	t.Helper()
	w, body := e.do(t, http.MethodPost, "/api/v1/projects", map[string]any{
		"title": "Working Title",
		"idea": map[string]any{
			"initialIdea":            "A lighthouse keeper hears the sea speak.",
			"genre":                  "Fantasy",
			"targetNovelLength":      entity.NovelLengthNovella,
			"targetChapterWordCount": 2000,
			"targetChapterCount":     2,
		},
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, string(entity.PhaseSetup), data["phase"])
	return data["id"].(string)
}

func TestHealthEndpoints(t *testing.T) {
	e := newEnv(t, failingPinger{})

	w, _ := e.do(t, http.MethodGet, "/health", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	// redis 不可用只标记 degraded，不影响就绪
	w, body := e.do(t, http.MethodGet, "/ready", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	checks := body["checks"].(map[string]any)
	assert.Equal(t, "disabled", checks["postgres"].(map[string]any)["status"])
	assert.Equal(t, "degraded", checks["redis"].(map[string]any)["status"])
}

func TestProjectLifecycle(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createProject(t)

	w, body := e.do(t, http.MethodGet, "/api/v1/projects", nil)
	require.Equal(t, http.StatusOK, w.Code)
	projects := body["data"].(map[string]any)["projects"].([]any)
	assert.Len(t, projects, 1)
	assert.EqualValues(t, 1, body["meta"].(map[string]any)["total"])

	e.gen.replies = []string{planOutput}
	w, body = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/plan", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.Equal(t, string(entity.PhaseChapterPlanning), data["phase"])
	assert.Equal(t, "The Salt Door", data["title"])

	w, body = e.do(t, http.MethodGet, "/api/v1/projects/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	state := body["data"].(map[string]any)
	assert.EqualValues(t, 1, state["currentChapterProcessing"])
	assert.EqualValues(t, 2, state["targetChapterCount"])

	w, _ = e.do(t, http.MethodGet, "/api/v1/projects/"+id+"/export", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "attachment")
	exported := w.Body.Bytes()

	w, _ = e.do(t, http.MethodDelete, "/api/v1/projects/"+id, nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
	w, body = e.do(t, http.MethodGet, "/api/v1/projects/"+id, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.NotEmpty(t, body["error"])

	req := httptest.NewRequest(http.MethodPost, "/api/v1/projects/import", bytes.NewReader(exported))
	rec := httptest.NewRecorder()
	e.engine.ServeHTTP(rec, req)
	require.Equal(t, http.StatusCreated, rec.Code, rec.Body.String())
}

func TestGenerationPreconditions(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createProject(t)

	// 没有初始规划时不能规划章节
	w, body := e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/chapters/1/plan", nil)
	assert.Equal(t, http.StatusPreconditionFailed, w.Code)
	assert.Contains(t, body["message"], "Initial plan is missing")

	w, _ = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/chapters/0/plan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/projects/missing/plan", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	// 未配置队列时拒绝异步执行
	w, _ = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/plan", map[string]any{"async": true})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, _ = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/chapters/1/revise", map[string]any{})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestGenerationFailureIsLogged(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createProject(t)

	// 无预设回复，网关报错
	w, _ := e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/plan", nil)
	assert.GreaterOrEqual(t, w.Code, http.StatusInternalServerError)

	w, body := e.do(t, http.MethodGet, "/api/v1/projects/"+id+"/state", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.EqualValues(t, 1, body["data"].(map[string]any)["errorLogCount"])
}

func TestAutoRunControl(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createProject(t)

	w, body := e.do(t, http.MethodGet, "/api/v1/projects/"+id+"/auto-run", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, false, body["data"].(map[string]any)["active"])

	// 未启动时单步不执行任何操作
	w, body = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/auto-run/step", nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, string(autorun.ActionNone), body["data"].(map[string]any)["action"])

	w, _ = e.do(t, http.MethodPost, "/api/v1/projects/"+id+"/auto-run/stop", nil)
	assert.Less(t, w.Code, http.StatusInternalServerError)
}

func TestGlobalContext(t *testing.T) {
	e := newEnv(t, nil)

	w, _ := e.do(t, http.MethodPost, "/api/v1/global-context", map[string]any{"type": "bogus", "element": "x"})
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w, body := e.do(t, http.MethodPost, "/api/v1/global-context", map[string]any{
		"type":    entity.GlobalContextCharacter,
		"element": "Mara Vell",
		"role":    "Protagonist",
	})
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	entryID := body["data"].(map[string]any)["id"].(string)

	w, body = e.do(t, http.MethodGet, "/api/v1/global-context", nil)
	require.Equal(t, http.StatusOK, w.Code)
	data := body["data"].(map[string]any)
	assert.Len(t, data["entries"], 1)
	assert.Contains(t, data["rendered"], "Mara Vell")

	w, _ = e.do(t, http.MethodDelete, fmt.Sprintf("/api/v1/global-context/%s", entryID), nil)
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDailyUsage(t *testing.T) {
	e := newEnv(t, nil)
	id := e.createProject(t)

	w, body := e.do(t, http.MethodGet, "/api/v1/projects/"+id+"/usage", nil)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	data := body["data"].(map[string]any)
	assert.EqualValues(t, 0, data["totalTokens"])
	assert.EqualValues(t, 0, data["dailyBudget"])
}
