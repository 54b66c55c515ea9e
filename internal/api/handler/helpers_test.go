package handler

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/go-redis/redis/v8"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/qs3c/careerlane_server/config"
	"github.com/qs3c/careerlane_server/internal/api/middleware"
	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/pkg/cron"
	"github.com/qs3c/careerlane_server/internal/pkg/jwt"
	"github.com/qs3c/careerlane_server/internal/pkg/lease"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/pkg/scraper"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
	"github.com/qs3c/careerlane_server/internal/repository"
	"github.com/qs3c/careerlane_server/internal/service"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const (
	testDims      = 384
	testJWTSecret = "handler-test-secret"
)

// testEnv 真实的服务层 + SQLite + miniredis，外部 AI 与存储使用 fake
type testEnv struct {
	DB       *gorm.DB
	Redis    *redis.Client
	LLM      *testutil.FakeLLM
	Embedder *testutil.FakeEmbedder
	Storage  *testutil.FakeStorage
	Enqueuer *testutil.FakeEnqueuer
	Source   *testutil.FakeSource
	Hub      *ws.Hub
	Locker   *lease.Locker

	Health  *HealthHandler
	Jobs    *JobHandler
	Users   *UserHandler
	Chat    *ChatHandler
	Sockets *WebSocketHandler
	Admin   *AdminHandler
	Market  *MarketHandler
}

func setupEnv(t *testing.T) *testEnv {
	t.Helper()

	db := testutil.SetupTestDB(t)
	mr, err := miniredis.Run()
	require.NoError(t, err)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() {
		rdb.Close()
		mr.Close()
		testutil.CleanupTestDB(t, db)
	})

	log := zap.NewNop()
	env := &testEnv{
		DB:       db,
		Redis:    rdb,
		LLM:      testutil.NewFakeLLM(),
		Embedder: testutil.NewFakeEmbedder(testDims),
		Storage:  testutil.NewFakeStorage(),
		Enqueuer: &testutil.FakeEnqueuer{},
		Source:   &testutil.FakeSource{SourceName: "pwc"},
		Hub:      ws.NewHub(log),
		Locker:   lease.NewLocker(rdb),
	}

	userRepo := repository.NewUserRepository(db)
	jobRepo := repository.NewJobRepository(db)
	chatRepo := repository.NewChatRepository(db)
	runRepo := repository.NewScrapeRunRepository(db)

	dedup := service.NewDedupService(jobRepo)
	enrich := service.NewEnrichmentService(jobRepo, dedup, env.LLM, env.Embedder, config.EnrichmentConfig{BatchSize: 3}, log)
	ledger := service.NewLedgerService(runRepo, log)
	ingestion := service.NewIngestionService(jobRepo, dedup, enrich, ledger, config.IngestionConfig{}, log)
	sources := service.NewSourceRunner(ingestion, scraper.NewRegistry(env.Source))

	jobService := service.NewJobService(jobRepo, env.Enqueuer, log)
	matchService := service.NewMatchService(userRepo, jobRepo, config.MatchConfig{})
	userService := service.NewUserService(userRepo, env.Embedder, env.Storage, config.ResumeConfig{MaxSize: 1 << 20}, log)
	chatCfg := config.ChatConfig{Greeting: "Hi there!"}
	chatService := service.NewChatService(chatRepo, userRepo, jobRepo, env.LLM, env.Hub, chatCfg, log)
	runner := cron.NewIngestionRunner(env.Locker, sources, config.IngestionConfig{}, log)

	env.Health = NewHealthHandler(db, env.Hub)
	env.Jobs = NewJobHandler(jobService, matchService, log)
	env.Users = NewUserHandler(userService, 1<<20, log)
	env.Chat = NewChatHandler(chatService, log)
	env.Sockets = NewWebSocketHandler(env.Hub, chatService, testJWTSecret, chatCfg, log)
	env.Admin = NewAdminHandler(chatService, jobService, enrich, ledger, sources, runner, log)
	env.Market = NewMarketHandler(service.NewMarketService(jobRepo), log)
	return env
}

// asUser 跳过 token 校验，直接写入身份
func asUser(userID, role string) gin.HandlerFunc {
	return func(c *gin.Context) {
		claims := &jwt.Claims{UserID: userID, Email: userID + "@example.com", Role: role}
		c.Set(middleware.UserIDKey, claims.UserID)
		c.Set(middleware.RoleKey, claims.Role)
		c.Set(middleware.ClaimsKey, claims)
		c.Next()
	}
}

func newRouter(auth gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	if auth != nil {
		router.Use(auth)
	}
	return router
}

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func doJSON(router http.Handler, method, path string, body interface{}) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != nil {
		b, _ := json.Marshal(body)
		reader = bytes.NewReader(b)
	}
	req := httptest.NewRequest(method, path, reader)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

// dataMap 把响应中的 data 解成 map
func dataMap(t *testing.T, resp response.Response) map[string]interface{} {
	t.Helper()
	data, ok := resp.Data.(map[string]interface{})
	require.True(t, ok, "data is %T", resp.Data)
	return data
}

func seeker(t *testing.T, env *testEnv, opts ...func(*model.User)) *model.User {
	t.Helper()
	return testutil.TestUser(t, env.DB, opts...)
}
