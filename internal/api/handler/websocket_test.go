package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/pkg/jwt"
	"github.com/qs3c/careerlane_server/internal/pkg/ws"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

type frame struct {
	Type string          `json:"type"`
	Data json.RawMessage `json:"data"`
}

// startChatServer WebSocket 与管理端接口挂在同一个测试服务上
func startChatServer(t *testing.T, env *testEnv) *httptest.Server {
	t.Helper()
	router := gin.New()
	router.GET("/sessions/:id/ws", env.Sockets.Handle)

	admin := router.Group("/admin", asUser("admin-1", model.RoleAdmin))
	admin.POST("/sessions/:id/takeover", env.Admin.Takeover)
	admin.POST("/sessions/:id/handback", env.Admin.HandBack)
	admin.POST("/sessions/:id/close", env.Admin.Close)
	admin.POST("/sessions/:id/messages", env.Admin.SendMessage)

	server := httptest.NewServer(router)
	t.Cleanup(server.Close)
	return server
}

func wsURL(server *httptest.Server, sessionID, token string) string {
	u := "ws" + strings.TrimPrefix(server.URL, "http") + "/sessions/" + sessionID + "/ws"
	if token != "" {
		u += "?token=" + token
	}
	return u
}

func tokenFor(t *testing.T, userID string) string {
	t.Helper()
	token, err := jwt.GenerateToken(userID, userID+"@example.com", model.RoleSeeker, testJWTSecret, 1)
	require.NoError(t, err)
	return token
}

func dial(t *testing.T, server *httptest.Server, sessionID, token string) *websocket.Conn {
	t.Helper()
	conn, _, err := websocket.DefaultDialer.Dial(wsURL(server, sessionID, token), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return conn
}

func readFrame(t *testing.T, conn *websocket.Conn) frame {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, data, err := conn.ReadMessage()
	require.NoError(t, err)
	var f frame
	require.NoError(t, json.Unmarshal(data, &f))
	return f
}

func readClose(t *testing.T, conn *websocket.Conn) int {
	t.Helper()
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	for {
		_, _, err := conn.ReadMessage()
		if err == nil {
			continue
		}
		var ce *websocket.CloseError
		require.True(t, errors.As(err, &ce), "unexpected error: %v", err)
		return ce.Code
	}
}

func adminPost(t *testing.T, server *httptest.Server, path, body string) {
	t.Helper()
	resp, err := http.Post(server.URL+path, "application/json", strings.NewReader(body))
	require.NoError(t, err)
	defer resp.Body.Close()
	var out struct {
		Code int `json:"code"`
	}
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&out))
	require.Equal(t, 0, out.Code, path)
}

func TestWebSocket_RejectsBeforeUpgrade(t *testing.T) {
	env := setupEnv(t)
	server := startChatServer(t, env)
	user := seeker(t, env)
	session := testutil.TestSession(t, env.DB, user.ID, model.SessionStatusAI)

	for _, token := range []string{"", "not-a-token"} {
		_, resp, err := websocket.DefaultDialer.Dial(wsURL(server, session.ID, token), nil)
		require.ErrorIs(t, err, websocket.ErrBadHandshake)
		require.NotNil(t, resp)
		assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	}
}

func TestWebSocket_CloseCodes(t *testing.T) {
	env := setupEnv(t)
	server := startChatServer(t, env)
	owner := seeker(t, env)
	other := seeker(t, env)
	open := testutil.TestSession(t, env.DB, owner.ID, model.SessionStatusAI)
	closed := testutil.TestSession(t, env.DB, owner.ID, model.SessionStatusClosed)

	tests := []struct {
		name      string
		sessionID string
		userID    string
		wantCode  int
	}{
		{"not found", "00000000-0000-0000-0000-000000000000", owner.ID, ws.CloseSessionNotFound},
		{"closed", closed.ID, owner.ID, ws.CloseSessionClosed},
		{"foreign", open.ID, other.ID, ws.CloseForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			conn := dial(t, server, tt.sessionID, tokenFor(t, tt.userID))
			assert.Equal(t, tt.wantCode, readClose(t, conn))
		})
	}
	assert.Equal(t, 0, env.Hub.ConnectionCount())
}

func TestWebSocket_Conversation(t *testing.T) {
	env := setupEnv(t)
	server := startChatServer(t, env)
	user := seeker(t, env, testutil.WithResume(resumeText, testutil.Vec(testDims, 1)))
	session := testutil.TestSession(t, env.DB, user.ID, model.SessionStatusAI)
	token := tokenFor(t, user.ID)

	conn := dial(t, server, session.ID, token)

	// 空会话先收到欢迎语
	greeting := readFrame(t, conn)
	assert.Equal(t, ws.FrameAIReply, greeting.Type)
	assert.Contains(t, string(greeting.Data), "Hi there!")
	assert.True(t, env.Hub.IsOnline(session.ID))

	// 心跳
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("__ping__")))
	conn.SetReadDeadline(time.Now().Add(5 * time.Second))
	_, pong, err := conn.ReadMessage()
	require.NoError(t, err)
	assert.Equal(t, "__pong__", string(pong))

	// AI 模式
	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("How do I prepare for the interview?")))
	reply := readFrame(t, conn)
	assert.Equal(t, ws.FrameAIReply, reply.Type)
	assert.Contains(t, string(reply.Data), "Here is some advice.")
	assert.Equal(t, 1, env.LLM.ChatCalls())

	// 接管后消息进入队列，不再调用模型
	adminPost(t, server, "/admin/sessions/"+session.ID+"/takeover", "")
	assert.Equal(t, ws.FrameSystemNotification, readFrame(t, conn).Type)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("Can a person help me?")))
	assert.Equal(t, ws.FrameQueued, readFrame(t, conn).Type)
	assert.Equal(t, 1, env.LLM.ChatCalls())

	adminPost(t, server, "/admin/sessions/"+session.ID+"/messages", `{"content":"Hi, I'm a mentor."}`)
	adminMsg := readFrame(t, conn)
	assert.Equal(t, ws.FrameAdminMessage, adminMsg.Type)
	assert.Contains(t, string(adminMsg.Data), "mentor")

	// 重连时回放历史，新连接顶替旧连接
	conn2 := dial(t, server, session.ID, token)
	replay := readFrame(t, conn2)
	require.Equal(t, ws.FrameHistoryReplay, replay.Type)
	var history struct {
		Status   string `json:"status"`
		Messages []struct {
			Role string `json:"role"`
		} `json:"messages"`
	}
	require.NoError(t, json.Unmarshal(replay.Data, &history))
	assert.Equal(t, model.SessionStatusHuman, history.Status)
	roles := make([]string, 0, len(history.Messages))
	for _, m := range history.Messages {
		roles = append(roles, m.Role)
	}
	assert.Equal(t, []string{"user", "assistant", "system", "user", "admin"}, roles)
	assert.Equal(t, websocket.CloseNormalClosure, readClose(t, conn))

	// 关闭会话：先推送通知，再以 4003 断开
	adminPost(t, server, "/admin/sessions/"+session.ID+"/close", "")
	assert.Equal(t, ws.FrameSystemNotification, readFrame(t, conn2).Type)
	assert.Equal(t, ws.CloseSessionClosed, readClose(t, conn2))
}

func TestWebSocket_AIUnavailable(t *testing.T) {
	env := setupEnv(t)
	env.LLM.ChatErr = errors.New("provider down")
	server := startChatServer(t, env)
	user := seeker(t, env)
	session := testutil.TestSession(t, env.DB, user.ID, model.SessionStatusAI)

	conn := dial(t, server, session.ID, tokenFor(t, user.ID))
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("hello?")))
	assert.Equal(t, ws.FrameAIUnavailable, readFrame(t, conn).Type)

	// 用户消息已保存
	var count int64
	env.DB.Model(&model.ChatMessage{}).Where("session_id = ?", session.ID).Count(&count)
	assert.EqualValues(t, 1, count)
}

func TestWebSocket_MessageTooLong(t *testing.T) {
	env := setupEnv(t)
	server := startChatServer(t, env)
	user := seeker(t, env)
	session := testutil.TestSession(t, env.DB, user.ID, model.SessionStatusAI)

	conn := dial(t, server, session.ID, tokenFor(t, user.ID))
	readFrame(t, conn)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte(strings.Repeat("a", 4001))))
	assert.Equal(t, ws.FrameError, readFrame(t, conn).Type)
	assert.Equal(t, 0, env.LLM.ChatCalls())
}
