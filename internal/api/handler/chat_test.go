package handler

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/careerlane_server/internal/model"
	"github.com/qs3c/careerlane_server/internal/model/dto"
	"github.com/qs3c/careerlane_server/internal/pkg/response"
	"github.com/qs3c/careerlane_server/internal/testutil"
)

func TestChatHandler_CreateAndList(t *testing.T) {
	env := setupEnv(t)
	user := seeker(t, env)
	active := testutil.TestJobPosting(t, env.DB, testutil.Enriched(testutil.Vec(testDims, 1)))
	pending := testutil.TestJobPosting(t, env.DB)

	router := newRouter(asUser(user.ID, model.RoleSeeker))
	router.POST("/chat/sessions", env.Chat.Create)
	router.GET("/chat/sessions", env.Chat.List)

	// 不关联职位，空 body
	resp := parseResponse(t, doJSON(router, "POST", "/chat/sessions", nil))
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	assert.Equal(t, model.SessionStatusAI, dataMap(t, resp)["status"])

	resp = parseResponse(t, doJSON(router, "POST", "/chat/sessions", dto.CreateSessionRequest{JobID: active.ID}))
	require.Equal(t, response.CodeSuccess, resp.Code, resp.Message)
	data := dataMap(t, resp)
	assert.Equal(t, active.ID, data["job_id"])
	assert.EqualValues(t, 1, data["message_count"])

	// 未激活的职位不能开聊
	resp = parseResponse(t, doJSON(router, "POST", "/chat/sessions", dto.CreateSessionRequest{JobID: pending.ID}))
	assert.Equal(t, response.CodeResourceNotFound, resp.Code)

	resp = parseResponse(t, doJSON(router, "GET", "/chat/sessions", nil))
	require.Equal(t, response.CodeSuccess, resp.Code)
	assert.Len(t, resp.Data, 2)
}

func TestChatHandler_History(t *testing.T) {
	env := setupEnv(t)
	owner := seeker(t, env)
	other := seeker(t, env)

	open := testutil.TestSession(t, env.DB, owner.ID, model.SessionStatusAI)
	testutil.TestMessages(t, env.DB, open, model.MessageRoleUser, "m1", "m2", "m3")
	closed := testutil.TestSession(t, env.DB, owner.ID, model.SessionStatusClosed)
	testutil.TestMessages(t, env.DB, closed, model.MessageRoleUser, "old")

	tests := []struct {
		name       string
		userID     string
		path       string
		wantCode   int
		wantStatus string
		wantLen    int
	}{
		{"owner", owner.ID, "/chat/sessions/" + open.ID + "/history", response.CodeSuccess, model.SessionStatusAI, 3},
		{"owner with count", owner.ID, "/chat/sessions/" + open.ID + "/history?count=2", response.CodeSuccess, model.SessionStatusAI, 2},
		{"closed session stays readable", owner.ID, "/chat/sessions/" + closed.ID + "/history", response.CodeSuccess, model.SessionStatusClosed, 1},
		{"other user", other.ID, "/chat/sessions/" + open.ID + "/history", response.CodePermissionDenied, "", 0},
		{"unknown session", owner.ID, "/chat/sessions/00000000-0000-0000-0000-000000000000/history", response.CodeResourceNotFound, "", 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			router := newRouter(asUser(tt.userID, model.RoleSeeker))
			router.GET("/chat/sessions/:id/history", env.Chat.History)

			resp := parseResponse(t, doJSON(router, "GET", tt.path, nil))
			require.Equal(t, tt.wantCode, resp.Code, resp.Message)
			if tt.wantCode != response.CodeSuccess {
				return
			}
			data := dataMap(t, resp)
			assert.Equal(t, tt.wantStatus, data["status"])
			assert.Len(t, data["messages"], tt.wantLen)
		})
	}
}
