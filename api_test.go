package main

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func doJSON(t *testing.T, r *gin.Engine, method, path, token, body string) (*httptest.ResponseRecorder, map[string]json.RawMessage) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)

	out := map[string]json.RawMessage{}
	if w.Body.Len() > 0 {
		require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out))
	}
	return w, out
}

func userToken(t *testing.T, user string) string {
	t.Helper()
	tk, err := IssueToken(DefConfig.JWTSecret, user, time.Hour)
	require.NoError(t, err)
	return tk
}

func TestAPIRejectsMissingToken(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)

	w, _ := doJSON(t, r, http.MethodGet, "/api/presence", "", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w, _ = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", "garbage", "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestPresenceEndpoint(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)

	a := newTestClient(n, "alice")
	n.Register(a)
	drainFrames(a)

	w, out := doJSON(t, r, http.MethodGet, "/api/presence", userToken(t, "bob"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var users []string
	require.NoError(t, json.Unmarshal(out["users"], &users))
	assert.Equal(t, []string{"alice"}, users)
}

func TestUnreadCountPollPath(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)

	_, err := n.Dispatch(context.Background(), "bob", "appointment confirmed", "10:00", CategoryAppointment)
	require.NoError(t, err)

	w, out := doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", userToken(t, "bob"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "1", string(out["count"]))

	// another user's poll is unaffected
	w, out = doJSON(t, r, http.MethodGet, "/api/notifications/unread-count", userToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "0", string(out["count"]))
}

func TestConversationEndpoints(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)
	ctx := context.Background()
	base := time.Now().Add(-time.Minute)

	require.NoError(t, n.messages.Append(ctx, storedMessage("bob", "alice", "hi", base)))
	require.NoError(t, n.messages.Append(ctx, storedMessage("bob", "alice", "you there?", base.Add(time.Second))))

	w, out := doJSON(t, r, http.MethodGet, "/api/messages/bob", userToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var msgs []Message
	require.NoError(t, json.Unmarshal(out["messages"], &msgs))
	require.Len(t, msgs, 2)
	assert.Equal(t, "hi", msgs[0].Content)

	w, out = doJSON(t, r, http.MethodGet, "/api/conversations", userToken(t, "alice"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var sums []ConversationSummary
	require.NoError(t, json.Unmarshal(out["conversations"], &sums))
	require.Len(t, sums, 1)
	assert.EqualValues(t, 2, sums[0].Unread)

	w, out = doJSON(t, r, http.MethodPost, "/api/messages/read", userToken(t, "alice"), `{"senderId":"bob"}`)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "2", string(out["updated"]))
}

func TestNotificationEndpoints(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)

	nf, err := n.Dispatch(context.Background(), "bob", "reminder", "checkup", CategoryReminder)
	require.NoError(t, err)

	w, out := doJSON(t, r, http.MethodGet, "/api/notifications", userToken(t, "bob"), "")
	require.Equal(t, http.StatusOK, w.Code)
	var ns []Notification
	require.NoError(t, json.Unmarshal(out["notifications"], &ns))
	require.Len(t, ns, 1)

	w, _ = doJSON(t, r, http.MethodPost, "/api/notifications/read", userToken(t, "bob"), `{"ids":[]}`)
	require.Equal(t, http.StatusOK, w.Code)

	// deleting as another user fails, as the owner succeeds
	w, _ = doJSON(t, r, http.MethodDelete, "/api/notifications/"+nf.ID, userToken(t, "alice"), "")
	assert.Equal(t, http.StatusNotFound, w.Code)
	w, _ = doJSON(t, r, http.MethodDelete, "/api/notifications/"+nf.ID, userToken(t, "bob"), "")
	assert.Equal(t, http.StatusNoContent, w.Code)

	w, _ = doJSON(t, r, http.MethodDelete, "/api/notifications", userToken(t, "bob"), "")
	assert.Equal(t, http.StatusNoContent, w.Code)
}

func TestDispatchEndpointSigning(t *testing.T) {
	n := newTestNode(t)
	r := newRouter(n)

	body := `{"userId":"bob","title":"appointment confirmed","body":"10:00","category":"appointment"}`
	ts := strconv.FormatInt(time.Now().Unix(), 10)
	sign := SignMD5(DefConfig.DispatchSecret, body, ts)

	path := fmt.Sprintf("/internal/dispatch?sign=%s&ts=%s", sign, ts)
	w, out := doJSON(t, r, http.MethodPost, path, "", body)
	require.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, string(out["id"]))

	// bad signature never dispatches
	path = fmt.Sprintf("/internal/dispatch?sign=%s&ts=%s", "deadbeef", ts)
	w, _ = doJSON(t, r, http.MethodPost, path, "", body)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	// valid signature, invalid payload
	bad := `{"userId":"bob","category":"gossip"}`
	sign = SignMD5(DefConfig.DispatchSecret, bad, ts)
	path = fmt.Sprintf("/internal/dispatch?sign=%s&ts=%s", sign, ts)
	w, _ = doJSON(t, r, http.MethodPost, path, "", bad)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
