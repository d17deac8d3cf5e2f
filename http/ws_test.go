package http

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dialForm(t *testing.T) *websocket.Conn {
	t.Helper()
	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)

	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/form"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	require.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)
	t.Cleanup(func() { conn.Close() })
	require.NoError(t, conn.SetReadDeadline(time.Now().Add(5*time.Second)))
	return conn
}

func exchange(t *testing.T, conn *websocket.Conn, msg any) FormResult {
	t.Helper()
	require.NoError(t, conn.WriteJSON(msg))
	var result FormResult
	require.NoError(t, conn.ReadJSON(&result))
	return result
}

func TestFormSocketRerunsOnChange(t *testing.T) {
	conn := dialForm(t)

	msg := FormMessage{Form: formBenefit, ProfileRequest: DefaultProfileRequest(), Benefit: "Aguinaldo"}
	first := exchange(t, conn, msg)
	require.Equal(t, http.StatusOK, first.Status, first.Error)
	require.NotNil(t, first.Benefit)
	assert.Equal(t, 1, first.Seq)
	assert.InDelta(t, 0.7310585786, first.Benefit.Probability, 1e-9)

	msg.Schooling = 4
	second := exchange(t, conn, msg)
	require.Equal(t, http.StatusOK, second.Status, second.Error)
	assert.Equal(t, 2, second.Seq)
	assert.Less(t, second.Benefit.Probability, first.Benefit.Probability)
	assert.Equal(t, 0, second.Benefit.Label)
}

func TestFormSocketWage(t *testing.T) {
	conn := dialForm(t)

	result := exchange(t, conn, FormMessage{Form: formWage, ProfileRequest: DefaultProfileRequest(), Disability: "Discapacidad Visual"})
	require.Equal(t, http.StatusOK, result.Status, result.Error)
	require.NotNil(t, result.Wage)
	assert.InDelta(t, 29.964100047, result.Wage.WithDisability, 1e-6)
	assert.InDelta(t, 36.598234444, result.Wage.WithoutDisability, 1e-6)
}

func TestFormSocketReportsErrors(t *testing.T) {
	conn := dialForm(t)

	profile := DefaultProfileRequest()
	profile.Age = 5
	result := exchange(t, conn, FormMessage{Form: formBenefit, ProfileRequest: profile, Benefit: "Aguinaldo"})
	assert.Equal(t, http.StatusBadRequest, result.Status)
	assert.Contains(t, result.Fields, "edad")

	result = exchange(t, conn, FormMessage{Form: formWage, ProfileRequest: DefaultProfileRequest(), Disability: "Discapacidad Auditiva"})
	assert.Equal(t, http.StatusServiceUnavailable, result.Status)
	assert.NotEmpty(t, result.Error)

	result = exchange(t, conn, FormMessage{Form: "chart", ProfileRequest: DefaultProfileRequest()})
	assert.Equal(t, http.StatusBadRequest, result.Status)

	require.NoError(t, conn.WriteMessage(websocket.TextMessage, []byte("{")))
	var bad FormResult
	require.NoError(t, conn.ReadJSON(&bad))
	assert.Equal(t, http.StatusBadRequest, bad.Status)
	assert.Equal(t, 4, bad.Seq)
}

func TestOriginChecker(t *testing.T) {
	check := originChecker([]string{"http://allowed.example"})

	req := httptest.NewRequest(http.MethodGet, "http://app.local/api/ws/form", nil)
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://allowed.example")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://app.local")
	assert.True(t, check(req))

	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))
}

func TestOriginCheckerIgnoresWildcard(t *testing.T) {
	check := originChecker([]string{"*"})

	req := httptest.NewRequest(http.MethodGet, "http://app.local/api/ws/form", nil)
	req.Header.Set("Origin", "http://evil.example")
	assert.False(t, check(req))

	req.Header.Set("Origin", "https://app.local")
	assert.True(t, check(req))
}

func TestFormSocketRejectsForeignOriginByDefault(t *testing.T) {
	env := newTestEnv(t)
	server := httptest.NewServer(env.handler)
	t.Cleanup(server.Close)
	url := "ws" + strings.TrimPrefix(server.URL, "http") + "/api/ws/form"

	header := http.Header{"Origin": []string{"http://evil.example"}}
	conn, resp, err := websocket.DefaultDialer.Dial(url, header)
	if conn != nil {
		conn.Close()
	}
	require.ErrorIs(t, err, websocket.ErrBadHandshake)
	assert.Equal(t, http.StatusForbidden, resp.StatusCode)

	header.Set("Origin", server.URL)
	conn, _, err = websocket.DefaultDialer.Dial(url, header)
	require.NoError(t, err)
	conn.Close()
}
