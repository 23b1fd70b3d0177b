package milesight

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestRequestToken_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, http.MethodPost, r.Method)
		require.Equal(t, "/oauth/token", r.URL.Path)
		require.NoError(t, r.ParseForm())
		assert.Equal(t, "client_credentials", r.Form.Get("grant_type"))
		assert.Equal(t, "cid", r.Form.Get("client_id"))
		assert.Equal(t, "secret", r.Form.Get("client_secret"))

		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"access_token":"at-1","refresh_token":"rt-1","token_type":"bearer","expires_in":7200}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	token, err := c.RequestToken(context.Background(), srv.URL, "cid", "secret")

	require.NoError(t, err)
	assert.Equal(t, "at-1", token.AccessToken)
	assert.Equal(t, "rt-1", token.RefreshToken)
	assert.Equal(t, int64(7200), token.ExpiresIn)
}

func TestRequestToken_HTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		_, _ = w.Write([]byte(`{"error":"invalid_client"}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	token, err := c.RequestToken(context.Background(), srv.URL, "cid", "bad")

	assert.Nil(t, token)
	assert.Error(t, err)
}

func TestSearchDevices_DataListEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer at-1", r.Header.Get("Authorization"))
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"list":[{"deviceId":101,"sn":"X1","name":"Cooler 1","deviceStatus":"ONLINE"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	devices, err := c.SearchDevices(context.Background(), sess, 1, 100)

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "101", devices[0].ID())
	assert.Equal(t, "X1", devices[0].SN)
}

func TestSearchDevices_DataContentEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"content":[{"deviceId":"202","sn":"X2"}]}}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	devices, err := c.SearchDevices(context.Background(), sess, 1, 100)

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "202", devices[0].ID())
}

func TestSearchDevices_BareArray(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"deviceId":303,"sn":"X3"}]`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	devices, err := c.SearchDevices(context.Background(), sess, 1, 100)

	require.NoError(t, err)
	require.Len(t, devices, 1)
	assert.Equal(t, "303", devices[0].ID())
}

func TestSearchDevices_UnrecognizedShapeIsEmpty(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"totalElements":0}}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	devices, err := c.SearchDevices(context.Background(), sess, 1, 100)

	require.NoError(t, err)
	assert.Empty(t, devices)
}

func TestSearchLogs_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.Equal(t, "/device/v1/logs/search", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"data":{"list":[{"id":9001,"type":"DEVICE_DATA","ts":1700000000000,"data":{"temperature":4.2}}]}}`))
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	logs, err := c.SearchLogs(context.Background(), sess, "X1", 20)

	require.NoError(t, err)
	require.Len(t, logs, 1)
	assert.Equal(t, "9001", logs[0].ID.String())
	assert.Equal(t, int64(1700000000000), logs[0].Timestamp)
}

func TestGetDevice_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	c := NewClient(zap.NewNop())
	sess := &Session{BaseURL: srv.URL, AccessToken: "at-1"}
	rec, err := c.GetDevice(context.Background(), sess, "101")

	assert.Nil(t, rec)
	assert.Error(t, err)
}
