package push

import (
	"context"
	"crypto/ecdsa"
	"crypto/elliptic"
	"crypto/rand"
	"crypto/x509"
	"encoding/base64"
	"encoding/json"
	"encoding/pem"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testKeyBase64(t *testing.T) string {
	t.Helper()
	key, err := ecdsa.GenerateKey(elliptic.P256(), rand.Reader)
	require.NoError(t, err)
	der, err := x509.MarshalECPrivateKey(key)
	require.NoError(t, err)
	block := pem.EncodeToMemory(&pem.Block{Type: "EC PRIVATE KEY", Bytes: der})
	return base64.StdEncoding.EncodeToString(block)
}

func newTestClient(t *testing.T, host string) *Client {
	t.Helper()
	c, err := NewClient(Config{
		TeamID:     "TEAM123456",
		KeyID:      "KEY1234567",
		PrivateKey: testKeyBase64(t),
		BundleID:   "com.example.agreet",
		Host:       host,
	}, zap.NewNop())
	require.NoError(t, err)
	return c
}

func TestNewClientBadKey(t *testing.T) {
	_, err := NewClient(Config{PrivateKey: "not-base64!!!"}, zap.NewNop())
	assert.Error(t, err)

	_, err = NewClient(Config{PrivateKey: base64.StdEncoding.EncodeToString([]byte("not a pem"))}, zap.NewNop())
	assert.Error(t, err)
}

func TestSend(t *testing.T) {
	var gotReq *http.Request
	var gotBody apnsPayload
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotReq = r.Clone(context.Background())
		require.NoError(t, json.NewDecoder(r.Body).Decode(&gotBody))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Send(context.Background(), "device-token-1", Notification{
		Title: "Match Found!",
		Body:  "Everyone agreed on Sushi",
		Data:  map[string]string{"session_id": "abc"},
	})
	require.NoError(t, err)

	require.NotNil(t, gotReq)
	assert.Equal(t, "/3/device/device-token-1", gotReq.URL.Path)
	assert.Equal(t, "com.example.agreet", gotReq.Header.Get("apns-topic"))
	assert.Equal(t, "alert", gotReq.Header.Get("apns-push-type"))
	assert.Equal(t, "10", gotReq.Header.Get("apns-priority"))
	assert.True(t, strings.HasPrefix(gotReq.Header.Get("Authorization"), "Bearer "))

	assert.Equal(t, "Match Found!", gotBody.APS.Alert.Title)
	assert.Equal(t, "Everyone agreed on Sushi", gotBody.APS.Alert.Body)
	assert.Equal(t, "default", gotBody.APS.Sound)
	assert.Equal(t, "abc", gotBody.Custom["session_id"])
}

func TestSendBadDeviceToken(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusGone)
		_ = json.NewEncoder(w).Encode(apnsError{Reason: "Unregistered"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Send(context.Background(), "stale-token", Notification{Title: "t", Body: "b"})
	assert.ErrorIs(t, err, ErrBadDeviceToken)
}

func TestSendServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(apnsError{Reason: "InternalServerError"})
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	err := c.Send(context.Background(), "token", Notification{Title: "t", Body: "b"})
	require.Error(t, err)
	assert.NotErrorIs(t, err, ErrBadDeviceToken, "server errors must not invalidate the token")
}

func TestProviderTokenReused(t *testing.T) {
	var tokens []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		tokens = append(tokens, r.Header.Get("Authorization"))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := newTestClient(t, srv.URL)
	require.NoError(t, c.Send(context.Background(), "t1", Notification{Title: "a", Body: "b"}))
	require.NoError(t, c.Send(context.Background(), "t2", Notification{Title: "a", Body: "b"}))
	require.Len(t, tokens, 2)
	assert.Equal(t, tokens[0], tokens[1], "a fresh provider token should be reused")
}
