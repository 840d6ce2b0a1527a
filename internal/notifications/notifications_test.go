package notifications

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSend(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := New(srv.URL, "boat-heater")
	require.NoError(t, c.Send("Firmware staged", "image ready"))
	assert.Equal(t, "boat-heater", got["topic"])
	assert.Equal(t, "Firmware staged", got["title"])
	assert.Equal(t, "image ready", got["message"])
}

func TestSend_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
	}))
	defer srv.Close()

	assert.Error(t, New(srv.URL, "boat-heater").Send("t", "m"))
}

func TestSend_DisabledIsNoop(t *testing.T) {
	c := New("", "")
	assert.Nil(t, c)
	assert.NoError(t, c.Send("t", "m"))
}
