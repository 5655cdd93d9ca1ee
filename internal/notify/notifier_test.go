package notify

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingNotifier struct {
	sent []Notification
	err  error
}

func (r *recordingNotifier) Send(_ context.Context, n Notification) error {
	r.sent = append(r.sent, n)
	return r.err
}

func TestMultiNotifier_DeliversToAllAndJoinsErrors(t *testing.T) {
	failing := &recordingNotifier{err: errors.New("offline")}
	ok := &recordingNotifier{}
	m := NewMultiNotifier(failing, ok)

	err := m.Send(context.Background(), Notification{Level: LevelInfo, Title: "hi"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "offline")
	assert.Len(t, ok.sent, 1)
}

func TestBarkNotifier_Send(t *testing.T) {
	var gotQuery map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		gotQuery = map[string]string{
			"title": r.URL.Query().Get("title"),
			"body":  r.URL.Query().Get("body"),
			"level": r.URL.Query().Get("level"),
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	b, err := NewBarkNotifier(srv.URL + "/key/")
	require.NoError(t, err)
	require.NoError(t, b.Send(context.Background(), Notification{Level: LevelError, Title: "Task failed", Body: "exit 1"}))

	assert.Equal(t, "Task failed", gotQuery["title"])
	assert.Equal(t, "exit 1", gotQuery["body"])
	assert.Equal(t, "timeSensitive", gotQuery["level"])
}

func TestBarkNotifier_ErrorStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	b, err := NewBarkNotifier(srv.URL)
	require.NoError(t, err)
	assert.Error(t, b.Send(context.Background(), Notification{Title: "x"}))

	_, err = NewBarkNotifier("")
	assert.Error(t, err)
}
