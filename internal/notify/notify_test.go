package notify

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// botServer answers getMe and records sendMessage forms.
type botServer struct {
	*httptest.Server
	mu         sync.Mutex
	paths      []string
	chatIDs    []string
	texts      []string
	rejectSend bool
}

func newBotServer(t *testing.T) *botServer {
	t.Helper()
	s := &botServer{}
	s.Server = httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseForm())
		s.mu.Lock()
		s.paths = append(s.paths, r.URL.Path)
		s.mu.Unlock()

		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/getMe"):
			_, _ = w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"emabot","username":"emabot_test_bot"}}`))
		case strings.HasSuffix(r.URL.Path, "/sendMessage"):
			if s.rejectSend {
				w.WriteHeader(http.StatusBadRequest)
				_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))
				return
			}
			s.mu.Lock()
			s.chatIDs = append(s.chatIDs, r.PostForm.Get("chat_id"))
			s.texts = append(s.texts, r.PostForm.Get("text"))
			s.mu.Unlock()
			_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":7,"date":1709305200,"chat":{"id":42,"type":"private"}}}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
		}
	}))
	t.Cleanup(s.Close)
	return s
}

func (s *botServer) endpoint() string {
	return s.URL + "/bot%s/%s"
}

func TestNewTelegramDisabledIsNoop(t *testing.T) {
	tg, err := NewTelegram("", "123")
	require.NoError(t, err)
	require.Nil(t, tg)
	tg.Notify("ignored")
	tg.NotifyTrade("AAPL", "BUY", 1, 1, "x")
	tg.DailyReport(0, 0)
}

func TestNewTelegramRejectsBadChatID(t *testing.T) {
	srv := newBotServer(t)
	_, err := newTelegram("token", "not-a-chat", srv.endpoint())
	require.Error(t, err)
}

func TestTelegramNotifyTrade(t *testing.T) {
	srv := newBotServer(t)
	tg, err := newTelegram("token", "42", srv.endpoint())
	require.NoError(t, err)
	tg.now = func() time.Time { return time.Date(2024, 3, 1, 15, 15, 0, 0, time.UTC) }

	tg.NotifyTrade("AAPL", "SELL", 1000, 99, "Stop Loss")

	assert.Equal(t, []string{"/bottoken/getMe", "/bottoken/sendMessage"}, srv.paths)
	require.Len(t, srv.texts, 1)
	assert.Equal(t, "42", srv.chatIDs[0])
	assert.Contains(t, srv.texts[0], "Symbol: AAPL")
	assert.Contains(t, srv.texts[0], "Price: $99.00")
	assert.Contains(t, srv.texts[0], "Time: 15:15:00")
}

func TestTelegramDailyReport(t *testing.T) {
	srv := newBotServer(t)
	tg, err := newTelegram("token", "42", srv.endpoint())
	require.NoError(t, err)
	tg.now = func() time.Time { return time.Date(2024, 3, 1, 15, 15, 0, 0, time.UTC) }

	tg.DailyReport(4, -12.5)

	require.Len(t, srv.texts, 1)
	assert.Contains(t, srv.texts[0], "Total Trades: 4")
	assert.Contains(t, srv.texts[0], "Total P&L: $-12.50")
	assert.Contains(t, srv.texts[0], "Date: 2024-03-01")
}

func TestTelegramChannelDestination(t *testing.T) {
	srv := newBotServer(t)
	tg, err := newTelegram("token", "@emabot_alerts", srv.endpoint())
	require.NoError(t, err)

	tg.Notify("hello")

	require.Len(t, srv.chatIDs, 1)
	assert.Equal(t, "@emabot_alerts", srv.chatIDs[0])
}

func TestTelegramNotifyServerErrorIsSwallowed(t *testing.T) {
	srv := newBotServer(t)
	srv.rejectSend = true
	tg, err := newTelegram("token", "42", srv.endpoint())
	require.NoError(t, err)

	tg.Notify("hello")
	assert.Empty(t, srv.texts)
}
