package publish

import (
	"context"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// stubBotAPI spins up a fake Bot API server and a bot wired to it. The
// handler only sees sendPhoto calls; getMe is answered inline.
func stubBotAPI(t *testing.T, onSendPhoto func(r *http.Request)) *tgbotapi.BotAPI {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if strings.HasSuffix(r.URL.Path, "/getMe") {
			w.Write([]byte(`{"ok":true,"result":{"id":1,"is_bot":true,"first_name":"radar","username":"radarbot"}}`))
			return
		}
		if strings.HasSuffix(r.URL.Path, "/sendPhoto") {
			onSendPhoto(r)
			w.Write([]byte(`{"ok":true,"result":{"message_id":7}}`))
			return
		}
		http.NotFound(w, r)
	}))
	t.Cleanup(server.Close)

	bot, err := tgbotapi.NewBotAPIWithClient("test-token", server.URL+"/bot%s/%s", http.DefaultClient)
	require.NoError(t, err)
	return bot
}

func TestTelegramPublish(t *testing.T) {
	t.Parallel()

	var gotCaption, gotParseMode, gotChatID string
	bot := stubBotAPI(t, func(r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		gotCaption = r.FormValue("caption")
		gotParseMode = r.FormValue("parse_mode")
		gotChatID = r.FormValue("chat_id")
		_, header, err := r.FormFile("photo")
		require.NoError(t, err)
		require.NotZero(t, header.Size)
	})

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tg := newTelegramWithBot(bot, -100123, zap.NewNop())
	require.Equal(t, "telegram", tg.Name())
	require.NoError(t, tg.Publish(context.Background(), path, "<b>BTC Dominance</b>\n\n#BTC"))

	require.Equal(t, "<b>BTC Dominance</b>\n\n#BTC", gotCaption)
	require.Equal(t, "HTML", gotParseMode)
	require.Equal(t, "-100123", gotChatID)
}

func TestTelegramClampsCaption(t *testing.T) {
	t.Parallel()

	var gotCaption string
	bot := stubBotAPI(t, func(r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		gotCaption = r.FormValue("caption")
	})

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tg := newTelegramWithBot(bot, 5, zap.NewNop())
	require.NoError(t, tg.Publish(context.Background(), path, strings.Repeat("y", 2000)))

	require.Equal(t, 1024, len([]rune(gotCaption)))
	require.True(t, strings.HasSuffix(gotCaption, "..."))
}

func TestTelegramCancelledContext(t *testing.T) {
	t.Parallel()

	bot := stubBotAPI(t, func(r *http.Request) {
		t.Fatal("sendPhoto must not be reached with a cancelled context")
	})

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	tg := newTelegramWithBot(bot, 5, zap.NewNop())
	err := tg.Publish(ctx, "unused.png", "caption")
	require.ErrorIs(t, err, context.Canceled)
}

func TestNewTelegramRequiresConfig(t *testing.T) {
	t.Parallel()

	_, err := NewTelegram(TelegramConfig{ChatID: 1}, zap.NewNop())
	require.Error(t, err)

	_, err = NewTelegram(TelegramConfig{Token: "tok"}, zap.NewNop())
	require.Error(t, err)
}
