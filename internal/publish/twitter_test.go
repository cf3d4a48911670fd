package publish

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func testTwitter(uploadURL, tweetURL string) *Twitter {
	return &Twitter{
		client:    http.DefaultClient,
		logger:    zap.NewNop(),
		uploadURL: uploadURL,
		tweetURL:  tweetURL,
	}
}

func TestTwitterPublishWithMedia(t *testing.T) {
	t.Parallel()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, r.ParseMultipartForm(32<<20))
		_, header, err := r.FormFile("media")
		require.NoError(t, err)
		require.Equal(t, "artifact.jpg", header.Filename)
		w.Write([]byte(`{"media_id_string":"424242"}`))
	}))
	defer upload.Close()

	var tweetBody map[string]any
	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, err := io.ReadAll(r.Body)
		require.NoError(t, err)
		require.NoError(t, json.Unmarshal(raw, &tweetBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"1"}}`))
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tw := testTwitter(upload.URL, tweets.URL)
	err := tw.Publish(context.Background(), path, "<b>BTC ETF Tracker</b>\n\n#Bitcoin")
	require.NoError(t, err)

	require.Equal(t, "BTC ETF Tracker\n\n#Bitcoin", tweetBody["text"])
	media := tweetBody["media"].(map[string]any)
	require.Equal(t, []any{"424242"}, media["media_ids"].([]any))
}

func TestTwitterDegradesToTextOnly(t *testing.T) {
	t.Parallel()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "upstream down", http.StatusServiceUnavailable)
	}))
	defer upload.Close()

	var tweetBody map[string]any
	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &tweetBody))
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{"data":{"id":"2"}}`))
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tw := testTwitter(upload.URL, tweets.URL)
	require.NoError(t, tw.Publish(context.Background(), path, "caption"))

	require.Equal(t, "caption", tweetBody["text"])
	_, hasMedia := tweetBody["media"]
	require.False(t, hasMedia, "failed upload must not attach media ids")
}

func TestTwitterTweetEndpointError(t *testing.T) {
	t.Parallel()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"media_id_string":"1"}`))
	}))
	defer upload.Close()

	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "forbidden", http.StatusForbidden)
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tw := testTwitter(upload.URL, tweets.URL)
	err := tw.Publish(context.Background(), path, "caption")
	require.Error(t, err)
	require.Contains(t, err.Error(), "403")
}

func TestTwitterClampsTweetText(t *testing.T) {
	t.Parallel()

	upload := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"media_id_string":"1"}`))
	}))
	defer upload.Close()

	var text string
	tweets := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var body map[string]any
		raw, _ := io.ReadAll(r.Body)
		require.NoError(t, json.Unmarshal(raw, &body))
		text = body["text"].(string)
		w.WriteHeader(http.StatusCreated)
		w.Write([]byte(`{}`))
	}))
	defer tweets.Close()

	path := filepath.Join(t.TempDir(), "shot.png")
	writeNoisePNG(t, path, 40, 40)

	tw := testTwitter(upload.URL, tweets.URL)
	long := strings.Repeat("x", 400)
	require.NoError(t, tw.Publish(context.Background(), path, long))

	require.Equal(t, 280, len([]rune(text)))
	require.True(t, strings.HasSuffix(text, "..."))
}

func TestPlainText(t *testing.T) {
	t.Parallel()

	in := "<b>Fear &amp; Greed</b>\n\n<i>Context: risk-off</i>"
	require.Equal(t, "Fear & Greed\n\nContext: risk-off", plainText(in))
}

func TestNewTwitterRequiresCredentials(t *testing.T) {
	t.Parallel()

	_, err := NewTwitter(TwitterConfig{APIKey: "k", APISecret: "s"}, zap.NewNop())
	require.Error(t, err)

	tw, err := NewTwitter(TwitterConfig{
		APIKey: "k", APISecret: "s", AccessToken: "t", AccessSecret: "ts",
	}, zap.NewNop())
	require.NoError(t, err)
	require.Equal(t, "twitter", tw.Name())
}
