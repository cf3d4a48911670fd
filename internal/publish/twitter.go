package publish

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"html"
	"io"
	"mime/multipart"
	"net/http"
	"os"
	"regexp"

	"github.com/dghubble/oauth1"
	"go.uber.org/zap"

	"github.com/cryptoradar/radarshot/internal/caption"
)

const (
	twitterMaxMediaBytes   = 5 * 1024 * 1024
	twitterMaxTweetLen     = 280
	twitterCompressQuality = 50

	defaultMediaUploadURL = "https://upload.twitter.com/1.1/media/upload.json"
	defaultTweetURL       = "https://api.twitter.com/2/tweets"
)

var htmlTagPattern = regexp.MustCompile(`<[^>]+>`)

// TwitterConfig carries the OAuth 1.0a user-context credentials.
type TwitterConfig struct {
	APIKey       string
	APISecret    string
	AccessToken  string
	AccessSecret string
}

// Twitter publishes artifacts as tweets with attached media. Media goes
// through the v1.1 chunked-free upload endpoint, the tweet itself through
// the v2 endpoint; both share one OAuth1-signing HTTP client.
type Twitter struct {
	client    *http.Client
	logger    *zap.Logger
	uploadURL string
	tweetURL  string
}

// NewTwitter builds an OAuth1-signing client from the four credentials.
func NewTwitter(cfg TwitterConfig, logger *zap.Logger) (*Twitter, error) {
	if cfg.APIKey == "" || cfg.APISecret == "" || cfg.AccessToken == "" || cfg.AccessSecret == "" {
		return nil, errors.New("twitter: all four oauth1 credentials are required")
	}
	oaConfig := oauth1.NewConfig(cfg.APIKey, cfg.APISecret)
	token := oauth1.NewToken(cfg.AccessToken, cfg.AccessSecret)
	return &Twitter{
		client:    oaConfig.Client(oauth1.NoContext, token),
		logger:    logger,
		uploadURL: defaultMediaUploadURL,
		tweetURL:  defaultTweetURL,
	}, nil
}

// Name implements radar.Publisher.
func (t *Twitter) Name() string { return "twitter" }

// Publish uploads the artifact and posts a tweet referencing it. A failed
// media upload degrades to a text-only tweet rather than failing the
// channel outright.
func (t *Twitter) Publish(ctx context.Context, path, text string) error {
	tweet := caption.Clamp(plainText(text), twitterMaxTweetLen)

	mediaID, err := t.uploadMedia(ctx, path)
	if err != nil {
		t.logger.Warn("twitter media upload failed, posting text-only", zap.Error(err))
		mediaID = ""
	}
	return t.postTweet(ctx, tweet, mediaID)
}

func (t *Twitter) uploadMedia(ctx context.Context, path string) (string, error) {
	upload, cleanup, err := ensureUnderLimit(path, twitterMaxMediaBytes, twitterCompressQuality, t.logger)
	if err != nil {
		return "", err
	}
	defer cleanup()

	f, err := os.Open(upload)
	if err != nil {
		return "", fmt.Errorf("open media: %w", err)
	}
	defer f.Close()

	var body bytes.Buffer
	writer := multipart.NewWriter(&body)
	part, err := writer.CreateFormFile("media", "artifact.jpg")
	if err != nil {
		return "", fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, f); err != nil {
		return "", fmt.Errorf("copy media: %w", err)
	}
	if err := writer.Close(); err != nil {
		return "", fmt.Errorf("finish multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.uploadURL, &body)
	if err != nil {
		return "", err
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := t.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("media upload request: %w", err)
	}
	defer resp.Body.Close()

	payload, _ := io.ReadAll(resp.Body)
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("media upload returned %d: %s", resp.StatusCode, payload)
	}

	var parsed struct {
		MediaIDString string `json:"media_id_string"`
	}
	if err := json.Unmarshal(payload, &parsed); err != nil {
		return "", fmt.Errorf("decode media upload response: %w", err)
	}
	if parsed.MediaIDString == "" {
		return "", errors.New("media upload response missing media_id_string")
	}
	return parsed.MediaIDString, nil
}

func (t *Twitter) postTweet(ctx context.Context, text, mediaID string) error {
	payload := map[string]any{"text": text}
	if mediaID != "" {
		payload["media"] = map[string]any{"media_ids": []string{mediaID}}
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("twitter: encode tweet: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.tweetURL, bytes.NewReader(encoded))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return fmt.Errorf("twitter: post tweet: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return fmt.Errorf("twitter: tweet endpoint returned %d: %s", resp.StatusCode, body)
	}
	t.logger.Info("published to twitter", zap.Bool("with_media", mediaID != ""))
	return nil
}

// plainText strips the HTML markup used in Telegram captions so the same
// composed caption can feed a tweet.
func plainText(s string) string {
	return html.UnescapeString(htmlTagPattern.ReplaceAllString(s, ""))
}
