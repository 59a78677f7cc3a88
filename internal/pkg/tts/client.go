// Package tts synthesizes speech from text over a Google-Translate-style
// HTTP endpoint.
package tts

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/hegedustibor/htgo-tts/voices"

	"github.com/tipcast/tipcast/internal/pkg/env"
)

// chunkSize is the maximum request length the synthesis endpoint accepts.
const chunkSize = 200

// DefaultVoice is used when a streamer has not selected a voice.
const DefaultVoice = voices.EnglishUK

// Client synthesizes speech via HTTP with a bounded timeout.
type Client struct {
	endpoint string
	httpCli  *http.Client
}

// NewClient creates a TTS client for the given endpoint.
func NewClient(endpoint string, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	return &Client{
		endpoint: endpoint,
		httpCli: &http.Client{
			Timeout: timeout,
		},
	}
}

// NewClientFromEnv creates a TTS client from TTS_ENDPOINT and
// TTS_TIMEOUT_SECONDS.
func NewClientFromEnv() *Client {
	endpoint := env.GetEnv("TTS_ENDPOINT", "https://translate.google.com/translate_tts")
	timeout := 15 * time.Second
	if v, err := strconv.Atoi(env.GetEnv("TTS_TIMEOUT_SECONDS", "")); err == nil && v > 0 {
		timeout = time.Duration(v) * time.Second
	}
	return NewClient(endpoint, timeout)
}

// Synthesize renders text to MP3 audio using the given voice code. Long
// texts are fetched in chunks and concatenated.
func (c *Client) Synthesize(ctx context.Context, text, voice string) ([]byte, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return nil, fmt.Errorf("tts: empty text")
	}
	voice = strings.ToLower(strings.TrimSpace(voice))
	if voice == "" {
		voice = DefaultVoice
	}

	runes := []rune(text)
	buf := bytes.NewBuffer(nil)

	for start := 0; start < len(runes); start += chunkSize {
		end := start + chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		audio, err := c.fetchChunk(ctx, string(runes[start:end]), voice)
		if err != nil {
			return nil, err
		}
		buf.Write(audio)
	}

	return buf.Bytes(), nil
}

func (c *Client) fetchChunk(ctx context.Context, text, voice string) ([]byte, error) {
	params := url.Values{}
	params.Set("ie", "UTF-8")
	params.Set("client", "tw-ob")
	params.Set("q", text)
	params.Set("tl", voice)
	params.Set("total", "1")
	params.Set("idx", "0")
	params.Set("textlen", fmt.Sprintf("%d", len([]rune(text))))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpoint+"?"+params.Encode(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", "Mozilla/5.0")

	resp, err := c.httpCli.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("tts: synthesis status %d: %s", resp.StatusCode, string(body))
	}

	return io.ReadAll(resp.Body)
}
