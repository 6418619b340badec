// Package gemini implements the insight generator on the Generative Language
// REST API.
package gemini

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gameprice/scraper/internal/insight"
)

const defaultEndpoint = "https://generativelanguage.googleapis.com/v1beta/models"

// Config parameterizes the client.
type Config struct {
	APIKey   string
	Model    string // default gemini-1.5-flash
	Endpoint string
	Timeout  time.Duration
}

// Client calls the REST API directly; responses are trimmed to a short tip.
type Client struct {
	cfg  Config
	http *http.Client
}

// New builds a Client.
func New(cfg Config) *Client {
	if cfg.Model == "" {
		cfg.Model = "gemini-1.5-flash"
	}
	if cfg.Endpoint == "" {
		cfg.Endpoint = defaultEndpoint
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	return &Client{
		cfg:  cfg,
		http: &http.Client{Timeout: cfg.Timeout},
	}
}

// Enabled reports whether a credential is configured.
func (c *Client) Enabled() bool {
	return c.cfg.APIKey != ""
}

type generateRequest struct {
	Contents []content `json:"contents"`
}

type content struct {
	Parts []part `json:"parts"`
}

type part struct {
	Text string `json:"text"`
}

type generateResponse struct {
	Candidates []struct {
		Content content `json:"content"`
	} `json:"candidates"`
}

// Generate asks the model for a one-sentence tip about the request's pricing
// context.
func (c *Client) Generate(ctx context.Context, req insight.Request) (string, error) {
	if !c.Enabled() {
		return "", nil
	}

	payload, err := json.Marshal(generateRequest{
		Contents: []content{{Parts: []part{{Text: prompt(req)}}}},
	})
	if err != nil {
		return "", fmt.Errorf("marshal generate request: %w", err)
	}

	url := fmt.Sprintf("%s/%s:generateContent?key=%s", c.cfg.Endpoint, c.cfg.Model, c.cfg.APIKey)
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("build generate request: %w", err)
	}
	httpReq.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(httpReq)
	if err != nil {
		return "", fmt.Errorf("call generate api: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("generate api status %d", resp.StatusCode)
	}
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", fmt.Errorf("read generate response: %w", err)
	}
	var decoded generateResponse
	if err := json.Unmarshal(body, &decoded); err != nil {
		return "", fmt.Errorf("decode generate response: %w", err)
	}
	if len(decoded.Candidates) == 0 || len(decoded.Candidates[0].Content.Parts) == 0 {
		return "", nil
	}
	return strings.TrimSpace(decoded.Candidates[0].Content.Parts[0].Text), nil
}

func prompt(req insight.Request) string {
	var b strings.Builder
	fmt.Fprintf(&b, "In one short sentence, give a game shopper a buying tip for %q.", req.GameTitle)
	if req.SteamPrice != nil {
		fmt.Fprintf(&b, " Steam price: %.2f.", *req.SteamPrice)
	}
	if req.EpicPrice != nil {
		fmt.Fprintf(&b, " Epic price: %.2f.", *req.EpicPrice)
	}
	if req.OldPrice != nil && req.NewPrice != nil {
		fmt.Fprintf(&b, " The price moved from %.2f to %.2f.", *req.OldPrice, *req.NewPrice)
	}
	return b.String()
}
