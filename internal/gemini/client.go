// Package gemini adapts the Google Gen AI SDK to the advisor's single-call shape:
// one prompt in, structured text, grounding sources or inline media out.
package gemini

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"
	"time"

	"golang.org/x/time/rate"
	"google.golang.org/genai"

	"github.com/keerthanasaravanan18/college/internal/config"
	"github.com/keerthanasaravanan18/college/internal/logging"
	"github.com/keerthanasaravanan18/college/internal/metrics"
)

// ErrNoCredential is returned when a call is attempted with an empty API key.
var ErrNoCredential = errors.New("gemini: no api credential configured")

// Request describes one generateContent call.
type Request struct {
	// Domain labels metrics and logs ("recommendations", "market", ...).
	Domain            string
	Model             string
	Prompt            string
	SystemInstruction string
	// Schema constrains the reply to JSON matching it. Nil requests free text.
	Schema *genai.Schema
	// Search enables Google Search grounding; sources come back in Response.Sources.
	Search bool
	// Modalities requests non-text output such as "AUDIO" or "IMAGE".
	Modalities []string
	Voice      string
}

// Source is a grounding attribution returned by search-augmented calls.
type Source struct {
	Title string `json:"title"`
	URI   string `json:"uri"`
}

// Response is the flattened reply of the first candidate.
type Response struct {
	Text     string
	Sources  []Source
	Data     []byte
	MIMEType string
}

// Generator is the remote inference call the orchestrators depend on.
type Generator interface {
	Generate(ctx context.Context, credential string, req Request) (Response, error)
}

// Client is the production Generator. It keeps one SDK client per credential and
// paces outbound calls with a token bucket.
type Client struct {
	baseURL string
	limiter *rate.Limiter
	logger  *slog.Logger
	metrics *metrics.Recorder

	mu      sync.Mutex
	clients map[string]*genai.Client
}

type Option func(*Client)

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		c.logger = logging.OrDiscard(logger).With(slog.String("agent", "gemini"))
	}
}

func WithMetrics(rec *metrics.Recorder) Option {
	return func(c *Client) {
		c.metrics = rec
	}
}

// New builds a Client from the AI section of the config. A zero requestsPerSecond
// leaves calls unpaced.
func New(cfg config.AIConfig, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimSpace(cfg.BaseURL),
		logger:  logging.Discard(),
		clients: make(map[string]*genai.Client),
	}
	if cfg.RequestsPerSecond > 0 {
		c.limiter = rate.NewLimiter(rate.Limit(cfg.RequestsPerSecond), max(cfg.Burst, 1))
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) client(ctx context.Context, credential string) (*genai.Client, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if existing, ok := c.clients[credential]; ok {
		return existing, nil
	}
	cc := &genai.ClientConfig{
		APIKey:  credential,
		Backend: genai.BackendGeminiAPI,
	}
	if c.baseURL != "" {
		cc.HTTPOptions = genai.HTTPOptions{BaseURL: c.baseURL}
	}
	client, err := genai.NewClient(ctx, cc)
	if err != nil {
		return nil, fmt.Errorf("gemini: new client: %w", err)
	}
	c.clients[credential] = client
	return client, nil
}

// Generate performs the call with credential. SDK errors are returned unwrapped in
// their chain so rate-limit classification can inspect genai.APIError.
func (c *Client) Generate(ctx context.Context, credential string, req Request) (Response, error) {
	if strings.TrimSpace(credential) == "" {
		return Response{}, ErrNoCredential
	}
	if c.limiter != nil {
		if err := c.limiter.Wait(ctx); err != nil {
			return Response{}, fmt.Errorf("gemini: wait for rate limiter: %w", err)
		}
	}
	client, err := c.client(ctx, credential)
	if err != nil {
		return Response{}, err
	}

	start := time.Now()
	result, err := client.Models.GenerateContent(ctx, req.Model, genai.Text(req.Prompt), buildConfig(req))
	c.metrics.ObserveRemoteCall(req.Domain, err, time.Since(start))
	if err != nil {
		c.logger.Debug("generate content failed",
			slog.String("domain", req.Domain),
			slog.String("model", req.Model),
			slog.Any("error", err),
		)
		return Response{}, fmt.Errorf("gemini: %s: %w", req.Domain, err)
	}
	return flatten(result), nil
}

func buildConfig(req Request) *genai.GenerateContentConfig {
	cfg := &genai.GenerateContentConfig{}
	if req.SystemInstruction != "" {
		cfg.SystemInstruction = genai.NewContentFromText(req.SystemInstruction, genai.RoleUser)
	}
	if req.Schema != nil {
		cfg.ResponseMIMEType = "application/json"
		cfg.ResponseSchema = req.Schema
	}
	if req.Search {
		cfg.Tools = []*genai.Tool{{GoogleSearch: &genai.GoogleSearch{}}}
	}
	if len(req.Modalities) > 0 {
		cfg.ResponseModalities = req.Modalities
	}
	if req.Voice != "" {
		cfg.SpeechConfig = &genai.SpeechConfig{
			VoiceConfig: &genai.VoiceConfig{
				PrebuiltVoiceConfig: &genai.PrebuiltVoiceConfig{VoiceName: req.Voice},
			},
		}
	}
	return cfg
}

func flatten(result *genai.GenerateContentResponse) Response {
	var out Response
	if result == nil || len(result.Candidates) == 0 {
		return out
	}
	candidate := result.Candidates[0]
	if candidate.Content != nil {
		var text strings.Builder
		for _, part := range candidate.Content.Parts {
			if part == nil {
				continue
			}
			if part.InlineData != nil && out.Data == nil {
				out.Data = part.InlineData.Data
				out.MIMEType = part.InlineData.MIMEType
			}
			if part.Text != "" && !part.Thought {
				text.WriteString(part.Text)
			}
		}
		out.Text = text.String()
	}
	if meta := candidate.GroundingMetadata; meta != nil {
		for _, chunk := range meta.GroundingChunks {
			if chunk == nil || chunk.Web == nil || chunk.Web.URI == "" {
				continue
			}
			out.Sources = append(out.Sources, Source{Title: chunk.Web.Title, URI: chunk.Web.URI})
		}
	}
	return out
}
