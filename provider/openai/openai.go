// Package openai implements the provider.Adapter contract for the
// OpenAI chat/completions dialect (and any proxy that speaks it).
package openai

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/bookeating/novelcondenser-go/provider"
)

const defaultBaseURL = "https://api.openai.com/v1/chat/completions"

var tracer = otel.Tracer("novelcondenser/provider/openai")

// Adapter speaks the OpenAI chat/completions JSON shape over raw HTTP.
//
// Unlike provider/gemini, which borrows the genai SDK's types to build
// its request body, this does not use the openai-go SDK at all: its
// client decodes responses into a fixed
// struct and fails closed on the non-conforming proxy response shapes
// this adapter needs to tolerate. Request and response both go through
// plain JSON here so the same ordered fallback-parser chain as the
// Gemini dialect applies.
type Adapter struct {
	httpClient *http.Client
}

func New(httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{httpClient: httpClient}
}

var _ provider.Adapter = (*Adapter)(nil)

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model            string        `json:"model"`
	Messages         []chatMessage `json:"messages"`
	Temperature      float64       `json:"temperature"`
	TopP             float64       `json:"top_p"`
	MaxTokens        int           `json:"max_tokens"`
	FrequencyPenalty float64       `json:"frequency_penalty"`
	PresencePenalty  float64       `json:"presence_penalty"`
}

// Condense implements provider.Adapter.
func (a *Adapter) Condense(ctx context.Context, req provider.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "openai.Condense")
	defer span.End()

	endpoint := buildURL(req.Credential)

	body, err := json.Marshal(chatRequest{
		Model: req.Credential.Model,
		Messages: []chatMessage{
			{Role: "system", Content: req.SystemPrompt},
			{Role: "user", Content: req.UserText},
		},
		Temperature:      req.Params.Temperature,
		TopP:             req.Params.TopP,
		MaxTokens:        req.Params.MaxTokens,
		FrequencyPenalty: 0,
		PresencePenalty:  0,
	})
	if err != nil {
		return "", provider.NewError(provider.KindGeneral, err)
	}

	timeout := req.Params.TimeoutThirdParty
	if host := hostOf(endpoint); provider.IsFirstParty(host) {
		timeout = req.Params.TimeoutOfficial
	}

	span.SetAttributes(attribute.String("openai.model", req.Credential.Model))

	respBody, err := provider.RunGeminiStyleRetries(ctx, timeout, req.Params, func(ctx context.Context) ([]byte, int, error) {
		return a.doOnce(ctx, endpoint, req.Credential.Key, body)
	})
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}

	text, ok := provider.ParseResponse(respBody)
	if !ok {
		err := provider.NewError(provider.KindMalformedResponse, provider.ErrEmptyResult)
		span.SetStatus(codes.Error, err.Error())
		return "", err
	}
	return text, nil
}

func (a *Adapter) doOnce(ctx context.Context, endpoint, apiKey string, body []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	httpReq.Header.Set("Authorization", "Bearer "+apiKey)
	httpReq.Header.Set("User-Agent", "Mozilla/5.0 novelcondenser-go")

	resp, err := a.httpClient.Do(httpReq)
	if err != nil {
		return nil, 0, err
	}
	defer resp.Body.Close()

	respBody, err := provider.ReadAll(resp.Body, 10<<20)
	if err != nil {
		return nil, 0, err
	}
	return respBody, resp.StatusCode, nil
}

// buildURL assembles the OpenAI chat/completions endpoint URL.
func buildURL(cred provider.Credential) string {
	base := cred.BaseURL
	if base == "" {
		base = defaultBaseURL
	}
	base = strings.TrimRight(base, "/")
	if !strings.Contains(base, "chat/completions") {
		base += "/chat/completions"
	}
	return base
}

func hostOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	return u.Hostname()
}
