// Package gemini implements the provider.Adapter contract for the
// Gemini generateContent dialect.
package gemini

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
	"google.golang.org/genai"

	"github.com/bookeating/novelcondenser-go/provider"
)

const defaultBaseURL = "https://generativelanguage.googleapis.com/v1beta/models/"

var tracer = otel.Tracer("novelcondenser/provider/gemini")

// Adapter speaks the Gemini v1beta generateContent JSON shape.
type Adapter struct {
	httpClient *http.Client
}

// New builds a Gemini Adapter. A nil httpClient falls back to
// http.DefaultClient with per-request timeouts applied via context.
func New(httpClient *http.Client) *Adapter {
	if httpClient == nil {
		httpClient = http.DefaultClient
	}
	return &Adapter{httpClient: httpClient}
}

var _ provider.Adapter = (*Adapter)(nil)

// Condense implements provider.Adapter.
func (a *Adapter) Condense(ctx context.Context, req provider.Request) (string, error) {
	ctx, span := tracer.Start(ctx, "gemini.Condense")
	defer span.End()

	endpoint, headers, err := buildURL(req.Credential)
	if err != nil {
		span.SetStatus(codes.Error, err.Error())
		return "", provider.NewError(provider.KindGeneral, err)
	}

	// req.SystemPrompt already carries the chunk-prefix text when
	// req.Chunk is set; the pipeline renders it via provider.ChunkPrefix
	// before calling the adapter, keeping the adapter pure.
	body, err := buildRequestBody(req.SystemPrompt, req.UserText, req.Params)
	if err != nil {
		return "", provider.NewError(provider.KindGeneral, err)
	}

	timeout := req.Params.TimeoutThirdParty
	if host := hostOf(endpoint); provider.IsFirstParty(host) {
		timeout = req.Params.TimeoutOfficial
	}

	span.SetAttributes(attribute.String("gemini.model", req.Credential.Model))

	respBody, err := provider.RunGeminiStyleRetries(ctx, timeout, req.Params, func(ctx context.Context) ([]byte, int, error) {
		return a.doOnce(ctx, endpoint, headers, body)
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

func (a *Adapter) doOnce(ctx context.Context, endpoint string, headers map[string]string, body []byte) ([]byte, int, error) {
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, 0, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	for k, v := range headers {
		httpReq.Header.Set(k, v)
	}

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

// buildURL assembles the Gemini generateContent endpoint URL.
func buildURL(cred provider.Credential) (string, map[string]string, error) {
	base := cred.BaseURL
	if base == "" {
		model := cred.Model
		if model == "" {
			model = "gemini-1.5-flash"
		}
		base = defaultBaseURL + model + ":generateContent"
	} else if !strings.Contains(base, ":generateContent") {
		model := cred.Model
		if model == "" {
			model = "gemini-1.5-flash"
		}
		base = strings.TrimRight(base, "/") + "/" + model + ":generateContent"
	}

	headers := map[string]string{}
	if strings.Contains(base, "key=") {
		return base, headers, nil
	}

	host := hostOf(base)
	if requiresHeaderAuth(host) {
		headers["x-goog-api-key"] = cred.Key
		return base, headers, nil
	}

	sep := "?"
	if strings.Contains(base, "?") {
		sep = "&"
	}
	return base + sep + "key=" + url.QueryEscape(cred.Key), headers, nil
}

// requiresHeaderAuth flags hosts known to reject a ?key= query param —
// typically third-party proxies fronting the Gemini API — in favor of
// header-based auth.
func requiresHeaderAuth(host string) bool {
	return host != "" && !strings.HasSuffix(host, "googleapis.com")
}

func hostOf(rawurl string) string {
	u, err := url.Parse(rawurl)
	if err != nil {
		return ""
	}
	return u.Hostname()
}

// buildRequestBody constructs the generateContent body using the real
// genai SDK types for correct field names and JSON tags, while leaving
// response decoding to the hand-rolled, proxy-tolerant parser chain
// (DESIGN.md: genai wired for request construction only).
func buildRequestBody(systemPrompt, userText string, params provider.GenerationParams) ([]byte, error) {
	temp := float32(params.Temperature)
	topP := float32(params.TopP)
	topK := float32(params.TopK)

	reqBody := genaiRequest{
		Contents: []genai.Content{
			{
				Parts: []*genai.Part{
					{Text: systemPrompt},
					{Text: userText},
				},
			},
		},
		GenerationConfig: genai.GenerateContentConfig{
			Temperature:      &temp,
			TopP:             &topP,
			TopK:             &topK,
			MaxOutputTokens:  int32(params.MaxTokens),
			ResponseMIMEType: "text/plain",
			StopSequences:    []string{"Thinking:"},
		},
		SafetySettings: []genai.SafetySetting{
			{Category: "HARM_CATEGORY_DANGEROUS_CONTENT", Threshold: "BLOCK_ONLY_HIGH"},
		},
	}
	return json.Marshal(reqBody)
}

// genaiRequest mirrors the wire shape of a generateContent call using
// genai's own Content/Part/GenerateContentConfig/SafetySetting types,
// re-keyed to the top-level field names the REST API expects.
type genaiRequest struct {
	Contents         []genai.Content             `json:"contents"`
	GenerationConfig genai.GenerateContentConfig `json:"generationConfig"`
	SafetySettings   []genai.SafetySetting       `json:"safetySettings"`
}
