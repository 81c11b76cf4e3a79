// Package stageapi calls remote research and generation services over HTTP.
//
// Both services accept a JSON POST and answer 200 with a JSON document; any
// other status is an error carrying the status code and body.
package stageapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rotisserie/eris"

	"github.com/neokarri946-creator/b2b-sales-platform-sub001/internal/model"
)

// maxErrorBody caps how much of a failed reply is kept in StatusError.
const maxErrorBody = 2048

// StatusError is returned for non-200 replies.
type StatusError struct {
	Service    string
	StatusCode int
	Body       string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("%s: unexpected status %d: %s", e.Service, e.StatusCode, e.Body)
}

// Option configures a stage client.
type Option func(*base)

// WithHTTPClient overrides the default http.Client.
func WithHTTPClient(hc *http.Client) Option {
	return func(b *base) { b.http = hc }
}

// WithHeader adds a header to every request, e.g. a service token.
func WithHeader(key, value string) Option {
	return func(b *base) { b.headers.Set(key, value) }
}

type base struct {
	service string
	url     string
	http    *http.Client
	headers http.Header
}

func newBase(service, url string, opts []Option) base {
	b := base{
		service: service,
		url:     url,
		http:    &http.Client{Timeout: 30 * time.Second},
		headers: http.Header{},
	}
	for _, o := range opts {
		o(&b)
	}
	return b
}

func (b base) post(ctx context.Context, in, out any) error {
	payload, err := json.Marshal(in)
	if err != nil {
		return eris.Wrapf(err, "%s: marshal request", b.service)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, b.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrapf(err, "%s: create request", b.service)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range b.headers {
		req.Header[k] = v
	}

	resp, err := b.http.Do(req)
	if err != nil {
		return eris.Wrapf(err, "%s: send request", b.service)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return eris.Wrapf(err, "%s: read response", b.service)
	}
	if resp.StatusCode != http.StatusOK {
		if len(body) > maxErrorBody {
			body = body[:maxErrorBody]
		}
		return &StatusError{Service: b.service, StatusCode: resp.StatusCode, Body: string(body)}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return eris.Wrapf(err, "%s: unmarshal response", b.service)
	}
	return nil
}

// ResearchClient calls a remote research service.
type ResearchClient struct {
	base
}

// NewResearchClient returns a client posting to url.
func NewResearchClient(url string, opts ...Option) *ResearchClient {
	return &ResearchClient{base: newBase("research", url, opts)}
}

type researchRequest struct {
	Seller string `json:"seller"`
	Target string `json:"target"`
}

// Research posts the company pair and decodes the evidence bundle.
func (c *ResearchClient) Research(ctx context.Context, seller, target string) (*model.EvidenceBundle, error) {
	var bundle model.EvidenceBundle
	if err := c.post(ctx, researchRequest{Seller: seller, Target: target}, &bundle); err != nil {
		return nil, err
	}
	return bundle.Normalize(), nil
}

// GenerationClient calls a remote generation service.
type GenerationClient struct {
	base
}

// NewGenerationClient returns a client posting to url.
func NewGenerationClient(url string, opts ...Option) *GenerationClient {
	return &GenerationClient{base: newBase("generation", url, opts)}
}

// GenerationRequest is the wire body sent to the generation service.
type GenerationRequest struct {
	Seller       string                `json:"seller"`
	Target       string                `json:"target"`
	SkipResearch bool                  `json:"skipResearch"`
	ResearchData *model.EvidenceBundle `json:"researchData,omitempty"`
}

// Generate posts the request and decodes the analysis document. Unknown
// top-level keys in the reply are kept on the returned Analysis.
func (c *GenerationClient) Generate(ctx context.Context, req GenerationRequest) (*model.Analysis, error) {
	var a model.Analysis
	if err := c.post(ctx, req, &a); err != nil {
		return nil, err
	}
	return &a, nil
}
