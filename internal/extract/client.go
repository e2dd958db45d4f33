package extract

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/invigo/invigo-backend/internal/model"
)

// ErrMalformedExtraction indicates the extraction service returned output
// that does not satisfy the question/solution-key contract. No exam is
// created from such output.
var ErrMalformedExtraction = errors.New("extraction service returned malformed output")

// instructionPrompt is the fixed instruction sent with every document. The
// extraction service is a black box; the contract is the JSON shape below.
const instructionPrompt = `Extract every multiple-choice question from the attached exam paper. ` +
	`Respond with JSON only: {"questions":[{"id":"q1","text":"...","options":["..."]}],` +
	`"solutionKey":{"q1":0}}. Option indices are 0-based. Every question must have ` +
	`at least two options and exactly one entry in solutionKey.`

// Payload is the structured output of the extraction service.
type Payload struct {
	Questions   []model.Question  `json:"questions"`
	SolutionKey model.SolutionKey `json:"solutionKey"`
}

// Client talks to the document extraction service.
type Client struct {
	baseURL string
	http    *http.Client
	log     zerolog.Logger
}

// NewClient creates an extraction client for the given base URL.
func NewClient(baseURL string, timeout time.Duration, log zerolog.Logger) *Client {
	return &Client{
		baseURL: baseURL,
		http:    &http.Client{Timeout: timeout},
		log:     log.With().Str("component", "extract_client").Logger(),
	}
}

// Extract uploads a question paper and returns the extracted question set
// and solution key. The result is validated against the exam invariants
// before it is returned; a malformed response never produces a partial exam.
func (c *Client) Extract(ctx context.Context, filename string, document io.Reader) (*Payload, error) {
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)

	part, err := mw.CreateFormFile("document", filename)
	if err != nil {
		return nil, fmt.Errorf("build multipart: %w", err)
	}
	if _, err := io.Copy(part, document); err != nil {
		return nil, fmt.Errorf("copy document: %w", err)
	}
	if err := mw.WriteField("prompt", instructionPrompt); err != nil {
		return nil, fmt.Errorf("write prompt field: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/v1/extract", &body)
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, fmt.Errorf("call extraction service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		snippet, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return nil, fmt.Errorf("extraction service returned %d: %s", resp.StatusCode, snippet)
	}

	var payload Payload
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	if err := model.ValidateSolutionKey(payload.Questions, payload.SolutionKey); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedExtraction, err)
	}

	c.log.Debug().Int("questions", len(payload.Questions)).Msg("Document extracted")
	return &payload, nil
}
