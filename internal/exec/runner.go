// Package exec calls the hosted code-execution collaborator. Execution is
// invoked per user and never broadcast; it is entirely outside the room
// synchronization core.
package exec

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"codesync/internal/models"
)

var ErrUnsupportedLanguage = errors.New("unsupported language")

// Language ids understood by the execution collaborator.
var execIDs = map[models.Language]int{
	models.LangJavaScript: 63,
	models.LangTypeScript: 74,
	models.LangPython:     71,
	models.LangJava:       62,
	models.LangCPP:        54,
}

type Runner struct {
	endpoint string
	apiKey   string
	httpc    *http.Client
}

func NewRunner(endpoint, apiKey string) *Runner {
	return &Runner{
		endpoint: endpoint,
		apiKey:   apiKey,
		httpc:    &http.Client{Timeout: 15 * time.Second},
	}
}

// LangSpec resolves the collaborator's numeric id for a language.
func (r *Runner) LangSpec(lang models.Language) (models.LanguageSpec, error) {
	id, ok := execIDs[lang]
	if !ok {
		return models.LanguageSpec{}, ErrUnsupportedLanguage
	}
	return models.LanguageSpec{Name: lang, ExecID: id}, nil
}

type submission struct {
	SourceCode string `json:"source_code"`
	LanguageID int    `json:"language_id"`
	Stdin      string `json:"stdin"`
}

type submissionResult struct {
	Stdout        string `json:"stdout"`
	Stderr        string `json:"stderr"`
	CompileOutput string `json:"compile_output"`
}

// RunOnce submits the code and waits for the result.
func (r *Runner) RunOnce(ctx context.Context, req models.RunRequest) (models.RunResult, error) {
	spec, err := r.LangSpec(req.Language)
	if err != nil {
		return models.RunResult{}, err
	}

	body, err := json.Marshal(submission{
		SourceCode: req.Code,
		LanguageID: spec.ExecID,
		Stdin:      req.Stdin,
	})
	if err != nil {
		return models.RunResult{}, err
	}

	url := r.endpoint + "/submissions?base64_encoded=false&wait=true"
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return models.RunResult{}, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if r.apiKey != "" {
		httpReq.Header.Set("X-RapidAPI-Key", r.apiKey)
	}

	resp, err := r.httpc.Do(httpReq)
	if err != nil {
		return models.RunResult{}, fmt.Errorf("call execution service: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return models.RunResult{}, fmt.Errorf("execution service returned status %d", resp.StatusCode)
	}

	var result submissionResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return models.RunResult{}, fmt.Errorf("decode execution response: %w", err)
	}
	return models.RunResult{
		Stdout:        result.Stdout,
		Stderr:        result.Stderr,
		CompileOutput: result.CompileOutput,
	}, nil
}
