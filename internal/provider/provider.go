// Package provider adapts the supported LLM APIs (OpenAI, Perplexity,
// Gemini, Anthropic) behind a uniform call surface with per-provider model
// fallback chains, bounded retries, and rate limiting.
package provider

import (
	"context"
	"fmt"
)

// Answer is the normalized result of one successful model call.
type Answer struct {
	Text      string `json:"text"`
	Model     string `json:"model"`
	TokensIn  int    `json:"tokens_in"`
	TokensOut int    `json:"tokens_out"`
}

// Empty reports whether the provider returned no usable text.
func (a *Answer) Empty() bool { return a == nil || a.Text == "" }

// Adapter is one provider's call surface. Call issues a single request to
// a single model; fallback across models is the Chain's job.
type Adapter interface {
	Name() string
	Models() []string
	Call(ctx context.Context, model, prompt string) (*Answer, error)
}

// Code classifies a provider failure for retry and fallback decisions.
type Code string

const (
	CodeAuth       Code = "auth"
	CodeBadRequest Code = "bad_request"
	CodeRateLimit  Code = "rate_limit"
	CodeNetwork    Code = "network"
	CodeServer     Code = "server"
	CodeEmpty      Code = "empty_answer"
)

// Error is a classified provider failure. Retryable errors are retried
// against the same model; fatal ones either abort the whole chain (auth,
// bad request) or advance to the next model.
type Error struct {
	Provider string
	Model    string
	Code     Code
	Status   int
	Err      error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s (%s): %v", e.Provider, e.Model, e.Code, e.Err)
	}
	return fmt.Sprintf("%s: %s (%s)", e.Provider, e.Model, e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// Retryable reports whether the same model is worth another attempt.
func (e *Error) Retryable() bool {
	return e.Code == CodeRateLimit || e.Code == CodeNetwork || e.Code == CodeServer
}

// Fatal reports whether the failure invalidates the whole chain: retrying
// other models with the same bad credentials or malformed request cannot
// succeed.
func (e *Error) Fatal() bool {
	return e.Code == CodeAuth || e.Code == CodeBadRequest
}

// ClassifyStatus maps an HTTP status code to an error code.
func ClassifyStatus(status int) Code {
	switch {
	case status == 401 || status == 403:
		return CodeAuth
	case status == 429:
		return CodeRateLimit
	case status >= 500:
		return CodeServer
	case status >= 400:
		return CodeBadRequest
	default:
		return CodeNetwork
	}
}

// NewError builds a classified provider error from an HTTP status.
func NewError(providerName, model string, status int, err error) *Error {
	return &Error{
		Provider: providerName,
		Model:    model,
		Code:     ClassifyStatus(status),
		Status:   status,
		Err:      err,
	}
}
