package llm

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/pavelanni/mockinterview/internal/model"
)

// DefaultTimeout bounds a single oracle call when none is configured.
const DefaultTimeout = 20 * time.Second

// Request is one answer to be evaluated.
type Request struct {
	Question string
	Answer   string
	Context  string // role and difficulty, e.g. "Backend Engineer (medium)"
	Code     string
}

// Result is the oracle's assessment of a single answer.
type Result struct {
	Score       float64 `json:"score"`
	Review      string  `json:"review"`
	Strength    string  `json:"strength"`
	Improvement string  `json:"improvement"`
}

// Evaluator is an external answer-scoring provider.
type Evaluator interface {
	Evaluate(ctx context.Context, req Request) (Result, error)
	Name() string
}

// Error codes shared by every provider.
const (
	ErrCodeAPIKey          = "invalid_api_key"
	ErrCodeRateLimit       = "rate_limit_exceeded"
	ErrCodeServiceDown     = "service_unavailable"
	ErrCodeInvalidInput    = "invalid_input"
	ErrCodeInvalidResponse = "invalid_response"
	ErrCodeTimeout         = "timeout"
)

// UnavailableError describes why the oracle could not produce an evaluation.
type UnavailableError struct {
	Provider string
	Code     string
	Message  string
	Err      error
}

func (e *UnavailableError) Error() string {
	if e.Err != nil {
		return e.Provider + " error: " + e.Message + " (" + e.Err.Error() + ")"
	}
	return e.Provider + " error: " + e.Message
}

func (e *UnavailableError) Unwrap() error { return e.Err }

// Outcome is the result of an adapter call. Err is set when Result was
// produced by Fallback instead of the provider.
type Outcome struct {
	Result Result
	Source model.EvaluationSource
	Err    *UnavailableError
}

// Degraded reports whether the outcome came from the fallback path.
func (o Outcome) Degraded() bool { return o.Source == model.SourceFallback }

// Fallback is the deterministic evaluation used whenever the oracle fails.
// Longer answers earn more credit, capped at 7 so a fallback never counts as a
// highlight. The text is the English reference; callers may localize it.
func Fallback(req Request) Result {
	answer := strings.TrimSpace(req.Answer)
	if answer == "" {
		return Result{
			Score:       0,
			Review:      "No answer was provided for this question.",
			Improvement: "Provide an answer, even a partial one, to show your reasoning.",
		}
	}
	score := math.Min(7, 3+float64(utf8.RuneCountInString(answer)/100))
	return Result{
		Score:       score,
		Review:      "Your answer was recorded. Automatic evaluation is temporarily unavailable, so a provisional score was assigned.",
		Strength:    "Provided a response to the question",
		Improvement: "Support your answer with concrete examples and more detail",
	}
}

// Adapter wraps an Evaluator with a timeout, result validation and the
// fallback policy. It never returns an error to its caller.
type Adapter struct {
	eval    Evaluator
	timeout time.Duration

	// OnOutcome, if set, is called after every evaluation.
	OnOutcome func(provider string, o Outcome, elapsed time.Duration)
}

// NewAdapter creates an adapter. A nil Evaluator makes every call fall back.
func NewAdapter(eval Evaluator, timeout time.Duration) *Adapter {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	return &Adapter{eval: eval, timeout: timeout}
}

// Provider returns the wrapped provider's name.
func (a *Adapter) Provider() string {
	if a.eval == nil {
		return "none"
	}
	return a.eval.Name()
}

// Evaluate scores one answer, substituting Fallback on any provider failure.
func (a *Adapter) Evaluate(ctx context.Context, req Request) Outcome {
	start := time.Now()
	res, err := a.call(ctx, req)

	var o Outcome
	if err != nil {
		var ue *UnavailableError
		if !errors.As(err, &ue) {
			ue = &UnavailableError{Provider: a.Provider(), Code: ErrCodeServiceDown, Message: "evaluation failed", Err: err}
		}
		slog.Warn("oracle unavailable, using fallback evaluation",
			"provider", ue.Provider, "code", ue.Code, "error", ue.Error())
		o = Outcome{Result: Fallback(req), Source: model.SourceFallback, Err: ue}
	} else {
		o = Outcome{Result: res, Source: model.SourceOracle}
	}

	if a.OnOutcome != nil {
		a.OnOutcome(a.Provider(), o, time.Since(start))
	}
	return o
}

func (a *Adapter) call(ctx context.Context, req Request) (res Result, err error) {
	provider := a.Provider()
	if a.eval == nil {
		return Result{}, &UnavailableError{Provider: provider, Code: ErrCodeServiceDown, Message: "no provider configured"}
	}
	if strings.TrimSpace(req.Question) == "" || strings.TrimSpace(req.Answer) == "" {
		return Result{}, &UnavailableError{Provider: provider, Code: ErrCodeInvalidInput, Message: "question and answer are required"}
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	type reply struct {
		res Result
		err error
	}
	done := make(chan reply, 1)
	go func() {
		defer func() {
			if r := recover(); r != nil {
				done <- reply{err: &UnavailableError{Provider: provider, Code: ErrCodeServiceDown, Message: fmt.Sprintf("provider panic: %v", r)}}
			}
		}()
		r, err := a.eval.Evaluate(ctx, req)
		done <- reply{res: r, err: err}
	}()

	select {
	case <-ctx.Done():
		return Result{}, &UnavailableError{Provider: provider, Code: ErrCodeTimeout, Message: "evaluation timed out", Err: ctx.Err()}
	case r := <-done:
		if r.err != nil {
			if errors.Is(r.err, context.DeadlineExceeded) {
				return Result{}, &UnavailableError{Provider: provider, Code: ErrCodeTimeout, Message: "evaluation timed out", Err: r.err}
			}
			return Result{}, r.err
		}
		if err := validate(r.res); err != nil {
			return Result{}, &UnavailableError{Provider: provider, Code: ErrCodeInvalidResponse, Message: "malformed evaluation", Err: err}
		}
		return r.res, nil
	}
}

func validate(r Result) error {
	if math.IsNaN(r.Score) || math.IsInf(r.Score, 0) || r.Score < 0 || r.Score > 10 {
		return fmt.Errorf("score %v out of range [0,10]", r.Score)
	}
	if strings.TrimSpace(r.Review) == "" {
		return errors.New("empty review")
	}
	return nil
}

// decodeResult parses a provider reply, tolerating markdown code fences.
func decodeResult(provider, raw string) (Result, error) {
	var r Result
	if err := json.Unmarshal([]byte(stripFences(raw)), &r); err != nil {
		return Result{}, &UnavailableError{
			Provider: provider,
			Code:     ErrCodeInvalidResponse,
			Message:  "parse evaluation response",
			Err:      fmt.Errorf("%w (raw: %s)", err, raw),
		}
	}
	return r, nil
}

func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	s = strings.TrimPrefix(s, "```")
	if i := strings.IndexByte(s, '\n'); i >= 0 {
		s = s[i+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
