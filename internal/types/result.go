package types

import (
	"fmt"
	"time"
)

// Mode selects how a completion is requested from the target
type Mode string

const (
	ModeStreaming    Mode = "streaming"
	ModeNonStreaming Mode = "non_streaming"
)

// ParseMode converts a configuration string into a Mode
func ParseMode(s string) (Mode, error) {
	switch Mode(s) {
	case ModeStreaming, ModeNonStreaming:
		return Mode(s), nil
	default:
		return "", fmt.Errorf("unknown mode %q", s)
	}
}

// Error categories recorded on failed results
const (
	ErrorTypeHTTP          = "HTTPError"
	ErrorTypeTimeout       = "TimeoutError"
	ErrorTypeConnection    = "ConnectionError"
	ErrorTypeStream        = "StreamError"
	ErrorTypeResponseParse = "ResponseParseError"
	ErrorTypeRequest       = "RequestPreparationError"
	ErrorTypeEmptyResponse = "EmptyResponse"
	ErrorTypeUnknown       = "UnknownError"
)

// RequestResult is the outcome of one request attempt. It is never mutated
// after an executor returns it.
type RequestResult struct {
	Mode    Mode
	Success bool

	// TTFT is only meaningful when HasTTFT is set
	TTFT    time.Duration
	HasTTFT bool

	TotalTime       time.Duration
	TokensGenerated int
	TokensPerSecond float64

	// Error is empty for successful requests and for responses that
	// completed without producing any tokens.
	Error      string
	ErrorType  string
	StatusCode int
}

// Attempt accumulates the observations of a single in-progress request.
// Executors own one Attempt per request and turn it into a RequestResult
// with Result once the request is over.
type Attempt struct {
	Mode       Mode
	Start      time.Time
	FirstToken time.Time
	End        time.Time
	Tokens     int
	StatusCode int
	Err        error
	ErrorType  string
}

// NewAttempt starts timing a request
func NewAttempt(mode Mode) *Attempt {
	return &Attempt{
		Mode:  mode,
		Start: time.Now(),
	}
}

// MarkFirstToken records the arrival of the first content-bearing fragment.
// Later calls are ignored.
func (a *Attempt) MarkFirstToken() {
	if a.FirstToken.IsZero() {
		a.FirstToken = time.Now()
	}
}

// Fail records a failure. The first failure wins.
func (a *Attempt) Fail(errType string, err error) {
	if a.Err != nil {
		return
	}
	a.Err = err
	a.ErrorType = errType
}

// Finish stops the clock if it has not been stopped yet
func (a *Attempt) Finish() {
	if a.End.IsZero() {
		a.End = time.Now()
	}
}

// Result builds the immutable RequestResult for this attempt. A failed
// attempt keeps its timing but reports no tokens and no TTFT.
func (a *Attempt) Result() RequestResult {
	a.Finish()

	if a.Err != nil {
		a.Tokens = 0
		a.FirstToken = time.Time{}
	}

	total := a.End.Sub(a.Start)
	result := RequestResult{
		Mode:            a.Mode,
		TotalTime:       total,
		TokensGenerated: a.Tokens,
		TokensPerSecond: TokensPerSecond(a.Tokens, total),
		StatusCode:      a.StatusCode,
	}

	if a.Mode == ModeStreaming && !a.FirstToken.IsZero() {
		ttft := a.FirstToken.Sub(a.Start)
		if ttft > total {
			ttft = total
		}
		result.TTFT = ttft
		result.HasTTFT = true
	}

	switch {
	case a.Err != nil:
		result.Error = a.Err.Error()
		result.ErrorType = a.ErrorType
		if result.ErrorType == "" {
			result.ErrorType = ErrorTypeUnknown
		}
	case a.Tokens <= 0:
		result.ErrorType = ErrorTypeEmptyResponse
	default:
		result.Success = true
	}

	return result
}

// TokensPerSecond returns tokens/total, or 0 when either is non-positive
func TokensPerSecond(tokens int, total time.Duration) float64 {
	if tokens <= 0 || total <= 0 {
		return 0
	}
	return float64(tokens) / total.Seconds()
}
