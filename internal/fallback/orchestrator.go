// Package fallback runs price sources in priority order, or a bounded number
// at a time, until one produces a result that passes validation.
//
// Every per-source failure is recorded and classified here; none of them
// escape Run except as part of an ErrAllSourcesFailed error.
package fallback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/source"
)

type Mode string

const (
	ModeSequential Mode = "sequential"
	ModeParallel   Mode = "parallel"
)

const defaultTimeout = 30 * time.Second

type Config struct {
	Mode       Mode
	MaxWorkers int
	Timeout    time.Duration
}

// FailureKind says why a source was passed over.
type FailureKind string

const (
	FailureTimeout       FailureKind = "timeout"
	FailureTransport     FailureKind = "transport"
	FailureValidation    FailureKind = "validation"
	FailureConversion    FailureKind = "conversion"
	FailureParse         FailureKind = "parse"
	FailureConfiguration FailureKind = "configuration"
	FailureCancelled     FailureKind = "cancelled"
)

// Classify maps an attempt error onto a FailureKind.
func Classify(err error) FailureKind {
	switch {
	case errors.Is(err, models.ErrTimeout), errors.Is(err, context.DeadlineExceeded):
		return FailureTimeout
	case errors.Is(err, context.Canceled):
		return FailureCancelled
	case errors.Is(err, models.ErrValidation):
		return FailureValidation
	case errors.Is(err, models.ErrConversion):
		return FailureConversion
	case errors.Is(err, models.ErrParse):
		return FailureParse
	case errors.Is(err, models.ErrConfiguration):
		return FailureConfiguration
	default:
		return FailureTransport
	}
}

type Failure struct {
	Source models.SourceKind
	Kind   FailureKind
	Err    error
}

// Outcome describes a finished run. Fallback lists the attempted sources
// that failed, in the order their failures were observed.
type Outcome struct {
	Source    models.SourceKind
	Result    *models.ProcessedPrices
	Attempted []models.SourceKind
	Fallback  []models.SourceKind
	Failures  []Failure
}

// UsedFallback reports whether the winner was not the first source tried.
func (o *Outcome) UsedFallback() bool {
	return len(o.Fallback) > 0
}

// AttemptFunc fetches and processes one source.
type AttemptFunc func(ctx context.Context, a source.Adapter) (*models.ProcessedPrices, error)

// ValidateFunc accepts or rejects a processed result.
type ValidateFunc func(*models.ProcessedPrices) error

type Orchestrator struct {
	cfg    Config
	logger *logrus.Logger
}

func New(cfg Config, logger *logrus.Logger) *Orchestrator {
	if cfg.MaxWorkers < 1 {
		cfg.MaxWorkers = 1
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = defaultTimeout
	}
	if cfg.Mode == "" {
		cfg.Mode = ModeSequential
	}
	return &Orchestrator{cfg: cfg, logger: logger}
}

type attemptResult struct {
	source models.SourceKind
	result *models.ProcessedPrices
	err    error
}

// Run tries adapters until one validates. On exhaustion it returns the
// outcome with every failure alongside an ErrAllSourcesFailed error.
func (o *Orchestrator) Run(ctx context.Context, area string, adapters []source.Adapter, attempt AttemptFunc, validate ValidateFunc) (*Outcome, error) {
	if len(adapters) == 0 {
		return &Outcome{}, fmt.Errorf("%w: no sources configured for %s", models.ErrConfiguration, area)
	}

	var out *Outcome
	if o.cfg.Mode == ModeParallel && o.cfg.MaxWorkers > 1 && len(adapters) > 1 {
		out = o.runParallel(ctx, area, adapters, attempt, validate)
	} else {
		out = o.runSequential(ctx, area, adapters, attempt, validate)
	}

	if out.Result == nil {
		o.logger.WithFields(logrus.Fields{
			"area":      area,
			"attempted": out.Attempted,
		}).Error("All price sources failed")
		return out, fmt.Errorf("%w: %s", models.ErrAllSourcesFailed, summarize(out.Failures))
	}
	return out, nil
}

func (o *Orchestrator) runSequential(ctx context.Context, area string, adapters []source.Adapter, attempt AttemptFunc, validate ValidateFunc) *Outcome {
	out := &Outcome{}
	for _, a := range adapters {
		if ctx.Err() != nil {
			break
		}
		out.Attempted = append(out.Attempted, a.Kind())
		r := o.try(ctx, a, attempt, validate)
		if r.err == nil {
			out.Source = r.source
			out.Result = r.result
			return out
		}
		o.record(out, area, r)
	}
	return out
}

func (o *Orchestrator) runParallel(ctx context.Context, area string, adapters []source.Adapter, attempt AttemptFunc, validate ValidateFunc) *Outcome {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	out := &Outcome{}
	// Buffered for every adapter so abandoned attempts never block.
	results := make(chan attemptResult, len(adapters))
	next, inFlight := 0, 0

	launch := func() {
		a := adapters[next]
		next++
		inFlight++
		out.Attempted = append(out.Attempted, a.Kind())
		go func() {
			results <- o.try(ctx, a, attempt, validate)
		}()
	}

	for inFlight < o.cfg.MaxWorkers && next < len(adapters) {
		launch()
	}

	for inFlight > 0 {
		r := <-results
		inFlight--
		if r.err == nil {
			out.Source = r.source
			out.Result = r.result
			return out
		}
		o.record(out, area, r)
		if next < len(adapters) && ctx.Err() == nil {
			launch()
		}
	}
	return out
}

// try runs a single attempt bounded by the per-source timeout. A timed out
// attempt is abandoned and its late result discarded.
func (o *Orchestrator) try(ctx context.Context, a source.Adapter, attempt AttemptFunc, validate ValidateFunc) attemptResult {
	kind := a.Kind()
	actx, cancel := context.WithTimeout(ctx, o.cfg.Timeout)
	defer cancel()

	done := make(chan attemptResult, 1)
	go func() {
		res, err := attempt(actx, a)
		if err == nil && res == nil {
			err = fmt.Errorf("%w: %s returned no result", models.ErrValidation, kind)
		}
		if err == nil && validate != nil {
			if verr := validate(res); verr != nil {
				if !errors.Is(verr, models.ErrValidation) {
					verr = fmt.Errorf("%w: %v", models.ErrValidation, verr)
				}
				err = verr
			}
		}
		done <- attemptResult{source: kind, result: res, err: err}
	}()

	select {
	case r := <-done:
		return r
	case <-actx.Done():
		if ctx.Err() != nil {
			return attemptResult{source: kind, err: ctx.Err()}
		}
		return attemptResult{source: kind, err: fmt.Errorf("%w: %s exceeded %s", models.ErrTimeout, kind, o.cfg.Timeout)}
	}
}

func (o *Orchestrator) record(out *Outcome, area string, r attemptResult) {
	f := Failure{Source: r.source, Kind: Classify(r.err), Err: r.err}
	out.Failures = append(out.Failures, f)
	out.Fallback = append(out.Fallback, r.source)

	o.logger.WithFields(logrus.Fields{
		"area":         area,
		"source":       r.source,
		"failure_kind": f.Kind,
		"attempt":      len(out.Failures),
	}).WithError(r.err).Warn("Price source failed, falling back")
}

func summarize(failures []Failure) string {
	if len(failures) == 0 {
		return "no source attempted"
	}
	parts := make([]string, 0, len(failures))
	for _, f := range failures {
		parts = append(parts, fmt.Sprintf("%s=%s", f.Source, f.Kind))
	}
	return strings.Join(parts, ", ")
}
