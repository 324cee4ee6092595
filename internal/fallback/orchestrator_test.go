package fallback

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/golang/mock/gomock"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tejusbharadwaj/spotprice/internal/models"
	"github.com/tejusbharadwaj/spotprice/internal/source"
	"github.com/tejusbharadwaj/spotprice/internal/source/mocks"
)

const currentKey = "16:00"

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(io.Discard)
	return l
}

// failureCounter closes done once want fallback warnings have been logged.
type failureCounter struct {
	mu   sync.Mutex
	want int
	seen int
	done chan struct{}
}

func newFailureCounter(want int) *failureCounter {
	return &failureCounter{want: want, done: make(chan struct{})}
}

func (f *failureCounter) Levels() []logrus.Level { return []logrus.Level{logrus.WarnLevel} }

func (f *failureCounter) Fire(e *logrus.Entry) error {
	if e.Message != "Price source failed, falling back" {
		return nil
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	f.seen++
	if f.seen == f.want {
		close(f.done)
	}
	return nil
}

func mockSource(ctrl *gomock.Controller, kind models.SourceKind) *mocks.MockAdapter {
	m := mocks.NewMockAdapter(ctrl)
	m.EXPECT().Kind().Return(kind).AnyTimes()
	return m
}

// fetchAttempt treats the raw keys as ready-made labels.
func fetchAttempt(ctx context.Context, a source.Adapter) (*models.ProcessedPrices, error) {
	res, err := a.Fetch(ctx, "SE3")
	if err != nil {
		return nil, err
	}
	today := models.IntervalPrices{}
	for k, v := range res.IntervalRaw {
		today[k] = v
	}
	return &models.ProcessedPrices{
		Source:    res.Source,
		Area:      res.Area,
		Converted: models.ConvertedIntervalMap{Today: today},
	}, nil
}

func hasCurrent(p *models.ProcessedPrices) error {
	if _, ok := p.Converted.Today[currentKey]; !ok {
		return fmt.Errorf("missing current interval %s", currentKey)
	}
	return nil
}

func result(kind models.SourceKind, keys ...string) *models.SourceResult {
	raw := models.RawIntervalMap{}
	for i, k := range keys {
		raw[k] = float64(i + 1)
	}
	return &models.SourceResult{Source: kind, Area: "SE3", IntervalRaw: raw}
}

func TestSequentialFallsBackOnMissingCurrentInterval(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	a := mockSource(ctrl, models.SourceEnergyCharts)
	b := mockSource(ctrl, models.SourceCSVFeed)
	c := mockSource(ctrl, models.SourceStatic)

	// A has only tomorrow's 10:00 published; B is complete.
	a.EXPECT().Fetch(gomock.Any(), "SE3").Return(result(models.SourceEnergyCharts, "10:00"), nil)
	b.EXPECT().Fetch(gomock.Any(), "SE3").Return(result(models.SourceCSVFeed, "15:45", "16:00", "16:15"), nil)

	o := New(Config{Mode: ModeSequential, Timeout: time.Second}, quietLogger())
	out, err := o.Run(context.Background(), "SE3", []source.Adapter{a, b, c}, fetchAttempt, hasCurrent)
	require.NoError(t, err)

	assert.Equal(t, models.SourceCSVFeed, out.Source)
	assert.Equal(t, []models.SourceKind{models.SourceEnergyCharts, models.SourceCSVFeed}, out.Attempted)
	assert.Equal(t, []models.SourceKind{models.SourceEnergyCharts}, out.Fallback)
	require.Len(t, out.Failures, 1)
	assert.Equal(t, FailureValidation, out.Failures[0].Kind)
	assert.True(t, out.UsedFallback())
}

func TestSequentialDistinguishesFailureKinds(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	release := make(chan struct{})
	defer close(release)

	slow := mockSource(ctrl, models.SourceEnergyCharts)
	broken := mockSource(ctrl, models.SourceCSVFeed)
	invalid := mockSource(ctrl, models.SourceStatic)

	// The slow source ignores its context; it must be abandoned anyway.
	slow.EXPECT().Fetch(gomock.Any(), "SE3").DoAndReturn(func(context.Context, string) (*models.SourceResult, error) {
		<-release
		return result(models.SourceEnergyCharts, currentKey), nil
	})
	broken.EXPECT().Fetch(gomock.Any(), "SE3").Return(nil, fmt.Errorf("%w: connection refused", models.ErrTransport))
	invalid.EXPECT().Fetch(gomock.Any(), "SE3").Return(result(models.SourceStatic, "00:00"), nil)

	o := New(Config{Mode: ModeSequential, Timeout: 30 * time.Millisecond}, quietLogger())
	out, err := o.Run(context.Background(), "SE3", []source.Adapter{slow, broken, invalid}, fetchAttempt, hasCurrent)

	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrAllSourcesFailed))
	assert.Nil(t, out.Result)
	require.Len(t, out.Failures, 3)
	assert.Equal(t, FailureTimeout, out.Failures[0].Kind)
	assert.Equal(t, FailureTransport, out.Failures[1].Kind)
	assert.Equal(t, FailureValidation, out.Failures[2].Kind)
	assert.Contains(t, err.Error(), "energy_charts=timeout")
}

func TestParallelCancelsLosers(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	cancelled := make(chan struct{})
	slow := mockSource(ctrl, models.SourceEnergyCharts)
	fast := mockSource(ctrl, models.SourceCSVFeed)

	slow.EXPECT().Fetch(gomock.Any(), "SE3").DoAndReturn(func(ctx context.Context, _ string) (*models.SourceResult, error) {
		<-ctx.Done()
		close(cancelled)
		return nil, ctx.Err()
	})
	fast.EXPECT().Fetch(gomock.Any(), "SE3").Return(result(models.SourceCSVFeed, currentKey), nil)

	o := New(Config{Mode: ModeParallel, MaxWorkers: 2, Timeout: 5 * time.Second}, quietLogger())
	out, err := o.Run(context.Background(), "SE3", []source.Adapter{slow, fast}, fetchAttempt, hasCurrent)
	require.NoError(t, err)
	assert.Equal(t, models.SourceCSVFeed, out.Source)
	assert.ElementsMatch(t, []models.SourceKind{models.SourceEnergyCharts, models.SourceCSVFeed}, out.Attempted)

	select {
	case <-cancelled:
	case <-time.After(2 * time.Second):
		t.Fatal("losing source was not cancelled")
	}
}

func TestParallelInvalidFirstDoesNotWin(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	invalid := mockSource(ctrl, models.SourceEnergyCharts)
	valid := mockSource(ctrl, models.SourceCSVFeed)
	queued := mockSource(ctrl, models.SourceStatic)

	invalid.EXPECT().Fetch(gomock.Any(), "SE3").Return(result(models.SourceEnergyCharts, "10:00"), nil)
	valid.EXPECT().Fetch(gomock.Any(), "SE3").DoAndReturn(func(context.Context, string) (*models.SourceResult, error) {
		time.Sleep(40 * time.Millisecond)
		return result(models.SourceCSVFeed, currentKey), nil
	})
	// Refilled into the pool once the invalid source frees a slot.
	queued.EXPECT().Fetch(gomock.Any(), "SE3").DoAndReturn(func(ctx context.Context, _ string) (*models.SourceResult, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).MaxTimes(1)

	o := New(Config{Mode: ModeParallel, MaxWorkers: 2, Timeout: time.Second}, quietLogger())
	out, err := o.Run(context.Background(), "SE3", []source.Adapter{invalid, valid, queued}, fetchAttempt, hasCurrent)
	require.NoError(t, err)

	assert.Equal(t, models.SourceCSVFeed, out.Source)
	assert.Equal(t, []models.SourceKind{models.SourceEnergyCharts}, out.Fallback)
	assert.Equal(t, FailureValidation, out.Failures[0].Kind)
}

func TestParallelFallsThroughToRemainder(t *testing.T) {
	ctrl := gomock.NewController(t)
	defer ctrl.Finish()

	a := mockSource(ctrl, models.SourceEnergyCharts)
	b := mockSource(ctrl, models.SourceCSVFeed)
	c := mockSource(ctrl, models.SourceStatic)

	logger := quietLogger()
	recorded := newFailureCounter(2)
	logger.AddHook(recorded)

	a.EXPECT().Fetch(gomock.Any(), "SE3").Return(nil, fmt.Errorf("%w: 502", models.ErrTransport))
	b.EXPECT().Fetch(gomock.Any(), "SE3").Return(nil, fmt.Errorf("%w: bad payload", models.ErrParse))
	// Held back until both earlier failures are on the outcome.
	c.EXPECT().Fetch(gomock.Any(), "SE3").DoAndReturn(func(ctx context.Context, _ string) (*models.SourceResult, error) {
		select {
		case <-recorded.done:
			return result(models.SourceStatic, currentKey), nil
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	})

	o := New(Config{Mode: ModeParallel, MaxWorkers: 2, Timeout: time.Second}, logger)
	out, err := o.Run(context.Background(), "SE3", []source.Adapter{a, b, c}, fetchAttempt, hasCurrent)
	require.NoError(t, err)

	assert.Equal(t, models.SourceStatic, out.Source)
	assert.Equal(t, []models.SourceKind{models.SourceEnergyCharts, models.SourceCSVFeed, models.SourceStatic}, out.Attempted)
	assert.ElementsMatch(t, []models.SourceKind{models.SourceEnergyCharts, models.SourceCSVFeed}, out.Fallback)
}

func TestRunWithoutSources(t *testing.T) {
	o := New(Config{}, quietLogger())
	_, err := o.Run(context.Background(), "SE3", nil, fetchAttempt, hasCurrent)
	assert.ErrorIs(t, err, models.ErrConfiguration)
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want FailureKind
	}{
		{fmt.Errorf("%w: x", models.ErrTimeout), FailureTimeout},
		{context.DeadlineExceeded, FailureTimeout},
		{context.Canceled, FailureCancelled},
		{fmt.Errorf("%w: x", models.ErrValidation), FailureValidation},
		{fmt.Errorf("%w: x", models.ErrConversion), FailureConversion},
		{&models.ParseError{Key: "k", Reason: "r"}, FailureParse},
		{fmt.Errorf("%w: x", models.ErrConfiguration), FailureConfiguration},
		{errors.New("boom"), FailureTransport},
	}
	for _, tt := range tests {
		t.Run(string(tt.want), func(t *testing.T) {
			assert.Equal(t, tt.want, Classify(tt.err))
		})
	}
}
