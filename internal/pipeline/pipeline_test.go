package pipeline

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/fluxbase-eu/officefn/internal/artifact"
	"github.com/fluxbase-eu/officefn/internal/bundler"
	"github.com/fluxbase-eu/officefn/internal/metadata"
	"github.com/fluxbase-eu/officefn/internal/observability"
	"github.com/fluxbase-eu/officefn/internal/testutil"
)

func newTestPipeline(t *testing.T, mode Mode, ext Extractor, b Bundler, opts ...Option) (*Pipeline, *artifact.Store) {
	t.Helper()
	store := artifact.NewStore(nil)
	t.Cleanup(func() { _ = store.Close() })

	p, err := New(Config{
		Entries:      []string{"/project/src/functions.ts"},
		ScriptName:   "functions.js",
		ManifestName: "functions.json",
		Mode:         mode,
	}, ext, b, store, opts...)
	require.NoError(t, err)
	t.Cleanup(p.Stop)
	return p, store
}

func waitIdle(t *testing.T, p *Pipeline) {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	require.NoError(t, p.WaitIdle(ctx))
}

func TestNew_Validation(t *testing.T) {
	store := artifact.NewStore(nil)
	defer store.Close()

	_, err := New(Config{}, &testutil.StubExtractor{}, &testutil.StubBundler{}, store)
	assert.Error(t, err)

	_, err = New(Config{Entries: []string{"a.ts"}}, nil, &testutil.StubBundler{}, store)
	assert.Error(t, err)
}

func TestModes(t *testing.T) {
	build := BuildMode(true)
	assert.Equal(t, Mode{Name: "build", Minify: true}, build)
	assert.False(t, BuildMode(false).Minify)

	dev := DevMode()
	assert.Equal(t, Mode{Name: "dev", Sourcemap: true, Notify: true}, dev)
}

func TestRunOnce_PublishesBothHalves(t *testing.T) {
	ext := &testutil.StubExtractor{}
	b := &testutil.StubBundler{}
	p, store := newTestPipeline(t, BuildMode(true), ext, b, WithMetrics(observability.NewMetrics()))

	report := p.RunOnce(context.Background())
	assert.True(t, report.OK())
	assert.Equal(t, "success", report.Outcome())
	assert.Equal(t, uint64(1), report.Cycle)
	assert.Equal(t, "build", report.Mode)
	assert.Equal(t, uint64(1), report.Manifest.Generation)
	assert.Equal(t, uint64(1), report.Script.Generation)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Paired())
	assert.Equal(t, `{"functions":[]}`, *snap.Manifest.Content)
	assert.Equal(t, "(() => {})();", *snap.Script.Content)

	assert.Equal(t, bundler.Options{Minify: true}, b.LastOptions())

	last, ok := p.LastReport()
	require.True(t, ok)
	assert.Equal(t, report.Cycle, last.Cycle)
}

func TestRunOnce_BuildModeNeverNotifies(t *testing.T) {
	notifier := testutil.NewRecordingNotifier()
	p, _ := newTestPipeline(t, BuildMode(true), &testutil.StubExtractor{}, &testutil.StubBundler{}, WithNotifier(notifier))

	p.RunOnce(context.Background())
	assert.Empty(t, notifier.Events())
}

func TestRunOnce_DevModeNotifiesOnSuccess(t *testing.T) {
	notifier := testutil.NewRecordingNotifier()
	b := &testutil.StubBundler{}
	p, _ := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b, WithNotifier(notifier))

	report := p.RunOnce(context.Background())
	assert.True(t, report.Manifest.Notified)
	assert.True(t, report.Script.Notified)

	assert.ElementsMatch(t, []testutil.NotifierEvent{
		{Kind: "manifest", File: "functions.json"},
		{Kind: "script", File: "functions.js"},
	}, notifier.Events())
	assert.Equal(t, bundler.Options{Sourcemap: true}, b.LastOptions())
}

func TestRunOnce_FailedHalfDoesNotNotifyOrClearOtherHalf(t *testing.T) {
	notifier := testutil.NewRecordingNotifier()
	b := &testutil.StubBundler{
		OnBuild: func(call int, entries []string, opts bundler.Options) bundler.Result {
			if call == 1 {
				text := "ok();"
				return bundler.Result{ScriptText: &text}
			}
			return testutil.FailedBundle("functions.js", "fn.ts:1:1: Unexpected end of file")
		},
	}
	p, store := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b, WithNotifier(notifier))

	p.RunOnce(context.Background())
	notifier.Reset()

	report := p.RunOnce(context.Background())
	assert.False(t, report.OK())
	assert.Equal(t, "partial", report.Outcome())
	assert.Equal(t, []string{"fn.ts:1:1: Unexpected end of file"}, report.Errors())
	assert.False(t, report.Script.Notified)

	assert.Equal(t, 0, notifier.Count("script"))
	assert.Equal(t, 1, notifier.Count("manifest"))

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Script.Failed())
	assert.Contains(t, *snap.Script.Content, `console.error("Failed to build functions.js`)
	assert.False(t, snap.Manifest.Failed())
	assert.Equal(t, `{"functions":[]}`, *snap.Manifest.Content)
}

func TestRunOnce_ExtractionFailure(t *testing.T) {
	ext := &testutil.StubExtractor{
		OnExtract: func(call int, entries []string) metadata.Result {
			return testutil.FailedExtraction("functions.json", "fn.ts:3:1: unsupported type")
		},
	}
	notifier := testutil.NewRecordingNotifier()
	p, store := newTestPipeline(t, DevMode(), ext, &testutil.StubBundler{}, WithNotifier(notifier))

	report := p.RunOnce(context.Background())
	assert.Equal(t, "partial", report.Outcome())
	assert.Equal(t, 0, notifier.Count("manifest"))
	assert.Equal(t, 1, notifier.Count("script"))

	state, err := store.Read(artifact.Manifest)
	require.NoError(t, err)
	assert.Contains(t, *state.Content, `"error":"Failed to generate functions.json"`)
}

func TestRunOnce_CycleIDsIncrease(t *testing.T) {
	p, store := newTestPipeline(t, BuildMode(false), &testutil.StubExtractor{}, &testutil.StubBundler{})

	var previous uint64
	for i := 0; i < 3; i++ {
		report := p.RunOnce(context.Background())
		assert.Greater(t, report.Cycle, previous)
		previous = report.Cycle
	}

	state, err := store.Read(artifact.Script)
	require.NoError(t, err)
	assert.Equal(t, uint64(3), state.Generation)
	assert.Equal(t, uint64(3), p.Status().LastCycle)
}

func TestTrigger_CoalescesWhileRunning(t *testing.T) {
	ext := &testutil.StubExtractor{}
	b := &testutil.StubBundler{}
	b.Hold()
	p, store := newTestPipeline(t, DevMode(), ext, b)

	p.Trigger()
	<-b.Entered()

	for i := 0; i < 5; i++ {
		p.Trigger()
	}
	status := p.Status()
	assert.True(t, status.Running)
	assert.True(t, status.Pending)

	b.Release()
	waitIdle(t, p)

	assert.Equal(t, 2, b.Calls(), "five triggers during a cycle collapse into one follow-up")
	assert.Equal(t, 2, ext.Calls())

	status = p.Status()
	assert.False(t, status.Running)
	assert.False(t, status.Pending)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Paired())
	assert.Equal(t, uint64(2), snap.Script.Cycle)
}

func TestTrigger_AfterCycleBeforeIdleIsNotLost(t *testing.T) {
	b := &testutil.StubBundler{}
	p, store := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	fired := false
	p.afterCycle = func() {
		if !fired {
			fired = true
			p.Trigger()
		}
	}

	p.Trigger()
	waitIdle(t, p)

	assert.True(t, fired)
	assert.Equal(t, 2, b.Calls(), "a trigger landing after the cycle runs one more cycle")
	state, err := store.Read(artifact.Script)
	require.NoError(t, err)
	assert.Equal(t, uint64(2), state.Cycle)
	assert.False(t, p.Status().Running)
}

func TestTrigger_ConcurrentTriggersConverge(t *testing.T) {
	b := &testutil.StubBundler{}
	p, _ := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	for i := 0; i < 200; i++ {
		p.Trigger()
		before := b.Calls()
		p.Trigger()
		waitIdle(t, p)
		assert.Greater(t, b.Calls(), before, "iteration %d: the second trigger ran no cycle", i)
		assert.False(t, p.Status().Pending)
	}
}

func TestTrigger_TornWindowIsDetectable(t *testing.T) {
	b := &testutil.StubBundler{}
	p, store := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	p.RunOnce(context.Background())

	b.Hold()
	p.Trigger()
	<-b.Entered()

	require.Eventually(t, func() bool {
		state, err := store.Read(artifact.Manifest)
		return err == nil && state.Cycle == 2
	}, 2*time.Second, 5*time.Millisecond)

	snap, err := store.Snapshot()
	require.NoError(t, err)
	assert.False(t, snap.Paired())
	assert.Equal(t, uint64(1), snap.Script.Cycle)

	b.Release()
	waitIdle(t, p)

	snap, err = store.Snapshot()
	require.NoError(t, err)
	assert.True(t, snap.Paired())
}

func TestTrigger_IgnoredAfterStop(t *testing.T) {
	b := &testutil.StubBundler{}
	p, _ := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	p.Stop()
	p.Trigger()
	waitIdle(t, p)

	assert.Equal(t, 0, b.Calls())
	assert.False(t, p.Status().Running)
}

func TestTrigger_StopLetsInFlightCycleFinish(t *testing.T) {
	b := &testutil.StubBundler{}
	b.Hold()
	p, store := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	p.Trigger()
	<-b.Entered()
	p.Trigger() // queued, dropped by Stop
	p.Stop()
	b.Release()
	waitIdle(t, p)

	assert.Equal(t, 1, b.Calls())
	state, err := store.Read(artifact.Script)
	require.NoError(t, err)
	assert.True(t, state.Present())
}

func TestTrigger_MinInterval(t *testing.T) {
	store := artifact.NewStore(nil)
	defer store.Close()

	b := &testutil.StubBundler{}
	p, err := New(Config{
		Entries:      []string{"/project/fn.ts"},
		ScriptName:   "functions.js",
		ManifestName: "functions.json",
		Mode:         DevMode(),
		MinInterval:  100 * time.Millisecond,
	}, &testutil.StubExtractor{}, b, store)
	require.NoError(t, err)
	defer p.Stop()

	start := time.Now()
	p.Trigger()
	waitIdle(t, p)
	p.Trigger()
	waitIdle(t, p)

	assert.Equal(t, 2, b.Calls())
	assert.GreaterOrEqual(t, time.Since(start), 80*time.Millisecond)
}

func TestWaitIdle_RespectsContext(t *testing.T) {
	b := &testutil.StubBundler{}
	b.Hold()
	p, _ := newTestPipeline(t, DevMode(), &testutil.StubExtractor{}, b)

	p.Trigger()
	<-b.Entered()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	assert.ErrorIs(t, p.WaitIdle(ctx), context.DeadlineExceeded)

	b.Release()
	waitIdle(t, p)
}
