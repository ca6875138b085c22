package orchestrator

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/crfsearch"
	"github.com/backmassage/shrinkwrap/internal/encode"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/probe"
	"github.com/backmassage/shrinkwrap/internal/selector"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// --- Fakes ---

// fakeProber returns a copy of its template with the path filled in.
type fakeProber struct {
	template probe.MediaInput
	err      error
	calls    int
}

func (f *fakeProber) Probe(_ context.Context, path string) (*probe.MediaInput, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	mi := f.template
	mi.Path = path
	return &mi, nil
}

// fakeSearcher reports a fixed result for every candidate.
type fakeSearcher struct {
	crf   int
	pct   float64
	calls int
}

func (f *fakeSearcher) Search(_ context.Context, _, _ string, _ crfsearch.Options) (string, error) {
	f.calls++
	return fmt.Sprintf("crf %d VMAF 95.0 predicted size 1 GiB (%.1f%%)", f.crf, f.pct), nil
}

// fakeExec writes an output of fixed size, or fails every call.
type fakeExec struct {
	size  int64
	err   error
	calls int
}

func (f *fakeExec) Run(_ context.Context, args []string) (string, error) {
	f.calls++
	if f.err != nil {
		return "stderr transcript", f.err
	}
	out := args[len(args)-1]
	return "", os.WriteFile(out, make([]byte, f.size), 0o644)
}

// --- Fixture ---

type fixture struct {
	cfg      *config.Config
	orch     *Orchestrator
	store    *jobstore.Store
	prober   *fakeProber
	searcher *fakeSearcher
	exec     *fakeExec
	input    string // path of the seeded input file
}

func probedInput() probe.MediaInput {
	return probe.MediaInput{
		Format: probe.FormatInfo{Duration: 5400, Tags: map[string]string{}},
		VideoStreams: []probe.VideoStream{
			{Index: 0, Codec: "h264", BitRate: 5_000_000, AvgFrameRate: "24000/1001"},
		},
		AudioStreams: []probe.AudioStream{
			{Index: 1, Codec: "aac", SampleRate: 48000, Language: "eng"},
		},
	}
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	base := t.TempDir()

	cfg := config.DefaultConfig()
	cfg.InputRoot = filepath.Join(base, "in")
	cfg.OutputRoot = filepath.Join(base, "out")
	cfg.ArchiveRoot = filepath.Join(base, "archive")
	cfg.MinInputSize = 1 // tiny fixture files are fine
	require.NoError(t, os.MkdirAll(cfg.InputRoot, 0o755))
	require.NoError(t, os.MkdirAll(cfg.TempDir(), 0o755))

	input := filepath.Join(cfg.InputRoot, "movie.mkv")
	require.NoError(t, os.WriteFile(input, make([]byte, 2000), 0o644))

	store, err := jobstore.NewStore(cfg.JobDir())
	require.NoError(t, err)

	prober := &fakeProber{template: probedInput()}
	searcher := &fakeSearcher{crf: 24, pct: 55}
	exec := &fakeExec{size: 500}

	searchEngine := crfsearch.NewEngine(&cfg, searcher, store, zerolog.Nop())
	encodeRunner := encode.NewRunner(&cfg, exec, store, zerolog.Nop())
	orch := New(&cfg, prober, nil, searchEngine, encodeRunner, store)

	return &fixture{
		cfg: &cfg, orch: orch, store: store,
		prober: prober, searcher: searcher, exec: exec, input: input,
	}
}

func (f *fixture) hash(t *testing.T) string {
	t.Helper()
	h, _, err := probe.ContentHash(f.input)
	require.NoError(t, err)
	return h
}

// --- Tests ---

func TestProcessFileCompletes(t *testing.T) {
	f := newFixture(t)

	res := f.orch.ProcessFile(context.Background(), f.input)
	require.NoError(t, res.Err)
	assert.Equal(t, ClassCompleted, res.Class)
	assert.Equal(t, int64(2000), res.InputBytes)
	assert.Equal(t, int64(500), res.OutputBytes)

	// Output placed under the output root with the container extension.
	outPath := filepath.Join(f.cfg.OutputRoot, "movie.mp4")
	info, err := os.Stat(outPath)
	require.NoError(t, err)
	assert.Equal(t, int64(500), info.Size())

	// Original archived, record deleted, success entry written.
	_, err = os.Stat(f.input)
	assert.True(t, os.IsNotExist(err), "original is archived away")
	_, err = os.Stat(filepath.Join(f.cfg.ArchiveRoot, "movie.mkv"))
	assert.NoError(t, err)
	_, ok := f.store.Load(f.hashFromArchive(t))
	assert.False(t, ok, "terminal record is deleted")

	entries, err := filepath.Glob(filepath.Join(f.cfg.DoneDir(), "*.done"))
	require.NoError(t, err)
	assert.Len(t, entries, 1)
}

// hashFromArchive recomputes the content hash after the original moved.
func (f *fixture) hashFromArchive(t *testing.T) string {
	t.Helper()
	h, _, err := probe.ContentHash(filepath.Join(f.cfg.ArchiveRoot, "movie.mkv"))
	require.NoError(t, err)
	return h
}

func TestProcessFileSkipsMarkedInput(t *testing.T) {
	f := newFixture(t)
	f.prober.template.Format.Tags["comment"] = "shrinkwrap"

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassSkipped, res.Class)
	assert.Equal(t, selector.CondAlreadyEncoded, res.Condition)
	assert.Zero(t, f.searcher.calls)
	assert.Zero(t, f.exec.calls)

	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldSkipped), "movie.mkv"))
	assert.NoError(t, err, "skipped input is routed to holding")
}

func TestProcessFileNoAudioFailsPermanently(t *testing.T) {
	f := newFixture(t)
	f.prober.template.AudioStreams = nil

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassFailed, res.Class)
	assert.Equal(t, selector.CondNoSuitableAudio, res.Condition)

	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldFailed), "movie.mkv"))
	assert.NoError(t, err)
}

func TestProcessFileRetryableThenPromoted(t *testing.T) {
	f := newFixture(t)
	f.exec.err = errors.New("transient transcoder crash")
	hash := f.hash(t)

	// Runs 1 and 2: retryable, input stays put, record survives.
	for attempt := 1; attempt <= 2; attempt++ {
		res := f.orch.ProcessFile(context.Background(), f.input)
		assert.Equal(t, ClassRetryable, res.Class, "attempt %d", attempt)

		rec, ok := f.store.Load(hash)
		require.True(t, ok)
		assert.Equal(t, jobstore.StatusErrorRetryable, rec.Status)
		assert.Equal(t, attempt, rec.RetryCount)
		_, err := os.Stat(f.input)
		assert.NoError(t, err, "retryable input stays in place")
	}

	// Run 3 exhausts the budget: permanent failure, routed to holding.
	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassFailed, res.Class)
	_, ok := f.store.Load(hash)
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldFailed), "movie.mkv"))
	assert.NoError(t, err)

	assert.Equal(t, 2, f.searcher.calls, "quality search runs once, not per retry")
}

func TestProcessFileOversizedAtCeilingGoesToOversizedHolding(t *testing.T) {
	f := newFixture(t)
	f.cfg.ManualMode = true
	f.cfg.ManualCRF = f.cfg.CRFCeiling
	f.exec.size = 5000 // always larger than the 2000-byte input

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassFailed, res.Class)
	assert.ErrorIs(t, res.Err, encode.ErrOversizedAtCeiling)

	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldOversized), "movie.mkv"))
	assert.NoError(t, err)
}

func TestProcessFileTerminalRecordResumesWithoutTools(t *testing.T) {
	f := newFixture(t)
	hash := f.hash(t)

	rec := jobstore.New(hash)
	rec.Status = jobstore.StatusSkipped
	require.NoError(t, f.store.Save(rec))

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassSkipped, res.Class)
	assert.Zero(t, f.prober.calls, "terminal resume never probes")
	assert.Zero(t, f.searcher.calls)
	assert.Zero(t, f.exec.calls)

	_, ok := f.store.Load(hash)
	assert.False(t, ok)
	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldSkipped), "movie.mkv"))
	assert.NoError(t, err)
}

func TestFinalizeRoutesByRecordedFailureCategory(t *testing.T) {
	f := newFixture(t)
	hash := f.hash(t)

	// The message wording carries no hint of the category; routing must
	// follow the recorded category alone.
	rec := jobstore.New(hash)
	rec.Status = jobstore.StatusErrorPermanent
	rec.LastError = "final output larger than the input at the quality limit"
	rec.FailCategory = config.HoldOversized
	require.NoError(t, f.store.Save(rec))

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassFailed, res.Class)

	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldOversized), "movie.mkv"))
	assert.NoError(t, err)
	_, ok := f.store.Load(hash)
	assert.False(t, ok)
}

func TestProcessFileResumesDecidedRecordAtEncode(t *testing.T) {
	f := newFixture(t)
	hash := f.hash(t)

	rec := jobstore.New(hash)
	rec.Status = jobstore.StatusErrorRetryable
	rec.ChosenEncoder = "libx265"
	rec.ChosenCRF = 26
	rec.Streams = jobstore.Selection{Video: []int{0}, Audio: []int{1}}
	rec.RetryCount = 1
	require.NoError(t, f.store.Save(rec))

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassCompleted, res.Class)
	assert.Zero(t, f.searcher.calls, "decided record skips the quality search")
	assert.Equal(t, 1, f.exec.calls)
}

func TestProcessFileUnreadableInput(t *testing.T) {
	f := newFixture(t)
	missing := filepath.Join(f.cfg.InputRoot, "ghost.mkv")

	res := f.orch.ProcessFile(context.Background(), missing)
	assert.Equal(t, ClassFailed, res.Class)
	assert.Error(t, res.Err)
	assert.Zero(t, f.prober.calls)
}

func TestProcessFileProbeFailureIsPermanent(t *testing.T) {
	f := newFixture(t)
	f.prober.err = errors.New("invalid data found when processing input")

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassFailed, res.Class)

	_, err := os.Stat(filepath.Join(f.cfg.HoldingDir(config.HoldUnreadable), "movie.mkv"))
	assert.NoError(t, err, "unprobeable input lands in the unreadable holding area")
}

func TestProcessFileDryRunTouchesNothing(t *testing.T) {
	f := newFixture(t)
	f.cfg.DryRun = true

	res := f.orch.ProcessFile(context.Background(), f.input)
	assert.Equal(t, ClassDryRun, res.Class)
	assert.Equal(t, 1, f.prober.calls)
	assert.Zero(t, f.searcher.calls)
	assert.Zero(t, f.exec.calls)

	_, err := os.Stat(f.input)
	assert.NoError(t, err, "dry run moves nothing")
	recs, err := f.store.List()
	require.NoError(t, err)
	assert.Empty(t, recs, "dry run persists nothing")
}
