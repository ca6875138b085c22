package crfsearch

import (
	"context"
	"time"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/rs/zerolog"
)

// Engine runs the quality search for one job, persisting progress after
// every candidate so a crash resumes mid-list instead of starting over.
type Engine struct {
	cfg      *config.Config
	searcher Searcher
	store    *jobstore.Store
	log      zerolog.Logger
}

// NewEngine constructs the engine. The searcher is injectable for tests.
func NewEngine(cfg *config.Config, searcher Searcher, store *jobstore.Store, log zerolog.Logger) *Engine {
	return &Engine{cfg: cfg, searcher: searcher, store: store, log: log}
}

// Run decides rec's ChosenEncoder/ChosenCRF/PredictedRatio.
//
// Resume rules: a candidate with a recorded result (success or failure) is
// not re-invoked; the candidate named by SearchCurrent with no recorded
// result is retried first. Only a strictly better (lower) predicted ratio
// replaces the current best, so ties keep the earlier candidate.
//
// When every candidate fails, or manual mode is requested, the engine falls
// back to the first configured encoder with the fixed manual CRF and no
// predicted ratio. That fallback is a normal terminal outcome of the search,
// never an error.
func (e *Engine) Run(ctx context.Context, rec *jobstore.Record, inputPath string) error {
	if e.cfg.ManualMode {
		e.applyManual(rec)
		return e.store.Save(rec)
	}

	opts := Options{
		SampleInterval:    e.cfg.SampleInterval,
		MaxEncodedPercent: e.cfg.MaxEncodedPercent,
		MinQuality:        e.cfg.MinQuality,
	}

	start := time.Now()
	for _, encoder := range e.cfg.Encoders {
		if _, done := rec.Searches[encoder]; done {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}

		// Mark the candidate in flight before invoking the tool, so a crash
		// during the (potentially hour-long) search resumes at this encoder.
		rec.SearchCurrent = encoder
		if err := e.store.Save(rec); err != nil {
			return err
		}

		out, err := e.searcher.Search(ctx, encoder, inputPath, opts)
		result := jobstore.SearchResult{Failed: true}
		if err != nil {
			e.log.Warn().Err(err).Str("encoder", encoder).Msg("crf search candidate failed")
		} else if crf, ratio, perr := parseOutput(out); perr != nil {
			e.log.Warn().Err(perr).Str("encoder", encoder).Msg("unparseable crf search output")
		} else if !valid(crf, ratio, e.cfg.MaxEncodedPercent) {
			e.log.Warn().Str("encoder", encoder).Int("crf", crf).Float64("ratio", ratio).
				Msg("implausible crf search result, treating candidate as failed")
		} else {
			result = jobstore.SearchResult{CRF: crf, Ratio: ratio}
		}

		rec.Searches[encoder] = result
		rec.SearchCurrent = ""
		if err := e.store.Save(rec); err != nil {
			return err
		}
	}

	// Accumulate elapsed time before picking: the manual fallback reports
	// zero search time, so its reset must win over this run's elapsed time.
	rec.SearchSeconds += time.Since(start).Seconds()
	e.pickBest(rec)
	return e.store.Save(rec)
}

// pickBest walks candidates in configured order so equal ratios resolve to
// the first-listed encoder.
func (e *Engine) pickBest(rec *jobstore.Record) {
	found := false
	var bestRatio float64

	for _, encoder := range e.cfg.Encoders {
		res, ok := rec.Searches[encoder]
		if !ok || res.Failed {
			continue
		}
		if found && res.Ratio >= bestRatio {
			continue
		}
		found = true
		bestRatio = res.Ratio
		ratio := res.Ratio
		rec.ChosenEncoder = encoder
		rec.ChosenCRF = res.CRF
		rec.PredictedRatio = &ratio
	}

	if !found {
		e.log.Info().Msg("no viable search result from any candidate; falling back to manual mode")
		e.applyManual(rec)
	}
}

func (e *Engine) applyManual(rec *jobstore.Record) {
	rec.ChosenEncoder = e.cfg.Encoders[0]
	rec.ChosenCRF = e.cfg.ManualCRF
	rec.PredictedRatio = nil
	rec.Streams.ManualMode = true
	rec.SearchCurrent = ""
	rec.SearchSeconds = 0
}
