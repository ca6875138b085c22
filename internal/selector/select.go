package selector

import (
	"context"
	"strings"
	"time"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/langdetect"
	"github.com/backmassage/shrinkwrap/internal/probe"
	"github.com/rs/zerolog"
)

// undeterminedTags are language tag values that carry no information and
// trigger detection for audio (and silent dropping for subtitles).
var undeterminedTags = map[string]bool{
	"":    true,
	"und": true,
	"mis": true,
}

// SelectStreams resolves which video, audio, and subtitle streams are
// carried into the output.
//
//   - Video: streams with a valid (parseable, non-zero) frame rate and a
//     codec not on the skip list.
//   - Audio: single-stream pass-through when usable; multi-stream inputs are
//     filtered per stream. Language acceptance may consult the external
//     detector when the tag is absent or undetermined. An empty result is
//     NoSuitableAudio unless video-only output is allowed.
//   - Subtitles: only streams with an explicit allow-listed tag; undetermined
//     tags are dropped silently.
//
// The detector is the only external collaborator; everything else is pure.
func SelectStreams(ctx context.Context, cfg *config.Config, mi *probe.MediaInput, det langdetect.Detector, log zerolog.Logger) (jobstore.Selection, Outcome) {
	var sel jobstore.Selection

	sel.Video = selectVideo(cfg, mi)
	if len(sel.Video) == 0 {
		return sel, fail(CondNoStreamsFound, "no usable video streams after filtering")
	}

	audio, out := selectAudio(ctx, cfg, mi, det, log)
	if out.Verdict != Proceed {
		return sel, out
	}
	sel.Audio = audio

	sel.Subtitle = selectSubtitles(cfg, mi)
	return sel, Ok
}

func selectVideo(cfg *config.Config, mi *probe.MediaInput) []int {
	var keep []int
	for _, v := range mi.VideoStreams {
		if v.IsAttachedPic {
			continue
		}
		if probe.ParseFrameRate(v.AvgFrameRate) <= 0 {
			continue
		}
		if codecOnList(v.Codec, cfg.VideoCodecSkip) {
			continue
		}
		keep = append(keep, v.Index)
	}
	return keep
}

func selectAudio(ctx context.Context, cfg *config.Config, mi *probe.MediaInput, det langdetect.Detector, log zerolog.Logger) ([]int, Outcome) {
	streams := mi.AudioStreams

	if len(streams) == 0 {
		if cfg.AllowNoAudio {
			return nil, Ok
		}
		return nil, fail(CondNoSuitableAudio, "input has no audio streams")
	}

	// Single-stream pass-through: a lone stream is kept unless it fails the
	// hard validity checks (unusable sample rate, unacceptable language).
	if len(streams) == 1 {
		a := streams[0]
		if a.SampleRate >= cfg.MinAudioSampleRate && audioLanguageOK(ctx, cfg, mi, a, det, log) {
			return []int{a.Index}, Ok
		}
		if cfg.AllowNoAudio {
			return nil, Ok
		}
		return nil, fail(CondNoSuitableAudio, "sole audio stream unusable (codec %s, %d Hz, lang %q)",
			a.Codec, a.SampleRate, a.Language)
	}

	var keep []int
	for _, a := range streams {
		if a.SampleRate < cfg.MinAudioSampleRate {
			continue
		}
		if !audioLanguageOK(ctx, cfg, mi, a, det, log) {
			continue
		}
		keep = append(keep, a.Index)
	}
	if len(keep) == 0 {
		if cfg.AllowNoAudio {
			return nil, Ok
		}
		return nil, fail(CondNoSuitableAudio, "no audio stream passed the sample-rate/language filter")
	}
	return keep, Ok
}

// audioLanguageOK checks the stream's tag against the allow-list, invoking
// the external detector only when the tag carries no information.
func audioLanguageOK(ctx context.Context, cfg *config.Config, mi *probe.MediaInput, a probe.AudioStream, det langdetect.Detector, log zerolog.Logger) bool {
	tag := strings.ToLower(a.Language)
	if !undeterminedTags[tag] {
		return languageAllowed(tag, cfg.LanguageAllowList)
	}

	if det == nil {
		// No detector wired (e.g. dry run): an unknown tag is accepted so we
		// never drop the only audio track on missing metadata alone.
		return true
	}

	duration := time.Duration(mi.Format.Duration * float64(time.Second))
	window := time.Duration(cfg.DetectWindowSec) * time.Second
	lang, err := langdetect.Majority(ctx, det, mi.Path, a.Index, duration, cfg.DetectWindows, window)
	if err != nil {
		log.Warn().Err(err).Int("stream", a.Index).Msg("language detection failed; accepting stream")
		return true
	}

	log.Debug().Int("stream", a.Index).Str("lang", lang).Msg("detected audio language")
	return languageAllowed(lang, cfg.LanguageAllowList)
}

func selectSubtitles(cfg *config.Config, mi *probe.MediaInput) []int {
	var keep []int
	for _, s := range mi.SubtitleStreams {
		tag := strings.ToLower(s.Language)
		if undeterminedTags[tag] {
			continue
		}
		if languageAllowed(tag, cfg.LanguageAllowList) {
			keep = append(keep, s.Index)
		}
	}
	return keep
}

func languageAllowed(tag string, allowList []string) bool {
	for _, allowed := range allowList {
		if strings.EqualFold(tag, allowed) {
			return true
		}
	}
	return false
}

func codecOnList(codec string, list []string) bool {
	for _, c := range list {
		if strings.EqualFold(codec, c) {
			return true
		}
	}
	return false
}
