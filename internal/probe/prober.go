// Package probe runs ffprobe against input files and converts the JSON
// output into domain types, plus the sampled content hash that serves as
// each file's identity.
package probe

import (
	"context"
	"encoding/json"
	"fmt"
	"os/exec"
	"strconv"
	"strings"
)

// Prober produces a MediaInput from a path. The pipeline depends on this
// interface so tests can substitute canned metadata.
type Prober interface {
	Probe(ctx context.Context, path string) (*MediaInput, error)
}

// FFprobe is the production Prober backed by the ffprobe binary.
type FFprobe struct{}

// Probe runs a single ffprobe JSON call against path and returns the parsed
// result with the content hash filled in.
func (FFprobe) Probe(ctx context.Context, path string) (*MediaInput, error) {
	cmd := exec.CommandContext(ctx, "ffprobe",
		"-v", "quiet",
		"-print_format", "json",
		"-show_format", "-show_streams",
		path,
	)

	out, err := cmd.Output()
	if err != nil {
		return nil, fmt.Errorf("ffprobe %q: %w", path, err)
	}

	mi, err := ParseJSON(out)
	if err != nil {
		return nil, err
	}
	mi.Path = path

	hash, size, err := ContentHash(path)
	if err != nil {
		return nil, fmt.Errorf("hash %q: %w", path, err)
	}
	mi.ContentHash = hash
	mi.Size = size
	return mi, nil
}

// ParseJSON converts raw ffprobe JSON output into a MediaInput (without
// path/hash). Exported for testing without a real ffprobe binary.
func ParseJSON(data []byte) (*MediaInput, error) {
	var raw ffprobeOutput
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse ffprobe JSON: %w", err)
	}
	return buildResult(&raw), nil
}

// ParseFrameRate converts an ffprobe rational frame rate ("24000/1001") to
// a float. Returns 0 for empty, malformed, or zero-denominator values, which
// the selector treats as an invalid stream.
func ParseFrameRate(r string) float64 {
	r = strings.TrimSpace(r)
	if r == "" || r == "0/0" {
		return 0
	}
	num, den, found := strings.Cut(r, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// --- ffprobe JSON wire types ---

type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	Filename   string            `json:"filename"`
	NbStreams  int               `json:"nb_streams"`
	FormatName string            `json:"format_name"`
	Duration   string            `json:"duration"`
	Size       string            `json:"size"`
	BitRate    string            `json:"bit_rate"`
	Tags       map[string]string `json:"tags"`
}

type ffprobeStream struct {
	Index        int               `json:"index"`
	CodecName    string            `json:"codec_name"`
	CodecType    string            `json:"codec_type"`
	Profile      string            `json:"profile"`
	Width        int               `json:"width"`
	Height       int               `json:"height"`
	BitRate      string            `json:"bit_rate"`
	AvgFrameRate string            `json:"avg_frame_rate"`
	Channels     int               `json:"channels"`
	SampleRate   string            `json:"sample_rate"`
	Disposition  map[string]int    `json:"disposition"`
	Tags         map[string]string `json:"tags"`
}

// --- Conversion from wire types to domain types ---

func buildResult(raw *ffprobeOutput) *MediaInput {
	mi := &MediaInput{
		Format: convertFormat(&raw.Format),
	}

	for i := range raw.Streams {
		s := &raw.Streams[i]
		switch s.CodecType {
		case "video":
			mi.VideoStreams = append(mi.VideoStreams, convertVideo(s))
		case "audio":
			mi.AudioStreams = append(mi.AudioStreams, convertAudio(s))
		case "subtitle":
			mi.SubtitleStreams = append(mi.SubtitleStreams, convertSubtitle(s))
		}
	}
	return mi
}

func convertFormat(f *ffprobeFormat) FormatInfo {
	tags := make(map[string]string, len(f.Tags))
	for k, v := range f.Tags {
		tags[strings.ToLower(k)] = v
	}
	return FormatInfo{
		Filename:   f.Filename,
		NbStreams:  f.NbStreams,
		FormatName: f.FormatName,
		Duration:   parseFloat(f.Duration),
		Size:       parseInt64(f.Size),
		BitRate:    parseInt64(f.BitRate),
		Tags:       tags,
	}
}

func convertVideo(s *ffprobeStream) VideoStream {
	return VideoStream{
		Index:         s.Index,
		Codec:         s.CodecName,
		Profile:       s.Profile,
		Width:         s.Width,
		Height:        s.Height,
		BitRate:       parseInt64(s.BitRate),
		AvgFrameRate:  s.AvgFrameRate,
		IsAttachedPic: s.Disposition["attached_pic"] == 1,
	}
}

func convertAudio(s *ffprobeStream) AudioStream {
	return AudioStream{
		Index:      s.Index,
		Codec:      s.CodecName,
		Channels:   s.Channels,
		SampleRate: parseInt(s.SampleRate),
		BitRate:    parseInt64(s.BitRate),
		Language:   strings.ToLower(s.Tags["language"]),
		IsDefault:  s.Disposition["default"] == 1,
	}
}

func convertSubtitle(s *ffprobeStream) SubtitleStream {
	return SubtitleStream{
		Index:    s.Index,
		Codec:    s.CodecName,
		Language: strings.ToLower(s.Tags["language"]),
	}
}

// --- Numeric parsing helpers (ffprobe returns numbers as strings) ---

func parseInt64(s string) int64 {
	s = strings.TrimSpace(s)
	n, _ := strconv.ParseInt(s, 10, 64)
	return n
}

func parseFloat(s string) float64 {
	s = strings.TrimSpace(s)
	f, _ := strconv.ParseFloat(s, 64)
	return f
}

func parseInt(s string) int {
	s = strings.TrimSpace(s)
	n, _ := strconv.Atoi(s)
	return n
}
