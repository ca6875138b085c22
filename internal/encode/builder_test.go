package encode

import (
	"strings"
	"testing"

	"github.com/backmassage/shrinkwrap/internal/config"
	"github.com/backmassage/shrinkwrap/internal/jobstore"
	"github.com/backmassage/shrinkwrap/internal/probe"
	"github.com/stretchr/testify/assert"
)

func builderConfig() *config.Config {
	cfg := config.DefaultConfig()
	return &cfg
}

func builderRecord() *jobstore.Record {
	rec := jobstore.New("h1")
	rec.ChosenEncoder = "libx265"
	rec.ChosenCRF = 24
	rec.Streams = jobstore.Selection{Video: []int{0}, Audio: []int{1}, Subtitle: []int{3}}
	return rec
}

func builderInput() *probe.MediaInput {
	return &probe.MediaInput{Path: "/in/movie.mkv"}
}

func TestBuildArgsMP4(t *testing.T) {
	args := BuildArgs(builderConfig(), builderInput(), builderRecord(), config.ContainerMP4, "/tmp/out.mp4")
	joined := strings.Join(args, " ")

	assert.Equal(t, "ffmpeg", args[0])
	assert.Contains(t, joined, "-i /in/movie.mkv")
	assert.Contains(t, joined, "-map 0:0")
	assert.Contains(t, joined, "-map 0:1")
	assert.Contains(t, joined, "-map 0:3")
	assert.Contains(t, joined, "-c:v libx265 -crf 24")
	assert.Contains(t, joined, "-c:a copy")
	assert.Contains(t, joined, "-c:s mov_text", "mp4 cannot carry copied text subtitles")
	assert.Contains(t, joined, "-metadata comment=shrinkwrap")
	assert.Contains(t, joined, "-movflags +faststart")
	assert.Equal(t, "/tmp/out.mp4", args[len(args)-1])
	assert.NotContains(t, joined, "-an")
}

func TestBuildArgsMKV(t *testing.T) {
	args := BuildArgs(builderConfig(), builderInput(), builderRecord(), config.ContainerMKV, "/tmp/out.mkv")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-c:s copy")
	assert.NotContains(t, joined, "mov_text")
	assert.NotContains(t, joined, "faststart")
}

func TestBuildArgsNoAudio(t *testing.T) {
	rec := builderRecord()
	rec.Streams.Audio = nil
	rec.Streams.Subtitle = nil
	args := BuildArgs(builderConfig(), builderInput(), rec, config.ContainerMP4, "/tmp/out.mp4")
	joined := strings.Join(args, " ")

	assert.Contains(t, joined, "-an")
	assert.NotContains(t, joined, "-c:a")
	assert.NotContains(t, joined, "-c:s")
}

func TestBuildArgsExplicitMapsOnly(t *testing.T) {
	args := BuildArgs(builderConfig(), builderInput(), builderRecord(), config.ContainerMP4, "/tmp/out.mp4")
	maps := 0
	for _, a := range args {
		if a == "-map" {
			maps++
		}
	}
	assert.Equal(t, 3, maps, "every carried stream is mapped explicitly")
}

func TestIncrement(t *testing.T) {
	tests := []struct {
		overshoot float64
		want      int
	}{
		{1.01, 3}, // barely over still bumps by the minimum
		{1.1, 4},
		{1.5, 8},
		{2.0, 13},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, Increment(tt.overshoot), "overshoot %.2f", tt.overshoot)
	}
}
