package probe

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const sampleJSON = `{
  "format": {
    "filename": "movie.mkv",
    "nb_streams": 3,
    "format_name": "matroska,webm",
    "duration": "5400.123",
    "size": "4294967296",
    "bit_rate": "6361000",
    "tags": {"COMMENT": "shrinkwrap", "title": "Movie"}
  },
  "streams": [
    {
      "index": 0,
      "codec_name": "h264",
      "codec_type": "video",
      "profile": "High",
      "width": 1920,
      "height": 1080,
      "bit_rate": "5800000",
      "avg_frame_rate": "24000/1001",
      "disposition": {"attached_pic": 0}
    },
    {
      "index": 1,
      "codec_name": "aac",
      "codec_type": "audio",
      "channels": 6,
      "sample_rate": "48000",
      "bit_rate": "384000",
      "disposition": {"default": 1},
      "tags": {"language": "ENG"}
    },
    {
      "index": 2,
      "codec_name": "subrip",
      "codec_type": "subtitle",
      "tags": {"language": "eng"}
    }
  ]
}`

func TestParseJSON(t *testing.T) {
	mi, err := ParseJSON([]byte(sampleJSON))
	require.NoError(t, err)

	assert.Equal(t, 5400.123, mi.Format.Duration)
	assert.Equal(t, int64(4294967296), mi.Format.Size)
	assert.Equal(t, int64(6361000), mi.Format.BitRate)
	assert.Equal(t, "shrinkwrap", mi.Comment(), "format tag keys are lowercased")

	require.Len(t, mi.VideoStreams, 1)
	v := mi.VideoStreams[0]
	assert.Equal(t, 0, v.Index)
	assert.Equal(t, "h264", v.Codec)
	assert.Equal(t, int64(5800000), v.BitRate)
	assert.False(t, v.IsAttachedPic)

	require.Len(t, mi.AudioStreams, 1)
	a := mi.AudioStreams[0]
	assert.Equal(t, 1, a.Index)
	assert.Equal(t, 48000, a.SampleRate)
	assert.Equal(t, "eng", a.Language, "language tags are lowercased")
	assert.True(t, a.IsDefault)

	require.Len(t, mi.SubtitleStreams, 1)
	assert.Equal(t, "eng", mi.SubtitleStreams[0].Language)
}

func TestParseJSONInvalid(t *testing.T) {
	_, err := ParseJSON([]byte("not json"))
	assert.Error(t, err)
}

func TestParseFrameRate(t *testing.T) {
	tests := []struct {
		in   string
		want float64
	}{
		{"24000/1001", 23.976023976023978},
		{"25/1", 25},
		{"30", 30},
		{"0/0", 0},
		{"", 0},
		{"abc/def", 0},
		{"25/0", 0},
		{" 24/1 ", 24},
	}
	for _, tt := range tests {
		assert.InDelta(t, tt.want, ParseFrameRate(tt.in), 1e-9, "input %q", tt.in)
	}
}

func TestVideoBitRateFallsBackToFormat(t *testing.T) {
	mi, err := ParseJSON([]byte(`{
	  "format": {"bit_rate": "1200000"},
	  "streams": [{"index": 0, "codec_type": "video", "codec_name": "h264", "avg_frame_rate": "25/1"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, int64(1200000), mi.VideoBitRate())
}

func TestPrimaryVideoSkipsAttachedPics(t *testing.T) {
	mi, err := ParseJSON([]byte(`{
	  "format": {},
	  "streams": [
	    {"index": 0, "codec_type": "video", "codec_name": "mjpeg", "disposition": {"attached_pic": 1}},
	    {"index": 1, "codec_type": "video", "codec_name": "h264", "avg_frame_rate": "25/1"}
	  ]
	}`))
	require.NoError(t, err)
	v := mi.PrimaryVideo()
	require.NotNil(t, v)
	assert.Equal(t, 1, v.Index)
}
