package probe

// FormatInfo holds container-level metadata from ffprobe's format section.
type FormatInfo struct {
	Filename   string
	NbStreams  int
	FormatName string
	Duration   float64
	Size       int64
	BitRate    int64
	Tags       map[string]string
}

// VideoStream holds the parsed properties of a single video stream.
type VideoStream struct {
	Index         int
	Codec         string
	Profile       string
	Width         int
	Height        int
	BitRate       int64
	AvgFrameRate  string
	IsAttachedPic bool
}

// AudioStream holds the parsed properties of a single audio stream.
type AudioStream struct {
	Index      int
	Codec      string
	Channels   int
	SampleRate int
	BitRate    int64
	Language   string
	IsDefault  bool
}

// SubtitleStream holds the parsed properties of a single subtitle stream.
type SubtitleStream struct {
	Index    int
	Codec    string
	Language string
}

// MediaInput is the fully parsed description of one input file. Identity is
// ContentHash: it is stable across renames and moves, so resumption keys on
// it rather than on Path.
type MediaInput struct {
	Path            string
	ContentHash     string
	Size            int64
	Format          FormatInfo
	VideoStreams    []VideoStream
	AudioStreams    []AudioStream
	SubtitleStreams []SubtitleStream
}

// PrimaryVideo returns the first non-attached-pic video stream, or nil.
func (m *MediaInput) PrimaryVideo() *VideoStream {
	for i := range m.VideoStreams {
		if !m.VideoStreams[i].IsAttachedPic {
			return &m.VideoStreams[i]
		}
	}
	return nil
}

// VideoBitRate returns the primary video stream bitrate in bits/sec,
// falling back to the format-level bitrate when the stream value is
// unavailable or zero.
func (m *MediaInput) VideoBitRate() int64 {
	if v := m.PrimaryVideo(); v != nil && v.BitRate > 0 {
		return v.BitRate
	}
	return m.Format.BitRate
}

// Comment returns the container-level comment tag, used for the
// already-encoded marker check.
func (m *MediaInput) Comment() string {
	return m.Format.Tags["comment"]
}
