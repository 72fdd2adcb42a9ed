package ffmpeg

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
)

// parseProbeOutput reads the csv emitted by
//
//	-show_entries stream=codec_name,width,height,r_frame_rate,duration
//	-show_entries format=duration,bit_rate
//
// The stream line carries five fields; the format line one or two. Stream
// duration is often N/A for fragmented containers, so the format duration
// fills in when the stream gives nothing.
func parseProbeOutput(out string) (ProbeResult, error) {
	var r ProbeResult

	for _, line := range strings.Split(strings.TrimSpace(out), "\n") {
		parts := strings.Split(strings.TrimSpace(line), ",")

		if len(parts) >= 4 {
			w, werr := strconv.Atoi(parts[1])
			h, herr := strconv.Atoi(parts[2])
			if werr != nil || herr != nil {
				continue
			}
			r.Codec = parts[0]
			r.Width = w
			r.Height = h
			r.FrameRate = parseFrameRate(parts[3])
			if len(parts) >= 5 {
				if d, err := strconv.ParseFloat(parts[4], 64); err == nil {
					r.Duration = d
				}
			}
			continue
		}

		if d, err := strconv.ParseFloat(parts[0], 64); err == nil && r.Duration == 0 {
			r.Duration = d
		}
		if len(parts) >= 2 {
			if b, err := strconv.ParseInt(parts[1], 10, 64); err == nil {
				r.Bitrate = b
			}
		}
	}

	if r.Duration == 0 {
		return r, fmt.Errorf("could not determine video duration")
	}
	return r, nil
}

// parseFrameRate converts ffprobe's rational rate ("30000/1001") to fps.
func parseFrameRate(s string) float64 {
	num, den, ok := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !ok {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// parseSceneTimes pulls pts_time values out of showinfo stderr lines:
//
//	[Parsed_showinfo_1 @ 0x...] n:   0 pts:  12012 pts_time:0.500417 ...
//
// Timestamps at or below 0.1s are dropped; the filter flags the very first
// frame of most files as a scene change.
func parseSceneTimes(stderr string) []float64 {
	var times []float64
	for _, line := range strings.Split(stderr, "\n") {
		idx := strings.Index(line, "pts_time:")
		if idx < 0 {
			continue
		}
		rest := line[idx+len("pts_time:"):]
		if end := strings.IndexFunc(rest, func(r rune) bool { return r == ' ' || r == '\t' }); end >= 0 {
			rest = rest[:end]
		}
		t, err := strconv.ParseFloat(rest, 64)
		if err != nil || t <= 0.1 {
			continue
		}
		times = append(times, t)
	}
	sort.Float64s(times)
	return times
}

// parseOutTimeUS reads one `-progress pipe:1` key/value line and returns the
// elapsed output time in seconds.
func parseOutTimeUS(line string) (float64, bool) {
	val, ok := strings.CutPrefix(strings.TrimSpace(line), "out_time_us=")
	if !ok {
		return 0, false
	}
	us, err := strconv.ParseFloat(val, 64)
	if err != nil || us < 0 {
		return 0, false
	}
	return us / 1e6, true
}

// videoBitrateKbps budgets the video stream for a target output size: total
// bits over the duration, minus a 128 kbps audio reservation, floored at
// 100 kbps so pathological targets still produce a playable file.
func videoBitrateKbps(targetBytes int64, duration float64) int {
	total := float64(targetBytes) * 8.0 / duration
	video := total - 128_000.0
	if video < 100_000.0 {
		video = 100_000.0
	}
	return int(video / 1000.0)
}

// scaleFilter caps output at 1080p and guarantees even dimensions, which
// libx264 requires.
func scaleFilter(width, height int) string {
	switch {
	case height > 1080:
		return "scale=-2:1080"
	case width > 1920:
		return "scale=1920:-2"
	default:
		return "scale=trunc(iw/2)*2:trunc(ih/2)*2"
	}
}

// splitSeek breaks a trim start into a fast keyframe seek (whole seconds,
// placed before -i) and an accurate decode seek (the fraction, placed after
// -i). Sub-millisecond fractions are not worth an accurate seek.
func splitSeek(start float64) (fast string, accurate string) {
	whole := float64(int64(start))
	frac := start - whole
	fast = strconv.FormatInt(int64(whole), 10)
	if frac > 0.001 {
		accurate = strconv.FormatFloat(frac, 'f', 3, 64)
	}
	return fast, accurate
}

// webpTier is one rung of the quality ladder: dimensions and frame rate drop
// until the output fits the target. Frame rate never goes below 20.
type webpTier struct {
	maxDim  int
	fps     int
	quality int
}

var webpTiers = []webpTier{
	{600, 30, 70},
	{600, 24, 65},
	{500, 20, 60},
	{400, 20, 55},
	{350, 20, 50},
	{300, 20, 45},
}

func webpFilter(t webpTier) string {
	return fmt.Sprintf(
		"scale='min(%d,iw)':'min(%d,ih)':force_original_aspect_ratio=decrease,scale=trunc(iw/2)*2:trunc(ih/2)*2,fps=%d",
		t.maxDim, t.maxDim, t.fps)
}

// renderFFMetadata builds an ffmetadata chapter file. Values escape the
// characters the format treats specially.
func renderFFMetadata(chapters []Chapter) string {
	var b strings.Builder
	b.WriteString(";FFMETADATA1\n")
	for _, ch := range chapters {
		b.WriteString("[CHAPTER]\n")
		b.WriteString("TIMEBASE=1/1000\n")
		fmt.Fprintf(&b, "START=%d\n", int64(ch.Start*1000))
		fmt.Fprintf(&b, "END=%d\n", int64(ch.End*1000))
		fmt.Fprintf(&b, "title=%s\n", escapeMetadataValue(ch.Title))
	}
	return b.String()
}

func escapeMetadataValue(s string) string {
	r := strings.NewReplacer(
		`\`, `\\`,
		"=", `\=`,
		";", `\;`,
		"#", `\#`,
		"\n", `\`+"\n",
	)
	return r.Replace(s)
}
