package ffmpeg

import (
	"bufio"
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	xdraw "golang.org/x/image/draw"

	"github.com/minicut/minicut-agent/internal/logging"
)

const (
	maxStderrBytes = 8 * 1024 // 8 KB tail of stderr kept for diagnostics
	thumbMaxDim    = 320
	thumbQuality   = 80
)

// Subprocess is the production FFmpeg implementation, shelling out to the
// resolved ffmpeg/ffprobe binaries.
type Subprocess struct {
	cfg     Config
	ffmpeg  string
	ffprobe string

	nvencOnce sync.Once
	nvenc     bool
}

// NewSubprocess resolves both binaries and prepares the scratch directory.
func NewSubprocess(cfg Config) (*Subprocess, error) {
	ffmpegBin, err := resolveBinary(cfg.FFmpegPath, "ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffmpeg: %w", err)
	}
	ffprobeBin, err := resolveBinary(cfg.FFprobePath, "ffprobe")
	if err != nil {
		return nil, fmt.Errorf("cannot locate ffprobe: %w", err)
	}
	if err := os.MkdirAll(cfg.TempDir, 0755); err != nil {
		return nil, fmt.Errorf("cannot create temp dir: %w", err)
	}

	cfg.Logger.Info("media backend initialised",
		"ffmpeg", ffmpegBin,
		"ffprobe", ffprobeBin,
		"temp_dir", cfg.TempDir,
	)
	return &Subprocess{cfg: cfg, ffmpeg: ffmpegBin, ffprobe: ffprobeBin}, nil
}

// resolveBinary finds a usable binary: explicit path first, then a bundled
// ffmpeg/ directory next to the agent executable, then PATH.
func resolveBinary(preferred, name string) (string, error) {
	if preferred != "" {
		if p, err := exec.LookPath(preferred); err == nil {
			return p, nil
		}
		return "", fmt.Errorf("configured %s %q not found", name, preferred)
	}
	if exe, err := os.Executable(); err == nil {
		bundled := filepath.Join(filepath.Dir(exe), "ffmpeg", name)
		if _, err := os.Stat(bundled); err == nil {
			return bundled, nil
		}
	}
	if p, err := exec.LookPath(name); err == nil {
		return p, nil
	}
	return "", fmt.Errorf("no %s binary found on PATH", name)
}

func (s *Subprocess) Probe(ctx context.Context, path string) (*ProbeResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ProbeTimeout)
	defer cancel()

	out, stderrTail, err := s.capture(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", "v:0",
		"-show_entries", "stream=codec_name,width,height,r_frame_rate,duration",
		"-show_entries", "format=duration,bit_rate",
		"-of", "csv=p=0",
		path,
	)
	if err != nil {
		return nil, fmt.Errorf("ffprobe failed for %s: %w: %s",
			logging.SanitizePath(path), err, stderrTail)
	}

	result, err := parseProbeOutput(out)
	if err != nil {
		return nil, fmt.Errorf("probe of %s: %w", logging.SanitizePath(path), err)
	}

	result.Container = strings.TrimPrefix(filepath.Ext(path), ".")
	if st, err := os.Stat(path); err == nil {
		result.SizeBytes = st.Size()
	}
	// The audio stream needs its own pass; files without audio leave the
	// codec empty.
	if audio, _, err := s.capture(ctx, s.ffprobe,
		"-v", "error",
		"-select_streams", "a:0",
		"-show_entries", "stream=codec_name",
		"-of", "csv=p=0",
		path,
	); err == nil {
		result.AudioCodec = strings.TrimSpace(audio)
	}

	s.cfg.Logger.Debug("probed file",
		"path", logging.SanitizePath(path),
		"duration", result.Duration,
		"width", result.Width,
		"height", result.Height,
	)
	return &result, nil
}

func (s *Subprocess) ExtractFrame(ctx context.Context, path string, timestamp float64) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ExtractTimeout)
	defer cancel()

	framePath := filepath.Join(s.cfg.TempDir,
		fmt.Sprintf("frame_%d_%d.jpg", os.Getpid(), time.Now().UnixNano()))
	defer os.Remove(framePath)

	_, stderrTail, err := s.capture(ctx, s.ffmpeg,
		"-ss", strconv.FormatFloat(timestamp, 'f', 3, 64),
		"-i", path,
		"-vframes", "1",
		"-q:v", "5",
		"-y",
		framePath,
	)
	if err != nil {
		return nil, fmt.Errorf("frame extraction at %.3fs failed: %w: %s",
			timestamp, err, stderrTail)
	}

	data, err := os.ReadFile(framePath)
	if err != nil {
		return nil, fmt.Errorf("cannot read extracted frame: %w", err)
	}
	return downscaleJPEG(data, thumbMaxDim)
}

func (s *Subprocess) Filmstrip(ctx context.Context, path string, duration float64, count int) ([][]byte, error) {
	if count <= 0 || duration <= 0 {
		return nil, fmt.Errorf("invalid filmstrip request: count=%d duration=%v", count, duration)
	}
	interval := duration / float64(count)

	frames := make([][]byte, count)
	for i := 0; i < count; i++ {
		if err := ctx.Err(); err != nil {
			return frames, err
		}
		frame, err := s.ExtractFrame(ctx, path, float64(i)*interval)
		if err != nil {
			s.cfg.Logger.Warn("filmstrip frame failed",
				"index", i, "error", err)
			continue
		}
		frames[i] = frame
	}
	return frames, nil
}

func (s *Subprocess) DetectScenes(ctx context.Context, path string, threshold float64) ([]float64, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.DetectTimeout)
	defer cancel()

	if threshold <= 0 {
		threshold = 0.3
	}
	filter := fmt.Sprintf("select='gt(scene,%g)',showinfo", threshold)

	// showinfo reports to stderr; the null muxer discards the frames.
	_, stderrTail, err := s.captureAll(ctx, s.ffmpeg,
		"-i", path,
		"-vf", filter,
		"-f", "null",
		"-",
	)
	if err != nil {
		return nil, fmt.Errorf("scene detection failed for %s: %w",
			logging.SanitizePath(path), err)
	}

	times := parseSceneTimes(stderrTail)
	s.cfg.Logger.Info("scene detection complete",
		"path", logging.SanitizePath(path),
		"threshold", threshold,
		"cuts", len(times),
	)
	return times, nil
}

func (s *Subprocess) Convert(ctx context.Context, req ConvertRequest, onProgress ProgressFunc) (*ConvertResult, error) {
	ctx, cancel := context.WithTimeout(ctx, s.cfg.ConvertTimeout)
	defer cancel()

	if onProgress == nil {
		onProgress = func(float64, string) {}
	}

	switch req.Format {
	case FormatVideo:
		return s.convertVideo(ctx, req, onProgress)
	case FormatWebP:
		return s.convertWebP(ctx, req, onProgress)
	default:
		return nil, fmt.Errorf("unknown conversion format %q", req.Format)
	}
}

func (s *Subprocess) convertVideo(ctx context.Context, req ConvertRequest, onProgress ProgressFunc) (*ConvertResult, error) {
	onProgress(0, "analyzing")

	info, err := s.Probe(ctx, req.Input)
	if err != nil {
		return nil, err
	}

	bitrateK := videoBitrateKbps(req.TargetBytes, info.Duration)
	filter := scaleFilter(info.Width, info.Height)
	outputPath := outputPathFor(req.Input, req.OutputName, "_converted.mp4")

	metaPath := ""
	if len(req.Chapters) > 0 {
		metaPath = outputPath + ".ffmeta"
		if err := os.WriteFile(metaPath, []byte(renderFFMetadata(req.Chapters)), 0644); err != nil {
			return nil, fmt.Errorf("cannot write chapter metadata: %w", err)
		}
		defer os.Remove(metaPath)
	}

	onProgress(5, "converting")

	if s.nvencAvailable(ctx) {
		err = s.encodeNVENC(ctx, req.Input, outputPath, metaPath, bitrateK, filter, info.Duration, onProgress)
	} else {
		err = s.encodeX264TwoPass(ctx, req.Input, outputPath, metaPath, bitrateK, filter, info.Duration, onProgress)
	}
	if err != nil {
		return nil, err
	}

	size := int64(0)
	if st, statErr := os.Stat(outputPath); statErr == nil {
		size = st.Size()
	}
	onProgress(100, "completed")

	s.cfg.Logger.Info("video conversion complete",
		"output", logging.SanitizePath(outputPath),
		"target_bytes", req.TargetBytes,
		"output_bytes", size,
		"bitrate_kbps", bitrateK,
	)
	return &ConvertResult{OutputPath: outputPath, OutputSize: size}, nil
}

// nvencAvailable probes the encoder list once per process.
func (s *Subprocess) nvencAvailable(ctx context.Context) bool {
	s.nvencOnce.Do(func() {
		out, _, err := s.capture(ctx, s.ffmpeg, "-hide_banner", "-encoders")
		s.nvenc = err == nil && strings.Contains(out, "h264_nvenc")
		s.cfg.Logger.Info("hardware encoder probe", "nvenc", s.nvenc)
	})
	return s.nvenc
}

func (s *Subprocess) encodeNVENC(ctx context.Context, input, output, metaPath string, bitrateK int, filter string, duration float64, onProgress ProgressFunc) error {
	args := []string{"-y", "-i", input}
	args = append(args, metadataArgs(metaPath)...)
	args = append(args,
		"-c:v", "h264_nvenc",
		"-preset", "p7",
		"-tune", "hq",
		"-rc", "vbr",
		"-b:v", fmt.Sprintf("%dk", bitrateK),
		"-maxrate", fmt.Sprintf("%dk", bitrateK*3/2),
		"-bufsize", fmt.Sprintf("%dk", bitrateK*2),
		"-profile:v", "high",
		"-vf", filter,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		output,
	)
	return s.runWithProgress(ctx, args, duration, func(p float64) {
		onProgress(5+p*0.95, "converting")
	})
}

func (s *Subprocess) encodeX264TwoPass(ctx context.Context, input, output, metaPath string, bitrateK int, filter string, duration float64, onProgress ProgressFunc) error {
	rate := []string{
		"-b:v", fmt.Sprintf("%dk", bitrateK),
		"-maxrate", fmt.Sprintf("%dk", bitrateK*3/2),
		"-bufsize", fmt.Sprintf("%dk", bitrateK*2),
	}

	pass1 := []string{"-y", "-i", input, "-c:v", "libx264", "-preset", "slow"}
	pass1 = append(pass1, rate...)
	pass1 = append(pass1,
		"-vf", filter,
		"-pass", "1",
		"-passlogfile", output,
		"-an",
		"-f", "null",
		os.DevNull,
	)
	if err := s.runWithProgress(ctx, pass1, duration, func(p float64) {
		onProgress(5+p*0.45, "converting")
	}); err != nil {
		return err
	}

	pass2 := []string{"-y", "-i", input}
	pass2 = append(pass2, metadataArgs(metaPath)...)
	pass2 = append(pass2, "-c:v", "libx264", "-preset", "slow")
	pass2 = append(pass2, rate...)
	pass2 = append(pass2,
		"-vf", filter,
		"-pass", "2",
		"-passlogfile", output,
		"-c:a", "aac",
		"-b:a", "128k",
		"-movflags", "+faststart",
		output,
	)
	err := s.runWithProgress(ctx, pass2, duration, func(p float64) {
		onProgress(50+p*0.50, "converting")
	})

	os.Remove(output + "-0.log")
	os.Remove(output + "-0.log.mbtree")
	return err
}

func metadataArgs(metaPath string) []string {
	if metaPath == "" {
		return nil
	}
	return []string{"-i", metaPath, "-map_metadata", "1"}
}

func (s *Subprocess) convertWebP(ctx context.Context, req ConvertRequest, onProgress ProgressFunc) (*ConvertResult, error) {
	onProgress(0, "analyzing")

	info, err := s.Probe(ctx, req.Input)
	if err != nil {
		return nil, err
	}

	effectiveDuration := info.Duration
	if req.TrimDuration != nil {
		effectiveDuration = *req.TrimDuration
	}
	outputPath := outputPathFor(req.Input, req.OutputName, ".webp")

	var finalSize int64
	for i, tier := range webpTiers {
		base := float64(i) / float64(len(webpTiers)) * 90.0
		chunk := 90.0 / float64(len(webpTiers))
		onProgress(base, "converting")

		os.Remove(outputPath)

		args := []string{"-y"}
		if req.TrimStart != nil {
			fast, accurate := splitSeek(*req.TrimStart)
			args = append(args, "-ss", fast, "-i", req.Input)
			if accurate != "" {
				args = append(args, "-ss", accurate)
			}
		} else {
			args = append(args, "-i", req.Input)
		}
		if req.TrimDuration != nil {
			args = append(args, "-t", strconv.FormatFloat(*req.TrimDuration, 'f', 3, 64))
		}
		args = append(args,
			"-vf", webpFilter(tier),
			"-vcodec", "libwebp",
			"-lossless", "0",
			"-compression_level", "4",
			"-quality", strconv.Itoa(tier.quality),
			"-loop", "0",
			"-an",
			outputPath,
		)

		if err := s.runWithProgress(ctx, args, effectiveDuration, func(p float64) {
			onProgress(base+p/100.0*chunk, "converting")
		}); err != nil {
			return nil, err
		}

		finalSize = 0
		if st, statErr := os.Stat(outputPath); statErr == nil {
			finalSize = st.Size()
		}
		// A 10% overshoot still counts: the next tier down costs real
		// quality for little size.
		if finalSize <= req.TargetBytes*11/10 {
			break
		}
	}

	onProgress(100, "completed")
	s.cfg.Logger.Info("webp conversion complete",
		"output", logging.SanitizePath(outputPath),
		"target_bytes", req.TargetBytes,
		"output_bytes", finalSize,
	)
	return &ConvertResult{OutputPath: outputPath, OutputSize: finalSize}, nil
}

// runWithProgress runs ffmpeg with `-progress pipe:1` prepended and feeds
// parsed completion percentages to onProgress.
func (s *Subprocess) runWithProgress(ctx context.Context, args []string, duration float64, onProgress func(percent float64)) error {
	full := append([]string{"-progress", "pipe:1", "-nostats"}, args...)

	cmd := exec.CommandContext(ctx, s.ffmpeg, full...)
	var stderrBuf bytes.Buffer
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("cannot attach progress pipe: %w", err)
	}
	if err := cmd.Start(); err != nil {
		return fmt.Errorf("cannot spawn ffmpeg: %w", err)
	}

	scanner := bufio.NewScanner(stdout)
	for scanner.Scan() {
		if elapsed, ok := parseOutTimeUS(scanner.Text()); ok && duration > 0 {
			pct := elapsed / duration * 100.0
			if pct > 100 {
				pct = 100
			}
			onProgress(pct)
		}
	}

	if err := cmd.Wait(); err != nil {
		return fmt.Errorf("ffmpeg exited: %w: %s", err, stderrBuf.String())
	}
	onProgress(100)
	return nil
}

// capture runs a command and returns trimmed stdout plus a bounded stderr
// tail.
func (s *Subprocess) capture(ctx context.Context, bin string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderrBuf bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &limitedWriter{w: &stderrBuf, limit: maxStderrBytes}

	err := cmd.Run()
	return strings.TrimSpace(stdout.String()), stderrBuf.String(), err
}

// captureAll is capture for commands whose payload arrives on stderr; a
// bounded tail would drop the showinfo lines, so stderr is kept whole.
func (s *Subprocess) captureAll(ctx context.Context, bin string, args ...string) (string, string, error) {
	cmd := exec.CommandContext(ctx, bin, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	return stdout.String(), stderr.String(), err
}

// outputPathFor places the output next to the input. An explicit name
// replaces the derived stem and takes only the suffix's extension; it is
// reduced to a bare base name so a request cannot steer the encode outside
// the input's directory.
func outputPathFor(input, name, suffix string) string {
	if name != "" {
		name = filepath.Base(name)
		name = strings.TrimSuffix(name, filepath.Ext(name))
		if name != "" && name != "." {
			return filepath.Join(filepath.Dir(input), name+filepath.Ext(suffix))
		}
	}
	stem := strings.TrimSuffix(filepath.Base(input), filepath.Ext(input))
	if stem == "" {
		stem = "output"
	}
	return filepath.Join(filepath.Dir(input), stem+suffix)
}

// downscaleJPEG resizes a frame to fit thumb dimensions. Frames already
// small enough pass through untouched.
func downscaleJPEG(data []byte, maxDim int) ([]byte, error) {
	img, err := jpeg.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("cannot decode frame: %w", err)
	}
	bounds := img.Bounds()
	w, h := bounds.Dx(), bounds.Dy()
	if w <= maxDim && h <= maxDim {
		return data, nil
	}

	scale := float64(maxDim) / float64(w)
	if h > w {
		scale = float64(maxDim) / float64(h)
	}
	dw := int(float64(w) * scale)
	dh := int(float64(h) * scale)
	if dw < 1 {
		dw = 1
	}
	if dh < 1 {
		dh = 1
	}

	dst := image.NewRGBA(image.Rect(0, 0, dw, dh))
	xdraw.CatmullRom.Scale(dst, dst.Bounds(), img, bounds, xdraw.Src, nil)

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, dst, &jpeg.Options{Quality: thumbQuality}); err != nil {
		return nil, fmt.Errorf("cannot re-encode frame: %w", err)
	}
	return buf.Bytes(), nil
}

// limitedWriter keeps only the last `limit` bytes written.
type limitedWriter struct {
	w     *bytes.Buffer
	limit int
}

func (lw *limitedWriter) Write(p []byte) (int, error) {
	n := len(p)
	lw.w.Write(p)
	if lw.w.Len() > lw.limit {
		b := lw.w.Bytes()
		lw.w.Reset()
		lw.w.Write(b[len(b)-lw.limit:])
	}
	return n, nil
}
