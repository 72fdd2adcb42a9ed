package export

import (
	"fmt"
	"math"
	"strings"

	"github.com/minicut/minicut-agent/internal/timeline"
)

// GenerateEDL renders the kept trims as a CMX3600-style cut list. Record
// times pack the segments back to back, which is what an NLE wants when
// importing a rough cut.
func GenerateEDL(trims []timeline.Trim, markers []timeline.Marker, mediaPath, title string, frameRate float64) string {
	fps := int(math.Round(frameRate))
	if fps <= 0 {
		fps = 30
	}

	isDropFrame := math.Abs(frameRate-29.97) < 0.01 || math.Abs(frameRate-59.94) < 0.01

	lines := []string{fmt.Sprintf("TITLE: %s", title)}
	if isDropFrame {
		lines = append(lines, "FCM: DROP FRAME")
	} else {
		lines = append(lines, "FCM: NON-DROP FRAME")
	}
	lines = append(lines, "")

	recordOffsetMs := 0
	for i, trim := range trims {
		startMs := int(math.Round(trim.StartTime * 1000))
		endMs := int(math.Round(trim.EndTime * 1000))
		durationMs := endMs - startMs

		srcIn := msToTimecode(startMs, fps)
		srcOut := msToTimecode(endMs, fps)
		recIn := msToTimecode(recordOffsetMs, fps)
		recOut := msToTimecode(recordOffsetMs+durationMs, fps)

		lines = append(lines,
			fmt.Sprintf("%03d  %-8s %-5s C        %s %s %s %s", i+1, "AX", "V", srcIn, srcOut, recIn, recOut),
			fmt.Sprintf("* FROM CLIP NAME:  %s", clipName(trim, markers)),
			fmt.Sprintf("* MEDIA PATH:  %s", mediaPath),
		)

		recordOffsetMs += durationMs
	}

	lines = append(lines, "")
	return strings.Join(lines, "\n")
}

// clipName prefers the trim's own name, then the name of a marker inside
// the segment, then a numbered fallback.
func clipName(trim timeline.Trim, markers []timeline.Marker) string {
	if trim.Name != "" {
		return trim.Name
	}
	for _, mk := range markers {
		if mk.Name != "" && mk.Time >= trim.StartTime && mk.Time < trim.EndTime {
			return mk.Name
		}
	}
	return fmt.Sprintf("Trim %d", trim.ID)
}

func msToTimecode(ms int, fps int) string {
	totalFrames := int(math.Round(float64(ms) * float64(fps) / 1000.0))
	frames := totalFrames % fps
	totalSeconds := totalFrames / fps
	seconds := totalSeconds % 60
	totalMinutes := totalSeconds / 60
	minutes := totalMinutes % 60
	hours := totalMinutes / 60
	return fmt.Sprintf("%02d:%02d:%02d:%02d", hours, minutes, seconds, frames)
}
