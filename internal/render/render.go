// Package render invokes the external composition step that turns a source
// image or video plus a trim window into a new clip. The core treats it as
// one synchronous call.
package render

import (
	"context"
	"fmt"
	"os/exec"
	"strconv"

	"mediachat/internal/models"
)

// EditInput names the source, the trim window and where the rendered clip
// must land. Paths are absolute; URL mapping happens in the caller.
type EditInput struct {
	SourcePath string
	Kind       models.MediaKind
	StartSec   float64
	EndSec     float64
	OutputPath string
}

type Renderer interface {
	RenderEdit(ctx context.Context, in EditInput) error
}

// FFmpeg renders edits by shelling out to an ffmpeg binary. Video sources
// are trimmed to the window; image sources are held for its duration.
type FFmpeg struct {
	binary string
}

func NewFFmpeg() *FFmpeg {
	return &FFmpeg{binary: "ffmpeg"}
}

func (f *FFmpeg) RenderEdit(ctx context.Context, in EditInput) error {
	if in.EndSec <= in.StartSec {
		return fmt.Errorf("invalid trim window: start %.2f, end %.2f", in.StartSec, in.EndSec)
	}

	var args []string
	switch in.Kind {
	case models.MediaVideo:
		args = []string{
			"-y",
			"-ss", formatSec(in.StartSec),
			"-to", formatSec(in.EndSec),
			"-i", in.SourcePath,
			"-c:v", "libx264",
			"-c:a", "aac",
			"-movflags", "+faststart",
			in.OutputPath,
		}
	case models.MediaImage:
		args = []string{
			"-y",
			"-loop", "1",
			"-i", in.SourcePath,
			"-t", formatSec(in.EndSec - in.StartSec),
			"-vf", "format=yuv420p",
			"-r", "30",
			"-c:v", "libx264",
			in.OutputPath,
		}
	default:
		return fmt.Errorf("unsupported source kind: %s", in.Kind)
	}

	cmd := exec.CommandContext(ctx, f.binary, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		return fmt.Errorf("render edit: %w: %s", err, tail(output))
	}
	return nil
}

func formatSec(v float64) string {
	return strconv.FormatFloat(v, 'f', 3, 64)
}

func tail(output []byte) []byte {
	const limit = 512
	if len(output) > limit {
		return output[len(output)-limit:]
	}
	return output
}
