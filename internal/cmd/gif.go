package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	appconfig "github.com/tobitege/tiny-clips-mac/internal/config"
	"github.com/tobitege/tiny-clips-mac/internal/output"
	"github.com/tobitege/tiny-clips-mac/internal/session"
	"github.com/tobitege/tiny-clips-mac/internal/trim"
)

var gifOpts struct {
	region      string
	display     int
	scale       float64
	duration    time.Duration
	fps         int
	maxWidth    int
	noCountdown bool
	trimFrames  string
}

var gifCmd = &cobra.Command{
	Use:   "gif",
	Short: "Record a screen region to an animated GIF",
	Long: `Records the given region until the duration elapses or an interrupt
(Ctrl-C) arrives, then encodes the frames to a looping GIF. With
--trim-frames only the given inclusive frame range is kept.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		return runGif(cmd.Context())
	},
}

func init() {
	rootCmd.AddCommand(gifCmd)

	f := gifCmd.Flags()
	f.StringVarP(&gifOpts.region, "region", "r", "", "capture region as X,Y,WxH (default: full display)")
	f.IntVarP(&gifOpts.display, "display", "d", 0, "display index")
	f.Float64Var(&gifOpts.scale, "scale", 1.0, "display pixel scale factor")
	f.DurationVar(&gifOpts.duration, "duration", 0, "stop after this long (0: wait for Ctrl-C)")
	f.IntVar(&gifOpts.fps, "fps", 0, "capture rate override: 5-30")
	f.IntVar(&gifOpts.maxWidth, "max-width", 0, "output width bound override: 320-1920")
	f.BoolVar(&gifOpts.noCountdown, "no-countdown", false, "skip the configured countdown")
	f.StringVar(&gifOpts.trimFrames, "trim-frames", "", "keep only frames START:END (inclusive, zero-based)")
}

func runGif(ctx context.Context) error {
	settings := appconfig.Load()
	if gifOpts.fps != 0 {
		settings.GifFPS = gifOpts.fps
	}
	if gifOpts.maxWidth != 0 {
		settings.GifMaxWidth = gifOpts.maxWidth
	}
	settings = settings.Clamped()

	region, err := resolveRegion(gifOpts.region, gifOpts.display, gifOpts.scale)
	if err != nil {
		return err
	}

	res, s, err := runSession(ctx, session.Config{
		Region:   region,
		Kind:     output.KindGIF,
		Settings: settings,
	}, gifOpts.duration, gifOpts.noCountdown)
	if err != nil {
		return err
	}

	buf := s.GifBuffer()
	defer buf.Close()

	path := res.Path
	if gifOpts.trimFrames != "" {
		start, end, err := parseFrameRange(gifOpts.trimFrames)
		if err != nil {
			return err
		}
		trimmed := output.TrimmedPath(res.Path)
		if err := trim.ExportGifRange(buf, start, end, trimmed); err != nil {
			return err
		}
		if err := trim.Discard(res.Path); err != nil {
			slog.Warn("cmd: could not discard untrimmed gif", "error", err)
		}
		path = trimmed
	}

	fmt.Println(path)
	return nil
}

// parseFrameRange parses "START:END" inclusive frame indices.
func parseFrameRange(spec string) (int, int, error) {
	startStr, endStr, ok := strings.Cut(spec, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid frame range %q (want START:END)", spec)
	}
	start, err := strconv.Atoi(startStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame range start %q", startStr)
	}
	end, err := strconv.Atoi(endStr)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid frame range end %q", endStr)
	}
	return start, end, nil
}
