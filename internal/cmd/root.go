// Package cmd implements the tinyclips command line interface.
package cmd

import (
	"fmt"
	"image"
	"log/slog"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	appconfig "github.com/tobitege/tiny-clips-mac/internal/config"
	"github.com/tobitege/tiny-clips-mac/internal/capture"
)

var (
	cfgFile string
	verbose bool
)

var rootCmd = &cobra.Command{
	Use:   "tinyclips",
	Short: "Record a screen region as a video, GIF or screenshot",
	Long: `Tiny Clips captures a rectangular screen region and produces a durable
artifact: a still image, an H.264 MP4 (optionally with system audio and
microphone tracks), or an animated GIF - with optional trimming after
capture.`,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		level := slog.LevelInfo
		if verbose {
			level = slog.LevelDebug
		}
		// Logs go to stderr; stdout carries only the artifact path.
		slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{
			Level: level,
		})))
	},
}

// Execute runs the root command.
func Execute() error {
	return rootCmd.Execute()
}

func init() {
	cobra.OnInitialize(func() { appconfig.Init(cfgFile) })

	rootCmd.PersistentFlags().StringVarP(&cfgFile, "config", "c", "",
		"config file (default is <user-config>/tinyclips/config.yaml)")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false,
		"enable debug logging")
}

// parseRegion parses the --region flag: "X,Y,WxH", e.g. "100,200,800x600".
func parseRegion(spec string, display int, scale float64) (capture.Region, error) {
	parts := strings.Split(spec, ",")
	if len(parts) != 3 {
		return capture.Region{}, fmt.Errorf("invalid region %q (want X,Y,WxH)", spec)
	}

	x, err := strconv.Atoi(strings.TrimSpace(parts[0]))
	if err != nil {
		return capture.Region{}, fmt.Errorf("invalid region origin X %q", parts[0])
	}
	y, err := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err != nil {
		return capture.Region{}, fmt.Errorf("invalid region origin Y %q", parts[1])
	}

	size := strings.Split(strings.TrimSpace(parts[2]), "x")
	if len(size) != 2 {
		return capture.Region{}, fmt.Errorf("invalid region size %q (want WxH)", parts[2])
	}
	w, err := strconv.Atoi(size[0])
	if err != nil {
		return capture.Region{}, fmt.Errorf("invalid region width %q", size[0])
	}
	h, err := strconv.Atoi(size[1])
	if err != nil {
		return capture.Region{}, fmt.Errorf("invalid region height %q", size[1])
	}

	region := capture.Region{
		OriginX:    x,
		OriginY:    y,
		Width:      w,
		Height:     h,
		DisplayID:  display,
		PixelScale: scale,
	}
	if err := region.Validate(); err != nil {
		return capture.Region{}, err
	}
	return region, nil
}

// fullDisplayRegion returns the bounds of a display as a Region, used when
// no --region flag is given.
func fullDisplayRegion(display int, bounds image.Rectangle) capture.Region {
	return capture.Region{
		OriginX:    0,
		OriginY:    0,
		Width:      bounds.Dx(),
		Height:     bounds.Dy(),
		DisplayID:  display,
		PixelScale: 1.0,
	}
}
