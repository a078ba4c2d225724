package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/tobitege/tiny-clips-mac/internal/capture"
	appconfig "github.com/tobitege/tiny-clips-mac/internal/config"
	"github.com/tobitege/tiny-clips-mac/internal/output"
)

var shotOpts struct {
	region  string
	display int
	scale   float64
	format  string
}

var shotCmd = &cobra.Command{
	Use:   "shot",
	Short: "Capture a screen region to a still image",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runShot()
	},
}

func init() {
	rootCmd.AddCommand(shotCmd)

	f := shotCmd.Flags()
	f.StringVarP(&shotOpts.region, "region", "r", "", "capture region as X,Y,WxH (default: full display)")
	f.IntVarP(&shotOpts.display, "display", "d", 0, "display index")
	f.Float64Var(&shotOpts.scale, "scale", 1.0, "display pixel scale factor")
	f.StringVar(&shotOpts.format, "format", "", "image format override: png or jpeg")
}

func runShot() error {
	settings := appconfig.Load()
	if shotOpts.format != "" {
		settings.ImageFormat = shotOpts.format
		settings = settings.Clamped()
	}

	region, err := resolveRegion(shotOpts.region, shotOpts.display, shotOpts.scale)
	if err != nil {
		return err
	}

	img, err := capture.GrabImage(region)
	if err != nil {
		return err
	}

	path, err := output.ArtifactPath(settings.SaveDir, time.Now(), settings.ImageFormat)
	if err != nil {
		return err
	}

	if err := output.SaveImage(img, path, output.ImageOptions{
		Format:       output.ImageFormat(settings.ImageFormat),
		Quality:      settings.ImageQuality,
		ScalePercent: settings.ImageScalePercent,
	}); err != nil {
		return err
	}

	fmt.Println(path)
	return nil
}
