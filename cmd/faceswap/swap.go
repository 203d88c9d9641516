package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/pipeline"
	"github.com/dudu/faceswap/internal/swapper"
)

var swapCmd = &cobra.Command{
	Use:   "swap",
	Short: "Swap the source face onto target faces and save the result",
	Long: `Detect faces in both images and paste the first source face over the
selected target faces. Without --select or --click every target face is
swapped. Crop rectangles and click points are in image pixels.

Example:
  faceswap swap --source me.jpg --target group.jpg --out result.png
  faceswap swap -s me.jpg -t group.jpg -o result.png --select 1,3
  faceswap swap -s me.jpg -t group.jpg -o result.png --click 420,310 --detector yunet`,
	Args: cobra.NoArgs,
	RunE: runSwap,
}

func init() {
	rootCmd.AddCommand(swapCmd)
	addJobFlags(swapCmd)
	swapCmd.Flags().StringP("out", "o", "", "Output image path (.png, .jpg, .bmp)")
	swapCmd.Flags().Int("workers", 0, "Blend disjoint faces concurrently with this many workers")
	_ = swapCmd.MarkFlagRequired("out")
}

// addJobFlags registers the flags shared by swap, detect and preview
func addJobFlags(cmd *cobra.Command) {
	cmd.Flags().StringP("source", "s", "", "Source face image")
	cmd.Flags().StringP("target", "t", "", "Target image")
	cmd.Flags().String("select", "", "Target faces to swap, 1-based, comma separated")
	cmd.Flags().StringArray("click", nil, "Toggle the target face at x,y (repeatable)")
	cmd.Flags().String("crop-source", "", "Crop the source image to x1,y1,x2,y2 before detection")
	cmd.Flags().String("crop-target", "", "Crop the target image to x1,y1,x2,y2 before detection")
	_ = cmd.MarkFlagRequired("source")
	_ = cmd.MarkFlagRequired("target")
}

// jobFromFlags builds a pipeline job from the shared flags
func jobFromFlags(cmd *cobra.Command) (pipeline.Job, error) {
	job := pipeline.Job{
		SourcePath: mustGetString(cmd, "source"),
		TargetPath: mustGetString(cmd, "target"),
	}

	var err error
	if job.Select, err = parseSelection(mustGetString(cmd, "select")); err != nil {
		return job, fmt.Errorf("--select: %w", err)
	}
	for _, c := range mustGetStringArray(cmd, "click") {
		p, err := parsePoint(c)
		if err != nil {
			return job, fmt.Errorf("--click: %w", err)
		}
		job.Clicks = append(job.Clicks, p)
	}
	if job.CropSource, err = parseRect(mustGetString(cmd, "crop-source")); err != nil {
		return job, fmt.Errorf("--crop-source: %w", err)
	}
	if job.CropTarget, err = parseRect(mustGetString(cmd, "crop-target")); err != nil {
		return job, fmt.Errorf("--crop-target: %w", err)
	}
	return job, nil
}

// openPipeline loads the configuration and builds the pipeline
func openPipeline(cmd *cobra.Command) (*pipeline.Pipeline, *config.Config, error) {
	cfg, err := loadConfig()
	if err != nil {
		return nil, nil, err
	}
	if cmd.Flags().Lookup("workers") != nil {
		if w := mustGetInt(cmd, "workers"); w > 0 {
			cfg.Blend.Workers = w
		}
	}
	logger := newLogger(os.Stderr, cfg.Log.Level, cfg.Log.Format)

	fmt.Printf("Loading detector (backend: %s)...\n", cfg.Detector.Backend)
	p, err := pipeline.New(cfg, logger)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create pipeline: %w", err)
	}
	return p, cfg, nil
}

func runSwap(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags(cmd)
	if err != nil {
		return err
	}
	job.OutputPath = mustGetString(cmd, "out")

	p, _, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	var bar *progressbar.ProgressBar
	job.Progress = func(done, total int) {
		if bar == nil {
			bar = progressbar.NewOptions(total,
				progressbar.OptionSetDescription("Swapping faces"),
				progressbar.OptionShowCount(),
				progressbar.OptionShowElapsedTimeOnFinish(),
				progressbar.OptionFullWidth(),
			)
		}
		_ = bar.Set(done)
	}

	report, err := p.Run(job)
	if bar != nil {
		_ = bar.Finish()
		fmt.Println()
	}
	printWarnings(report.Warnings)

	var cerr *swapper.CompositeError
	if errors.As(err, &cerr) {
		fmt.Printf("Partial result saved to %s\n", job.OutputPath)
		return err
	}
	if err != nil {
		return err
	}

	t := report.Timing
	fmt.Printf("Swapped %d of %d target faces -> %s\n", len(report.Selected), len(report.TargetFaces), job.OutputPath)
	fmt.Printf("Load:%.0fms Detect:%.0fms Swap:%.0fms Save:%.0fms Total:%.0fms\n",
		float64(t.Load.Milliseconds()),
		float64(t.Detection.Milliseconds()),
		float64(t.Composite.Milliseconds()),
		float64(t.Save.Milliseconds()),
		float64(t.Total.Milliseconds()))
	return nil
}

func printWarnings(warnings []string) {
	for _, w := range warnings {
		fmt.Printf("Warning: %s\n", w)
	}
}
