package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/detector"
)

var detectCmd = &cobra.Command{
	Use:   "detect",
	Short: "List the faces found in the source and target images",
	Long: `Run the detector on both images and print every face with its 1-based
number, bounding box and score. Numbers printed for the target are the ones
accepted by "swap --select".

Example:
  faceswap detect --source me.jpg --target group.jpg`,
	Args: cobra.NoArgs,
	RunE: runDetect,
}

func init() {
	rootCmd.AddCommand(detectCmd)
	addJobFlags(detectCmd)
}

func runDetect(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags(cmd)
	if err != nil {
		return err
	}

	p, _, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Prepare(job)
	if err != nil {
		return err
	}

	printFaces("Source", report.SourceFaces, nil)
	printFaces("Target", report.TargetFaces, report.Selected)
	printWarnings(report.Warnings)
	fmt.Printf("Detection took %dms\n", report.Timing.Detection.Milliseconds())
	return nil
}

func printFaces(label string, faces []detector.Face, selected []int) {
	fmt.Printf("%s: %d face(s)\n", label, len(faces))
	marked := make(map[int]bool, len(selected))
	for _, i := range selected {
		marked[i] = true
	}
	for i, f := range faces {
		mark := " "
		if marked[i] {
			mark = "*"
		}
		fmt.Printf(" %s %2d  (%d,%d)-(%d,%d)  %dx%d  score %.2f\n", mark, i+1,
			f.Box.Min.X, f.Box.Min.Y, f.Box.Max.X, f.Box.Max.Y,
			f.Box.Dx(), f.Box.Dy(), f.Score)
	}
}
