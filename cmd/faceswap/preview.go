package main

import (
	"errors"
	"fmt"
	"image"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/session"
	"github.com/dudu/faceswap/internal/view"
	"github.com/dudu/faceswap/internal/viewport"
)

var previewCmd = &cobra.Command{
	Use:   "preview",
	Short: "Show detected faces in a window and swap interactively",
	Long: `Open a preview window with the source on the left and the target on the
right. Click a target face to toggle it. Keys:
  1-9    toggle target face
  a      select all target faces
  c      drag a crop rectangle over either image
  d      detect faces again
  space  swap selected faces
  w      write the result to --out
  q/ESC  quit

Example:
  faceswap preview --source me.jpg --target group.jpg --out result.png`,
	Args: cobra.NoArgs,
	RunE: runPreview,
}

func init() {
	rootCmd.AddCommand(previewCmd)
	addJobFlags(previewCmd)
	previewCmd.Flags().StringP("out", "o", "", "Output image path for the w key")
}

func runPreview(cmd *cobra.Command, args []string) error {
	job, err := jobFromFlags(cmd)
	if err != nil {
		return err
	}
	out := mustGetString(cmd, "out")

	p, cfg, err := openPipeline(cmd)
	if err != nil {
		return err
	}
	defer p.Close()

	report, err := p.Prepare(job)
	if err != nil {
		return err
	}
	printWarnings(report.Warnings)
	sess := p.Session()

	surface := viewport.Size{W: cfg.Display.PreviewWidth, H: cfg.Display.PreviewHeight}
	window := view.NewWindow("faceswap", surface.W, surface.H)
	defer window.Close()

	clicks := make(chan image.Point, 8)
	window.OnClick(func(x, y int) {
		select {
		case clicks <- image.Pt(x, y):
		default:
		}
	})

	// Handle signals for graceful shutdown
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigChan)

	fmt.Println("\nRunning... Press 'q' to quit")

	status := "click/1-9: toggle  c: crop  d: detect  space: swap  w: write  q: quit"
	dirty := true
	for {
		select {
		case <-sigChan:
			fmt.Println("\nShutting down...")
			return nil
		case pt := <-clicks:
			status = clickFace(sess, surface, pt)
			dirty = true
			continue
		default:
		}

		if dirty {
			if err := showSession(window, sess, surface, status); err != nil {
				return err
			}
			dirty = false
		}

		key := window.WaitKey(30)
		switch {
		case key == 'q' || key == 27: // 'q' or ESC
			fmt.Println("\nQuitting...")
			return nil
		case key >= '1' && key <= '9':
			i := key - '1'
			selected, err := sess.ToggleIndex(i)
			if err != nil {
				status = err.Error()
			} else if selected {
				status = fmt.Sprintf("Face %d selected", i+1)
			} else {
				status = fmt.Sprintf("Face %d deselected", i+1)
			}
			dirty = true
		case key == 'a':
			sess.SelectAll()
			status = "All faces selected"
			dirty = true
		case key == 'c':
			status = cropSelection(sess, surface, window.SelectROI())
			dirty = true
		case key == 'd':
			status = detectFaces(sess)
			dirty = true
		case key == ' ':
			if err := sess.Composite(); err != nil {
				status = "Error: " + err.Error()
			} else {
				status = "Face swap completed successfully"
			}
			dirty = true
		case key == 'w':
			status = writeResult(sess, out)
			dirty = true
		}
	}
}

// clickFace toggles the target face under a click on the side-by-side frame
func clickFace(sess *session.Session, surface viewport.Size, p image.Point) string {
	role, x, y := view.Split(surface, p.X, p.Y)
	if role != view.RoleTarget {
		return "Click a face in the target image"
	}
	i, selected := sess.ToggleAt(x, y, view.HalfSize(surface))
	switch {
	case i < 0:
		return "No face there"
	case selected:
		return fmt.Sprintf("Face %d selected", i+1)
	default:
		return fmt.Sprintf("Face %d deselected", i+1)
	}
}

// cropSelection crops whichever image the rectangle was drawn over
func cropSelection(sess *session.Session, surface viewport.Size, r image.Rectangle) string {
	if r.Empty() {
		return "Crop cancelled"
	}
	role, rect, err := view.SplitRect(surface, r)
	if err != nil {
		return "Error: " + err.Error()
	}

	half := view.HalfSize(surface)
	name := "source"
	if role == view.RoleTarget {
		name = "target"
		err = sess.CropTarget(rect, half)
	} else {
		err = sess.CropSource(rect, half)
	}
	if err != nil {
		return "Error: " + err.Error()
	}
	return fmt.Sprintf("Cropped %s image, press d to detect faces", name)
}

func detectFaces(sess *session.Session) string {
	res, err := sess.Detect()
	if err != nil {
		return "Error: " + err.Error()
	}
	if w := res.Warnings(); len(w) > 0 {
		return "Warning: " + strings.Join(w, ", ")
	}
	return fmt.Sprintf("Detected %d source and %d target faces", res.SourceFaces, res.TargetFaces)
}

func showSession(window *view.Window, sess *session.Session, surface viewport.Size, status string) error {
	snap := sess.Snapshot()

	src := sess.Image(session.Source)
	defer src.Close()
	dst := sess.Image(session.Target)
	defer dst.Close()

	frame, err := view.SideBySide(
		view.Layer{Image: src, Faces: snap.SourceFaces, Role: view.RoleSource},
		view.Layer{Image: dst, Faces: snap.TargetFaces, Selected: snap.Selected, Role: view.RoleTarget},
		surface,
	)
	if err != nil {
		return err
	}
	defer frame.Close()

	window.SetStatus(status)
	return window.Show(frame)
}

func writeResult(sess *session.Session, path string) string {
	if path == "" {
		return "No --out path given"
	}
	if err := sess.Save(path); err != nil {
		if errors.Is(err, session.ErrNoResult) {
			return "No result to save, press space first"
		}
		return "Error: " + err.Error()
	}
	return "Saved " + path
}
