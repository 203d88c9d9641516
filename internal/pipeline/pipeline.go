package pipeline

import (
	"errors"
	"fmt"
	"image"
	"log/slog"
	"time"

	"github.com/dudu/faceswap/internal/config"
	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/inference"
	"github.com/dudu/faceswap/internal/session"
	"github.com/dudu/faceswap/internal/swapper"
	"github.com/dudu/faceswap/internal/viewport"
)

// Job describes one scripted swap. Rectangles and points are in image
// pixels of the loaded files.
type Job struct {
	SourcePath string
	TargetPath string
	OutputPath string
	CropSource *viewport.Rect
	CropTarget *viewport.Rect
	// Select holds zero-based target face indices
	Select []int
	Clicks []image.Point
	// Progress is called after each swapped face
	Progress func(done, total int)
}

// Timing holds performance timing information
type Timing struct {
	Load      time.Duration
	Detection time.Duration
	Composite time.Duration
	Save      time.Duration
	Total     time.Duration
}

// Report describes the outcome of a job
type Report struct {
	SourceFaces []detector.Face
	TargetFaces []detector.Face
	Selected    []int
	Warnings    []string
	Timing      Timing
}

// Pipeline orchestrates the face swap process
type Pipeline struct {
	config     *config.Config
	detector   FaceDetector
	session    *session.Session
	log        *slog.Logger
	usesORT    bool
	lastTiming Timing
}

// New creates a pipeline with the configured detector backend
func New(cfg *config.Config, logger *slog.Logger) (*Pipeline, error) {
	if logger == nil {
		logger = slog.Default()
	}

	det, usesORT, err := NewDetector(cfg.Detector, logger)
	if err != nil {
		return nil, err
	}
	return NewWithDetector(cfg, det, usesORT, logger), nil
}

// NewWithDetector creates a pipeline around an existing detector. usesORT
// tells Close to shut down the ONNX Runtime environment.
func NewWithDetector(cfg *config.Config, det FaceDetector, usesORT bool, logger *slog.Logger) *Pipeline {
	if logger == nil {
		logger = slog.Default()
	}

	comp := swapper.NewCompositor(swapper.Options{
		Inset:      cfg.Blend.Inset,
		KernelSize: cfg.Blend.KernelSize,
		Sigma:      cfg.Blend.Sigma,
		Workers:    cfg.Blend.Workers,
		Logger:     logger,
	})
	sess := session.New(det, comp, session.Options{
		Logger:   logger,
		Fallback: viewport.Size{W: cfg.Display.FallbackWidth, H: cfg.Display.FallbackHeight},
	})

	return &Pipeline{
		config:   cfg,
		detector: det,
		session:  sess,
		log:      logger.With("session", sess.ID()),
		usesORT:  usesORT,
	}
}

// NewDetector builds the configured backend wrapped in a detector.Adapter.
// The second return value reports whether ONNX Runtime was initialized and
// must be shut down after the detector is closed.
func NewDetector(cfg config.DetectorConfig, logger *slog.Logger) (FaceDetector, bool, error) {
	var (
		backend detector.Backend
		usesORT bool
		err     error
	)

	switch Backend(cfg.Backend) {
	case BackendSCRFD:
		if err := inference.Initialize(cfg.LibraryPath); err != nil {
			return nil, false, fmt.Errorf("failed to initialize inference: %w", err)
		}
		backend, err = detector.NewSCRFD(detector.SCRFDConfig{
			ModelPath:     cfg.Model(),
			InputSize:     cfg.InputSize,
			ConfThreshold: float32(cfg.ConfThreshold),
			NMSThreshold:  float32(cfg.NMSThreshold),
			Logger:        logger,
		})
		if err != nil {
			inference.Shutdown()
		}
		usesORT = true
	case BackendYuNet:
		backend, err = detector.NewYuNet(detector.YuNetConfig{
			ModelPath:     cfg.Model(),
			ConfThreshold: float32(cfg.ConfThreshold),
			NMSThreshold:  float32(cfg.NMSThreshold),
		})
	case BackendHaar:
		backend, err = detector.NewCascade(cfg.CascadePath)
	case BackendPigo:
		backend, err = detector.NewPigo(detector.PigoConfig{
			CascadePath: cfg.CascadePath,
			IoU:         cfg.NMSThreshold,
		})
	case BackendRemote:
		backend = detector.NewRemote(cfg.SocketPath, cfg.Timeout)
	default:
		return nil, false, fmt.Errorf("invalid backend: %s (use one of %v)", cfg.Backend, Backends)
	}
	if err != nil {
		return nil, false, fmt.Errorf("failed to create %s detector: %w", cfg.Backend, err)
	}

	return detector.NewAdapter(cfg.Backend, backend, logger), usesORT, nil
}

// Session returns the session the pipeline works on
func (p *Pipeline) Session() *session.Session {
	return p.session
}

// Prepare loads and crops both images, detects faces and applies the job's
// selection. With no explicit selection every target face is selected.
func (p *Pipeline) Prepare(job Job) (Report, error) {
	var timing Timing
	start := time.Now()

	loadStart := time.Now()
	if err := p.session.OpenSource(job.SourcePath); err != nil {
		return Report{}, fmt.Errorf("failed to load source image: %w", err)
	}
	if err := p.session.OpenTarget(job.TargetPath); err != nil {
		return Report{}, fmt.Errorf("failed to load target image: %w", err)
	}
	if err := p.crop(job); err != nil {
		return Report{}, err
	}
	timing.Load = time.Since(loadStart)

	detectStart := time.Now()
	res, err := p.session.Detect()
	if err != nil {
		return Report{}, fmt.Errorf("detection failed: %w", err)
	}
	timing.Detection = time.Since(detectStart)

	if err := p.selectFaces(job); err != nil {
		return Report{}, err
	}

	snap := p.session.Snapshot()
	timing.Total = time.Since(start)
	return Report{
		SourceFaces: snap.SourceFaces,
		TargetFaces: snap.TargetFaces,
		Selected:    snap.Selected,
		Warnings:    res.Warnings(),
		Timing:      timing,
	}, nil
}

func (p *Pipeline) crop(job Job) error {
	snap := p.session.Snapshot()
	if job.CropSource != nil {
		surface := viewport.Size{W: snap.SourceSize.X, H: snap.SourceSize.Y}
		if err := p.session.CropSource(*job.CropSource, surface); err != nil {
			return err
		}
	}
	if job.CropTarget != nil {
		surface := viewport.Size{W: snap.TargetSize.X, H: snap.TargetSize.Y}
		if err := p.session.CropTarget(*job.CropTarget, surface); err != nil {
			return err
		}
	}
	return nil
}

func (p *Pipeline) selectFaces(job Job) error {
	if len(job.Select) == 0 && len(job.Clicks) == 0 {
		p.session.SelectAll()
		return nil
	}
	for _, i := range job.Select {
		if _, err := p.session.ToggleIndex(i); err != nil {
			return err
		}
	}
	for _, pt := range job.Clicks {
		if i, _ := p.session.ToggleImage(pt.X, pt.Y); i < 0 {
			p.log.Warn("click hit no target face", "x", pt.X, "y", pt.Y)
		}
	}
	return nil
}

// Run prepares the job, swaps the selected faces and writes the result to
// job.OutputPath. A partial result is still written when compositing stops
// on a face; the compositing error is returned alongside the report.
func (p *Pipeline) Run(job Job) (Report, error) {
	start := time.Now()

	report, err := p.Prepare(job)
	if err != nil {
		return report, err
	}

	compStart := time.Now()
	var opts []session.CompositeOption
	if job.Progress != nil {
		opts = append(opts, session.WithProgress(job.Progress))
	}
	compErr := p.session.Composite(opts...)
	report.Timing.Composite = time.Since(compStart)

	var cerr *swapper.CompositeError
	if compErr != nil && !errors.As(compErr, &cerr) {
		return report, compErr
	}

	saveStart := time.Now()
	if err := p.session.Save(job.OutputPath); err != nil {
		return report, fmt.Errorf("failed to save result: %w", err)
	}
	report.Timing.Save = time.Since(saveStart)
	report.Timing.Total = time.Since(start)
	p.lastTiming = report.Timing

	p.log.Info("job finished",
		"faces", len(report.Selected),
		"elapsed", report.Timing.Total)
	return report, compErr
}

// LastTiming returns timing from the last Run call
func (p *Pipeline) LastTiming() Timing {
	return p.lastTiming
}

// Close releases pipeline resources
func (p *Pipeline) Close() error {
	var errs []error

	if p.session != nil {
		if err := p.session.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.detector != nil {
		if err := p.detector.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if p.usesORT {
		if err := inference.Shutdown(); err != nil {
			errs = append(errs, err)
		}
	}

	if len(errs) > 0 {
		return fmt.Errorf("cleanup errors: %v", errs)
	}
	return nil
}
