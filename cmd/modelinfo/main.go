package main

import (
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/tsawler/go-metal/checkpoints"
	ort "github.com/yalue/onnxruntime_go"
	"gocv.io/x/gocv"

	"github.com/dudu/faceswap/internal/detector"
	"github.com/dudu/faceswap/internal/inference"
)

func main() {
	libPath := flag.String("lib", inference.DefaultLibraryPath, "ONNX Runtime shared library")
	metal := flag.Bool("metal", false, "Also try importing the model with go-metal")
	bench := flag.Int("bench", 0, "Run the SCRFD detector this many times on a blank image")
	size := flag.Int("size", 640, "SCRFD input size for -bench")
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: modelinfo [options] <model.onnx>\n\n")
		fmt.Fprintf(os.Stderr, "Print the inputs, outputs and metadata of an ONNX detector model.\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nExample:\n")
		fmt.Fprintf(os.Stderr, "  modelinfo -bench 10 models/scrfd_10g.onnx\n")
	}
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(1)
	}
	modelPath := flag.Arg(0)

	if err := run(modelPath, *libPath, *metal, *bench, *size); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func run(modelPath, libPath string, metal bool, bench, size int) error {
	fmt.Printf("Inspecting ONNX model: %s\n", modelPath)

	if _, err := os.Stat(modelPath); err != nil {
		return fmt.Errorf("model not found: %w", err)
	}

	fmt.Println("Initializing ONNX Runtime...")
	if err := inference.Initialize(libPath); err != nil {
		return err
	}
	defer inference.Shutdown()

	inputs, outputs, err := ort.GetInputOutputInfo(modelPath)
	if err != nil {
		return fmt.Errorf("failed to get model info: %w", err)
	}

	fmt.Printf("\nInputs (%d):\n", len(inputs))
	for _, info := range inputs {
		fmt.Printf("  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	fmt.Printf("\nOutputs (%d):\n", len(outputs))
	for _, info := range outputs {
		fmt.Printf("  %s: shape=%v, type=%v\n", info.Name, info.Dimensions, info.DataType)
	}
	if len(outputs) != 9 {
		fmt.Printf("\nNote: SCRFD with keypoints has 9 outputs, this model has %d\n", len(outputs))
	}

	printMetadata(modelPath)

	if metal {
		importMetal(modelPath)
	}

	if bench > 0 {
		return benchmark(modelPath, size, bench)
	}
	return nil
}

func printMetadata(modelPath string) {
	fmt.Println("\nMetadata:")
	metadata, err := ort.GetModelMetadata(modelPath)
	if err != nil {
		fmt.Printf("  (Could not read metadata: %v)\n", err)
		return
	}
	defer metadata.Destroy()

	if producer, err := metadata.GetProducerName(); err == nil {
		fmt.Printf("  Producer: %s\n", producer)
	}
	if version, err := metadata.GetVersion(); err == nil {
		fmt.Printf("  Version: %d\n", version)
	}
	if domain, err := metadata.GetDomain(); err == nil {
		fmt.Printf("  Domain: %s\n", domain)
	}
	if desc, err := metadata.GetDescription(); err == nil {
		fmt.Printf("  Description: %s\n", desc)
	}
}

// importMetal reports whether go-metal can load the graph. Failure is
// informational only.
func importMetal(modelPath string) {
	fmt.Println("\nAttempting to import with go-metal...")
	importer := checkpoints.NewONNXImporter()
	checkpoint, err := importer.ImportFromONNX(modelPath)
	if err != nil {
		fmt.Printf("  go-metal import failed: %v\n", err)
		return
	}
	fmt.Printf("  Layers: %d\n", len(checkpoint.ModelSpec.Layers))
	fmt.Printf("  Weights: %d tensors\n", len(checkpoint.Weights))
	for i, layer := range checkpoint.ModelSpec.Layers {
		fmt.Printf("  %d: %s (%s)\n", i+1, layer.Name, layer.Type)
	}
}

func benchmark(modelPath string, size, iterations int) error {
	fmt.Printf("\nBenchmarking SCRFD at %dx%d...\n", size, size)
	det, err := detector.NewSCRFD(detector.SCRFDConfig{
		ModelPath:     modelPath,
		InputSize:     size,
		ConfThreshold: 0.5,
		NMSThreshold:  0.4,
	})
	if err != nil {
		return err
	}
	defer det.Close()

	img := gocv.NewMatWithSizeFromScalar(gocv.NewScalar(128, 128, 128, 0), size, size, gocv.MatTypeCV8UC3)
	defer img.Close()

	// Warm up
	for i := 0; i < 3; i++ {
		if _, err := det.Detect(img); err != nil {
			return fmt.Errorf("warmup inference failed: %w", err)
		}
	}

	start := time.Now()
	for i := 0; i < iterations; i++ {
		if _, err := det.Detect(img); err != nil {
			fmt.Printf("Inference %d failed: %v\n", i, err)
		}
	}
	elapsed := time.Since(start)
	avgMs := float64(elapsed.Milliseconds()) / float64(iterations)
	fmt.Printf("SCRFD: %.1f ms avg (%.1f FPS)\n", avgMs, 1000.0/avgMs)
	return nil
}
