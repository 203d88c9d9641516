package main

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/config"
)

var (
	configPath string
	logLevel   string
	logFormat  string
	backend    string
)

var rootCmd = &cobra.Command{
	Use:   "faceswap",
	Short: "Paste a source face over selected faces in a target image",
	Long: `faceswap detects faces in a source and a target image, then blends the
first source face over the chosen target faces with a feathered elliptical
mask. Detection runs on SCRFD (ONNX Runtime), YuNet or Haar (OpenCV), pigo,
or a remote detector service.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&configPath, "config", "", "YAML configuration file")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "Log level: debug, info, warn, error")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "Log format: text or json")
	rootCmd.PersistentFlags().StringVarP(&backend, "detector", "d", "", "Detector backend: scrfd, yunet, haar, pigo, remote")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}

// loadConfig reads the configuration with persistent flag overrides applied
// ahead of validation
func loadConfig() (*config.Config, error) {
	return config.Load(configPath, flagOverrides(backend, logLevel, logFormat))
}

func flagOverrides(backend, level, format string) config.Override {
	return func(cfg *config.Config) {
		if backend != "" {
			cfg.Detector.Backend = backend
		}
		if level != "" {
			cfg.Log.Level = level
		}
		if format != "" {
			cfg.Log.Format = format
		}
	}
}
