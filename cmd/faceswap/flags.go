package main

import (
	"fmt"
	"image"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/dudu/faceswap/internal/viewport"
)

// mustGetString gets a string flag value or panics if the flag doesn't exist.
// This is appropriate for flags defined in init() - errors indicate programming bugs.
func mustGetString(cmd *cobra.Command, name string) string {
	val, err := cmd.Flags().GetString(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetInt gets an int flag value or panics if the flag doesn't exist.
func mustGetInt(cmd *cobra.Command, name string) int {
	val, err := cmd.Flags().GetInt(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// mustGetStringArray gets a string array flag value or panics if the flag doesn't exist.
func mustGetStringArray(cmd *cobra.Command, name string) []string {
	val, err := cmd.Flags().GetStringArray(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

// parseInts parses a comma separated list of n integers
func parseInts(s string, n int) ([]int, error) {
	parts := strings.Split(s, ",")
	if n > 0 && len(parts) != n {
		return nil, fmt.Errorf("expected %d comma separated values, got %q", n, s)
	}
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, fmt.Errorf("invalid number %q in %q", p, s)
		}
		out = append(out, v)
	}
	return out, nil
}

// parseSelection turns a 1-based "1,3" list into zero-based indices
func parseSelection(s string) ([]int, error) {
	if s == "" {
		return nil, nil
	}
	nums, err := parseInts(s, 0)
	if err != nil {
		return nil, err
	}
	for i, v := range nums {
		if v < 1 {
			return nil, fmt.Errorf("face numbers start at 1, got %d", v)
		}
		nums[i] = v - 1
	}
	return nums, nil
}

// parsePoint parses "x,y"
func parsePoint(s string) (image.Point, error) {
	v, err := parseInts(s, 2)
	if err != nil {
		return image.Point{}, err
	}
	return image.Pt(v[0], v[1]), nil
}

// parseRect parses "x1,y1,x2,y2"; nil when s is empty
func parseRect(s string) (*viewport.Rect, error) {
	if s == "" {
		return nil, nil
	}
	v, err := parseInts(s, 4)
	if err != nil {
		return nil, err
	}
	return &viewport.Rect{X1: float64(v[0]), Y1: float64(v[1]), X2: float64(v[2]), Y2: float64(v[3])}, nil
}
