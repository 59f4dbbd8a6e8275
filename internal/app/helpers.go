package app

import (
	"fmt"
	"io"
	"math"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/bytesnake/hex/internal/config"
)

// baseDir is where relative paths of the config resolve against.
func baseDir(cfgPath string) string {
	if cfgPath == "" {
		return "."
	}
	return filepath.Dir(cfgPath)
}

// formatSeconds renders m:ss.
func formatSeconds(sec float64) string {
	if sec < 0 || math.IsNaN(sec) {
		sec = 0
	}
	s := int(sec)
	return fmt.Sprintf("%d:%02d", s/60, s%60)
}

// parseSeconds accepts "90", "90.5" and "1:30".
func parseSeconds(s string) (float64, error) {
	if m, sec, ok := strings.Cut(s, ":"); ok {
		mi, err1 := strconv.Atoi(m)
		se, err2 := strconv.ParseFloat(sec, 64)
		if err1 != nil || err2 != nil || mi < 0 || se < 0 || se >= 60 {
			return 0, fmt.Errorf("%w: bad time %q", ErrUsage, s)
		}
		return float64(mi)*60 + se, nil
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: bad time %q", ErrUsage, s)
	}
	return v, nil
}

func logBanner(w io.Writer, cfgPath string, cfg config.Config) {
	fmt.Fprintln(w, "────────────────────────────────────────")
	fmt.Fprintln(w, "hex player")
	if cfgPath != "" {
		fmt.Fprintf(w, " Config file : %s\n", cfgPath)
	}
	fmt.Fprintf(w, " Server      : %s\n", cfg.Server.URL())
	fmt.Fprintf(w, " Output      : %s @ %d Hz (%s)\n", cfg.Audio.Device, cfg.Audio.SampleRate, cfg.Audio.Codec)
	fmt.Fprintln(w, " Type help for commands.")
	fmt.Fprintln(w, "────────────────────────────────────────")
}
