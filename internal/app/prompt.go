package app

import (
	"bufio"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/bytesnake/hex/internal/config"
)

// PromptInteractive asks for the settings a first run needs.
func PromptInteractive(cfgPath string, cfg config.Config) config.Config {
	in := bufio.NewReader(os.Stdin)

	fmt.Println("────────────────────────────────────────")
	fmt.Println("hex interactive setup")
	fmt.Printf(" Config file : %s\n", cfgPath)
	fmt.Println("────────────────────────────────────────")
	fmt.Println()

	cfg.Server.Host = askString(in, "Server host", cfg.Server.Host)
	cfg.Server.Port = askInt(in, "Server port", cfg.Server.Port)
	cfg.Server.Path = askString(in, "Server path", cfg.Server.Path)

	useSpeaker := askBool(in, "Play through the speaker", cfg.Audio.Device == "speaker")
	cfg.Audio.Device = "null"
	if useSpeaker {
		cfg.Audio.Device = "speaker"
		cfg.Audio.SampleRate = askInt(in, "Device sample rate", cfg.Audio.SampleRate)
	}
	cfg.Audio.Codec = askString(in, "Stream codec (pcm16/opus)", cfg.Audio.Codec)
	cfg.Cache.Path = askString(in, "Track cache (empty=off)", cfg.Cache.Path)

	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "Invalid config: %v\nKeeping defaults.\n", err)
		return config.Default()
	}
	return cfg
}

func askString(in *bufio.Reader, label, def string) string {
	fmt.Printf("%s [%s]: ", label, def)
	s, _ := in.ReadString('\n')
	s = strings.TrimSpace(s)
	if s == "" {
		return def
	}
	return s
}

func askInt(in *bufio.Reader, label string, def int) int {
	for {
		fmt.Printf("%s [%d]: ", label, def)
		s, _ := in.ReadString('\n')
		s = strings.TrimSpace(s)
		if s == "" {
			return def
		}
		if v, err := strconv.Atoi(s); err == nil {
			return v
		}
		fmt.Println("Please enter a number.")
	}
}

func askBool(in *bufio.Reader, label string, def bool) bool {
	defStr := "n"
	if def {
		defStr = "y"
	}
	for {
		fmt.Printf("%s [y/n] (default=%s): ", label, defStr)
		s, _ := in.ReadString('\n')
		s = strings.TrimSpace(strings.ToLower(s))
		if s == "" {
			return def
		}
		switch s {
		case "y", "yes", "true", "1":
			return true
		case "n", "no", "false", "0":
			return false
		default:
			fmt.Println("Please enter y or n.")
		}
	}
}
