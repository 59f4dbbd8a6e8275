package app

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/bytesnake/hex/internal/config"
)

// Run opens the player, queues keys and runs the interactive command loop
// on stdin until quit, EOF or ctx is done.
func Run(ctx context.Context, opt Options, keys []string) error {
	opt.Player = true
	a, err := Open(opt)
	if err != nil {
		return err
	}
	defer a.Close()

	logBanner(os.Stdout, opt.CfgPath, a.Cfg)

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	if opt.CfgPath != "" {
		go func() {
			if err := config.Watch(ctx, opt.CfgPath, a.Reconfigure); err != nil {
				log.Warnf("config watch: %v", err)
			}
		}()
	}

	events, unsub := a.Engine.Subscribe()
	defer unsub()
	go a.recordPlays(events)

	if err := a.WaitConnected(ctx, 5*time.Second); err != nil {
		log.Warnf("%v (requests are queued until the server is reachable)", err)
	}

	sh := NewShell(a, os.Stdout)
	if len(keys) > 0 {
		if err := sh.Exec(ctx, "add "+strings.Join(keys, " ")); err != nil {
			return err
		}
		if err := sh.Exec(ctx, "play"); err != nil {
			return err
		}
	}

	lines := make(chan string)
	go func() {
		defer close(lines)
		in := bufio.NewScanner(os.Stdin)
		for in.Scan() {
			lines <- in.Text()
		}
	}()

	for {
		fmt.Fprint(os.Stdout, "hex> ")
		select {
		case <-ctx.Done():
			return nil
		case line, ok := <-lines:
			if !ok {
				return nil
			}
			err := sh.Exec(ctx, line)
			if errors.Is(err, io.EOF) {
				return nil
			}
			if err != nil {
				fmt.Fprintf(os.Stdout, "error: %v\n", err)
			}
		}
	}
}
