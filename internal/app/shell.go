package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/bytesnake/hex/internal/proto"
)

// ErrUsage is returned for a malformed command line.
var ErrUsage = errors.New("usage")

// Shell executes the interactive player commands.
type Shell struct {
	a   *App
	out io.Writer

	last []proto.Track // last search or listing, for "add #n"
}

func NewShell(a *App, out io.Writer) *Shell {
	return &Shell{a: a, out: out}
}

const shellHelp = `commands:
  search <query>         search the library
  add <key|#n>...        queue tracks (#n picks from the last search)
  playlist <key>         queue a whole playlist
  play | stop            start or stop output
  next | prev            move through the queue
  seek <seconds>         jump within the current track
  goto <n>               make queue entry n current
  remove <n>             remove queue entry n
  shuffle                shuffle everything after the current entry
  clear                  empty the queue
  queue | status         show the queue or the playback state
  vote                   vote for the current track
  token <n> | save       load a token, save progress to it
  history                recently played keys
  quit
`

// Exec runs one command line. io.EOF means quit.
func (s *Shell) Exec(ctx context.Context, line string) error {
	f := strings.Fields(line)
	if len(f) == 0 {
		return nil
	}
	e := s.a.Engine
	cmd, args := strings.ToLower(f[0]), f[1:]

	switch cmd {
	case "help", "?":
		fmt.Fprint(s.out, shellHelp)
	case "quit", "exit", "q":
		return io.EOF

	case "search", "s":
		tracks, err := s.a.API.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		s.last = tracks
		printTracks(s.out, tracks, -1)

	case "add", "a":
		if len(args) == 0 {
			return fmt.Errorf("%w: add <key|#n>...", ErrUsage)
		}
		var keys []string
		for _, arg := range args {
			if n, ok := strings.CutPrefix(arg, "#"); ok {
				i, err := strconv.Atoi(n)
				if err != nil || i < 1 || i > len(s.last) {
					return fmt.Errorf("%w: no search result %s", ErrUsage, arg)
				}
				keys = append(keys, s.last[i-1].Key)
				continue
			}
			keys = append(keys, arg)
		}
		if err := e.AddTracks(ctx, keys...); err != nil {
			return err
		}
		fmt.Fprintf(s.out, "queued %d track(s)\n", len(keys))

	case "playlist":
		if len(args) != 1 {
			return fmt.Errorf("%w: playlist <key>", ErrUsage)
		}
		pl, tracks, err := s.a.API.Playlist(ctx, args[0])
		if err != nil {
			return err
		}
		e.Append(tracks...)
		fmt.Fprintf(s.out, "queued %q (%d tracks)\n", pl.Title, len(tracks))

	case "play", "p":
		return e.Play()
	case "stop":
		return e.Stop()
	case "next", "n":
		return e.Next()
	case "prev":
		return e.Prev()

	case "seek":
		if len(args) != 1 {
			return fmt.Errorf("%w: seek <seconds>", ErrUsage)
		}
		sec, err := parseSeconds(args[0])
		if err != nil {
			return err
		}
		return e.Seek(sec)

	case "goto", "remove":
		if len(args) != 1 {
			return fmt.Errorf("%w: %s <n>", ErrUsage, cmd)
		}
		i, err := strconv.Atoi(args[0])
		if err != nil {
			return fmt.Errorf("%w: %s <n>", ErrUsage, cmd)
		}
		if cmd == "goto" {
			return e.SetQueuePos(i - 1)
		}
		return e.RemoveTrack(i - 1)

	case "shuffle":
		e.ShuffleBelowCurrent()
	case "clear":
		e.Clear()

	case "queue":
		st := e.Status()
		printTracks(s.out, st.Queue, st.Pos)
	case "status":
		s.printStatus()

	case "vote":
		return e.Vote(ctx)

	case "token":
		if len(args) != 1 {
			return fmt.Errorf("%w: token <n>", ErrUsage)
		}
		n, err := strconv.ParseUint(args[0], 10, 32)
		if err != nil {
			return fmt.Errorf("%w: token <n>", ErrUsage)
		}
		if err := e.LoadToken(ctx, uint32(n)); err != nil {
			return err
		}
		if s.a.Cache != nil {
			s.a.Cache.SetMeta("last_token", args[0])
		}
		st := e.Status()
		printTracks(s.out, st.Queue, st.Pos)
	case "save":
		return e.SaveToken(ctx)

	case "history":
		for _, k := range e.History() {
			fmt.Fprintln(s.out, k)
		}

	default:
		return fmt.Errorf("%w: unknown command %q (try help)", ErrUsage, cmd)
	}
	return nil
}

func (s *Shell) printStatus() {
	e := s.a.Engine
	st := e.Status()
	cur, ok := e.Current()
	if !ok {
		fmt.Fprintln(s.out, "queue empty")
		return
	}
	state := "stopped"
	if st.Playing {
		state = "playing"
	}
	fmt.Fprintf(s.out, "%s  %d/%d  %s\n", state, st.Pos+1, len(st.Queue), cur.DisplayName())
	fmt.Fprintf(s.out, "  %s / %s  (buffered %.1fs, stream %s, %d underruns)\n",
		formatSeconds(st.Seconds), formatSeconds(cur.Duration), st.Buffered, st.Stream, st.Underruns)
	fmt.Fprintf(s.out, "  time %.0f%%  loaded %.0f%%\n", 100*e.TimePercentage(), 100*e.LoadedPercentage())
	if st.Token != nil {
		fmt.Fprintf(s.out, "  token %d\n", *st.Token)
	}
}

// printTracks lists tracks; the entry at cur gets a marker.
func printTracks(w io.Writer, tracks []proto.Track, cur int) {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	for i, t := range tracks {
		mark := " "
		if i == cur {
			mark = ">"
		}
		fmt.Fprintf(tw, "%s%d\t%s\t%s\t%s\t%s\n", mark, i+1, t.Key, t.Title, t.Interpret, formatSeconds(t.Duration))
	}
	tw.Flush()
}
