package app

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	humanize "github.com/dustin/go-humanize"
)

// Commands lists the one-shot commands RunCommand understands.
var Commands = []string{"search", "track", "playlists", "playlist", "token", "events", "summary", "uploads", "cache"}

// RunCommand runs a one-shot command against the server and prints the
// result to out.
func RunCommand(ctx context.Context, opt Options, name string, args []string, out io.Writer) error {
	opt.Player = false
	a, err := Open(opt)
	if err != nil {
		return err
	}
	defer a.Close()
	if err := a.WaitConnected(ctx, 5*time.Second); err != nil && name != "cache" {
		return err
	}
	return a.command(ctx, name, args, out)
}

func (a *App) command(ctx context.Context, name string, args []string, out io.Writer) error {
	switch name {
	case "search":
		tracks, err := a.API.Search(ctx, strings.Join(args, " "))
		if err != nil {
			return err
		}
		printTracks(out, tracks, -1)

	case "track":
		if len(args) != 1 {
			return fmt.Errorf("%w: track <key>", ErrUsage)
		}
		t, err := a.API.GetTrack(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "key:       %s\ntitle:     %s\nalbum:     %s\ninterpret: %s\ncomposer:  %s\nduration:  %s\nfavs:      %d\n",
			t.Key, t.Title, t.Album, t.Interpret, t.Composer, formatSeconds(t.Duration), t.FavsCount)
		for _, p := range t.PeopleList() {
			fmt.Fprintf(out, "person:    %s (%s)\n", p.Name, p.Role)
		}

	case "playlists":
		pls, err := a.API.Playlists(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, p := range pls {
			fmt.Fprintf(tw, "%s\t%s\t%d tracks\t%s\n", p.Key, p.Title, p.Count, p.Desc)
		}
		tw.Flush()

	case "playlist":
		if len(args) != 1 {
			return fmt.Errorf("%w: playlist <key>", ErrUsage)
		}
		pl, tracks, err := a.API.Playlist(ctx, args[0])
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s (%d tracks)\n", pl.Title, len(tracks))
		printTracks(out, tracks, -1)

	case "token":
		return a.tokenCommand(ctx, args, out)

	case "events":
		evs, err := a.API.Events(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		for _, e := range evs {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", e.Date, e.Origin, e.Tag, e.Data)
		}
		tw.Flush()

	case "summary":
		days, err := a.API.Summary(ctx)
		if err != nil {
			return err
		}
		tw := tabwriter.NewWriter(out, 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "day\tconnects\tplays\tadds\tremoves")
		for _, d := range days {
			fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\n", d.Day, d.Connects, d.Plays, d.Adds, d.Removes)
		}
		tw.Flush()

	case "uploads":
		ups, err := a.API.UploadProgress(ctx)
		if err != nil {
			return err
		}
		for _, u := range ups {
			fmt.Fprintf(out, "%s  %-8s %3.0f%%  %s\n", u.ID, u.Kind, 100*u.Progress, u.Desc)
		}

	case "cache":
		if a.Cache == nil {
			return fmt.Errorf("track cache disabled")
		}
		n, err := a.Cache.CountTracks()
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s: %d tracks\n", a.Cache.Path(), n)
		plays, err := a.Cache.RecentPlays(10)
		if err != nil {
			return err
		}
		for _, p := range plays {
			fmt.Fprintf(out, "  %s  %s\n", humanize.Time(p.PlayedAt), p.Key)
		}

	default:
		return fmt.Errorf("%w: unknown command %q", ErrUsage, name)
	}
	return nil
}

// tokenCommand handles "token new", "token last" and "token <n> [playlist]".
func (a *App) tokenCommand(ctx context.Context, args []string, out io.Writer) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: token new | last | <n> [playlist]", ErrUsage)
	}
	switch args[0] {
	case "new":
		n, err := a.API.CreateToken(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "token %d\n", n)
		return nil
	case "last":
		n, ok, err := a.API.LastToken(ctx)
		if err != nil {
			return err
		}
		if !ok {
			fmt.Fprintln(out, "no token used yet")
			return nil
		}
		fmt.Fprintf(out, "token %d\n", n)
		return nil
	}

	n, err := strconv.ParseUint(args[0], 10, 32)
	if err != nil {
		return fmt.Errorf("%w: bad token %q", ErrUsage, args[0])
	}
	if len(args) == 2 {
		return a.API.BindToken(ctx, uint32(n), args[1])
	}
	r, err := a.API.Token(ctx, uint32(n))
	if err != nil {
		return err
	}
	fmt.Fprintf(out, "token %d at %s, %d played\n", r.Token.Token, formatSeconds(r.Token.Pos), len(r.Token.Played))
	if r.Playlist != nil {
		fmt.Fprintf(out, "playlist %s (%s)\n", r.Playlist.Title, r.Playlist.Key)
		printTracks(out, r.Tracks, -1)
	}
	return nil
}
