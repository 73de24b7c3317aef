// Package main provides the croquis control CLI entry point.
package main

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"connectrpc.com/connect"
	"github.com/alecthomas/kingpin/v2"
	"github.com/dustin/go-humanize"
	"github.com/joho/godotenv"

	apiconnect "github.com/osa030/croquis/internal/api/connect"
	"github.com/osa030/croquis/internal/app/notification"
	"github.com/osa030/croquis/internal/app/session"
)

var (
	app    = kingpin.New("croquisctl", "croquis control client")
	server = app.Flag("server", "Server address").Default("http://127.0.0.1:8719").String()
	token  = app.Flag("token", "Control token (or set CROQUIS_TOKEN env)").Envar("CROQUIS_TOKEN").String()

	// status command
	statusCmd = app.Command("status", "Get session status")

	// session commands
	startCmd     = app.Command("start", "Start a session")
	stopCmd      = app.Command("stop", "Stop the session")
	toggleCmd    = app.Command("toggle", "Start or stop the session")
	nextCmd      = app.Command("next", "Show the next item")
	prevCmd      = app.Command("prev", "Show the previous item")
	reshuffleCmd = app.Command("reshuffle", "Reshuffle the playlists")
	resetCmd     = app.Command("reset", "Stop and rewind the playlists")

	// settings commands
	intervalCmd   = app.Command("set-interval", "Set the display interval")
	intervalValue = intervalCmd.Arg("interval", "Interval (e.g. 30s, 2m)").Required().Duration()

	targetCmd   = app.Command("set-target", "Set the number of items per session (0 = unbounded)")
	targetValue = targetCmd.Arg("count", "Target count").Required().Int()

	shuffleCmd   = app.Command("set-shuffle", "Enable or disable shuffle")
	shuffleValue = shuffleCmd.Arg("enabled", "true or false").Required().Bool()

	cueModeSet, cueEnabledSet, cueVolumeSet bool

	cueCmd     = app.Command("set-cue", "Change cue settings")
	cueMode    = cueCmd.Flag("mode", "Cue mode").IsSetByUser(&cueModeSet).Enum("every", "last")
	cueEnabled = cueCmd.Flag("enabled", "Enable cues").IsSetByUser(&cueEnabledSet).Bool()
	cueVolume  = cueCmd.Flag("volume", "Cue volume (0.0 - 1.0)").IsSetByUser(&cueVolumeSet).Float64()

	// item-failure command
	failureCmd  = app.Command("item-failure", "Report an item that cannot be displayed")
	failureItem = failureCmd.Arg("item-id", "Item ID").Required().String()

	// watch command
	watchCmd = app.Command("watch", "Stream session events").Alias("events")
)

func main() {
	// Load .env file if it exists (errors are ignored)
	_ = godotenv.Load()

	// Parse command
	command := kingpin.MustParse(app.Parse(os.Args[1:]))

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	// Create client
	c := apiconnect.NewControlServiceClient(http.DefaultClient, *server, *token)

	var err error
	switch command {
	case statusCmd.FullCommand():
		err = status(ctx, c)
	case startCmd.FullCommand():
		err = action(ctx, c, "start")
	case stopCmd.FullCommand():
		err = action(ctx, c, "stop")
	case toggleCmd.FullCommand():
		err = action(ctx, c, "toggle")
	case nextCmd.FullCommand():
		err = action(ctx, c, "next")
	case prevCmd.FullCommand():
		err = action(ctx, c, "prev")
	case reshuffleCmd.FullCommand():
		err = action(ctx, c, "reshuffle")
	case resetCmd.FullCommand():
		err = action(ctx, c, "reset")
	case intervalCmd.FullCommand():
		ms := session.NormalizeInterval(*intervalValue).Milliseconds()
		err = updateSettings(ctx, c, session.Settings{IntervalMs: &ms})
	case targetCmd.FullCommand():
		err = updateSettings(ctx, c, session.Settings{TargetCount: targetValue})
	case shuffleCmd.FullCommand():
		err = updateSettings(ctx, c, session.Settings{Shuffle: shuffleValue})
	case cueCmd.FullCommand():
		err = updateSettings(ctx, c, cueSettings())
	case failureCmd.FullCommand():
		err = itemFailure(ctx, c, *failureItem)
	case watchCmd.FullCommand():
		err = watch(ctx, c)
	}

	if err != nil {
		if code := connect.CodeOf(err); code != connect.CodeUnknown {
			fmt.Printf("Error (%s): %v\n", code, err)
		} else {
			fmt.Printf("Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func status(ctx context.Context, c *apiconnect.ControlServiceClient) error {
	s, err := c.GetStatus(ctx)
	if err != nil {
		return err
	}

	fmt.Println("\n=== CURRENT SESSION STATUS ===")
	fmt.Printf("Phase: %s\n", s.Phase)
	if s.Progress.TargetCount > 0 {
		fmt.Printf("Progress: %d / %d\n", s.Progress.SessionProgress, s.Progress.TargetCount)
	} else {
		fmt.Printf("Progress: %d\n", s.Progress.SessionProgress)
	}
	if s.Progress.Phase != "idle" {
		fmt.Printf("Remaining: %d seconds\n", s.Progress.Seconds)
	}
	fmt.Printf("Subscribers: %d\n", s.Subscribers)

	fmt.Println("\nSettings:")
	fmt.Printf("  Interval: %v\n", time.Duration(s.Settings.IntervalMs)*time.Millisecond)
	fmt.Printf("  Target Count: %d\n", s.Settings.TargetCount)
	fmt.Printf("  Shuffle: %v\n", s.Settings.Shuffle)
	fmt.Printf("  Cue: mode=%s enabled=%v volume=%.1f\n", s.Settings.CueMode, s.Settings.CueEnabled, s.Settings.CueVolume)
	fmt.Printf("  Layout: %s\n", s.Settings.Layout)

	for i, lane := range s.Lanes {
		fmt.Printf("\nLane %d (%s):\n", i+1, lane.Name)
		fmt.Printf("  State: %s\n", lane.State)
		fmt.Printf("  Sources: %s\n", strings.Join(lane.Sources, ", "))
		fmt.Printf("  Items: %s\n", humanize.Comma(int64(lane.Items)))
		for code, n := range lane.Rejected {
			fmt.Printf("  Rejected (%s): %d\n", code, n)
		}
		if lane.LoadedAt != nil {
			fmt.Printf("  Loaded: %s\n", humanize.Time(*lane.LoadedAt))
		}
		if lane.Error != "" {
			fmt.Printf("  Error: %s\n", lane.Error)
		}
		if i < len(s.Progress.Lanes) && s.Progress.Lanes[i].Item != nil {
			it := s.Progress.Lanes[i].Item
			fmt.Printf("  Showing: %s (%s) [%d/%d]\n", it.Name, it.DisplayRef, s.Progress.Lanes[i].Cursor+1, s.Progress.Lanes[i].Length)
		}
	}

	if s.Run != nil {
		fmt.Printf("\nCurrent Run: %s (started %s)\n", s.Run.ID, humanize.Time(s.Run.StartedAt))
	}
	if s.LastRun != nil {
		fmt.Printf("\nLast Run: %s (%s, started %s)\n", s.LastRun.ID, s.LastRun.Outcome, humanize.Time(s.LastRun.StartedAt))
	}
	fmt.Printf("Runs: %d finished, %d stopped\n", s.FinishedRuns, s.StoppedRuns)
	fmt.Println()
	return nil
}

func action(ctx context.Context, c *apiconnect.ControlServiceClient, name string) error {
	resp, err := c.Action(ctx, name)
	if err != nil {
		return err
	}
	fmt.Printf("Success: %v\n", resp.Success)
	fmt.Printf("Message: %s\n", resp.Message)
	return nil
}

func updateSettings(ctx context.Context, c *apiconnect.ControlServiceClient, s session.Settings) error {
	resp, err := c.UpdateSettings(ctx, s)
	if err != nil {
		return err
	}
	fmt.Printf("Success: %v\n", resp.Success)
	fmt.Printf("Message: %s\n", resp.Message)
	return nil
}

func itemFailure(ctx context.Context, c *apiconnect.ControlServiceClient, itemID string) error {
	resp, err := c.ReportItemFailure(ctx, itemID)
	if err != nil {
		return err
	}
	fmt.Printf("Success: %v\n", resp.Success)
	fmt.Printf("Message: %s\n", resp.Message)
	return nil
}

// cueSettings includes only the flags given on the command line.
func cueSettings() session.Settings {
	var s session.Settings
	if cueModeSet {
		s.CueMode = cueMode
	}
	if cueEnabledSet {
		s.CueEnabled = cueEnabled
	}
	if cueVolumeSet {
		s.CueVolume = cueVolume
	}
	return s
}

// watch prints the server's event stream until interrupted.
func watch(ctx context.Context, c *apiconnect.ControlServiceClient) error {
	stream, err := c.SubscribeEvents(ctx)
	if err != nil {
		return err
	}
	defer stream.Close()

	fmt.Println("Streaming events... (Press Ctrl+C to exit)")

	for stream.Receive() {
		printEvent(stream.Msg())
	}
	if ctx.Err() != nil {
		return nil
	}
	if err := stream.Err(); err != nil {
		return err
	}
	fmt.Println("Stream closed by server")
	return nil
}

func printEvent(n *apiconnect.Event) {
	// Progress arrives every second; keep it on one line
	if n.Type == notification.TypeProgress {
		var p session.ProgressView
		if err := json.Unmarshal(n.Data, &p); err == nil {
			fmt.Printf("[%d] %s %3ds %d/%d\n", n.SequenceNo, p.Phase, p.Seconds, p.SessionProgress, p.TargetCount)
		}
		return
	}

	// Print sequence number
	fmt.Printf("\n[Sequence: %d] ", n.SequenceNo)

	// Print event type header
	switch n.Type {
	case notification.TypeInitialState:
		fmt.Println("=== INITIAL STATE ===")
	case notification.TypePhaseChanged:
		fmt.Println("=== PHASE CHANGED ===")
	case notification.TypeCue:
		fmt.Println("=== CUE ===")
	case notification.TypeFinished:
		fmt.Println("=== SESSION FINISHED ===")
	case notification.TypeItemLoadFailed:
		fmt.Println("=== ITEM LOAD FAILED ===")
	case notification.TypePlaylistChanged:
		fmt.Println("=== PLAYLIST CHANGED ===")
	case notification.TypeSettingsChanged:
		fmt.Println("=== SETTINGS CHANGED ===")
	default:
		fmt.Printf("=== UNKNOWN EVENT (%v) ===\n", n.Type)
	}

	fmt.Printf("  Time: %s\n", n.Time.Local().Format(time.TimeOnly))
	if len(n.Data) > 0 {
		var pretty bytes.Buffer
		if err := json.Indent(&pretty, n.Data, "  ", "  "); err == nil {
			fmt.Printf("  %s\n", pretty.String())
		}
	}
}
