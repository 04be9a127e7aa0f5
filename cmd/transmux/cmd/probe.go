package cmd

import (
	"fmt"
	"io"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/vectrastream/transmux/internal/transmux"
)

var probeBroadMode bool

var probeCmd = &cobra.Command{
	Use:   "probe [file]",
	Short: "Print track and timed-metadata info without writing segments",
	Long: `probe runs a TS input through the full transmuxer and reports its
trackinfo, caption cues, ID3 frames, and SCTE-35 events; segments are
built in memory but never written. With no file argument it reads from
stdin.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runProbe,
}

func init() {
	rootCmd.AddCommand(probeCmd)
	probeCmd.Flags().BoolVar(&probeBroadMode, "broad-mode", false, "set the parser's broad mode (stream types other than H.264/AAC are still neither advertised nor segmented)")
}

func runProbe(_ *cobra.Command, args []string) error {
	var r io.Reader = os.Stdin
	if len(args) == 1 {
		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening %s: %w", args[0], err)
		}
		defer f.Close()
		r = f
	}

	tx := transmux.New(transmux.Options{Remux: true, BroadMode: probeBroadMode}, slog.Default())

	buf := make([]byte, 64*1024)
	for {
		n, readErr := r.Read(buf)
		if n > 0 {
			events, err := tx.Push(buf[:n])
			if err != nil {
				return fmt.Errorf("push: %w", err)
			}
			printProbeEvents(events)
		}
		if readErr != nil {
			break
		}
	}

	events, err := tx.Flush()
	if err != nil {
		return fmt.Errorf("flush: %w", err)
	}
	printProbeEvents(events)
	return nil
}

func printProbeEvents(events []transmux.Event) {
	for _, e := range events {
		switch e.Type {
		case transmux.EventTrackInfo:
			printTrackInfo(e.TrackInfo)
		case transmux.EventCaption:
			fmt.Printf("caption pid=%d channel=%d t=%.3f %q\n", e.Caption.PID, e.Caption.Channel, e.Caption.CueTime, e.Caption.Text)
		case transmux.EventID3Frame:
			fmt.Printf("id3 pid=%d t=%.3f bytes=%d\n", e.ID3.PID, e.ID3.CueTime, len(e.ID3.Data))
		case transmux.EventSCTE35:
			fmt.Printf("scte35 pid=%d is_out=%v\n", e.SCTE35.PID, e.SCTE35.IsOut())
		case transmux.EventEndedTimeline:
			fmt.Println("endedtimeline")
		}
	}
}

func printTrackInfo(ti *transmux.TrackInfo) {
	if ti.Video != nil {
		fmt.Printf("video pid=%d codec=%s\n", ti.Video.PID, ti.Video.Codec)
	}
	for _, a := range ti.Audio {
		fmt.Printf("audio pid=%d codec=%s languages=%v\n", a.PID, a.Codec, a.Languages)
	}
	for _, s := range ti.Subtitles {
		fmt.Printf("subtitle pid=%d kind=%s language=%s\n", s.PID, s.Kind, s.Language)
	}
}
