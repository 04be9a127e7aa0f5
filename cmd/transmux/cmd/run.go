package cmd

import (
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"

	"github.com/vectrastream/transmux/internal/media"
	"github.com/vectrastream/transmux/internal/transmux"
)

var (
	outDir     string
	perTrack   bool
	keepOrigTs bool
	broadMode  bool
)

var runCmd = &cobra.Command{
	Use:   "run [files...]",
	Short: "Transmux one or more TS files into fragmented MP4 segments",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runRun,
}

func init() {
	rootCmd.AddCommand(runCmd)

	runCmd.Flags().StringVar(&outDir, "out", ".", "output directory for segment files")
	runCmd.Flags().BoolVar(&perTrack, "per-track", false, "emit one segment per track instead of one combined segment per barrier")
	runCmd.Flags().BoolVar(&keepOrigTs, "keep-original-timestamps", false, "use source timestamps directly instead of rebasing to the timeline start")
	runCmd.Flags().BoolVar(&broadMode, "broad-mode", false, "set the parser's broad mode (stream types other than H.264/AAC are still neither advertised nor segmented)")
}

// runRun fans out one goroutine per input file; each file owns an
// independent, fully synchronous Transmuxer, so no state crosses files.
func runRun(cmd *cobra.Command, args []string) error {
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return fmt.Errorf("creating output directory: %w", err)
	}

	g, _ := errgroup.WithContext(cmd.Context())
	for _, path := range args {
		path := path
		g.Go(func() error {
			return runFile(path)
		})
	}
	return g.Wait()
}

func runFile(path string) error {
	log := slog.With("file", path)
	f, err := os.Open(path)
	if err != nil {
		return fmt.Errorf("opening %s: %w", path, err)
	}
	defer f.Close()

	tx := transmux.New(transmux.Options{
		Remux:                  !perTrack,
		KeepOriginalTimestamps: keepOrigTs,
		BroadMode:              broadMode,
	}, log)

	stem := stemOf(path)
	w := &segmentWriter{dir: outDir, stem: stem, log: log}

	buf := make([]byte, 64*1024)
	for {
		n, readErr := f.Read(buf)
		if n > 0 {
			events, err := tx.Push(buf[:n])
			if err != nil {
				return fmt.Errorf("pushing %s: %w", path, err)
			}
			w.handle(events)
		}
		if readErr != nil {
			break
		}
	}

	events, err := tx.Flush()
	if err != nil {
		return fmt.Errorf("flushing %s: %w", path, err)
	}
	w.handle(events)
	log.Info("done", "segments", w.segmentCount)
	return nil
}

func stemOf(path string) string {
	base := filepath.Base(path)
	ext := filepath.Ext(base)
	return base[:len(base)-len(ext)]
}

// segmentWriter owns one input file's output directory and sequence
// counters, translating emitted events into init/media segment files and
// log lines for the side channels.
type segmentWriter struct {
	dir          string
	stem         string
	log          *slog.Logger
	segmentCount int
}

func (w *segmentWriter) handle(events []transmux.Event) {
	for _, e := range events {
		switch e.Type {
		case transmux.EventTrackInfo:
			w.log.Info("trackinfo", "video", e.TrackInfo.Video != nil, "audio_tracks", len(e.TrackInfo.Audio))
		case transmux.EventData:
			w.writeSegment(e.Segment)
		case transmux.EventCaption:
			w.log.Info("caption", "pid", e.Caption.PID, "channel", e.Caption.Channel, "cue_time", e.Caption.CueTime, "text", e.Caption.Text)
		case transmux.EventID3Frame:
			w.log.Info("id3", "pid", e.ID3.PID, "cue_time", e.ID3.CueTime, "bytes", len(e.ID3.Data))
		case transmux.EventSCTE35:
			w.log.Info("scte35", "pid", e.SCTE35.PID, "is_out", e.SCTE35.IsOut())
		case transmux.EventEndedTimeline:
			w.log.Info("endedtimeline")
		case transmux.EventDone:
			w.log.Info("stream ended")
		}
	}
}

func (w *segmentWriter) writeSegment(seg *media.SegmentEvent) {
	trackTag := trackTagFor(seg)
	if seg.InitSegment != nil {
		name := fmt.Sprintf("%s_%s_init.mp4", w.stem, trackTag)
		if err := os.WriteFile(filepath.Join(w.dir, name), seg.InitSegment, 0o644); err != nil {
			w.log.Error("writing init segment", "name", name, "error", err)
			return
		}
	}
	if seg.Data != nil {
		w.segmentCount++
		name := fmt.Sprintf("%s_%s_%05d.m4s", w.stem, trackTag, w.segmentCount)
		if err := os.WriteFile(filepath.Join(w.dir, name), seg.Data, 0o644); err != nil {
			w.log.Error("writing media segment", "name", name, "error", err)
		}
	}
}

func trackTagFor(seg *media.SegmentEvent) string {
	switch seg.Type {
	case media.SegmentVideo:
		return fmt.Sprintf("video%d", seg.PID)
	case media.SegmentAudio:
		return fmt.Sprintf("audio%d", seg.PID)
	default:
		return "combined"
	}
}
