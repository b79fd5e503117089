package main

import (
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/ridelens/trickline/internal/detector"
	"github.com/ridelens/trickline/internal/pipeline"
	"github.com/ridelens/trickline/internal/pose"
)

// frameExtensions are the image types accepted from a frames directory.
var frameExtensions = map[string]bool{
	".jpg":  true,
	".jpeg": true,
	".png":  true,
}

// loadFrameImages reads every frame image from dir in lexical filename order.
// Frame numbers are positional; extracted frames are expected to carry
// zero-padded names.
func loadFrameImages(dir string) ([]pose.FrameImage, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("read frames directory: %w", err)
	}

	var names []string
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		if frameExtensions[strings.ToLower(filepath.Ext(entry.Name()))] {
			names = append(names, entry.Name())
		}
	}
	sort.Strings(names)

	images := make([]pose.FrameImage, 0, len(names))
	for i, name := range names {
		data, err := os.ReadFile(filepath.Join(dir, name))
		if err != nil {
			return nil, fmt.Errorf("read frame %s: %w", name, err)
		}
		images = append(images, pose.FrameImage{FrameNumber: i, Image: data})
	}
	return images, nil
}

func newProcessCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "process <video-id> <frames-dir>",
		Short: "Run the full detection and filtering pipeline over extracted frames",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			videoID, framesDir := args[0], args[1]

			cfg, err := ctx.tuning()
			if err != nil {
				return err
			}
			images, err := loadFrameImages(framesDir)
			if err != nil {
				return err
			}
			if len(images) == 0 {
				return fmt.Errorf("no frame images found in %s", framesDir)
			}

			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			rt := pipeline.New(cfg, detector.FromTuning(cfg), store)
			defer rt.Shutdown()

			result, err := rt.ProcessVideo(cmd.Context(), videoID, images)
			if err != nil {
				return err
			}

			fmt.Fprintf(cmd.OutOrStdout(),
				"run %s: %d frames in, %d kept, %d removed, %d interpolated, %d detector errors (%s)\n",
				result.RunID,
				result.Mapping.OriginalCount(), result.Mapping.ProcessedCount(),
				len(result.Mapping.RemovedFrames()), len(result.Mapping.InterpolatedFrames()),
				result.DetectorErrors, result.Elapsed.Round(time.Millisecond))
			return nil
		},
	}
	return cmd
}
