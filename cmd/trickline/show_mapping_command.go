package main

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ridelens/trickline/internal/pose/indexmap"
	"github.com/ridelens/trickline/internal/storage"
)

func newShowMappingCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "show-mapping <video-id>",
		Short: "Print the stored frame index mapping for a video",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			store, err := ctx.openStore()
			if err != nil {
				return err
			}
			defer store.Close()

			persisted, err := store.LoadMapping(args[0])
			if errors.Is(err, storage.ErrMappingNotFound) {
				return fmt.Errorf("no run stored for video %s", args[0])
			}
			if err != nil {
				return err
			}
			// Round-trip through the lookup structure so a corrupt mapping is
			// reported here rather than at query time.
			if _, err := indexmap.Deserialize(persisted); err != nil {
				return err
			}

			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(persisted)
		},
	}
}
