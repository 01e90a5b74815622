package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/mem/fixed"
	"github.com/joshuapare/memkit/snapshot"
)

func init() {
	rootCmd.AddCommand(newTypesCmd())
}

func newTypesCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "types <image>",
		Short: "List the fixed region's type table",
		Long: `The types command lists every entry of the fixed region's type table:
record size, pointer field layout and current free list length.

Example:
  memctl types run.memimg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runTypes(args)
		},
	}
	return cmd
}

type typeEntry struct {
	ID           uint32 `json:"id"`
	RecordSize   uint32 `json:"record_size"`
	PointerSlots uint32 `json:"pointer_fields"`
	NestedSlots  uint32 `json:"nested_list_fields"`
	FreeRecords  int    `json:"free_records"`
}

func runTypes(args []string) error {
	img, err := snapshot.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	region := fixed.Attach(img.Fixed)
	entries := make([]typeEntry, 0, region.NumTypes())
	for id := uint32(0); id < region.NumTypes(); id++ {
		size, ptrs, nested, err := region.Layout(id)
		if err != nil {
			return err
		}
		free, err := region.FreeCount(id)
		if err != nil {
			return fmt.Errorf("free list of type %d is corrupt: %w", id, err)
		}
		entries = append(entries, typeEntry{
			ID:           id,
			RecordSize:   size,
			PointerSlots: ptrs,
			NestedSlots:  nested,
			FreeRecords:  free,
		})
	}

	if jsonOut {
		return printJSON(entries)
	}

	printInfo("\nType Table (%d entries):\n", len(entries))
	printInfo("  %-6s %-12s %-10s %-8s %s\n", "ID", "RECORD SIZE", "POINTERS", "NESTED", "FREE")
	for _, e := range entries {
		printInfo("  %-6d %-12d %-10d %-8d %d\n",
			e.ID, e.RecordSize, e.PointerSlots, e.NestedSlots, e.FreeRecords)
	}
	return nil
}
