package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem/dynamic"
	"github.com/joshuapare/memkit/snapshot"
)

func init() {
	rootCmd.AddCommand(newExtentsCmd())
}

func newExtentsCmd() *cobra.Command {
	var liveOnly bool
	cmd := &cobra.Command{
		Use:   "extents <image>",
		Short: "Walk the dynamic region's tiling",
		Long: `The extents command walks the dynamic region from its first header and
prints every record and free extent in address order, validating each
boundary-tag footer along the way.

Example:
  memctl extents run.memimg
  memctl extents run.memimg --live`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runExtents(args, liveOnly)
		},
	}
	cmd.Flags().BoolVar(&liveOnly, "live", false, "Only show live records")
	return cmd
}

func tagName(tag uint32) string {
	switch tag {
	case format.TagFree:
		return "free"
	case format.TagIntList:
		return "int_list"
	case format.TagCharList:
		return "char_list"
	case format.TagNestedList:
		return "nested_list"
	}
	return fmt.Sprintf("tag(%d)", tag)
}

type extentEntry struct {
	Offset uint32 `json:"offset"`
	Tag    string `json:"tag"`
	Size   uint32 `json:"size_bytes"`
	Length uint32 `json:"length"`
	Marked bool   `json:"marked"`
}

func runExtents(args []string, liveOnly bool) error {
	img, err := snapshot.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	nodes, err := dynamic.Attach(img.Dynamic).Nodes()
	if err != nil {
		return fmt.Errorf("dynamic region is corrupt: %w", err)
	}

	entries := make([]extentEntry, 0, len(nodes))
	for _, n := range nodes {
		if liveOnly && n.Tag == format.TagFree {
			continue
		}
		entries = append(entries, extentEntry{
			Offset: n.Off,
			Tag:    tagName(n.Tag),
			Size:   n.Size,
			Length: n.Length,
			Marked: n.Marked,
		})
	}

	if jsonOut {
		return printJSON(entries)
	}

	printInfo("\nDynamic Region (%d entries):\n", len(entries))
	printInfo("  %-10s %-12s %-10s %-8s %s\n", "OFFSET", "TAG", "SIZE", "LENGTH", "MARKED")
	for _, e := range entries {
		printInfo("  %#-10x %-12s %-10d %-8d %v\n", e.Offset, e.Tag, e.Size, e.Length, e.Marked)
	}
	return nil
}
