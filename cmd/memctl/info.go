package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem/dynamic"
	"github.com/joshuapare/memkit/mem/fixed"
	"github.com/joshuapare/memkit/mem/shadow"
	"github.com/joshuapare/memkit/snapshot"
)

func init() {
	rootCmd.AddCommand(newInfoCmd())
}

func newInfoCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "info <image>",
		Short: "Validate an image header and report region summaries",
		Long: `The info command validates a saved memory image and displays a summary
of each region: page counts, type table size, live and free dynamic extents,
and root stack depth.

Example:
  memctl info run.memimg
  memctl info run.memimg --json`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runInfo(args)
		},
	}
	return cmd
}

type imageInfo struct {
	File        string `json:"file"`
	SizeBytes   int64  `json:"size_bytes"`
	FixedPages  int    `json:"fixed_pages"`
	DynPages    int    `json:"dynamic_pages"`
	ShadowPages int    `json:"shadow_pages"`

	Types int `json:"types"`

	LiveExtents int    `json:"live_extents"`
	FreeExtents int    `json:"free_extents"`
	LiveBytes   uint64 `json:"live_bytes"`
	FreeBytes   uint64 `json:"free_bytes"`

	RootDepth int `json:"root_depth"`
}

func runInfo(args []string) error {
	path := args[0]

	printVerbose("Opening image: %s\n", path)
	img, err := snapshot.Open(path)
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	info := imageInfo{
		File:        path,
		FixedPages:  img.Fixed.Pages(),
		DynPages:    img.Dynamic.Pages(),
		ShadowPages: img.Shadow.Pages(),
	}
	if stat, err := os.Stat(path); err == nil {
		info.SizeBytes = stat.Size()
	}

	info.Types = int(fixed.Attach(img.Fixed).NumTypes())

	nodes, err := dynamic.Attach(img.Dynamic).Nodes()
	if err != nil {
		return fmt.Errorf("dynamic region is corrupt: %w", err)
	}
	for _, n := range nodes {
		if n.Tag == format.TagFree {
			info.FreeExtents++
			info.FreeBytes += uint64(n.Size)
		} else {
			info.LiveExtents++
			info.LiveBytes += uint64(n.Size)
		}
	}

	info.RootDepth = shadow.Attach(img.Shadow).Depth()

	if jsonOut {
		return printJSON(info)
	}

	printInfo("\nImage Information:\n")
	printInfo("  File: %s (%d bytes)\n", info.File, info.SizeBytes)
	printInfo("  Pages: fixed=%d dynamic=%d shadow=%d\n",
		info.FixedPages, info.DynPages, info.ShadowPages)
	printInfo("  Registered types: %d\n", info.Types)
	printInfo("  Dynamic: %d live extents (%d bytes), %d free extents (%d bytes)\n",
		info.LiveExtents, info.LiveBytes, info.FreeExtents, info.FreeBytes)
	printInfo("  Root stack depth: %d\n", info.RootDepth)
	return nil
}
