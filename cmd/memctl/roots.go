package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/joshuapare/memkit/internal/format"
	"github.com/joshuapare/memkit/mem/shadow"
	"github.com/joshuapare/memkit/snapshot"
)

func init() {
	rootCmd.AddCommand(newRootsCmd())
}

func newRootsCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "roots <image>",
		Short: "Dump the root stack and scratch cells",
		Long: `The roots command prints the shadow region's root stack from bottom to
top, plus the scratch cells. Populated scratch pointer slots in an image mean
the run was saved mid-intrinsic, which the runtime never does on its own.

Example:
  memctl roots run.memimg`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runRoots(args)
		},
	}
	return cmd
}

func kindName(kind uint32) string {
	switch kind {
	case format.RootPrimitive:
		return "primitive"
	case format.RootFixedPtr:
		return "fixed_ptr"
	case format.RootDynamicPtr:
		return "dynamic_ptr"
	}
	return fmt.Sprintf("kind(%d)", kind)
}

type rootsDump struct {
	Depth   int         `json:"depth"`
	Entries []rootEntry `json:"entries"`

	ScratchPtrA  uint32  `json:"scratch_ptr_a"`
	ScratchPtrB  uint32  `json:"scratch_ptr_b"`
	ScratchInt   int64   `json:"scratch_int"`
	ScratchFloat float64 `json:"scratch_float"`
}

type rootEntry struct {
	Index int    `json:"index"`
	Kind  string `json:"kind"`
	Value uint32 `json:"value"`
}

func runRoots(args []string) error {
	img, err := snapshot.Open(args[0])
	if err != nil {
		return fmt.Errorf("failed to open image: %w", err)
	}
	defer img.Close()

	tracker := shadow.Attach(img.Shadow)
	dump := rootsDump{
		Depth:        tracker.Depth(),
		Entries:      make([]rootEntry, 0, tracker.Depth()),
		ScratchPtrA:  tracker.PtrAt(0),
		ScratchPtrB:  tracker.PtrAt(1),
		ScratchInt:   tracker.ScratchInt(),
		ScratchFloat: tracker.ScratchFloat(),
	}
	for i := 0; i < tracker.Depth(); i++ {
		e, err := tracker.EntryAt(i)
		if err != nil {
			return err
		}
		dump.Entries = append(dump.Entries, rootEntry{Index: i, Kind: kindName(e.Kind), Value: e.Value})
	}

	if jsonOut {
		return printJSON(dump)
	}

	printInfo("\nRoot Stack (%d entries):\n", dump.Depth)
	for _, e := range dump.Entries {
		printInfo("  [%d] %-12s %#x\n", e.Index, e.Kind, e.Value)
	}
	printInfo("Scratch: ptrA=%#x ptrB=%#x int=%d float=%g\n",
		dump.ScratchPtrA, dump.ScratchPtrB, dump.ScratchInt, dump.ScratchFloat)
	return nil
}
