package main

import (
	"fmt"
	"io"

	"github.com/fatih/color"
	"github.com/sergi/go-diff/diffmatchpatch"
)

// printRepairDiffs summarizes what the model is about to change, one line
// per file, by diffing each fix against the current workspace copy.
func printRepairDiffs(current, fixes *fileSet, w io.Writer) {
	if fixes.Len() == 0 {
		return
	}
	green := color.New(color.FgGreen).SprintFunc()
	red := color.New(color.FgRed).SprintFunc()
	cyan := color.New(color.FgCyan).SprintFunc()

	dmp := diffmatchpatch.New()
	for _, path := range fixes.Paths() {
		after, _ := fixes.Get(path)
		before, ok := current.Get(path)
		if !ok {
			fmt.Fprintf(w, "  %s %s (new file, %d bytes)\n", cyan("+"), path, len(after))
			continue
		}
		if before == after {
			fmt.Fprintf(w, "  = %s (unchanged)\n", path)
			continue
		}
		inserted, deleted := 0, 0
		for _, d := range dmp.DiffMain(before, after, false) {
			switch d.Type {
			case diffmatchpatch.DiffInsert:
				inserted += len(d.Text)
			case diffmatchpatch.DiffDelete:
				deleted += len(d.Text)
			}
		}
		fmt.Fprintf(w, "  ~ %s (%s/%s bytes)\n", path, green(fmt.Sprintf("+%d", inserted)), red(fmt.Sprintf("-%d", deleted)))
	}
}
