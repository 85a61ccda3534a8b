package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/beamsim/beamsim/internal/definition"
)

// validateDir loads every definition file in dir and prints one line per
// file. It fails when any file is invalid.
func validateDir(out io.Writer, dir string) error {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return err
	}
	checked, failed := 0, 0
	for _, e := range entries {
		name := e.Name()
		if e.IsDir() || !(strings.HasSuffix(name, ".json") || strings.HasSuffix(name, ".json.gz")) {
			continue
		}
		checked++
		d, err := definition.LoadFile(filepath.Join(dir, name))
		if err != nil {
			failed++
			fmt.Fprintf(out, "FAIL %s\n", err)
			continue
		}
		fmt.Fprintf(out, "ok   %s: %s %q, %d nodes, %d beams, %d wheels\n",
			name, d.Kind, d.Name, len(d.Nodes), len(d.Beams), len(d.Wheels))
	}
	fmt.Fprintf(out, "%d checked, %d failed\n", checked, failed)
	if failed > 0 {
		return fmt.Errorf("%d of %d definitions invalid", failed, checked)
	}
	return nil
}
