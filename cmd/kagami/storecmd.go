package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/vgxbj/Kagami/store"
)

// runStore implements `kagami store <stats|prune> [project-dir]`.
func runStore(w io.Writer, args []string) error {
	if len(args) < 1 || len(args) > 2 {
		return errors.New("usage: kagami store <stats|prune> [project-dir]")
	}
	dir := "."
	if len(args) == 2 {
		dir = args[1]
	}
	m, err := loadManifest(dir)
	if err != nil {
		return err
	}
	st, err := store.Open(m.StorePath())
	if err != nil {
		return err
	}
	defer st.Close()

	switch args[0] {
	case "stats":
		blocks, scripts, err := st.Stats()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: %d block(s), %d script file(s)\n", st.Path(), blocks, scripts)
	case "prune":
		n, err := st.Prune()
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s: pruned %d block(s)\n", st.Path(), n)
	default:
		return fmt.Errorf("unknown store command %q", args[0])
	}
	return nil
}
