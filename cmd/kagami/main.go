// Kagami CLI - runs a kagami project: loads kagami.toml, the entry block
// and its libraries, and feeds events to the machine until it finishes.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/tliron/commonlog"
	_ "github.com/tliron/commonlog/simple"
	"golang.org/x/sync/errgroup"

	"github.com/vgxbj/Kagami/blockfile"
	"github.com/vgxbj/Kagami/eventsrc"
	"github.com/vgxbj/Kagami/layout"
	"github.com/vgxbj/Kagami/manifest"
	"github.com/vgxbj/Kagami/store"
	"github.com/vgxbj/Kagami/vm"
)

type options struct {
	verbosity int
	entry     string
	events    string
	depth     int
	noStore   bool
	offensive bool
}

func main() {
	opts := options{}
	flag.IntVar(&opts.verbosity, "v", -1, "Log verbosity (overrides [vm] verbosity)")
	flag.StringVar(&opts.entry, "entry", "", "Entry block (overrides [source] entry)")
	flag.StringVar(&opts.events, "events", "", "Websocket event feed URL (overrides [events] url)")
	flag.IntVar(&opts.depth, "depth", 0, "Maximum call depth (overrides [vm] max-call-depth)")
	flag.BoolVar(&opts.noStore, "no-store", false, "Do not use the block cache")
	flag.BoolVar(&opts.offensive, "offensive", false, "Start in offensive mode")

	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "Usage: kagami [options] [project-dir]\n")
		fmt.Fprintf(os.Stderr, "       kagami disasm <file.kbc>\n")
		fmt.Fprintf(os.Stderr, "       kagami store <stats|prune> [project-dir]\n")
		fmt.Fprintf(os.Stderr, "       kagami version\n\n")
		fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment (also read from <project>/.env):\n")
		fmt.Fprintf(os.Stderr, "  %s, %s, %s,\n", manifest.EnvEntry, manifest.EnvMaxCallDepth, manifest.EnvVerbosity)
		fmt.Fprintf(os.Stderr, "  %s, %s, %s\n", manifest.EnvOffensive, manifest.EnvEventsURL, manifest.EnvStorePath)
	}
	flag.Parse()

	args := flag.Args()
	var err error
	switch {
	case len(args) > 0 && args[0] == "version":
		fmt.Printf("kagami %s (%s)\n", vm.Version, vm.CodeName)
	case len(args) > 0 && args[0] == "disasm":
		err = runDisasm(os.Stdout, args[1:])
	case len(args) > 0 && args[0] == "store":
		err = runStore(os.Stdout, args[1:])
	default:
		dir := "."
		if len(args) > 0 {
			dir = args[0]
		}
		ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
		err = run(ctx, dir, opts, os.Stdout)
		stop()
	}
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// loadManifest finds the project manifest above dir, or falls back to the
// default layout rooted at dir, then applies KAGAMI_* overrides.
func loadManifest(dir string) (*manifest.Manifest, error) {
	m, err := manifest.FindAndLoad(dir)
	if err != nil {
		return nil, err
	}
	if m == nil {
		if m, err = manifest.Default(dir); err != nil {
			return nil, err
		}
	}
	if err := m.ApplyEnv(); err != nil {
		return nil, err
	}
	return m, nil
}

func (o options) apply(m *manifest.Manifest) {
	if o.entry != "" {
		m.Source.Entry = o.entry
	}
	if o.events != "" {
		m.Events.URL = o.events
	}
	if o.depth > 0 {
		m.VM.MaxCallDepth = o.depth
	}
	if o.noStore {
		m.Store.Disabled = true
	}
	if o.offensive {
		m.VM.Offensive = true
	}
	if o.verbosity >= 0 {
		m.VM.Verbosity = o.verbosity
	}
}

func run(ctx context.Context, dir string, opts options, out io.Writer) error {
	m, err := loadManifest(dir)
	if err != nil {
		return err
	}
	opts.apply(m)
	commonlog.Configure(m.VM.Verbosity, nil)
	log := commonlog.GetLogger("kagami")

	resolver := manifest.NewResolver(m)
	libs, err := resolver.Libraries()
	if err != nil {
		return err
	}
	for _, lib := range libs {
		log.Debugf("library %s as %s at %s", lib.Name, lib.Alias, lib.LocalPath)
	}

	reg := vm.NewRegistry()
	if err := layout.Register(reg); err != nil {
		return err
	}
	if err := registerBuiltins(reg, out); err != nil {
		return err
	}
	reg.Freeze()

	var cache blockfile.Cache
	if !m.Store.Disabled {
		st, err := store.Open(m.StorePath())
		if err != nil {
			return err
		}
		defer st.Close()
		cache = st
	}
	scripts := blockfile.NewLoader(resolver, cache)
	entry, err := scripts.LoadScript(m.Source.Entry)
	if err != nil {
		return fmt.Errorf("loading entry %s: %w", m.Source.Entry, err)
	}

	layouts := layout.NewLoader(resolver)
	src := vm.NewChanSource(m.Events.Buffer)
	refreshes := 0
	machine := vm.NewMachine(reg, entry,
		vm.WithEventSource(src),
		vm.WithScriptLoader(scripts),
		vm.WithConfigLoader(layouts),
		vm.WithMaxCallDepth(m.VM.MaxCallDepth),
		vm.WithOffensive(m.VM.Offensive),
		vm.WithRefresh(func() { refreshes++ }),
	)
	if path := m.LayoutPath(); path != "" {
		if err := layouts.LoadWindow(machine, path); err != nil {
			return fmt.Errorf("loading layout: %w", err)
		}
	}

	g, gctx := errgroup.WithContext(ctx)
	feedCtx, stopFeed := context.WithCancel(gctx)
	defer stopFeed()
	if m.Events.URL != "" {
		feed := eventsrc.NewFeed(m.Events.URL, src)
		if err := feed.Dial(feedCtx); err != nil {
			return err
		}
		defer feed.Close()
		g.Go(func() error {
			defer src.Close()
			if err := feed.Run(feedCtx); err != nil && feedCtx.Err() == nil {
				return err
			}
			log.Infof("feed %s: %d event(s), %d dropped", feed.URL(), feed.Received(), feed.Dropped())
			return nil
		})
	} else {
		src.Close()
	}
	g.Go(func() error {
		defer stopFeed()
		defer src.Close()
		return machine.Run(gctx)
	})

	err = g.Wait()
	log.Infof("machine %s finished: peak call depth %d, %d refreshes", machine.ID(), machine.PeakCallDepth(), refreshes)
	if errors.Is(err, context.Canceled) && ctx.Err() != nil {
		return nil
	}
	return err
}
