package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"slices"
	"sync"
	"time"

	"github.com/spf13/cobra"

	ripple "github.com/Tap30/ripple-core-go"
	"github.com/Tap30/ripple-core-go/config"
)

type app struct {
	cfgFile   string
	serverURL string
	timeout   time.Duration
	file      *config.FileConfig
}

func newRootCmd() *cobra.Command {
	a := &app{}
	root := &cobra.Command{
		Use:   "ripple",
		Short: "Ripple analytics CLI",
		Long: `ripple sends events to an analytics collection endpoint.

Settings are read from ripple.yaml (or --config) and RIPPLE_* environment
variables, e.g. RIPPLE_API_KEY and RIPPLE_STORAGE_TYPE.`,
		Version:      ripple.SDKVersion,
		SilenceUsage: true,
		PersistentPreRunE: func(*cobra.Command, []string) error {
			fc, err := config.Load(a.cfgFile)
			if err != nil {
				return err
			}
			if a.serverURL != "" {
				fc.ServerURL = a.serverURL
			}
			a.file = fc
			return nil
		},
	}

	root.PersistentFlags().StringVar(&a.cfgFile, "config", "", "config file (default: ./ripple.yaml)")
	root.PersistentFlags().StringVar(&a.serverURL, "server-url", "", "collection endpoint, overrides the config")
	root.PersistentFlags().DurationVar(&a.timeout, "timeout", 30*time.Second, "time allowed for the final upload")

	root.AddCommand(a.trackCmd(), a.identifyCmd(), a.flushCmd())
	return root
}

// delivery collects the outcome of every event uploaded during a session.
type delivery struct {
	mu        sync.Mutex
	delivered int
	failed    map[string]int
}

func (d *delivery) record(_ *ripple.Event, status int, message string) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if status >= 200 && status < 300 {
		d.delivered++
		return
	}
	if d.failed == nil {
		d.failed = make(map[string]int)
	}
	d.failed[fmt.Sprintf("status %d: %s", status, message)]++
}

// report prints the outcome and returns an error when any event failed.
func (d *delivery) report(out, errOut io.Writer) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.delivered == 0 && len(d.failed) == 0 {
		printInfo(out, "nothing to upload")
		return nil
	}
	if d.delivered > 0 {
		printSuccess(out, "%s delivered", plural(d.delivered, "event"))
	}
	total := 0
	reasons := make([]string, 0, len(d.failed))
	for reason := range d.failed {
		reasons = append(reasons, reason)
	}
	slices.Sort(reasons)
	for _, reason := range reasons {
		n := d.failed[reason]
		total += n
		printError(errOut, "%s failed (%s)", plural(n, "event"), reason)
	}
	if total > 0 {
		return fmt.Errorf("%s not delivered", plural(total, "event"))
	}
	return nil
}

// session runs fn against a fresh client, then shuts it down so everything
// buffered is uploaded once.
func (a *app) session(cmd *cobra.Command, fn func(c *ripple.Client)) error {
	cfg, err := a.file.Configuration()
	if err != nil {
		return err
	}
	d := &delivery{}
	cfg.Callback = d.record

	storage := cfg.Adapters.StorageAdapter
	closeStorage := func() error {
		if storage == nil {
			return nil
		}
		return storage.Close()
	}

	c, err := ripple.NewClient(cfg)
	if err != nil {
		return errors.Join(err, closeStorage())
	}
	fn(c)

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	if err := errors.Join(c.Shutdown(ctx), closeStorage()); err != nil {
		return err
	}
	return d.report(cmd.OutOrStdout(), cmd.ErrOrStderr())
}
