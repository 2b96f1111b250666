package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/watzon/alyx-worker/internal/bindings"
	"github.com/watzon/alyx-worker/internal/functions"
	"github.com/watzon/alyx-worker/pkg/fn"
)

var validateWatch bool

var validateCmd = &cobra.Command{
	Use:   "validate [script_root]",
	Short: "Check functions against their manifests",
	Long: `Load every function under the script root the way the host would ask
the worker to, and report the ones that would fail to load.

Each directory holding a function.json (or function.yaml) is one function.
The script root defaults to functions.script_root.

Use --watch to keep validating functions as their files change.`,
	Args: cobra.MaximumNArgs(1),
	RunE: runValidate,
}

func init() {
	validateCmd.Flags().BoolVarP(&validateWatch, "watch", "w", false, "Revalidate functions when their files change")

	rootCmd.AddCommand(validateCmd)
}

func runValidate(cmd *cobra.Command, args []string) error {
	cfg := currentConfig()

	root := cfg.Functions.ScriptRoot
	if len(args) > 0 {
		root = args[0]
	}
	root, err := filepath.Abs(root)
	if err != nil {
		return fmt.Errorf("resolving script root: %w", err)
	}

	v := newValidator(fn.Default, cmd.OutOrStdout())
	failed, err := v.validateRoot(root)
	if err != nil {
		return err
	}

	if !validateWatch {
		if failed > 0 {
			return fmt.Errorf("%d function(s) failed validation", failed)
		}
		return nil
	}

	watcher, err := functions.NewSourceWatcher(root, cfg.Functions.Watch, cfg.Functions.Ignore, func(dir string) {
		v.validateDir(dir)
	})
	if err != nil {
		return err
	}
	if err := watcher.Start(); err != nil {
		return err
	}
	defer func() { _ = watcher.Stop() }()

	log.Info().Str("path", root).Msg("Watching functions for changes")

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	<-ctx.Done()

	log.Info().Msg("Stopped watching")
	return nil
}

// functionValidator loads functions without a host and reports the result.
type functionValidator struct {
	loader *functions.Loader
	out    io.Writer
}

func newValidator(catalog *fn.Catalog, out io.Writer) *functionValidator {
	return &functionValidator{
		loader: functions.NewLoader(catalog, bindings.Default()),
		out:    out,
	}
}

// validateRoot validates every function under root and returns how many
// failed.
func (v *functionValidator) validateRoot(root string) (int, error) {
	if _, err := os.Stat(root); err != nil {
		return 0, fmt.Errorf("script root %s: %w", root, err)
	}

	mds, err := functions.Discover(root)
	if err != nil {
		return 0, err
	}
	if len(mds) == 0 {
		fmt.Fprintf(v.out, "No functions found in %s\n", root)
		return 0, nil
	}

	failed := 0
	for _, md := range mds {
		if err := v.validate(md); err != nil {
			failed++
		}
	}

	fmt.Fprintln(v.out)
	fmt.Fprintf(v.out, "%d function(s), %d ok, %d failed\n", len(mds), len(mds)-failed, failed)
	return failed, nil
}

func (v *functionValidator) validateDir(dir string) {
	md, err := functions.MetadataFromDir(dir)
	if err != nil {
		fmt.Fprintf(v.out, "✗ %s: %v\n", filepath.Base(dir), err)
		return
	}
	_ = v.validate(md)
}

func (v *functionValidator) validate(md *functions.Metadata) error {
	def, err := v.loader.Load(uuid.New().String(), md)
	if err != nil {
		fmt.Fprintf(v.out, "✗ %s\n    %v\n", md.Name, err)
		return err
	}

	mode := "sync"
	if def.Async {
		mode = "async"
	}
	fmt.Fprintf(v.out, "✓ %s (%s, %s, %d binding(s))\n", def.Name, def.EntryPoint, mode, len(def.Bindings))
	return nil
}
