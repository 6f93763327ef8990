package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/macropulse/macropulse/internal/artifact"
	"github.com/macropulse/macropulse/internal/brief"
	"github.com/macropulse/macropulse/internal/log"
	"github.com/macropulse/macropulse/internal/render"
	"github.com/macropulse/macropulse/internal/watcher"
)

var (
	briefRaw    bool
	briefStyle  string
	briefWidth  int
	briefFollow bool
)

var briefCmd = &cobra.Command{
	Use:   "brief",
	Short: "Inspect the daily brief",
}

var briefShowCmd = &cobra.Command{
	Use:   "show [path]",
	Short: "Render the daily brief of the published artifact",
	Args:  cobra.MaximumNArgs(1),
	RunE:  runBriefShow,
}

func init() {
	rootCmd.AddCommand(briefCmd)
	briefCmd.AddCommand(briefShowCmd)
	briefShowCmd.Flags().BoolVar(&briefRaw, "raw", false, "print Markdown without styling")
	briefShowCmd.Flags().StringVar(&briefStyle, "style", "dark", "glamour style: dark, light or notty")
	briefShowCmd.Flags().IntVar(&briefWidth, "width", render.DefaultWidth, "word wrap width")
	briefShowCmd.Flags().BoolVarP(&briefFollow, "follow", "f", false, "re-render whenever the artifact is replaced")
}

func runBriefShow(cmd *cobra.Command, args []string) error {
	path := layout.Artifact
	if len(args) == 1 {
		path = args[0]
	}
	err := showBrief(cmd.OutOrStdout(), path)
	if !briefFollow {
		return err
	}
	if err != nil {
		log.Warn(log.CatBrief, "Cannot show brief yet", "path", path, "error", err.Error())
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w, err := watcher.New(path, watcher.DefaultDebounce)
	if err != nil {
		return err
	}
	changes, err := w.Watch(ctx)
	if err != nil {
		return err
	}
	for range changes {
		if err := showBrief(cmd.OutOrStdout(), path); err != nil {
			log.Warn(log.CatBrief, "Cannot show brief", "path", path, "error", err.Error())
		}
	}
	return nil
}

func showBrief(w io.Writer, path string) error {
	b, err := readBrief(path)
	if err != nil {
		return err
	}
	md := b.Markdown()
	if briefRaw {
		fmt.Fprint(w, md)
		return nil
	}
	out, err := render.Markdown(md, briefWidth, briefStyle)
	if err != nil {
		return fmt.Errorf("rendering brief: %w", err)
	}
	fmt.Fprint(w, out)
	return nil
}

// readBrief decodes the daily_brief block of an artifact.
func readBrief(path string) (*brief.Brief, error) {
	content, err := os.ReadFile(path) //nolint:gosec // G304: user-selected artifact
	if err != nil {
		return nil, fmt.Errorf("reading artifact: %w", err)
	}
	var doc map[string]json.RawMessage
	if err := json.Unmarshal(content, &doc); err != nil {
		return nil, fmt.Errorf("decoding artifact: %w", err)
	}
	raw, ok := doc[artifact.BriefKey]
	if !ok || string(raw) == "null" {
		return nil, errors.New("artifact has no daily brief")
	}
	var b brief.Brief
	if err := json.Unmarshal(raw, &b); err != nil {
		return nil, fmt.Errorf("decoding daily brief: %w", err)
	}
	return &b, nil
}
