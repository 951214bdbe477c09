package commands

import (
	"context"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/treeline-app/treeline/internal/config"
	"github.com/treeline-app/treeline/internal/editor"
	"github.com/treeline-app/treeline/internal/printer"
	"github.com/treeline-app/treeline/internal/readstore"
	"github.com/treeline-app/treeline/internal/workspace"
	"github.com/treeline-app/treeline/pkg/document"
)

var (
	watchRoom       string
	watchConfigPath string
	watchRedisAddr  string
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Join a workspace room and stream its activity",
	Long: `Join a workspace room as a read-only collaborator and stream
document and presence events to the terminal.

Examples:
  # Watch a room using treeline.yml in the current directory
  treeline watch --room sprint-42

  # Watch with an explicit config file
  treeline watch --room sprint-42 --config ~/treeline.yml

  # Point at a different Redis server
  treeline watch --room sprint-42 --redis localhost:6380`,
	RunE: runWatch,
}

func init() {
	watchCmd.Flags().StringVar(&watchRoom, "room", "", "Workspace room ID (required)")
	watchCmd.Flags().StringVar(&watchConfigPath, "config", "", "Path to treeline.yml (optional)")
	watchCmd.Flags().StringVar(&watchRedisAddr, "redis", "", "Redis address override")
	watchCmd.MarkFlagRequired("room")
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := loadWatchConfig()
	if err != nil {
		return printer.Error("Invalid configuration", err.Error(), nil)
	}

	level, _ := zerolog.ParseLevel(cfg.Log.Level)
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()

	ctrl := workspace.New(cfg, editor.LogSaver{Log: log}, log)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	events := ctrl.Store().Subscribe()
	if err := ctrl.Enter(ctx, watchRoom); err != nil {
		return printer.Error("Cannot join workspace", err.Error(), []string{
			"Check that Redis is reachable at " + cfg.Redis.Addr,
		})
	}
	defer ctrl.Leave()

	printer.Success("Joined workspace %q as %s", watchRoom, cfg.User.Name)
	printer.Muted("Press Ctrl+C to leave.")

	store := ctrl.Store()
	for {
		select {
		case <-ctx.Done():
			printer.Info("Leaving workspace.")
			return nil
		case ev := <-events:
			printWatchEvent(store, ev)
		}
	}
}

// loadWatchConfig resolves the watch command's configuration: an
// explicit file, a treeline.yml in the working directory, or defaults
// with the OS user as identity.
func loadWatchConfig() (*config.Config, error) {
	path := watchConfigPath
	if path == "" {
		if _, err := os.Stat("treeline.yml"); err == nil {
			path = "treeline.yml"
		}
	}

	var cfg *config.Config
	if path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	} else {
		cfg = config.Default()
		cfg.User.Name = os.Getenv("USER")
		if cfg.User.Name == "" {
			cfg.User.Name = "observer"
		}
	}

	if watchRedisAddr != "" {
		cfg.Redis.Addr = watchRedisAddr
	}
	return cfg, nil
}

func printWatchEvent(store *readstore.Store, ev readstore.Event) {
	switch ev.Kind {
	case string(document.MapNodes):
		if node, ok := store.Node(ev.Key); ok {
			printer.Event("node", "%s %q (%s)", node.ID, node.Data.Title, node.Type)
		} else {
			printer.Event("node", "%s deleted", ev.Key)
		}
	case string(document.MapPreviewNodes):
		if p, ok := store.Preview(ev.Key); ok {
			printer.Event("preview", "%s drafted by %s", p.ID, p.LockedBy)
		} else {
			printer.Event("preview", "%s resolved", ev.Key)
		}
	case string(document.MapEditSessions):
		if es, ok := store.EditSession(ev.Key); ok {
			printer.Event("editing", "%s started editing %s", es.Editor, es.NodeID)
		} else {
			printer.Event("editing", "edit on %s ended", ev.Key)
		}
	case string(document.MapConfirmedCommits):
		printer.Event("commit", "node %s fields confirmed", ev.Key)
	case string(document.MapCandidates):
		printer.Event("candidates", "%d suggestions on node %s", len(store.CandidatesFor(ev.Key)), ev.Key)
	case string(document.MapTechRecommendations):
		printer.Event("techs", "%d recommendations on node %s", len(store.TechsFor(ev.Key)), ev.Key)
	case string(document.MapSelectedTech):
		if techID, ok := store.SelectedTech(ev.Key); ok {
			printer.Event("tech", "node %s selected %s", ev.Key, techID)
		}
	case string(document.MapCandidatesPending), string(document.MapTechsPending), string(document.MapNodeCreatingPending):
		printer.Event("pending", "%s: %s", strings.TrimSuffix(ev.Kind, "_pending"), ev.Key)
	case readstore.KindStream:
		printer.Muted("streaming tokens for node %s...", ev.Key)
	case readstore.KindSaveError:
		if se, ok := store.LastSaveError(); ok {
			printer.Warning("save failed: %s on node %s", se.Action, se.NodeID)
		}
	case readstore.KindStatus:
		printer.Muted("connection: %s", store.Status())
	}
}
