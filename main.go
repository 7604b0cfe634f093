package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/term"

	"library-circulation/config"
	"library-circulation/journal"
	"library-circulation/library"
	"library-circulation/logging"
	"library-circulation/metrics"
)

// app bundles what every subcommand needs.
type app struct {
	cfg     *config.Config
	log     *zap.Logger
	journal *journal.Journal
	mgr     *library.LibraryManager
}

func (a *app) Close() {
	if a.journal != nil {
		if err := a.journal.Close(); err != nil {
			a.log.Warn("close journal", zap.Error(err))
		}
	}
	_ = a.log.Sync()
}

type rootFlags struct {
	configPath string
	envFile    string
	dataDir    string
}

func setup(f *rootFlags) (*app, error) {
	if err := config.LoadDotEnv(f.envFile); err != nil {
		return nil, err
	}
	cfg, err := config.Load(f.configPath)
	if err != nil {
		return nil, err
	}
	if f.dataDir != "" {
		cfg.DataDir = f.dataDir
	}

	log, err := logging.New(cfg.Log.Level, cfg.Log.Format, cfg.Log.File)
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, log: log}
	store := library.NewStore(cfg.DataDir)
	a.journal, err = journal.Open(store.Path(library.JournalFile))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("open journal: %w", err)
	}

	m, err := metrics.New(metrics.Options{Textfile: cfg.Metrics.Textfile, Logger: log})
	if err != nil {
		a.Close()
		return nil, err
	}

	a.mgr, err = library.NewLibraryManager(cfg.DataDir,
		library.WithPolicy(cfg.LibraryPolicy()),
		library.WithJournal(a.journal),
		library.WithObserver(m),
		library.WithLogger(log),
		library.WithSessionOptions(library.WithOperator(cfg.Operator)),
	)
	if err != nil {
		a.Close()
		return nil, err
	}
	m.Set(a.mgr.Stats())
	if err := m.WriteTextfile(); err != nil {
		log.Warn("metrics textfile write failed", zap.Error(err))
	}
	return a, nil
}

// readPassword reads a PIN with masking when stdin is a terminal, and as a
// plain line otherwise.
func readPassword(sc *bufio.Scanner) func(prompt string) (string, error) {
	return func(prompt string) (string, error) {
		fmt.Print(prompt)
		fd := int(os.Stdin.Fd())
		if term.IsTerminal(fd) {
			bytePassword, err := term.ReadPassword(fd)
			fmt.Println()
			if err != nil {
				return "", err
			}
			return strings.TrimSpace(string(bytePassword)), nil
		}
		if !sc.Scan() {
			return "", errAborted
		}
		return strings.TrimSpace(sc.Text()), nil
	}
}

func newRootCmd() *cobra.Command {
	f := &rootFlags{}
	root := &cobra.Command{
		Use:           "library",
		Short:         "Library circulation: catalog, members, loans and reservations",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(f)
			if err != nil {
				return err
			}
			defer a.Close()

			sc := bufio.NewScanner(os.Stdin)
			sh := &shell{
				sc:         sc,
				out:        cmd.OutOrStdout(),
				mgr:        a.mgr,
				journal:    a.journal,
				readSecret: readPassword(sc),
			}
			sh.loop()
			return nil
		},
	}
	root.PersistentFlags().StringVar(&f.configPath, "config", "library.yaml", "path to the YAML configuration file")
	root.PersistentFlags().StringVar(&f.envFile, "env-file", ".env", "optional .env file loaded before the configuration")
	root.PersistentFlags().StringVar(&f.dataDir, "data-dir", "", "data directory (overrides the configuration)")

	root.AddCommand(
		newCheckCmd(f),
		newReportCmd(f),
		newProcessQueuesCmd(f),
		newHistoryCmd(f),
	)
	return root
}

var errViolations = errors.New("integrity violations found")

func newCheckCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "check",
		Short: "Cross-check copy status against loans and reservations",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(f)
			if err != nil {
				return err
			}
			defer a.Close()

			vs := a.mgr.Violations()
			out := cmd.OutOrStdout()
			if len(vs) == 0 {
				fmt.Fprintln(out, "No integrity violations.")
				return nil
			}
			for _, v := range vs {
				fmt.Fprintln(out, v)
			}
			return fmt.Errorf("%w: %d", errViolations, len(vs))
		},
	}
}

func newReportCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "report",
		Short: "Print inventory and circulation statistics",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(f)
			if err != nil {
				return err
			}
			defer a.Close()
			fmt.Fprint(cmd.OutOrStdout(), a.mgr.Report())
			return nil
		},
	}
}

func newProcessQueuesCmd(f *rootFlags) *cobra.Command {
	return &cobra.Command{
		Use:   "process-queues",
		Short: "Expire lapsed reservation claims and suspend members holding overdue loans",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(f)
			if err != nil {
				return err
			}
			defer a.Close()
			expired, suspended := a.mgr.ProcessQueues()
			fmt.Fprintf(cmd.OutOrStdout(), "%d reservation(s) expired, %d member(s) suspended.\n", len(expired), len(suspended))
			return nil
		},
	}
}

func newHistoryCmd(f *rootFlags) *cobra.Command {
	var (
		limit int
		user  string
	)
	cmd := &cobra.Command{
		Use:   "history",
		Short: "Show journal entries",
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := setup(f)
			if err != nil {
				return err
			}
			defer a.Close()

			var entries []journal.Entry
			if user != "" {
				entries, err = a.journal.ForUser(context.Background(), user)
			} else {
				entries, err = a.journal.Recent(context.Background(), limit)
			}
			if err != nil {
				return fmt.Errorf("read journal: %w", err)
			}
			for _, e := range entries {
				fmt.Fprintln(cmd.OutOrStdout(), e)
			}
			return nil
		},
	}
	cmd.Flags().IntVar(&limit, "limit", 20, "number of latest entries to show")
	cmd.Flags().StringVar(&user, "user", "", "show every entry about this matricule")
	return cmd
}

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}
