package main

import (
	"fmt"
	"io"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/ayusman/neuropose/internal/config"
	"github.com/ayusman/neuropose/internal/store"
)

var (
	sessionsDB    string
	sessionsLimit int
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "Inspect the session journal",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List recorded sessions, newest first",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openJournal()
		if err != nil {
			return err
		}
		defer st.Close()
		return listSessions(cmd.OutOrStdout(), st, sessionsLimit)
	},
}

var sessionsShowCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one session and its events",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openJournal()
		if err != nil {
			return err
		}
		defer st.Close()
		return showSession(cmd.OutOrStdout(), st, args[0])
	},
}

func init() {
	sessionsCmd.PersistentFlags().StringVar(&sessionsDB, "db", "", "journal database path (default ~/.neuropose/neuropose.db)")
	sessionsListCmd.Flags().IntVar(&sessionsLimit, "limit", 20, "maximum number of sessions, 0 for all")

	sessionsCmd.AddCommand(sessionsListCmd, sessionsShowCmd)
	rootCmd.AddCommand(sessionsCmd)
}

func openJournal() (*store.Store, error) {
	path := sessionsDB
	if path == "" {
		cfg, err := config.Load()
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		path = cfg.DBPath
	}

	st, err := store.New(path)
	if err != nil {
		return nil, fmt.Errorf("open journal %s: %w", path, err)
	}
	return st, nil
}

func listSessions(out io.Writer, st *store.Store, limit int) error {
	sessions, err := st.Sessions().List(limit)
	if err != nil {
		return fmt.Errorf("list sessions: %w", err)
	}

	if len(sessions) == 0 {
		fmt.Fprintln(out, "No sessions recorded.")
		return nil
	}

	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "ID\tESTIMATOR\tSTARTED\tDURATION\tFRAMES\tPUNCHES")
	fmt.Fprintln(w, "--\t---------\t-------\t--------\t------\t-------")
	for _, s := range sessions {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%d\n",
			s.ID, s.Estimator, s.StartedAt.Local().Format("2006-01-02 15:04"), duration(s), s.Frames, s.Punches)
	}
	return w.Flush()
}

func showSession(out io.Writer, st *store.Store, id string) error {
	sess, err := st.Sessions().GetByID(id)
	if err != nil {
		return fmt.Errorf("session %s: %w", id, err)
	}
	events, err := st.Events().ListBySession(id)
	if err != nil {
		return fmt.Errorf("list events: %w", err)
	}

	fmt.Fprintf(out, "Session:   %s\n", sess.ID)
	fmt.Fprintf(out, "Estimator: %s\n", sess.Estimator)
	fmt.Fprintf(out, "Started:   %s\n", sess.StartedAt.Local().Format(time.DateTime))
	fmt.Fprintf(out, "Duration:  %s\n", duration(sess))
	fmt.Fprintf(out, "Frames:    %d\n", sess.Frames)
	fmt.Fprintf(out, "Punches:   %d\n", sess.Punches)

	if len(events) == 0 {
		return nil
	}

	fmt.Fprintln(out)
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, "TIME\tEVENT\tCONFIDENCE")
	for _, e := range events {
		conf := "-"
		if e.Confidence > 0 {
			conf = fmt.Sprintf("%.2f", e.Confidence)
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", e.CreatedAt.Local().Format(time.TimeOnly), e.Kind, conf)
	}
	return w.Flush()
}

func duration(s *store.Session) string {
	if s.EndedAt == nil {
		return "running"
	}
	return s.EndedAt.Sub(s.StartedAt).Round(time.Second).String()
}
