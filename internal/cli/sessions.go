package cli

import (
	"fmt"
	"io"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/daryltucker/agent-bench/internal/model"
	"github.com/daryltucker/agent-bench/internal/output"
	"github.com/daryltucker/agent-bench/internal/store"
)

var (
	exportFormat string
	exportOut    string
	viewPlain    bool
)

var sessionsCmd = &cobra.Command{
	Use:   "sessions",
	Short: "List, view and export stored sessions",
}

var sessionsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List stored sessions, newest first",
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(appCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		list, err := st.ListSessions(cmd.Context())
		if err != nil {
			return err
		}
		if len(list) == 0 {
			fmt.Fprintln(cmd.OutOrStdout(), "No sessions found.")
			return nil
		}

		tw := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
		fmt.Fprintln(tw, "ID\tPROVIDER\tMODEL\tCREATED\tMESSAGES")
		for _, s := range list {
			fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%d\n",
				s.ID, s.Provider, s.Model, s.CreatedAt.Local().Format(time.DateTime), s.MessageCount)
		}
		return tw.Flush()
	},
}

var sessionsViewCmd = &cobra.Command{
	Use:   "view <id>",
	Short: "Print a stored session with colored speaker labels",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		st, err := openStore(appCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		if viewPlain {
			text, err := st.ExportSession(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			_, err = io.WriteString(cmd.OutOrStdout(), text)
			return err
		}
		return viewSession(cmd, st, args[0])
	},
}

// viewSession prints the conversation the way chat shows it.
func viewSession(cmd *cobra.Command, st store.Store, id string) error {
	sess, err := st.LoadSession(cmd.Context(), id)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	noticeText.Fprintf(out, "Session %s with %s (%s), started %s\n\n",
		sess.ID, sess.Provider.ID, sess.Provider.Model, sess.CreatedAt.Local().Format(time.DateTime))
	for _, m := range sess.Conversation {
		switch m.Role {
		case model.RoleUser:
			fmt.Fprintf(out, "%s %s\n", youLabel.Sprint("You:"), m.Content)
		case model.RoleAssistant:
			fmt.Fprintf(out, "%s %s\n", assistantLabel.Sprint("Assistant:"), assistantText.Sprint(m.Content))
		default:
			fmt.Fprintf(out, "%s %s\n", systemLabel.Sprint("System:"), systemText.Sprint(m.Content))
		}
	}
	return nil
}

var sessionsExportCmd = &cobra.Command{
	Use:   "export <id>",
	Short: "Export a stored session to a file",
	Long: `Exports a session in one of: text, json, yaml, csv, markdown.
Without --out the file is written to session_<id>.<ext> in the current
directory; "--out -" writes to stdout.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		format, err := output.ParseFormat(exportFormat)
		if err != nil {
			return err
		}

		st, err := openStore(appCfg)
		if err != nil {
			return err
		}
		defer st.Close()

		return exportSession(cmd, st, args[0], format, exportOut)
	},
}

func exportSession(cmd *cobra.Command, st store.Store, id string, format output.Format, out string) error {
	sess, err := st.LoadSession(cmd.Context(), id)
	if err != nil {
		return err
	}

	if out == "-" {
		return output.RenderSession(cmd.OutOrStdout(), sess, format)
	}
	if out == "" {
		out = fmt.Sprintf("session_%s.%s", sess.ID, format.Extension())
	}

	f, err := os.Create(out)
	if err != nil {
		return fmt.Errorf("failed to create export file: %w", err)
	}
	if err := output.RenderSession(f, sess, format); err != nil {
		f.Close()
		return fmt.Errorf("failed to export session: %w", err)
	}
	if err := f.Close(); err != nil {
		return err
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Session exported to %s\n", out)
	return nil
}

func init() {
	rootCmd.AddCommand(sessionsCmd)
	sessionsCmd.AddCommand(sessionsListCmd, sessionsViewCmd, sessionsExportCmd)

	sessionsViewCmd.Flags().BoolVar(&viewPlain, "plain", false, "Print uncolored role: content lines")
	sessionsExportCmd.Flags().StringVar(&exportFormat, "format", "text", "Export format (text, json, yaml, csv, markdown)")
	sessionsExportCmd.Flags().StringVar(&exportOut, "out", "", "Output file (default session_<id>.<ext>, '-' for stdout)")
}
