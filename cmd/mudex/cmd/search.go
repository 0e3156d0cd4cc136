package cmd

import (
	"encoding/json"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/config"
	"github.com/wesm/mudex/internal/engine"
	"github.com/wesm/mudex/internal/search"
)

var (
	searchLimit   int
	searchThreads bool
	searchJSON    bool
	searchIDs     bool
)

var searchCmd = &cobra.Command{
	Use:   "search <query>",
	Short: "Search the index",
	Long: `Search the mu index and print matching messages.

The query uses mu syntax, for example:
  mudex search 'from:alice date:1w..'
  mudex search maildir:/Archive flag:unread`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		c := *cfg
		if searchLimit > 0 {
			c.General.MaxMessages = searchLimit
		}
		c.Threading.Enabled = searchThreads

		e := newEngine(newClient(&c, logger), &c, logger)
		defer e.Close()

		q := joinQuery(args)
		if err := e.RunQuery(q); err != nil {
			return err
		}
		if _, err := await(cmd.Context(), e); err != nil {
			return err
		}

		if searchJSON {
			enc := json.NewEncoder(cmd.OutOrStdout())
			enc.SetIndent("", "  ")
			return enc.Encode(toJSON(e))
		}
		p := newPrinter(cmd.OutOrStdout())
		rows := e.CurrentView()
		if len(rows) == 0 {
			p.note("No messages match %s", q)
			return nil
		}
		p.rows(rows, searchIDs)
		p.note("%d messages", len(rows))
		return nil
	},
}

// folderQuery turns a bare folder name into a maildir query.
func folderQuery(name string) string {
	return search.FolderQuery(config.NormalizeFolder(name))
}

func joinQuery(args []string) string {
	return strings.Join(args, " ")
}

// messageJSON is the --json record shape.
type messageJSON struct {
	ID      string    `json:"id"`
	Path    string    `json:"path"`
	Folder  string    `json:"folder"`
	Date    time.Time `json:"date"`
	From    string    `json:"from"`
	Subject string    `json:"subject"`
	Flags   []string  `json:"flags,omitempty"`
}

func toJSON(e *engine.Engine) []messageJSON {
	msgs := e.Store().Messages()
	out := make([]messageJSON, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageJSON{
			ID:      m.ID,
			Path:    m.Path,
			Folder:  m.Folder,
			Date:    m.Date,
			From:    m.Sender().String(),
			Subject: m.Subject,
			Flags:   m.Flags.Names(),
		})
	}
	return out
}

var folderCmd = &cobra.Command{
	Use:   "folder <name>",
	Short: "List a maildir folder",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return searchCmd.RunE(cmd, []string{folderQuery(args[0])})
	},
}

func init() {
	for _, c := range []*cobra.Command{searchCmd, folderCmd} {
		c.Flags().IntVarP(&searchLimit, "limit", "n", 0, "maximum results (default from config)")
		c.Flags().BoolVarP(&searchThreads, "threads", "t", false, "show threads")
		c.Flags().BoolVar(&searchJSON, "json", false, "print records as JSON")
		c.Flags().BoolVar(&searchIDs, "ids", false, "print message ids")
		rootCmd.AddCommand(c)
	}
}
