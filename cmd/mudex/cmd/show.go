package cmd

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/wesm/mudex/internal/mime"
	"github.com/wesm/mudex/internal/model"
	"github.com/wesm/mudex/internal/mu"
)

var showHeaders bool

var showCmd = &cobra.Command{
	Use:   "show <path>",
	Short: "Print one message file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		d, err := newClient(cfg, logger).View(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		p := newPrinter(cmd.OutOrStdout())
		if showHeaders {
			for _, name := range sortedKeys(d.Headers) {
				fmt.Fprintf(p.w, "%s: %s\n", name, d.Headers[name])
			}
		} else {
			printField(p, "From", addressLine(d.From))
			printField(p, "To", addressLine(d.To))
			if len(d.Cc) > 0 {
				printField(p, "Cc", addressLine(d.Cc))
			}
			if !d.Date.IsZero() {
				printField(p, "Date", d.Date.Format(time.RFC1123Z))
			}
			printField(p, "Subject", d.Subject)
			for _, a := range d.Attachments {
				printField(p, "Attach", fmt.Sprintf("%s (%s, %d bytes)", a.Filename, a.ContentType, a.Size))
			}
		}
		fmt.Fprintln(p.w)
		fmt.Fprintln(p.w, d.Body(mime.StripHTML))
		return nil
	},
}

func printField(p *printer, name, value string) {
	label := name + ":"
	if p.styled {
		label = p.bold.Render(label)
	}
	fmt.Fprintf(p.w, "%s %s\n", label, value)
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func addressLine(addrs []model.Address) string {
	parts := make([]string, 0, len(addrs))
	for _, a := range addrs {
		if a.Name != "" && a.Email != "" {
			parts = append(parts, fmt.Sprintf("%s <%s>", a.Name, a.Email))
		} else {
			parts = append(parts, a.Name+a.Email)
		}
	}
	return strings.Join(parts, ", ")
}

var (
	contactsPersonal bool
	contactsLimit    int
)

var contactsCmd = &cobra.Command{
	Use:   "contacts [pattern]",
	Short: "Search the contact list",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		pattern := ""
		if len(args) == 1 {
			pattern = args[0]
		}
		contacts, err := newClient(cfg, logger).Contacts(cmd.Context(), pattern, mu.ContactOptions{
			Personal:   contactsPersonal,
			MaxResults: contactsLimit,
		})
		if err != nil {
			return err
		}
		p := newPrinter(cmd.OutOrStdout())
		for _, c := range contacts {
			fmt.Fprintln(p.w, addressLine([]model.Address{{Name: c.Name, Email: c.Address}}))
		}
		p.note("%d contacts", len(contacts))
		return nil
	},
}

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Re-index the maildir with mu",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		start := time.Now()
		if err := newClient(cfg, logger).ReindexAll(cmd.Context()); err != nil {
			return err
		}
		newPrinter(cmd.OutOrStdout()).note("Index updated in %s", time.Since(start).Round(time.Millisecond))
		return nil
	},
}

func init() {
	showCmd.Flags().BoolVar(&showHeaders, "headers", false, "print every header")
	contactsCmd.Flags().BoolVar(&contactsPersonal, "personal", false, "only contacts you corresponded with")
	contactsCmd.Flags().IntVarP(&contactsLimit, "limit", "n", 0, "maximum results")
	rootCmd.AddCommand(showCmd, contactsCmd, indexCmd)
}
