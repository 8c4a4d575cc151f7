package main

import (
	"fmt"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var notesCmd = &cobra.Command{
	Use:   "notes",
	Short: "Manage invoice notes",
	Long: `Add notes to an invoice and list them.

Examples:
  facturo notes add inv_3c1e... "Relance envoyée par email"
  facturo notes list inv_3c1e...`,
}

var notesAddCmd = &cobra.Command{
	Use:   "add <invoice-id> <text>...",
	Short: "Attach a note to an invoice",
	Args:  cobra.MinimumNArgs(2),
	RunE:  runNotesAdd,
}

var notesListCmd = &cobra.Command{
	Use:   "list <invoice-id>",
	Short: "List the notes of an invoice, oldest first",
	Args:  cobra.ExactArgs(1),
	RunE:  runNotesList,
}

func init() {
	rootCmd.AddCommand(notesCmd)
	addClientFlags(notesCmd)

	notesCmd.AddCommand(notesAddCmd)
	notesCmd.AddCommand(notesListCmd)
}

func runNotesAdd(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	n, err := c.AddNote(cmd.Context(), args[0], strings.Join(args[1:], " "))
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Added note %s\n", n.ID)
	return nil
}

func runNotesList(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	notes, err := c.ListNotes(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	if len(notes) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No notes.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "CREATED\tNOTE")
	for _, n := range notes {
		fmt.Fprintf(w, "%s\t%s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Body)
	}
	return w.Flush()
}
