package main

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"text/tabwriter"

	apihttp "github.com/artpar/facturo/adapters/http"
	"github.com/spf13/cobra"
)

var invoicesCmd = &cobra.Command{
	Use:   "invoices",
	Short: "Manage invoices",
	Long: `List, show and create invoices through the API.

Examples:
  facturo invoices list --status envoyee
  facturo invoices show inv_3c1e...
  facturo invoices status inv_3c1e... envoyee
  facturo invoices create --client "Librairie Rive Gauche" \
      --item "Conseil:2:45000" --item "Livres:4:2500:550"`,
}

var invoicesListCmd = &cobra.Command{
	Use:   "list",
	Short: "List invoices, newest first",
	RunE:  runInvoicesList,
}

var invoicesShowCmd = &cobra.Command{
	Use:   "show <invoice-id>",
	Short: "Show an invoice with its lines and notes",
	Args:  cobra.ExactArgs(1),
	RunE:  runInvoicesShow,
}

var invoicesCreateCmd = &cobra.Command{
	Use:   "create",
	Short: "Create an invoice",
	Long: `Create an invoice in draft status.

Each --item is description:quantity:unit_price[:vat_rate] with the unit
price in centimes and the VAT rate in basis points (2000 = 20 %).`,
	RunE: runInvoicesCreate,
}

var invoicesStatusCmd = &cobra.Command{
	Use:   "status <invoice-id> <status>",
	Short: "Change the status of an invoice",
	Long: `Change the status of an invoice.

A draft (brouillon) can be sent (envoyee) or cancelled (annulee); a sent
invoice can be paid (payee) or cancelled.`,
	Args: cobra.ExactArgs(2),
	RunE: runInvoicesStatus,
}

var (
	listStatus string
	listLimit  int
	listOffset int

	showRaw bool

	createClient  string
	createEmail   string
	createAddress string
	createSIRET   string
	createIssue   string
	createDue     string
	createItems   []string
)

func init() {
	rootCmd.AddCommand(invoicesCmd)
	addClientFlags(invoicesCmd)

	invoicesCmd.AddCommand(invoicesListCmd)
	invoicesCmd.AddCommand(invoicesShowCmd)
	invoicesCmd.AddCommand(invoicesCreateCmd)
	invoicesCmd.AddCommand(invoicesStatusCmd)

	invoicesListCmd.Flags().StringVar(&listStatus, "status", "", "filter by status (brouillon, envoyee, payee, annulee)")
	invoicesListCmd.Flags().IntVar(&listLimit, "limit", 0, "page size")
	invoicesListCmd.Flags().IntVar(&listOffset, "offset", 0, "invoices to skip")

	invoicesShowCmd.Flags().BoolVar(&showRaw, "raw", false, "print the JSON:API document in the client key casing")

	invoicesCreateCmd.Flags().StringVar(&createClient, "client", "", "client name (required)")
	invoicesCreateCmd.Flags().StringVar(&createEmail, "email", "", "client email")
	invoicesCreateCmd.Flags().StringVar(&createAddress, "address", "", "client address")
	invoicesCreateCmd.Flags().StringVar(&createSIRET, "siret", "", "client SIRET number")
	invoicesCreateCmd.Flags().StringVar(&createIssue, "issue-date", "", "issue date YYYY-MM-DD (default: today)")
	invoicesCreateCmd.Flags().StringVar(&createDue, "due-date", "", "due date YYYY-MM-DD")
	invoicesCreateCmd.Flags().StringArrayVar(&createItems, "item", nil, "line item description:quantity:unit_price[:vat_rate]")
	invoicesCreateCmd.MarkFlagRequired("client")
}

func runInvoicesList(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	invoices, err := c.ListInvoices(cmd.Context(), apihttp.ListOptions{
		Status: listStatus,
		Limit:  listLimit,
		Offset: listOffset,
	})
	if err != nil {
		return err
	}

	if len(invoices) == 0 {
		fmt.Fprintln(cmd.OutOrStdout(), "No invoices found.")
		return nil
	}

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "NUMBER\tSTATUS\tCLIENT\tISSUED\tDUE\tTOTAL\tID")
	for _, inv := range invoices {
		status := inv.Status
		if inv.Overdue {
			status += " (overdue)"
		}
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\t%s\t%s\n",
			inv.Number, status, inv.Client.Name, inv.IssueDate, inv.DueDate, inv.TotalFormatted, inv.ID)
	}
	return w.Flush()
}

func runInvoicesShow(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	if showRaw {
		return printRaw(cmd.Context(), c, cmd.OutOrStdout(), "/api/invoices/"+args[0]+"?include=notes")
	}

	inv, err := c.GetInvoice(cmd.Context(), args[0])
	if err != nil {
		return err
	}
	printInvoice(cmd.OutOrStdout(), inv)
	return nil
}

func runInvoicesStatus(cmd *cobra.Command, args []string) error {
	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	inv, err := c.UpdateInvoiceStatus(cmd.Context(), args[0], args[1])
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Invoice %s is now %s\n", inv.Number, inv.Status)
	return nil
}

func runInvoicesCreate(cmd *cobra.Command, args []string) error {
	in := apihttp.NewInvoice{
		Client: apihttp.InvoiceClient{
			Name:    createClient,
			Email:   createEmail,
			Address: createAddress,
			SIRET:   createSIRET,
		},
		IssueDate: createIssue,
		DueDate:   createDue,
	}
	for _, arg := range createItems {
		line, err := parseItem(arg)
		if err != nil {
			return err
		}
		in.Items = append(in.Items, line)
	}

	c, err := newAPIClient()
	if err != nil {
		return err
	}
	defer c.Close()

	inv, err := c.CreateInvoice(cmd.Context(), in)
	if err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "Created invoice %s (%s)\n\n", inv.Number, inv.ID)
	printInvoice(cmd.OutOrStdout(), inv)
	return nil
}

// parseItem parses description:quantity:unit_price[:vat_rate].
// The description may itself contain colons.
func parseItem(arg string) (apihttp.InvoiceLine, error) {
	parts := strings.Split(arg, ":")
	if len(parts) < 3 {
		return apihttp.InvoiceLine{}, fmt.Errorf("item %q: want description:quantity:unit_price[:vat_rate]", arg)
	}

	nums := trailingInts(parts[1:], 3)
	if len(nums) < 2 {
		return apihttp.InvoiceLine{}, fmt.Errorf("item %q: quantity and unit price must be integers", arg)
	}

	line := apihttp.InvoiceLine{}
	if len(nums) == 3 {
		line.VATRate = &nums[2]
	}
	line.Quantity, line.UnitPrice = nums[0], nums[1]
	line.Description = strings.Join(parts[:len(parts)-len(nums)], ":")
	return line, nil
}

// trailingInts parses up to max integers from the end of parts, in order.
func trailingInts(parts []string, max int) []int64 {
	var out []int64
	for i := len(parts) - 1; i >= 0 && len(out) < max; i-- {
		n, err := strconv.ParseInt(parts[i], 10, 64)
		if err != nil {
			break
		}
		out = append([]int64{n}, out...)
	}
	return out
}

func printInvoice(out io.Writer, inv apihttp.Invoice) {
	fmt.Fprintf(out, "Invoice %s\n", inv.Number)
	fmt.Fprintf(out, "  ID:      %s\n", inv.ID)
	fmt.Fprintf(out, "  Status:  %s\n", inv.Status)
	fmt.Fprintf(out, "  Client:  %s\n", inv.Client.Name)
	if inv.Client.Email != "" {
		fmt.Fprintf(out, "  Email:   %s\n", inv.Client.Email)
	}
	fmt.Fprintf(out, "  Issued:  %s\n", inv.IssueDate)
	if inv.DueDate != "" {
		fmt.Fprintf(out, "  Due:     %s\n", inv.DueDate)
	}
	if inv.Overdue {
		fmt.Fprintln(out, "  Overdue: yes")
	}
	fmt.Fprintln(out)

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', tabwriter.AlignRight)
	fmt.Fprintln(w, "DESCRIPTION\tQTY\tUNIT PRICE\tVAT\tAMOUNT\t")
	for _, l := range inv.Items {
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%d\t\n", l.Description, l.Quantity, l.UnitPrice, l.VATRateLabel, l.Amount)
	}
	w.Flush()

	fmt.Fprintln(out)
	fmt.Fprintf(out, "  Subtotal: %d\n", inv.Subtotal)
	fmt.Fprintf(out, "  VAT:      %d\n", inv.VAT)
	fmt.Fprintf(out, "  Total:    %s\n", inv.TotalFormatted)

	if len(inv.Notes) > 0 {
		fmt.Fprintln(out)
		fmt.Fprintln(out, "Notes:")
		for _, n := range inv.Notes {
			fmt.Fprintf(out, "  [%s] %s\n", n.CreatedAt.Format("2006-01-02 15:04"), n.Body)
		}
	}
}

// printRaw prints a response body as the client received it.
func printRaw(ctx context.Context, c *apihttp.Client, out io.Writer, path string) error {
	resp, err := c.Do(ctx, http.MethodGet, path, nil)
	if err != nil {
		return err
	}
	defer resp.Body.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		return err
	}
	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("unexpected status %d", resp.StatusCode)
	}
	return nil
}
