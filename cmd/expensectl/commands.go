package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"os"
	"time"

	"spendbook/internal/client"
	"spendbook/internal/models"

	"github.com/spf13/cobra"
	"golang.org/x/term"
)

const defaultAPIURL = "http://localhost:5300"

// ValidFormats defines the allowed output formats.
var ValidFormats = []string{"text", "json"}

// now is replaced in tests.
var now = time.Now

// RootOptions holds global flags for all commands.
type RootOptions struct {
	APIURL  string
	Timeout time.Duration
	Format  string
	Width   int
}

func (o *RootOptions) client() *client.Client {
	return client.New(o.APIURL, &http.Client{Timeout: o.Timeout})
}

func newRootCommand() *cobra.Command {
	opts := &RootOptions{}

	apiDefault := os.Getenv("EXPENSE_API_URL")
	if apiDefault == "" {
		apiDefault = defaultAPIURL
	}

	cmd := &cobra.Command{
		Use:           "expensectl",
		Short:         "Record and review expenses from the command line",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			for _, f := range ValidFormats {
				if f == opts.Format {
					return nil
				}
			}
			return fmt.Errorf("invalid format %q: must be one of %v", opts.Format, ValidFormats)
		},
	}

	cmd.PersistentFlags().StringVar(&opts.APIURL, "api", apiDefault, "expense API base URL (env EXPENSE_API_URL)")
	cmd.PersistentFlags().DurationVar(&opts.Timeout, "timeout", 10*time.Second, "request timeout")
	cmd.PersistentFlags().StringVar(&opts.Format, "format", "text", "output format (json|text)")
	cmd.PersistentFlags().IntVar(&opts.Width, "width", 0, "line width for descriptions (0 = terminal width)")

	cmd.AddCommand(newAddCommand(opts))
	cmd.AddCommand(newListCommand(opts))
	cmd.AddCommand(newSummaryCommand(opts))

	return cmd
}

type addOptions struct {
	Amount      float64
	Category    string
	Description string
	Date        string
}

func newAddCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &addOptions{}

	cmd := &cobra.Command{
		Use:   "add",
		Short: "Record an expense",
		Example: `  expensectl add --amount 12.50 --category food
  expensectl add --amount 300 --category travel --description "train" --date 2024-03-01`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			in := models.ExpenseInput{
				Amount:   models.Amount(opts.Amount),
				Category: opts.Category,
				Date:     opts.Date,
			}
			if opts.Description != "" {
				in.Description = &opts.Description
			}
			if in.Date == "" {
				in.Date = now().Format("2006-01-02")
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
			defer cancel()

			res, err := rootOpts.client().CreateExpense(ctx, in)
			if err != nil {
				return fmt.Errorf("failed to add expense: %w", err)
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), res.Expense)
			}
			verb := "Added"
			if !res.Created {
				verb = "Already recorded"
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s expense %s: %s | %s | %s%s\n",
				verb, res.Expense.ID, res.Expense.Date, res.Expense.Category,
				client.DefaultCurrencySymbol, models.FormatMinorUnits(res.Expense.AmountMinorUnits))
			return nil
		},
	}

	cmd.Flags().Float64Var(&opts.Amount, "amount", 0, "amount in major units, e.g. 12.50 (required)")
	_ = cmd.MarkFlagRequired("amount")
	cmd.Flags().StringVar(&opts.Category, "category", "", "category (required)")
	_ = cmd.MarkFlagRequired("category")
	cmd.Flags().StringVar(&opts.Description, "description", "", "optional description")
	cmd.Flags().StringVar(&opts.Date, "date", "", "date, defaults to today (YYYY-MM-DD)")

	return cmd
}

type listOptions struct {
	Category string
	Oldest   bool
}

func newListCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &listOptions{}

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List expenses with totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := fetch(cmd, rootOpts, client.ListOptions{Category: opts.Category, NewestFirst: !opts.Oldest})
			if err != nil {
				return err
			}
			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), records)
			}
			return client.Render(cmd.OutOrStdout(), records, client.Summarize(records), client.RenderOptions{
				Width: outputWidth(cmd.OutOrStdout(), rootOpts.Width),
			})
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only show this category")
	cmd.Flags().BoolVar(&opts.Oldest, "oldest", false, "list in insertion order instead of newest first")

	return cmd
}

type summaryOptions struct {
	Category string
	Chart    string
}

func newSummaryCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &summaryOptions{}

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the total and per-category breakdown",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			records, err := fetch(cmd, rootOpts, client.ListOptions{Category: opts.Category})
			if err != nil {
				return err
			}
			s := client.Summarize(records)

			if opts.Chart != "" {
				if err := writeChart(opts.Chart, s); err != nil {
					return err
				}
			}

			if rootOpts.Format == "json" {
				return writeJSON(cmd.OutOrStdout(), s)
			}
			if err := client.Render(cmd.OutOrStdout(), records, s, client.RenderOptions{HideRecords: true}); err != nil {
				return err
			}
			if opts.Chart != "" {
				fmt.Fprintf(cmd.OutOrStdout(), "\nChart written to %s\n", opts.Chart)
			}
			return nil
		},
	}

	cmd.Flags().StringVar(&opts.Category, "category", "", "only summarize this category")
	cmd.Flags().StringVar(&opts.Chart, "chart", "", "write a PNG pie chart of the breakdown to this file")

	return cmd
}

func fetch(cmd *cobra.Command, rootOpts *RootOptions, lo client.ListOptions) ([]models.Expense, error) {
	ctx, cancel := context.WithTimeout(cmd.Context(), rootOpts.Timeout)
	defer cancel()

	records, err := rootOpts.client().ListExpenses(ctx, lo)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch expenses: %w", err)
	}
	return records, nil
}

func writeChart(path string, s client.Summary) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to create chart file: %w", err)
	}
	if err := client.RenderCategoryChart(f, s); err != nil {
		f.Close()
		os.Remove(path)
		return err
	}
	return f.Close()
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// outputWidth returns the explicit width, the terminal width when w is a
// terminal, or 0 for no limit.
func outputWidth(w io.Writer, explicit int) int {
	if explicit > 0 {
		return explicit
	}
	if f, ok := w.(*os.File); ok && term.IsTerminal(int(f.Fd())) {
		if width, _, err := term.GetSize(int(f.Fd())); err == nil {
			return width
		}
	}
	return 0
}
