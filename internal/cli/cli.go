// Package cli is the contacts command tree.
package cli

import (
	"context"
	"fmt"
	"io"
	"slices"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"contact-manager/internal/contact"
	"contact-manager/internal/contactlist"
	"contact-manager/internal/shared"
)

// Execute runs the command line and returns the process exit code.
func Execute(ctx context.Context, args []string, open Opener, stdout, stderr io.Writer) int {
	root := NewRootCommand(open, stdout, stderr)
	root.SetArgs(args)
	if err := root.ExecuteContext(ctx); err != nil {
		fmt.Fprintln(stderr, shared.UserMessage(err))
		return 1
	}
	return 0
}

// NewRootCommand builds the command tree. Every subcommand opens the runtime
// lazily so --help works without configuration.
func NewRootCommand(open Opener, stdout, stderr io.Writer) *cobra.Command {
	var o Overrides
	root := &cobra.Command{
		Use:           "contacts",
		Short:         "List and add contacts through the contacts proxy",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.SetOut(stdout)
	root.SetErr(stderr)
	root.PersistentFlags().StringVar(&o.ServerURL, "server", "", "proxy base URL (CONTACTS_SERVER_URL)")
	root.PersistentFlags().StringVar(&o.Session, "session", "", "session cookie from /auth/callback (CONTACTS_SESSION)")
	root.PersistentFlags().StringVar(&o.Cache, "cache", "", `cache file path or "memory" (CONTACTS_CACHE)`)

	with := func(run func(cmd *cobra.Command, rt *Runtime) error) func(*cobra.Command, []string) error {
		return func(cmd *cobra.Command, _ []string) error {
			rt, err := open(cmd.Context(), o)
			if err != nil {
				return err
			}
			defer rt.Close()
			return run(cmd, rt)
		}
	}

	root.AddCommand(
		listCommand(with),
		refreshCommand(with),
		addCommand(with),
		userCommand(with),
		exportCommand(with),
		loginCommand(with),
		logoutCommand(with),
	)
	return root
}

type runner func(run func(cmd *cobra.Command, rt *Runtime) error) func(*cobra.Command, []string) error

func addQueryFlags(cmd *cobra.Command, q *contactlist.Query) {
	cmd.Flags().StringVar(&q.Filter, "filter", "", "show names starting with this prefix (case-insensitive)")
	cmd.Flags().IntVar(&q.Page, "page", 1, "page number, from 1")
	cmd.Flags().IntVar(&q.Size, "size", 0, "contacts per page, 0 shows all")
}

func listCommand(with runner) *cobra.Command {
	var q contactlist.Query
	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show contacts, from the local cache when present",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			p, err := rt.Service.List(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), p, q)
		}),
	}
	addQueryFlags(cmd, &q)
	return cmd
}

func refreshCommand(with runner) *cobra.Command {
	var q contactlist.Query
	cmd := &cobra.Command{
		Use:   "refresh",
		Short: "Drop the local cache and list contacts from the server",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			p, err := rt.Service.Refresh(cmd.Context(), q)
			if err != nil {
				return err
			}
			return printPage(cmd.OutOrStdout(), p, q)
		}),
	}
	addQueryFlags(cmd, &q)
	return cmd
}

func addCommand(with runner) *cobra.Command {
	var c contact.Contact
	cmd := &cobra.Command{
		Use:   "add",
		Short: "Create a contact",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			if err := rt.Service.Create(cmd.Context(), c); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Contact %q created\n", c.Name)
			return nil
		}),
	}
	cmd.Flags().StringVar(&c.Name, "name", "", "contact name")
	cmd.Flags().StringVar(&c.Phone, "phone", "", "phone number")
	cmd.Flags().StringVar(&c.Email, "email", "", "email address")
	_ = cmd.MarkFlagRequired("name")
	_ = cmd.MarkFlagRequired("phone")
	return cmd
}

func userCommand(with runner) *cobra.Command {
	var username string
	cmd := &cobra.Command{
		Use:   "user",
		Short: "Register the signed-in user with the resource server",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			if err := rt.Service.CreateUser(cmd.Context(), username); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "User %q created\n", username)
			return nil
		}),
	}
	cmd.Flags().StringVar(&username, "username", "", "user name")
	_ = cmd.MarkFlagRequired("username")
	return cmd
}

func exportCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "export",
		Short: "Write all contacts as vCard to stdout",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			return rt.Service.Export(cmd.Context(), cmd.OutOrStdout())
		}),
	}
}

func loginCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "login",
		Short: "Print the sign-in URL",
		Long: "Open the printed URL in a browser. After signing in, the callback page shows a\n" +
			"session value; pass it with --session or CONTACTS_SESSION.",
		Args: cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			fmt.Fprintln(cmd.OutOrStdout(), rt.LoginURL)
			return nil
		}),
	}
}

func logoutCommand(with runner) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "End the session and clear local contacts",
		Args:  cobra.NoArgs,
		RunE: with(func(cmd *cobra.Command, rt *Runtime) error {
			if err := rt.Service.Logout(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
			return nil
		}),
	}
}

func printPage(w io.Writer, p contactlist.Page, q contactlist.Query) error {
	if p.Total == 0 {
		if q.Filter != "" {
			_, err := fmt.Fprintf(w, "No contacts match %q\n", q.Filter)
			return err
		}
		_, err := fmt.Fprintln(w, "No contacts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tPHONE\tEMAIL\t")
	for _, c := range p.Contacts {
		mark := ""
		if slices.Contains(p.New, c.Name) {
			mark = "new"
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", c.Name, c.Phone, c.Email, mark)
	}
	if err := tw.Flush(); err != nil {
		return err
	}
	if p.Pages > 1 {
		page := max(q.Page, 1)
		_, err := fmt.Fprintf(w, "Page %d of %d (%d contacts)\n", page, p.Pages, p.Total)
		return err
	}
	return nil
}
