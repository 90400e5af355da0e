package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"text/tabwriter"
	"time"

	leasekeeper "go-leasekeeper"
	"go-leasekeeper/client"

	"github.com/spf13/cobra"
)

func newClient() *client.Client {
	return client.New(cfg.ServerURL, nil)
}

func requireUser() (string, error) {
	if cfg.User == "" {
		return "", errors.New("no identity: set --user or LEASEKEEPER_USER")
	}
	return cfg.User, nil
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List resources and who holds them",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			resources, err := newClient().List(cmd.Context())
			if err != nil {
				return err
			}
			printTable(os.Stdout, resources, time.Now())
			return nil
		},
	}
}

func newGetCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "get NAME",
		Short: "Show one resource",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			res, err := newClient().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			printResource(os.Stdout, res, time.Now())
			return nil
		},
	}
}

func newReserveCmd() *cobra.Command {
	var (
		length string
		until  int64
	)

	var cmd = &cobra.Command{
		Use:   "reserve NAME",
		Short: "Reserve a resource",
		Long: `Reserve a resource for --for (a menu label such as "1 hour", a Go duration
such as 90m, or "forever"), or until the absolute Unix time --until.
Reserving a resource you already hold renews it.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := requireUser()
			if err != nil {
				return err
			}

			if !cmd.Flags().Changed("until") {
				seconds, err := client.ParseDuration(length)
				if err != nil {
					return err
				}
				until = client.UntilFor(time.Now(), seconds)
			}

			if err := newClient().Reserve(cmd.Context(), args[0], who, until); err != nil {
				return err
			}
			fmt.Printf("✓ %s reserved by %s %s\n", args[0], who, describeUntil(until))
			return nil
		},
	}

	cmd.Flags().StringVar(&length, "for", client.Durations[1].Label, "Reservation length")
	cmd.Flags().Int64Var(&until, "until", 0, "Absolute expiry in Unix seconds (0 = until cleared)")
	cmd.MarkFlagsMutuallyExclusive("for", "until")

	return cmd
}

func newClearCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "clear NAME",
		Short: "Release a resource you hold",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			who, err := requireUser()
			if err != nil {
				return err
			}
			if err := newClient().Clear(cmd.Context(), args[0], who); err != nil {
				return err
			}
			fmt.Printf("✓ %s is free\n", args[0])
			return nil
		},
	}
}

func newCreateCmd() *cobra.Command {
	var (
		description string
		fields      map[string]string
	)

	var cmd = &cobra.Command{
		Use:   "create NAME",
		Short: "Add a resource to the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			var err = newClient().Create(cmd.Context(), leasekeeper.Resource{
				Name:        args[0],
				Description: description,
				OtherFields: fields,
			})
			if err != nil {
				return err
			}
			fmt.Printf("✓ created %s\n", args[0])
			return nil
		},
	}

	cmd.Flags().StringVar(&description, "description", "", "Free-text description")
	cmd.Flags().StringToStringVar(&fields, "field", nil, "Extra attribute as key=value (repeatable)")

	return cmd
}

func newDeleteCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "delete NAME",
		Short: "Remove a resource from the catalog",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := newClient().Delete(cmd.Context(), args[0]); err != nil {
				return err
			}
			fmt.Printf("✓ deleted %s\n", args[0])
			return nil
		},
	}
}

// --- output ---

func printTable(w io.Writer, resources []client.Resource, now time.Time) {
	var tw = tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "NAME\tSTATE\tHOLDER\tUNTIL\tDESCRIPTION")
	for _, res := range resources {
		var holder, until = "-", "-"
		if res.StateAt(now) == leasekeeper.StateReserved {
			holder = res.ReservedBy
			until = describeUntil(res.ReservedUntil)
		}
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", res.Name, res.StateAt(now), holder, until, res.Description)
	}
	_ = tw.Flush()
}

func printResource(w io.Writer, res client.Resource, now time.Time) {
	fmt.Fprintf(w, "Name:        %s\n", res.Name)
	fmt.Fprintf(w, "Description: %s\n", res.Description)
	fmt.Fprintf(w, "State:       %s\n", res.StateAt(now))
	if res.StateAt(now) == leasekeeper.StateReserved {
		fmt.Fprintf(w, "Holder:      %s\n", res.ReservedBy)
		fmt.Fprintf(w, "Until:       %s\n", describeUntil(res.ReservedUntil))
	}

	var keys = make([]string, 0, len(res.OtherFields))
	for k := range res.OtherFields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(w, "  %s: %s\n", k, res.OtherFields[k])
	}
}

func describeUntil(until int64) string {
	if until == leasekeeper.Indefinite {
		return "until cleared"
	}
	return "until " + time.Unix(until, 0).Format(time.DateTime)
}

// withTimeout bounds a single client call made from the interactive loop.
func withTimeout(parent context.Context) (context.Context, context.CancelFunc) {
	return context.WithTimeout(parent, 5*time.Second)
}
