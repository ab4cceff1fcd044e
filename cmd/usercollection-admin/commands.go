package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"

	"github.com/target/ldap-user-collection/internal/domain/model"
	"github.com/target/ldap-user-collection/internal/service"
)

const defaultMigrationTimeout = 5 * time.Minute

func newRootCmd(e *env) *cobra.Command {
	root := &cobra.Command{
		Use:   "usercollection-admin",
		Short: "Administer the user collection database",
		Long: `Administer the user collection directly against Postgres.

Writes go through the same validation, hashing and redaction as the HTTP API,
as a trusted caller: identity fields may be changed on any record.

Examples:
  usercollection-admin migrate
  usercollection-admin create-user alice --password s3cret --prop role=admin
  printf 's3cret\n' | usercollection-admin set-password alice --password-stdin
  usercollection-admin list-users --sort '{"username":1}'`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newMigrateCmd(e),
		newCreateUserCmd(e),
		newSetPasswordCmd(e),
		newRenameUserCmd(e),
		newDeleteUserCmd(e),
		newListUsersCmd(e),
	)
	return root
}

func newMigrateCmd(e *env) *cobra.Command {
	var timeout time.Duration
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Apply database migrations",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()
			if err := e.migrate(ctx); err != nil {
				return err
			}
			_, err := fmt.Fprintln(cmd.OutOrStdout(), "migrations applied")
			return err
		},
	}
	cmd.Flags().DurationVar(&timeout, "timeout", defaultMigrationTimeout, "maximum time to wait for migrations")
	return cmd
}

type passwordFlags struct {
	password string
	stdin    bool
}

func (p *passwordFlags) bind(cmd *cobra.Command) {
	cmd.Flags().StringVar(&p.password, "password", "", "password to store")
	cmd.Flags().BoolVar(&p.stdin, "password-stdin", false, "read the password from the first line of stdin")
	cmd.MarkFlagsMutuallyExclusive("password", "password-stdin")
}

func (p *passwordFlags) resolve(in io.Reader) (string, error) {
	if !p.stdin {
		return p.password, nil
	}
	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && !errors.Is(err, io.EOF) {
		return "", fmt.Errorf("read password: %w", err)
	}
	return strings.TrimRight(line, "\r\n"), nil
}

func newCreateUserCmd(e *env) *cobra.Command {
	var (
		pw    passwordFlags
		props map[string]string
	)
	cmd := &cobra.Command{
		Use:   "create-user <username>",
		Short: "Create a user record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			body := make(map[string]any, len(props)+2)
			for k, v := range props {
				body[k] = v
			}
			body[model.UsernameField] = args[0]
			if password != "" {
				body[model.SecretField] = password
			}
			return withCollection(cmd, e, func(ctx context.Context, users collection) error {
				resp, err := users.Handle(ctx, &service.Request{Method: http.MethodPost, Body: body, Internal: true})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), resp.Body)
			})
		},
	}
	pw.bind(cmd)
	cmd.Flags().StringToStringVar(&props, "prop", nil, "additional record property as key=value (repeatable)")
	return cmd
}

func newSetPasswordCmd(e *env) *cobra.Command {
	var pw passwordFlags
	cmd := &cobra.Command{
		Use:   "set-password <username>",
		Short: "Replace the stored password of a user",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			password, err := pw.resolve(cmd.InOrStdin())
			if err != nil {
				return err
			}
			if password == "" {
				return errors.New("a non-empty password is required")
			}
			return withCollection(cmd, e, func(ctx context.Context, users collection) error {
				user, err := lookup(ctx, users, args[0])
				if err != nil {
					return err
				}
				if _, err := update(ctx, users, user.ID, map[string]any{model.SecretField: password}); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "password updated for %s\n", args[0])
				return err
			})
		},
	}
	pw.bind(cmd)
	return cmd
}

func newRenameUserCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "rename-user <username> <new-username>",
		Short: "Change the username of a user",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, e, func(ctx context.Context, users collection) error {
				user, err := lookup(ctx, users, args[0])
				if err != nil {
					return err
				}
				saved, err := update(ctx, users, user.ID, map[string]any{model.UsernameField: args[1]})
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), saved)
			})
		},
	}
}

func newDeleteUserCmd(e *env) *cobra.Command {
	return &cobra.Command{
		Use:   "delete-user <username>",
		Short: "Delete a user record",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withCollection(cmd, e, func(ctx context.Context, users collection) error {
				user, err := lookup(ctx, users, args[0])
				if err != nil {
					return err
				}
				if _, err := users.Handle(ctx, &service.Request{
					Method:   http.MethodDelete,
					URL:      "/" + user.ID,
					Internal: true,
				}); err != nil {
					return err
				}
				_, err = fmt.Fprintf(cmd.OutOrStdout(), "deleted %s (%s)\n", args[0], user.ID)
				return err
			})
		},
	}
}

type listOptions struct {
	limit  int
	skip   int
	sort   string
	asJSON bool
}

func newListUsersCmd(e *env) *cobra.Command {
	var opts listOptions
	cmd := &cobra.Command{
		Use:   "list-users",
		Short: "List user records",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			sortKeys, err := model.ParseSort(opts.sort)
			if err != nil {
				return err
			}
			return withCollection(cmd, e, func(ctx context.Context, users collection) error {
				resp, err := users.Handle(ctx, &service.Request{
					Method:   http.MethodGet,
					Query:    service.Query{Sort: sortKeys, Limit: opts.limit, Skip: opts.skip},
					Internal: true,
				})
				if err != nil {
					return err
				}
				found, ok := resp.Body.([]*model.User)
				if !ok {
					return fmt.Errorf("unexpected list response %T", resp.Body)
				}
				if opts.asJSON {
					return printJSON(cmd.OutOrStdout(), found)
				}
				return printUsers(cmd.OutOrStdout(), found)
			})
		},
	}
	cmd.Flags().IntVar(&opts.limit, "limit", 50, "maximum number of records")
	cmd.Flags().IntVar(&opts.skip, "skip", 0, "number of records to skip")
	cmd.Flags().StringVar(&opts.sort, "sort", "", `sort order as JSON, e.g. {"username":1}`)
	cmd.Flags().BoolVar(&opts.asJSON, "json", false, "print records as JSON")
	return cmd
}

func withCollection(cmd *cobra.Command, e *env, fn func(context.Context, collection) error) error {
	ctx := cmd.Context()
	users, closeFn, err := e.open(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := closeFn(); cerr != nil {
			e.logger.ErrorContext(ctx, "release resources failed", "error", cerr)
		}
	}()
	return fn(ctx, users)
}

// lookup resolves a username to its record.
func lookup(ctx context.Context, users collection, username string) (*model.User, error) {
	resp, err := users.Handle(ctx, &service.Request{
		Method:   http.MethodGet,
		Query:    service.Query{Filter: model.UserFilter{Username: &username}, Limit: 1},
		Internal: true,
	})
	if err != nil {
		return nil, err
	}
	found, ok := resp.Body.([]*model.User)
	if !ok || len(found) == 0 {
		return nil, fmt.Errorf("user %q not found", username)
	}
	return found[0], nil
}

func update(ctx context.Context, users collection, id string, body map[string]any) (any, error) {
	resp, err := users.Handle(ctx, &service.Request{
		Method:   http.MethodPut,
		URL:      "/" + id,
		Body:     body,
		Internal: true,
	})
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func printUsers(w io.Writer, users []*model.User) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	if _, err := fmt.Fprintln(tw, "ID\tUSERNAME\tCREATED"); err != nil {
		return err
	}
	for _, u := range users {
		if _, err := fmt.Fprintf(tw, "%s\t%s\t%s\n", u.ID, u.Username, u.CreatedAt.UTC().Format(time.RFC3339)); err != nil {
			return err
		}
	}
	return tw.Flush()
}
