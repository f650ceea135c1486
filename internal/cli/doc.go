package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/fiscalbox/fiscalbox/internal/access"
	"github.com/fiscalbox/fiscalbox/internal/store"
	"github.com/fiscalbox/fiscalbox/internal/tenant"
)

// NewDocCommand creates the raw document command group. It is the thin
// CLI surface over the guarded gateway; collection access rules apply
// exactly as they do for embedded callers.
func NewDocCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "doc",
		Short: "Read and write documents in a collection",
	}
	cmd.AddCommand(newDocPutCommand(rootOpts))
	cmd.AddCommand(newDocGetCommand(rootOpts))
	cmd.AddCommand(newDocListCommand(rootOpts))
	cmd.AddCommand(newDocDeleteCommand(rootOpts))
	cmd.AddCommand(newDocCountCommand(rootOpts))
	return cmd
}

func newDocPutCommand(rootOpts *RootOptions) *cobra.Command {
	var scoped bool
	cmd := &cobra.Command{
		Use:           "put <collection> [json]",
		Short:         "Insert or update a document",
		Long:          "Insert or update a document from the JSON argument, or from stdin when omitted. With --scoped the active company id is stamped into empresaId.",
		Args:          cobra.RangeArgs(1, 2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			var body []byte
			if len(args) == 2 {
				body = []byte(args[1])
			} else {
				var err error
				body, err = io.ReadAll(cmd.InOrStdin())
				if err != nil {
					return WrapExitError(ExitCommandError, "read document from stdin", err)
				}
			}
			var rec store.Record
			if err := json.Unmarshal(body, &rec); err != nil {
				return WrapExitError(ExitCommandError, "parse document JSON", err)
			}

			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if scoped {
				sctx, ok := app.Holder.Current()
				if !ok {
					return NewExitError(ExitFailure, "no active company to scope the document to")
				}
				rec[tenant.ScopeField] = sctx.TenantID
			}

			key, err := app.Storage.Put(cmd.Context(), args[0], rec)
			if err != nil {
				return storageError(f, err)
			}
			if f.Format == "json" {
				return f.Success(map[string]any{"key": key})
			}
			fmt.Fprintf(f.Writer, "Stored document %v in %s\n", key, args[0])
			return nil
		},
	}
	cmd.Flags().BoolVar(&scoped, "scoped", false, "stamp the active company id into the document")
	return cmd
}

func newDocGetCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "get <collection> <key>",
		Short:         "Fetch one document by key",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			rec, err := app.Storage.Get(cmd.Context(), args[0], parseKey(app, args[0], args[1]))
			if err != nil {
				return storageError(f, err)
			}
			return printRecord(f, rec)
		},
	}
}

func newDocListCommand(rootOpts *RootOptions) *cobra.Command {
	var mine bool
	cmd := &cobra.Command{
		Use:           "list <collection>",
		Short:         "List documents in a collection",
		Long:          "List every document in the collection, in key order. With --mine only the active company's documents are returned, through the scope index.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			var records []store.Record
			if mine {
				sctx, ok := app.Holder.Current()
				if !ok {
					return NewExitError(ExitFailure, "no active company")
				}
				records, err = app.Storage.GetAllByIndex(cmd.Context(), args[0], tenant.ScopeIndex, sctx.TenantID)
			} else {
				records, err = app.Storage.GetAll(cmd.Context(), args[0])
			}
			if err != nil {
				return storageError(f, err)
			}
			if f.Format == "json" {
				return f.Success(records)
			}
			for _, rec := range records {
				if err := printRecord(f, rec); err != nil {
					return err
				}
			}
			return nil
		},
	}
	cmd.Flags().BoolVar(&mine, "mine", false, "only the active company's documents")
	return cmd
}

func newDocDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <collection> <key>",
		Short:         "Delete a document (absent key is a no-op)",
		Args:          cobra.ExactArgs(2),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if err := app.Storage.Delete(cmd.Context(), args[0], parseKey(app, args[0], args[1])); err != nil {
				return storageError(f, err)
			}
			if f.Format == "json" {
				return f.Success(map[string]string{"deleted": args[1]})
			}
			fmt.Fprintf(f.Writer, "Deleted %s from %s\n", args[1], args[0])
			return nil
		},
	}
}

func newDocCountCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "count <collection>",
		Short:         "Count documents in a collection",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			n, err := app.Storage.Count(cmd.Context(), args[0])
			if err != nil {
				return storageError(f, err)
			}
			if f.Format == "json" {
				return f.Success(map[string]int64{"count": n})
			}
			fmt.Fprintln(f.Writer, n)
			return nil
		},
	}
}

// parseKey coerces the CLI key argument to the collection's key type.
// Unknown collections pass the raw string through; the gateway rejects
// them with a proper error.
func parseKey(app *App, collection, raw string) any {
	coll, ok := app.Registry.Collection(collection)
	if !ok || !coll.AutoIncrement {
		return raw
	}
	var id int64
	if _, err := fmt.Sscanf(raw, "%d", &id); err != nil {
		return raw
	}
	return id
}

func printRecord(f *OutputFormatter, rec store.Record) error {
	enc := json.NewEncoder(f.Writer)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(rec); err != nil {
		return WrapExitError(ExitCommandError, "encode document", err)
	}
	return nil
}

// storageError maps gateway failures to exit codes. Access denials and
// missing records are operation failures; everything else is a command
// error.
func storageError(f *OutputFormatter, err error) error {
	code := "E_STORAGE"
	exit := ExitCommandError
	switch {
	case errors.Is(err, access.ErrForbidden):
		code, exit = "E_FORBIDDEN", ExitFailure
	case errors.Is(err, access.ErrUnknownCollection):
		code, exit = "E_UNKNOWN_COLLECTION", ExitFailure
	case errors.Is(err, store.ErrNotFound):
		code, exit = "E_NOT_FOUND", ExitFailure
	}
	_ = f.Error(code, err.Error(), nil)
	return NewExitError(exit, err.Error())
}
