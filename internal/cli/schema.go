package cli

import (
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"github.com/fiscalbox/fiscalbox/internal/schema"
)

// NewSchemaCommand creates the schema command group.
func NewSchemaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "schema",
		Short: "Inspect the compiled manifest and migrate the store",
	}
	cmd.AddCommand(newSchemaDumpCommand(rootOpts))
	cmd.AddCommand(newSchemaVersionCommand(rootOpts))
	cmd.AddCommand(newSchemaMigrateCommand(rootOpts))
	return cmd
}

func newSchemaDumpCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "dump",
		Short:         "Print the compiled schema manifest",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := schema.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "compile schema manifest", err)
			}
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if f.Format == "json" {
				return f.Success(dumpRegistry(reg))
			}
			fmt.Fprint(f.Writer, DumpRegistryText(reg))
			return nil
		},
	}
}

func newSchemaVersionCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "version",
		Short:         "Print the manifest schema version",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			reg, err := schema.Load()
			if err != nil {
				return WrapExitError(ExitCommandError, "compile schema manifest", err)
			}
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())
			if f.Format == "json" {
				return f.Success(map[string]int{"version": reg.Version})
			}
			fmt.Fprintln(f.Writer, reg.Version)
			return nil
		},
	}
}

func newSchemaMigrateCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "migrate",
		Short:         "Open the store, applying any pending migration",
		Long:          "Open the database and reconcile it with the manifest. Opening is what migrates; this command exists to do it eagerly and report the resulting version.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			st, err := app.Manager.Open(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "open store", err)
			}
			version, err := st.Version(cmd.Context())
			if err != nil {
				return WrapExitError(ExitCommandError, "read store version", err)
			}
			if f.Format == "json" {
				return f.Success(map[string]any{"path": app.Cfg.Store.Path, "version": version})
			}
			fmt.Fprintf(f.Writer, "Store at %s is at schema version %d\n", app.Cfg.Store.Path, version)
			return nil
		},
	}
}

// RegistryDump is the JSON shape of a compiled manifest.
type RegistryDump struct {
	Version     int              `json:"version"`
	Collections []CollectionDump `json:"collections"`
}

// CollectionDump is one collection in a RegistryDump.
type CollectionDump struct {
	Name          string      `json:"name"`
	PrimaryKey    string      `json:"primaryKey"`
	AutoIncrement bool        `json:"autoIncrement"`
	Restricted    bool        `json:"restricted,omitempty"`
	Indexes       []IndexDump `json:"indexes,omitempty"`
}

// IndexDump is one index in a CollectionDump.
type IndexDump struct {
	Name    string `json:"name"`
	Field   string `json:"field"`
	Unique  bool   `json:"unique,omitempty"`
	Partial bool   `json:"partial,omitempty"`
}

func dumpRegistry(reg *schema.Registry) RegistryDump {
	dump := RegistryDump{Version: reg.Version}
	for _, coll := range reg.Collections() {
		cd := CollectionDump{
			Name:          coll.Name,
			PrimaryKey:    coll.PrimaryKey,
			AutoIncrement: coll.AutoIncrement,
			Restricted:    coll.Restricted,
		}
		for _, idx := range coll.Indexes {
			cd.Indexes = append(cd.Indexes, IndexDump{
				Name:    idx.Name,
				Field:   idx.Field,
				Unique:  idx.Unique,
				Partial: idx.Partial,
			})
		}
		dump.Collections = append(dump.Collections, cd)
	}
	return dump
}

// DumpRegistryText renders the manifest in a stable, diff-friendly text
// form. Collections and indexes come out sorted, so the output is
// deterministic across runs.
func DumpRegistryText(reg *schema.Registry) string {
	var b strings.Builder
	fmt.Fprintf(&b, "schema version %d\n", reg.Version)
	for _, coll := range reg.Collections() {
		fmt.Fprintf(&b, "\ncollection %s\n", coll.Name)
		fmt.Fprintf(&b, "  key %s", coll.PrimaryKey)
		if coll.AutoIncrement {
			b.WriteString(" (auto-increment)")
		}
		b.WriteString("\n")
		if coll.Restricted {
			b.WriteString("  restricted\n")
		}
		for _, idx := range coll.Indexes {
			fmt.Fprintf(&b, "  index %s on %s", idx.Name, idx.Field)
			if idx.Unique {
				b.WriteString(" unique")
			}
			if idx.Partial {
				b.WriteString(" partial")
			}
			b.WriteString("\n")
		}
	}
	return b.String()
}
