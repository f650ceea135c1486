package cli

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/fiscalbox/fiscalbox/internal/cnpj"
	"github.com/fiscalbox/fiscalbox/internal/tenant"
)

// TenantView is the JSON shape of one tenant in command output.
type TenantView struct {
	ID        int64     `json:"id"`
	CNPJ      string    `json:"cnpj"`
	Name      string    `json:"nome"`
	Active    bool      `json:"ativa"`
	CreatedAt time.Time `json:"criadoEm,omitempty"`
	UpdatedAt time.Time `json:"atualizadoEm,omitempty"`
}

func viewOf(t tenant.Tenant) TenantView {
	return TenantView{
		ID:        t.ID,
		CNPJ:      t.CNPJ,
		Name:      t.Name,
		Active:    t.Active,
		CreatedAt: t.CreatedAt,
		UpdatedAt: t.UpdatedAt,
	}
}

// NewEmpresaCommand creates the company (tenant) command group.
func NewEmpresaCommand(rootOpts *RootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "empresa",
		Short: "Manage registered companies and the active selection",
	}
	cmd.AddCommand(newEmpresaListCommand(rootOpts))
	cmd.AddCommand(newEmpresaAddCommand(rootOpts))
	cmd.AddCommand(newEmpresaSwitchCommand(rootOpts))
	cmd.AddCommand(newEmpresaUpdateCommand(rootOpts))
	cmd.AddCommand(newEmpresaDeleteCommand(rootOpts))
	cmd.AddCommand(newEmpresaImportCommand(rootOpts))
	return cmd
}

func newEmpresaListCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "list",
		Short:         "List registered companies",
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

			tenants := app.Switcher.Tenants()
			if f.Format == "json" {
				views := make([]TenantView, 0, len(tenants))
				for _, t := range tenants {
					views = append(views, viewOf(t))
				}
				return f.Success(views)
			}
			if len(tenants) == 0 {
				fmt.Fprintln(f.Writer, "No companies registered.")
				return nil
			}
			val := cnpj.New()
			for _, t := range tenants {
				mark := " "
				if t.Active {
					mark = "*"
				}
				fmt.Fprintf(f.Writer, "%s %d\t%s\t%s\n", mark, t.ID, val.Format(t.CNPJ), t.Name)
			}
			return nil
		},
	}
}

func newEmpresaAddCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "add <cnpj> <name>",
		Short:         "Register a company (the first one becomes active)",
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

			t, err := app.Switcher.AddTenant(cmd.Context(), tenant.AddInput{CNPJ: args[0], Name: args[1]})
			if err != nil {
				return tenantError(f, err)
			}
			if f.Format == "json" {
				return f.Success(viewOf(t))
			}
			fmt.Fprintf(f.Writer, "Registered company %d (%s)\n", t.ID, cnpj.New().Format(t.CNPJ))
			return nil
		},
	}
}

func newEmpresaSwitchCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "switch <id>",
		Short:         "Make a company the active one",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid company id %q", args[0]))
			}
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if err := app.Switcher.SwitchTo(cmd.Context(), id); err != nil {
				return tenantError(f, err)
			}
			t, _ := app.Switcher.Active()
			if f.Format == "json" {
				return f.Success(viewOf(t))
			}
			fmt.Fprintf(f.Writer, "Active company: %d (%s)\n", t.ID, t.Name)
			return nil
		},
	}
}

func newEmpresaUpdateCommand(rootOpts *RootOptions) *cobra.Command {
	var newCNPJ, newName string
	cmd := &cobra.Command{
		Use:           "update <id>",
		Short:         "Update a company's registration data",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid company id %q", args[0]))
			}
			var patch tenant.UpdatePatch
			if cmd.Flags().Changed("cnpj") {
				patch.CNPJ = &newCNPJ
			}
			if cmd.Flags().Changed("name") {
				patch.Name = &newName
			}
			if patch.CNPJ == nil && patch.Name == nil {
				return NewExitError(ExitCommandError, "nothing to update: pass --cnpj or --name")
			}

			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			t, err := app.Switcher.UpdateTenant(cmd.Context(), id, patch)
			if err != nil {
				return tenantError(f, err)
			}
			if f.Format == "json" {
				return f.Success(viewOf(t))
			}
			fmt.Fprintf(f.Writer, "Updated company %d\n", t.ID)
			return nil
		},
	}
	cmd.Flags().StringVar(&newCNPJ, "cnpj", "", "new CNPJ")
	cmd.Flags().StringVar(&newName, "name", "", "new display name")
	return cmd
}

func newEmpresaDeleteCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "delete <id>",
		Short:         "Delete a company and purge its data",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.ParseInt(args[0], 10, 64)
			if err != nil {
				return NewExitError(ExitCommandError, fmt.Sprintf("invalid company id %q", args[0]))
			}
			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			if err := app.Switcher.DeleteTenant(cmd.Context(), id); err != nil {
				return tenantError(f, err)
			}
			if f.Format == "json" {
				return f.Success(map[string]int64{"deleted": id})
			}
			fmt.Fprintf(f.Writer, "Deleted company %d\n", id)
			return nil
		},
	}
}

// importEntry is one row of an import file.
type importEntry struct {
	CNPJ string `yaml:"cnpj"`
	Name string `yaml:"nome"`
}

// ImportResult summarizes an import run.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped,omitempty"`
}

func newEmpresaImportCommand(rootOpts *RootOptions) *cobra.Command {
	return &cobra.Command{
		Use:           "import <file>",
		Short:         "Import companies from a YAML file",
		Long:          "Import companies from a YAML list of {cnpj, nome} entries. Duplicates and invalid entries are skipped, not fatal.",
		Args:          cobra.ExactArgs(1),
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			data, err := os.ReadFile(args[0])
			if err != nil {
				return WrapExitError(ExitCommandError, "read import file", err)
			}
			var entries []importEntry
			if err := yaml.Unmarshal(data, &entries); err != nil {
				return WrapExitError(ExitCommandError, "parse import file", err)
			}

			app, err := buildApp(cmd.Context(), rootOpts)
			if err != nil {
				return err
			}
			defer app.Close()
			f := formatter(rootOpts, cmd.OutOrStdout(), cmd.ErrOrStderr())

			var result ImportResult
			for _, e := range entries {
				_, err := app.Switcher.AddTenant(cmd.Context(), tenant.AddInput{CNPJ: e.CNPJ, Name: e.Name})
				switch {
				case err == nil:
					result.Imported++
				case errors.Is(err, tenant.ErrDuplicateCNPJ) || tenant.IsValidation(err):
					f.VerboseLog("skipping %q: %v", e.CNPJ, err)
					result.Skipped = append(result.Skipped, e.CNPJ)
				default:
					return tenantError(f, err)
				}
			}
			if f.Format == "json" {
				return f.Success(result)
			}
			fmt.Fprintf(f.Writer, "Imported %d company(ies), skipped %d\n", result.Imported, len(result.Skipped))
			return nil
		},
	}
}

// tenantError maps tenant-layer failures to exit codes and formatted
// output. Not-found, duplicates and validation rejections are operation
// failures (exit 1); everything else is a command error (exit 2).
func tenantError(f *OutputFormatter, err error) error {
	code := "E_TENANT"
	exit := ExitCommandError
	switch {
	case errors.Is(err, tenant.ErrTenantNotFound):
		code, exit = "E_NOT_FOUND", ExitFailure
	case errors.Is(err, tenant.ErrDuplicateCNPJ):
		code, exit = "E_DUPLICATE", ExitFailure
	case errors.Is(err, tenant.ErrUnsavedChanges):
		code, exit = "E_UNSAVED", ExitFailure
	case tenant.IsValidation(err):
		code, exit = "E_INVALID", ExitFailure
	}
	_ = f.Error(code, err.Error(), nil)
	return NewExitError(exit, err.Error())
}
