package commands

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"github.com/conduit-lang/propsheet/internal/cli/ui"
	"github.com/conduit-lang/propsheet/internal/columns"
)

var (
	columnsViewFlag    string
	columnsVisibleFlag bool
	columnsWidthFlag   int
	columnsOrderFlag   int
)

// NewColumnsCommand creates the columns command
func NewColumnsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "columns",
		Short: "Manage saved column layouts",
		Long: `Show and change the column layouts of property sheet views.

Layouts are kept in the store selected by columns.store in propsheet.yml:
a JSON or YAML file, SQLite, PostgreSQL or Redis.`,
		Example: `  # List views with a saved layout
  propsheet columns list

  # Show the property sheet layout
  propsheet columns show

  # Show descriptions, 40 characters wide
  propsheet columns set description --visible --width 40`,
	}

	cmd.PersistentFlags().StringVar(&columnsViewFlag, "view", ui.PropertyView, "View whose layout to use")

	cmd.AddCommand(newColumnsListCommand())
	cmd.AddCommand(newColumnsShowCommand())
	cmd.AddCommand(newColumnsSetCommand())
	cmd.AddCommand(newColumnsResetCommand())

	return cmd
}

func newColumnsListCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List views with a saved layout",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *columns.Registry) error {
				for _, view := range registry.Views() {
					fmt.Fprintln(cmd.OutOrStdout(), view)
				}
				return nil
			})
		},
	}
}

func newColumnsShowCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "show",
		Short: "Show the layout of a view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *columns.Registry) error {
				renderLayout(cmd, layoutOf(registry, columnsViewFlag))
				return nil
			})
		},
	}
}

func newColumnsSetCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "set <column>",
		Short: "Change one column of a view",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *columns.Registry) error {
				layout := layoutOf(registry, columnsViewFlag)

				i := indexOfColumn(layout, args[0])
				if i < 0 {
					layout = append(layout, columns.State{Name: args[0], Visible: true, Order: len(layout)})
					i = len(layout) - 1
				}
				flags := cmd.Flags()
				if flags.Changed("visible") {
					layout[i].Visible = columnsVisibleFlag
				}
				if flags.Changed("width") {
					if columnsWidthFlag < 0 {
						return fmt.Errorf("width must not be negative, got: %d", columnsWidthFlag)
					}
					layout[i].Width = columnsWidthFlag
				}
				if flags.Changed("order") {
					layout[i].Order = columnsOrderFlag
				}

				registry.Update(columnsViewFlag, layout)
				renderLayout(cmd, layout)
				return nil
			})
		},
	}

	cmd.Flags().BoolVar(&columnsVisibleFlag, "visible", true, "Show the column (--visible=false hides it)")
	cmd.Flags().IntVar(&columnsWidthFlag, "width", 0, "Fixed column width, 0 sizes to content")
	cmd.Flags().IntVar(&columnsOrderFlag, "order", 0, "Display position of the column")

	return cmd
}

func newColumnsResetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "reset",
		Short: "Restore the default layout of a view",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRegistry(cmd, func(registry *columns.Registry) error {
				registry.Update(columnsViewFlag, defaultLayout(columnsViewFlag))
				ui.WriteSuccess(cmd.OutOrStdout(), "Restored default layout of "+columnsViewFlag, noColorFlag)
				return nil
			})
		},
	}
}

// withRegistry opens the configured registry, runs fn and saves any update
func withRegistry(cmd *cobra.Command, fn func(*columns.Registry) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	registry, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	if err := fn(registry); err != nil {
		registry.Close(ctx)
		return err
	}
	return registry.Close(ctx)
}

func defaultLayout(view string) []columns.State {
	if view == ui.PropertyView {
		return ui.DefaultPropertyColumns()
	}
	return nil
}

func layoutOf(registry *columns.Registry, view string) []columns.State {
	defaults := defaultLayout(view)
	if defaults == nil {
		return registry.Get(view)
	}
	return registry.Merge(view, defaults)
}

func indexOfColumn(layout []columns.State, name string) int {
	for i, c := range layout {
		if c.Name == name {
			return i
		}
	}
	return -1
}

func renderLayout(cmd *cobra.Command, layout []columns.State) {
	table := ui.NewTable(cmd.OutOrStdout(), []columns.State{
		{Name: "column", Visible: true, Order: 0},
		{Name: "visible", Visible: true, Order: 1},
		{Name: "order", Visible: true, Order: 2},
		{Name: "width", Visible: true, Order: 3},
	}, &ui.TableOptions{NoColor: noColorFlag})

	for _, c := range layout {
		width := "auto"
		if c.Width > 0 {
			width = strconv.Itoa(c.Width)
		}
		table.AddRow(ui.Row{
			"column":  c.Name,
			"visible": strconv.FormatBool(c.Visible),
			"order":   strconv.Itoa(c.Order),
			"width":   width,
		})
	}
	table.Render()
}
