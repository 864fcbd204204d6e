package commands

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/conduit-lang/propsheet/internal/cli/ui"
	"github.com/conduit-lang/propsheet/internal/columns"
	"github.com/conduit-lang/propsheet/internal/property"
)

var (
	inspectShowExpensiveFlag bool
	inspectNoWaitFlag        bool
	inspectTimeoutFlag       time.Duration
	inspectProbeFlag         time.Duration
	inspectColumnsFlag       []string
)

// NewInspectCommand creates the inspect command
func NewInspectCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "inspect <sample> [attribute]",
		Short: "Show the property sheet of a sample object",
		Long: `Show the attributes of a sample object as a categorized property sheet.

Lazy attributes are loaded in the background; by default the command waits
for them before printing. With an attribute id, only that attribute is shown
together with its metadata.

The --columns flag picks the visible columns and their order. The choice is
saved and reused by later runs.`,
		Example: `  # Show the connection sample
  propsheet inspect connection

  # Include expensive attributes and the description column
  propsheet inspect connection --show-expensive --columns name,value,description

  # Show a single attribute
  propsheet inspect driver version`,
		Args:              cobra.RangeArgs(1, 2),
		ValidArgsFunction: completeSample,
		RunE:              runInspect,
	}

	cmd.Flags().BoolVar(&inspectShowExpensiveFlag, "show-expensive", false, "Include attributes that are expensive to compute")
	cmd.Flags().BoolVar(&inspectNoWaitFlag, "no-wait", false, "Print lazy attributes as loading instead of waiting")
	cmd.Flags().DurationVar(&inspectTimeoutFlag, "timeout", 10*time.Second, "Maximum time to wait for lazy attributes")
	cmd.Flags().DurationVar(&inspectProbeFlag, "probe", 200*time.Millisecond, "Simulated latency of lazy attributes")
	cmd.Flags().StringSliceVar(&inspectColumnsFlag, "columns", nil, "Visible columns in display order (name, value, type, description)")

	return cmd
}

func runInspect(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	s, err := openSheet(args[0], cfg, sheetOptions{
		probe:         inspectProbeFlag,
		showExpensive: inspectShowExpensiveFlag || cfg.Properties.ShowExpensive,
	}, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	var single *property.Descriptor
	if len(args) == 2 {
		if single, err = s.attribute(args[1]); err != nil {
			return err
		}
		s.src.Read(single)
	} else {
		s.requestAll()
	}

	if !inspectNoWaitFlag && s.src.Loading() {
		if err := waitForLazy(ctx, cmd, s); err != nil {
			logger.Warn("lazy attributes did not finish loading", zap.Error(err))
		}
	}

	out := cmd.OutOrStdout()
	if single != nil {
		renderAttribute(cmd, s, single)
		return nil
	}

	registry, store, err := openRegistry(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer store.Close()

	layout := registry.Merge(ui.PropertyView, ui.DefaultPropertyColumns())
	if len(inspectColumnsFlag) > 0 {
		layout, err = selectColumns(layout, inspectColumnsFlag)
		if err != nil {
			return err
		}
		registry.Update(ui.PropertyView, layout)
	}

	ui.Header(out, s.sample, noColorFlag)
	ui.RenderProperties(out, s.tree, s.value, layout, &ui.TableOptions{NoColor: noColorFlag})

	return registry.Close(ctx)
}

// waitForLazy blocks until lazy attributes are loaded, showing a spinner
func waitForLazy(ctx context.Context, cmd *cobra.Command, s *sheet) error {
	ctx, cancel := context.WithTimeout(ctx, inspectTimeoutFlag)
	defer cancel()

	spinner := ui.NewSpinner(cmd.ErrOrStderr(), ui.SpinnerOptions{
		Message: "Loading attributes...",
		NoColor: noColorFlag,
	})
	spinner.Start()
	defer spinner.Stop()

	return s.src.Wait(ctx)
}

func renderAttribute(cmd *cobra.Command, s *sheet, d *property.Descriptor) {
	kv := ui.NewKeyValueTable(cmd.OutOrStdout(), noColorFlag)
	kv.AddRow("Attribute", d.ID)
	kv.AddRow("Name", d.DisplayName)
	if d.Description != "" {
		kv.AddRow("Description", d.Description)
	}
	kv.AddRow("Category", d.CategoryName())
	kv.AddRow("Type", string(d.DataType))
	kv.AddRow("Lazy", fmt.Sprint(d.Lazy))
	kv.AddRow("Editable", fmt.Sprint(s.editor.IsEditable(d)))
	kv.AddRow("Value", s.value(d))

	if d.ValueList != nil {
		var values []string
		for _, v := range d.ValueList.Values(s.src.Target()) {
			values = append(values, property.FormatValue(v))
		}
		kv.AddRow("Values", strings.Join(values, ", "))
	}
	kv.Render()
}

// selectColumns shows exactly the named columns, in the given order. Other
// columns keep their width but are hidden and sorted after the visible ones.
func selectColumns(layout []columns.State, names []string) ([]columns.State, error) {
	index := make(map[string]int, len(layout))
	for i, c := range layout {
		index[c.Name] = i
	}

	out := make([]columns.State, 0, len(layout))
	chosen := make(map[string]bool, len(names))
	for _, name := range names {
		name = strings.TrimSpace(name)
		i, ok := index[name]
		if !ok {
			return nil, fmt.Errorf("unknown column %q", name)
		}
		if chosen[name] {
			continue
		}
		chosen[name] = true
		c := layout[i]
		c.Visible = true
		c.Order = len(out)
		out = append(out, c)
	}
	for _, c := range layout {
		if chosen[c.Name] {
			continue
		}
		c.Visible = false
		c.Order = len(out)
		out = append(out, c)
	}
	return out, nil
}
