package commands

import (
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/AlecAivazis/survey/v2"
	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/conduit-lang/propsheet/internal/cli/ui"
	"github.com/conduit-lang/propsheet/internal/command"
	"github.com/conduit-lang/propsheet/internal/property"
)

var (
	editInteractiveFlag bool
	editUndoFlag        int
	editSplitFlag       bool
)

const (
	choiceUndo = "↶ Undo"
	choiceRedo = "↷ Redo"
	choiceDone = "✓ Done"
)

// NewEditCommand creates the edit command
func NewEditCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "edit <sample> [attribute=value...]",
		Short: "Edit attributes of a sample object",
		Long: `Write attributes of a sample object through the undoable command history.

Consecutive writes of the same attribute merge into one command. Use --split
to end the merge window after every assignment, and --undo to undo the last
commands afterwards. With --interactive, attributes and values are chosen
from prompts.`,
		Example: `  # Rename the driver
  propsheet edit driver name=MySQL

  # Three writes, one command, then undo it
  propsheet edit driver name=pg name=pg2 name=pg3 --undo 1

  # Pick attributes interactively
  propsheet edit connection -i`,
		Args:              cobra.MinimumNArgs(1),
		ValidArgsFunction: completeSample,
		RunE:              runEdit,
	}

	cmd.Flags().BoolVarP(&editInteractiveFlag, "interactive", "i", false, "Choose attributes and values from prompts")
	cmd.Flags().IntVar(&editUndoFlag, "undo", 0, "Number of commands to undo after applying the assignments")
	cmd.Flags().BoolVar(&editSplitFlag, "split", false, "Record every assignment as its own command")

	return cmd
}

func runEdit(cmd *cobra.Command, args []string) error {
	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer logger.Sync()

	s, err := openSheet(args[0], cfg, sheetOptions{showExpensive: cfg.Properties.ShowExpensive}, logger)
	if err != nil {
		return err
	}
	defer s.Close()

	if err := applyAssignments(s, args[1:]); err != nil {
		return err
	}

	if editInteractiveFlag {
		if err := editInteractive(s); err != nil {
			return err
		}
	}

	for i := 0; i < editUndoFlag; i++ {
		if err := s.history.Undo(); err != nil {
			if errors.Is(err, command.ErrNothingToUndo) {
				break
			}
			return err
		}
	}

	out := cmd.OutOrStdout()
	ui.Header(out, s.sample, noColorFlag)
	ui.RenderProperties(out, s.tree, s.value, ui.DefaultPropertyColumns(), &ui.TableOptions{NoColor: noColorFlag})
	fmt.Fprintln(out)
	renderHistory(out, s.history)
	return nil
}

// applyAssignments writes each attribute=value argument in order
func applyAssignments(s *sheet, assignments []string) error {
	for _, a := range assignments {
		id, value, ok := strings.Cut(a, "=")
		if !ok || id == "" {
			return fmt.Errorf("invalid assignment %q, expected attribute=value", a)
		}
		d, err := s.attribute(id)
		if err != nil {
			return err
		}
		if err := s.editor.Write(d, value); err != nil {
			return fmt.Errorf("failed to set %s: %w", id, err)
		}
		if editSplitFlag {
			s.editor.Boundary()
		}
	}
	return nil
}

func editInteractive(s *sheet) error {
	for {
		var editable []*property.Descriptor
		options := make([]string, 0)
		for _, d := range property.Flatten(s.src.Descriptors()) {
			if s.editor.IsEditable(d) {
				editable = append(editable, d)
				options = append(options, fmt.Sprintf("%s (%s)", d.DisplayName, s.value(d)))
			}
		}
		if s.history.CanUndo() {
			options = append(options, choiceUndo)
		}
		if s.history.CanRedo() {
			options = append(options, choiceRedo)
		}
		options = append(options, choiceDone)

		var choice int
		if err := survey.AskOne(&survey.Select{Message: "Attribute to edit:", Options: options}, &choice); err != nil {
			return err
		}

		switch {
		case choice < len(editable):
			if err := promptValue(s, editable[choice]); err != nil {
				color.New(color.FgRed).Println(err)
			}
		case options[choice] == choiceUndo:
			if err := s.history.Undo(); err != nil {
				return err
			}
		case options[choice] == choiceRedo:
			if err := s.history.Redo(); err != nil {
				return err
			}
		default:
			return nil
		}
	}
}

// promptValue asks for a new value of d with a prompt suited to its type
func promptValue(s *sheet, d *property.Descriptor) error {
	message := d.DisplayName + ":"
	current := s.value(d)

	var value interface{}
	switch {
	case d.ValueList != nil && !d.ValueList.AllowCustom():
		var options []string
		for _, v := range d.ValueList.Values(s.src.Target()) {
			options = append(options, property.FormatValue(v))
		}
		var selected string
		prompt := &survey.Select{Message: message, Options: options}
		if current != "" {
			prompt.Default = current
		}
		if err := survey.AskOne(prompt, &selected); err != nil {
			return err
		}
		value = selected

	case d.DataType == property.TypeBool:
		var b bool
		if err := survey.AskOne(&survey.Confirm{Message: message, Default: current == "true"}, &b); err != nil {
			return err
		}
		value = b

	case d.DataType == property.TypeText:
		var text string
		if err := survey.AskOne(&survey.Multiline{Message: message, Default: current}, &text); err != nil {
			return err
		}
		value = text

	default:
		var text string
		if err := survey.AskOne(&survey.Input{Message: message, Default: current}, &text); err != nil {
			return err
		}
		value = text
	}

	return s.editor.Write(d, value)
}

func renderHistory(w io.Writer, h *command.History) {
	ui.Header(w, "History", noColorFlag)
	cmds := h.Commands()
	if len(cmds) == 0 {
		fmt.Fprintln(w, "  (no commands)")
		return
	}
	for i, c := range cmds {
		fmt.Fprintf(w, "  %d. %s\n", i+1, c.Label())
	}
}
