package cli

import (
	"fmt"
	"io"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/roach88/strata/internal/lexicon"
	"github.com/roach88/strata/internal/model"
)

// ChangeOptions holds flags shared by the change subcommands.
type ChangeOptions struct {
	*RootOptions
	ID string // entity id for create commands; generated when empty
}

// ChangeResult is printed after a change is committed.
type ChangeResult struct {
	EntityID string `json:"entity_id"`
	Change   string `json:"change"`
	CommitID string `json:"commit_id"`
	Hash     string `json:"hash"`
	At       string `json:"at"`
}

// NewChangeCommand creates the change command and its subcommands. Each
// subcommand authors one commit holding a single change.
func NewChangeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &ChangeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "change",
		Short: "Author a commit on the local replica",
		Long: `Author a commit holding one change to the lexicon.

Change types: ` + strings.Join(model.ChangeTypes(), ", ") + `

Examples:
  strata change add-word serendipity --note "noun"
  strata change define <word-id> "a happy accident"
  strata change delete <entity-id>`,
	}
	cmd.PersistentFlags().StringVar(&opts.ID, "id", "", "entity id for create commands (default: new UUIDv7)")

	cmd.AddCommand(
		newAddWordCommand(opts),
		newEditWordCommand(opts),
		newDefineCommand(opts),
		newEditDefinitionCommand(opts),
		newExampleCommand(opts),
		newCrossRefCommand(opts),
		newSetTargetCommand(opts),
		newDeleteCommand(opts),
	)
	return cmd
}

func changeCommand(use, short string, args cobra.PositionalArgs, opts *ChangeOptions, build func(cmd *cobra.Command, args []string) (model.Change, error)) *cobra.Command {
	return &cobra.Command{
		Use:           use,
		Short:         short,
		Args:          args,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			change, err := build(cmd, args)
			if err != nil {
				return err
			}
			return runChange(cmd, opts, change)
		},
	}
}

func newAddWordCommand(opts *ChangeOptions) *cobra.Command {
	var note string
	cmd := changeCommand("add-word <text>", "Create a word", cobra.ExactArgs(1), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			id, err := opts.newEntityID()
			if err != nil {
				return nil, err
			}
			return &lexicon.CreateWord{ID: id, Text: args[0], Note: note}, nil
		})
	cmd.Flags().StringVar(&note, "note", "", "free-form note")
	return cmd
}

func newEditWordCommand(opts *ChangeOptions) *cobra.Command {
	var text, note string
	cmd := changeCommand("edit-word <word-id>", "Edit a word's text or note", cobra.ExactArgs(1), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			id, err := parseID("word", args[0])
			if err != nil {
				return nil, err
			}
			change := &lexicon.EditWord{ID: id}
			if cmd.Flags().Changed("text") {
				change.Text = &text
			}
			if cmd.Flags().Changed("note") {
				change.Note = &note
			}
			if change.Text == nil && change.Note == nil {
				return nil, NewExitError(ExitCommandError, "edit-word needs --text or --note")
			}
			return change, nil
		})
	cmd.Flags().StringVar(&text, "text", "", "new text")
	cmd.Flags().StringVar(&note, "note", "", "new note")
	return cmd
}

func newDefineCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("define <word-id> <gloss>", "Add a definition to a word", cobra.ExactArgs(2), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			wordID, err := parseID("word", args[0])
			if err != nil {
				return nil, err
			}
			id, err := opts.newEntityID()
			if err != nil {
				return nil, err
			}
			return &lexicon.CreateDefinition{ID: id, WordID: wordID, Gloss: args[1]}, nil
		})
}

func newEditDefinitionCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("edit-definition <definition-id> <gloss>", "Replace a definition's gloss", cobra.ExactArgs(2), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			id, err := parseID("definition", args[0])
			if err != nil {
				return nil, err
			}
			return &lexicon.EditDefinition{ID: id, Gloss: args[1]}, nil
		})
}

func newExampleCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("example <definition-id> <sentence>", "Add an example sentence to a definition", cobra.ExactArgs(2), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			defID, err := parseID("definition", args[0])
			if err != nil {
				return nil, err
			}
			id, err := opts.newEntityID()
			if err != nil {
				return nil, err
			}
			return &lexicon.CreateExample{ID: id, DefinitionID: defID, Sentence: args[1]}, nil
		})
}

func newCrossRefCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("crossref <word-id> [target-word-id]", "Link a word to another word", cobra.RangeArgs(1, 2), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			wordID, err := parseID("word", args[0])
			if err != nil {
				return nil, err
			}
			id, err := opts.newEntityID()
			if err != nil {
				return nil, err
			}
			change := &lexicon.CreateCrossRef{ID: id, WordID: wordID}
			if len(args) == 2 {
				target, err := parseID("target", args[1])
				if err != nil {
					return nil, err
				}
				change.TargetID = &target
			}
			return change, nil
		})
}

func newSetTargetCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("set-target <crossref-id> [target-word-id]", "Point a cross reference at a word, or clear it", cobra.RangeArgs(1, 2), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			id, err := parseID("crossref", args[0])
			if err != nil {
				return nil, err
			}
			change := &lexicon.SetCrossRefTarget{ID: id}
			if len(args) == 2 {
				target, err := parseID("target", args[1])
				if err != nil {
					return nil, err
				}
				change.TargetID = &target
			}
			return change, nil
		})
}

func newDeleteCommand(opts *ChangeOptions) *cobra.Command {
	return changeCommand("delete <entity-id>", "Delete an entity and everything that depends on it", cobra.ExactArgs(1), opts,
		func(cmd *cobra.Command, args []string) (model.Change, error) {
			id, err := parseID("entity", args[0])
			if err != nil {
				return nil, err
			}
			return &lexicon.Delete{ID: id}, nil
		})
}

func (o *ChangeOptions) newEntityID() (uuid.UUID, error) {
	if o.ID == "" {
		return uuid.NewV7()
	}
	return parseID("entity", o.ID)
}

func runChange(cmd *cobra.Command, opts *ChangeOptions, change model.Change) error {
	ctx := commandContext(cmd)
	f := newFormatter(opts.RootOptions, cmd)

	r, err := openReplica(ctx, opts.RootOptions, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer r.Close()

	commit, err := r.dm.AddChange(ctx, change)
	if err != nil {
		return WrapExitError(ExitFailure, fmt.Sprintf("%s failed", change.TypeName()), err)
	}

	result := ChangeResult{
		EntityID: change.EntityID().String(),
		Change:   change.TypeName(),
		CommitID: commit.ID.String(),
		Hash:     commit.Hash,
		At:       commit.HybridDateTime.String(),
	}
	return f.Render(result, func(w io.Writer) {
		fmt.Fprintf(w, "%s %s\n", result.Change, result.EntityID)
		fmt.Fprintf(w, "  commit %s (%s) at %s\n", result.CommitID, result.Hash, result.At)
	})
}
