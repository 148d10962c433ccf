package cli

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
	"trivia-live/internal/app"
	"trivia-live/internal/domain"
	pgstore "trivia-live/internal/infra/postgres"
)

// NewQuizCmd groups quiz document maintenance commands.
func NewQuizCmd(opts *rootOptions) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "quiz",
		Short: "Manage quiz documents",
	}
	cmd.AddCommand(newQuizImportCmd(opts))
	return cmd
}

func newQuizImportCmd(opts *rootOptions) *cobra.Command {
	var author string
	cmd := &cobra.Command{
		Use:   "import <file.yaml>",
		Short: "Import a quiz from a YAML file",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := os.Open(args[0])
			if err != nil {
				return err
			}
			defer f.Close()
			quiz, err := decodeQuiz(f)
			if err != nil {
				return fmt.Errorf("%s: %w", args[0], err)
			}

			db, err := openBun(opts.cfg)
			if err != nil {
				return err
			}
			defer db.Close()
			if err := migrateDB(cmd.Context(), db); err != nil {
				return err
			}
			editor := app.NewQuizEditor(pgstore.NewQuizDocuments(db), nil, nil, log.Logger)
			return importQuiz(cmd.Context(), editor, author, quiz, cmd.OutOrStdout())
		},
	}
	cmd.Flags().StringVar(&author, "author", "", "user id that owns the quiz")
	_ = cmd.MarkFlagRequired("author")
	return cmd
}

func decodeQuiz(r io.Reader) (domain.Quiz, error) {
	var quiz domain.Quiz
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&quiz); err != nil {
		return domain.Quiz{}, err
	}
	return quiz, nil
}

func importQuiz(ctx context.Context, editor *app.QuizEditor, author string, quiz domain.Quiz, out io.Writer) error {
	saved, err := editor.Import(ctx, author, quiz)
	if err != nil {
		return err
	}
	questions := 0
	for _, r := range saved.Rounds {
		questions += len(r.Questions)
	}
	_, err = fmt.Fprintf(out, "imported %s (%d rounds, %d questions)\n", saved.ID, len(saved.Rounds), questions)
	return err
}
