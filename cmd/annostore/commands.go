package main

import (
	"fmt"
	"strconv"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/nainya/annostore/pkg/filter"
	"github.com/nainya/annostore/pkg/model"
	"github.com/nainya/annostore/pkg/search"
)

func (a *app) searchCmd() *cobra.Command {
	var sorted bool
	cmd := &cobra.Command{
		Use:   "search PATTERN",
		Short: "Search every visible document for a case-insensitive regex",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job, err := a.sess.Search(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			results := search.Collect(job)
			state, err := job.Wait()
			if sorted {
				search.SortResults(results)
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "DOCUMENT\tTITLE\tDATE\tSTART\tSTOP\tCONTEXT")
			for _, r := range results {
				fmt.Fprintf(w, "%d\t%s\t%s\t%d\t%d\t%s\n", r.DocumentID, r.Title,
					r.DateTime.Format("2006-01-02"), r.Start, r.Stop, oneLine(r.Context))
			}
			if err := w.Flush(); err != nil {
				return err
			}

			fmt.Fprintf(a.out, "%d results (%s)\n", len(results), state)
			return err
		},
	}
	cmd.Flags().BoolVar(&sorted, "sort", false, "order results by date and document")
	return cmd
}

func (a *app) renderCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "render DOC_ID",
		Short: "Print the highlight runs of a document",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			id, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("document id %q: %w", args[0], err)
			}
			doc, err := a.sess.Document(cmd.Context(), id)
			if err != nil {
				return err
			}
			runs, err := a.sess.Overlay(cmd.Context(), id)
			if err != nil {
				return err
			}

			text := []rune(doc.Text)
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "START\tEND\tFOREGROUND\tBACKGROUND\tTEXT")
			for _, r := range runs {
				fmt.Fprintf(w, "%d\t%d\t%s\t%s\t%s\n", r.Start, r.End,
					r.Foreground, r.Background, oneLine(string(text[r.Start:r.End])))
			}
			return w.Flush()
		},
	}
}

func (a *app) statementsCmd() *cobra.Command {
	var (
		mode     string
		typeID   int
		idRegex  string
		varPairs []string
	)
	cmd := &cobra.Command{
		Use:   "statements [DOC_ID]",
		Short: "List statements that pass the filter",
		Long: `Lists statements with their values. Without DOC_ID every document is read.
Modes: all, current (statements of DOC_ID) and filtered (--type, --id, --var).`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := filter.ParseMode(mode)
			if err != nil {
				return err
			}
			b := filter.NewBuilder(m).Type(typeID).ID(idRegex)

			var rows []model.Statement
			if len(args) == 1 {
				docID, err := strconv.Atoi(args[0])
				if err != nil {
					return fmt.Errorf("document id %q: %w", args[0], err)
				}
				b.Document(docID)
				rows, err = a.sess.Statements(cmd.Context(), docID)
				if err != nil {
					return err
				}
			} else {
				if rows, err = a.sess.AllStatements(cmd.Context()); err != nil {
					return err
				}
			}

			for _, pair := range varPairs {
				key, pattern, ok := strings.Cut(pair, "=")
				if !ok {
					return fmt.Errorf("%w: --var %q is not key=pattern", model.ErrValidation, pair)
				}
				b.Where(key, pattern)
			}

			pred, err := a.sess.Filter(cmd.Context(), b.Build())
			if err != nil {
				return err
			}
			rows = pred.Apply(rows)

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tDOCUMENT\tSTART\tSTOP\tTYPE\tCODER\tVALUES")
			for _, s := range rows {
				label := strconv.Itoa(s.StatementTypeID)
				if st, ok := a.sess.StatementType(s.StatementTypeID); ok {
					label = st.Label
				}
				fmt.Fprintf(w, "%d\t%d\t%d\t%d\t%s\t%d\t%s\n", s.ID, s.DocumentID, s.Start, s.Stop,
					label, s.CoderID, formatValues(s.Values))
			}
			return w.Flush()
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&mode, "mode", "all", "all, current or filtered")
	flags.IntVar(&typeID, "type", 0, "statement type id (filtered mode)")
	flags.StringVar(&idRegex, "id", "", "regex over the statement id (filtered mode)")
	flags.StringArrayVar(&varPairs, "var", nil, "key=regex over a variable value, repeatable (filtered mode)")
	return cmd
}

func (a *app) entitiesCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "entities VARIABLE_ID",
		Short: "Print the taxonomy of a variable",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			variableID, err := strconv.Atoi(args[0])
			if err != nil {
				return fmt.Errorf("variable id %q: %w", args[0], err)
			}
			entities, err := a.sess.Entities(variableID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tCOLOR\tPATH")
			for _, e := range entities {
				path, err := a.sess.EntityPath(e.ID)
				if err != nil {
					return err
				}
				fmt.Fprintf(w, "%d\t%s\t%s\n", e.ID, e.Color, path)
			}
			return w.Flush()
		},
	}
}

func (a *app) regexCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "regex",
		Short: "Manage highlight patterns",
	}

	list := &cobra.Command{
		Use:   "list",
		Short: "List highlight patterns",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			regexes, err := a.sess.Regexes(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(a.out, 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "PATTERN\tCOLOR")
			for _, r := range regexes {
				fmt.Fprintf(w, "%s\t%s\n", r.Label, r.Color)
			}
			return w.Flush()
		},
	}

	var color string
	add := &cobra.Command{
		Use:   "add PATTERN",
		Short: "Add or recolor a highlight pattern",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := model.ParseHex(color)
			if err != nil {
				return err
			}
			return a.sess.AddRegex(cmd.Context(), model.Regex{Label: args[0], Color: c})
		},
	}
	add.Flags().StringVar(&color, "color", "#ff0000", "foreground color as #rrggbb")

	del := &cobra.Command{
		Use:   "delete PATTERN...",
		Short: "Delete highlight patterns",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return a.sess.DeleteRegexes(cmd.Context(), args)
		},
	}

	cmd.AddCommand(list, add, del)
	return cmd
}

func formatValues(values []model.Variable) string {
	parts := make([]string, 0, len(values))
	for _, v := range values {
		parts = append(parts, v.Key+"="+v.String())
	}
	return strings.Join(parts, "; ")
}

// oneLine keeps tabular output on a single line per row
func oneLine(s string) string {
	return strings.NewReplacer("\n", " ", "\r", " ", "\t", " ").Replace(s)
}
