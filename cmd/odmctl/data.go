package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/samber/lo"
	"github.com/spf13/cobra"

	"github.com/CaliLuke/go-docmap/filter"
	"github.com/CaliLuke/go-docmap/odm"
)

func newFindCmd(a *app) *cobra.Command {
	var (
		where      string
		sortKeys   []string
		skip       int64
		limit      int64
		schemaPath string
	)
	cmd := &cobra.Command{
		Use:   "find <collection>",
		Short: "Print matching records as JSON lines",
		Long: `Find prints the records of a collection that match --where, one JSON
object per line. With --schema the records are hydrated as the type stored in
the collection and their references are populated one level deep.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseWhere(where)
			if err != nil {
				return err
			}
			opts := odm.LoadOptions{Sort: parseSort(sortKeys), Skip: skip, Limit: limit, Populate: true}

			var dt *odm.DocumentType
			if schemaPath != "" {
				if _, err := loadSchema(schemaPath); err != nil {
					return err
				}
				var ok bool
				if dt, ok = odm.LookupCollection(args[0]); !ok {
					return fmt.Errorf("schema declares no type stored in %s", args[0])
				}
			}

			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if dt == nil {
				records, err := store.Adapter().LoadMany(ctx, args[0], f, odm.FindOptions{Sort: opts.Sort, Skip: skip, Limit: limit})
				if err != nil {
					return err
				}
				return writeRecords(cmd.OutOrStdout(), records)
			}

			docs, err := store.LoadMany(ctx, dt, f, opts)
			if err != nil {
				return err
			}
			records := make([]map[string]any, 0, len(docs))
			for _, d := range docs {
				records = append(records, populatedData(d))
			}
			return writeRecords(cmd.OutOrStdout(), records)
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", `Filter as JSON, e.g. '{"age": {"$gte": 18}}'`)
	cmd.Flags().StringSliceVarP(&sortKeys, "sort", "s", nil, "Sort fields, prefix with - for descending")
	cmd.Flags().Int64Var(&skip, "skip", 0, "Records to skip")
	cmd.Flags().Int64VarP(&limit, "limit", "n", 0, "Maximum records (0 for all)")
	cmd.Flags().StringVar(&schemaPath, "schema", "", "Schema file describing the collection")
	return cmd
}

func newCountCmd(a *app) *cobra.Command {
	var where string
	cmd := &cobra.Command{
		Use:   "count <collection>",
		Short: "Count matching records",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			f, err := parseWhere(where)
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			n, err := store.Adapter().Count(ctx, args[0], f)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), n)
			return nil
		},
	}
	cmd.Flags().StringVarP(&where, "where", "w", "", "Filter as JSON")
	return cmd
}

func newIndexCmd(a *app) *cobra.Command {
	return &cobra.Command{
		Use:   "index <schema>",
		Short: "Create the unique indexes declared by a schema",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			types, err := loadSchema(args[0])
			if err != nil {
				return err
			}
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			documents := lo.Filter(lo.Values(types), func(dt *odm.DocumentType, _ int) bool {
				return !dt.IsEmbedded()
			})
			for _, dt := range documents {
				if err := store.EnsureIndexes(ctx, dt); err != nil {
					return err
				}
			}
			fmt.Fprintf(cmd.OutOrStdout(), "indexed %d collections\n", len(documents))
			return nil
		},
	}
}

func newDropCmd(a *app) *cobra.Command {
	var yes bool
	cmd := &cobra.Command{
		Use:   "drop",
		Short: "Remove every collection of the database",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if !yes {
				return errors.New("drop removes all data; pass --yes to confirm")
			}
			ctx := cmd.Context()
			store, err := a.open(ctx)
			if err != nil {
				return err
			}
			defer store.Close(ctx)

			if err := store.DropDatabase(ctx); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "dropped")
			return nil
		},
	}
	cmd.Flags().BoolVar(&yes, "yes", false, "Confirm dropping the database")
	return cmd
}

func parseWhere(s string) (filter.Filter, error) {
	if strings.TrimSpace(s) == "" {
		return filter.Filter{}, nil
	}
	var f filter.Filter
	if err := json.Unmarshal([]byte(s), &f); err != nil {
		return nil, fmt.Errorf("invalid --where: %w", err)
	}
	return f, nil
}

func parseSort(keys []string) []filter.SortKey {
	return lo.Map(keys, func(k string, _ int) filter.SortKey {
		if field, desc := strings.CutPrefix(k, "-"); desc {
			return filter.Desc(field)
		}
		return filter.Asc(k)
	})
}

// populatedData renders d with populated references expanded in place.
func populatedData(d *odm.Document) map[string]any {
	out := make(map[string]any)
	for name, v := range d.Values() {
		out[name] = expand(v)
	}
	return out
}

func expand(v any) any {
	switch tv := v.(type) {
	case *odm.Document:
		return populatedData(tv)
	case []any:
		return lo.Map(tv, func(e any, _ int) any { return expand(e) })
	}
	return v
}

func writeRecords(w io.Writer, records []map[string]any) error {
	enc := json.NewEncoder(w)
	for _, r := range records {
		if err := enc.Encode(r); err != nil {
			return err
		}
	}
	return nil
}
