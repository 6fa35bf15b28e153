package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/url"
	"strings"

	"moalmanac-api/internal/aggregate"
	"moalmanac-api/internal/planner"
	"moalmanac-api/internal/resolver"
	"moalmanac-api/internal/schema"
	"moalmanac-api/internal/serialize"

	"github.com/spf13/cobra"
)

func newQueryCommand(rt *runtime) *cobra.Command {
	var (
		filterArgs []string
		id         int64
		primary    bool
		summary    bool
	)

	cmd := &cobra.Command{
		Use:   "query <entity>",
		Short: "Print records of an entity as JSON",
		Long: `Finds the records of an entity, applies the filters the HTTP API accepts
and prints the serialized documents as a JSON array.

Values of one filter key are OR'd; different keys are AND'd.

Examples:
  almanac query genes
  almanac query statements --filter gene=BRAF --filter therapy=Dabrafenib
  almanac query propositions --id 1 --summary
  almanac query therapy_groups --primary`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			entity, err := parseEntity(args[0])
			if err != nil {
				return err
			}
			if summary && entity != schema.Propositions {
				return fmt.Errorf("--summary is only supported for propositions")
			}
			filters, err := parseFilterArgs(filterArgs)
			if err != nil {
				return err
			}

			var opts planner.RootOptions
			if cmd.Flags().Changed("id") {
				opts.ID = &id
			}

			db, err := rt.openDB(cmd.Context(), false)
			if err != nil {
				return err
			}
			defer db.Close()

			ctx := resolver.NewBatchingContext(cmd.Context())
			res := newResolver(db)

			rows, err := res.Find(ctx, entity, filters, opts)
			if errors.Is(err, resolver.ErrNotFound) && opts.ID != nil {
				return fmt.Errorf("%s id %d not found", entity, id)
			}
			if err != nil {
				return err
			}
			graph, err := res.Load(ctx, entity, rows)
			if err != nil {
				return err
			}

			docs, err := render(graph, entity, rows, primary)
			if err != nil {
				return err
			}
			if summary {
				if err := attachSummaries(cmd, aggregate.New(res, 0), rows, docs, filters); err != nil {
					return err
				}
			}
			return writeJSON(cmd.OutOrStdout(), docs)
		},
	}
	cmd.Flags().StringArrayVarP(&filterArgs, "filter", "f", nil, "Filter as key=value; repeat for more values")
	cmd.Flags().Int64Var(&id, "id", 0, "Only print the record with this id")
	cmd.Flags().BoolVar(&primary, "primary", false, "Print only each record's own fields")
	cmd.Flags().BoolVar(&summary, "summary", false, "Attach statement summaries to propositions")
	return cmd
}

// parseEntity accepts entity names as tables ("therapy_groups") or as API
// paths ("therapygroups").
func parseEntity(name string) (schema.Entity, error) {
	name = strings.ToLower(strings.TrimSpace(strings.Trim(name, "/")))
	name = strings.ReplaceAll(name, "-", "_")
	if _, ok := schema.Lookup(schema.Entity(name)); ok {
		return schema.Entity(name), nil
	}
	for _, e := range schema.Entities() {
		if strings.ReplaceAll(string(e), "_", "") == name {
			return e, nil
		}
	}
	return "", fmt.Errorf("unknown entity %q", name)
}

func parseFilterArgs(args []string) (planner.Filters, error) {
	values := url.Values{}
	for _, arg := range args {
		key, value, ok := strings.Cut(arg, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid filter %q, expected key=value", arg)
		}
		values.Add(key, value)
	}
	return planner.ParseFilters(values), nil
}

func render(graph *resolver.Graph, entity schema.Entity, rows []resolver.Row, primary bool) ([]*serialize.OrderedMap, error) {
	if !primary {
		return serialize.Rows(graph, entity, rows)
	}
	s, ok := serialize.For(entity)
	if !ok {
		return nil, fmt.Errorf("no serializer for %q", entity)
	}
	docs := make([]*serialize.OrderedMap, 0, len(rows))
	for _, row := range rows {
		docs = append(docs, s.Primary(graph, row))
	}
	return docs, nil
}

func attachSummaries(cmd *cobra.Command, agg *aggregate.Aggregator, rows []resolver.Row, docs []*serialize.OrderedMap, filters planner.Filters) error {
	ids := make([]int64, 0, len(rows))
	for _, row := range rows {
		if id, ok := row.ID(); ok {
			ids = append(ids, id)
		}
	}
	summaries, err := agg.Aggregate(cmd.Context(), ids, aggregate.ParamsFromFilters(filters))
	if err != nil {
		return err
	}
	for i, row := range rows {
		id, _ := row.ID()
		s, ok := summaries[id]
		if !ok {
			s = aggregate.NewSummary()
		}
		docs[i].Set("summary", s)
	}
	return nil
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
