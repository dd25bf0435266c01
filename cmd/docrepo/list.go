package main

import (
	"context"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/docrepo/store"
)

var (
	whereExprs []string
	sortField  string
	descending bool
	pageSize   int
	pageIndex  int
)

// parseWhere turns field=value expressions into equality conditions. Values
// that parse as integers or booleans are compared as such.
func parseWhere(exprs []string) (store.Filter, error) {
	var conds []store.Condition
	for _, expr := range exprs {
		field, raw, ok := strings.Cut(expr, "=")
		if !ok || field == "" {
			return store.Filter{}, fmt.Errorf("invalid --where %q (want field=value)", expr)
		}
		var value any = raw
		if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
			value = n
		} else if b, err := strconv.ParseBool(raw); err == nil {
			value = b
		}
		conds = append(conds, store.Eq(field, value))
	}
	return store.Where(conds...), nil
}

var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List members one page at a time",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseWhere(whereExprs)
		if err != nil {
			return err
		}
		q := store.Query{Filter: filter}
		if sortField != "" {
			s := store.Asc(sortField)
			if descending {
				s = store.Desc(sortField)
			}
			q.Sort = []store.Sort{s}
		}

		ctx := cmd.Context()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))

		members := newMembers(client, nil)
		defer members.Close()

		page, err := members.GetPage(ctx, q, pageSize, pageIndex)
		if err != nil {
			return err
		}
		for _, m := range page.Items {
			fmt.Printf("%s  %-12s  %-20s  status=%d\n", m.ID, m.UserName, m.Title, m.Status)
		}
		fmt.Printf("page %d of %d (%d members)\n", pageIndex+1, page.Pages(), page.Total)
		return nil
	},
}

var countCmd = &cobra.Command{
	Use:   "count",
	Short: "Count members matching --where conditions",
	RunE: func(cmd *cobra.Command, args []string) error {
		filter, err := parseWhere(whereExprs)
		if err != nil {
			return err
		}

		ctx := cmd.Context()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))

		members := newMembers(client, nil)
		defer members.Close()

		n, err := members.Count(ctx, filter)
		if err != nil {
			return err
		}
		fmt.Println(n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(listCmd, countCmd)
	for _, c := range []*cobra.Command{listCmd, countCmd} {
		c.Flags().StringArrayVarP(&whereExprs, "where", "w", nil, "Equality condition field=value (repeatable)")
	}
	listCmd.Flags().StringVarP(&sortField, "sort", "s", "", "Sort field")
	listCmd.Flags().BoolVar(&descending, "desc", false, "Sort descending")
	listCmd.Flags().IntVar(&pageSize, "page-size", 20, "Members per page")
	listCmd.Flags().IntVarP(&pageIndex, "page", "p", 0, "Zero-based page index")
}
