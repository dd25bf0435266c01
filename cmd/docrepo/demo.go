package main

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/spf13/cobra"

	"github.com/jacentio/docrepo/store"
)

var demoCount int

var demoCmd = &cobra.Command{
	Use:   "demo",
	Short: "Create, update and query sample members",
	Long: `Creates sample members, saves them, changes one and saves again to show
that only changed documents are written.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))

		members := newMembers(client, nil)
		defer members.Close()
		if members.ReadOnly() {
			slog.Warn("read-only mode: nothing will be written")
		}

		var created []*Member
		for i := range demoCount {
			m := members.CreateNew()
			m.Title = fmt.Sprintf("Member %d", i+1)
			m.UserName = fmt.Sprintf("member%d", i+1)
			m.Email = fmt.Sprintf("member%d@example.com", i+1)
			created = append(created, m)
		}
		if err := members.Save(ctx); err != nil {
			return fmt.Errorf("save: %w", err)
		}
		fmt.Printf("created %d members in %s.%s\n", len(created), members.DatabaseName(), members.CollectionName())

		if len(created) > 0 {
			first := created[0]
			first.Status = statusInactive
			fmt.Printf("changed %s: pending changes=%t\n", first.ID, members.HasChanges(first))
			if err := members.Save(ctx); err != nil {
				return fmt.Errorf("save: %w", err)
			}
		}

		active, err := members.Count(ctx, store.Where(store.Eq("status", statusAvailable)))
		if err != nil {
			return err
		}
		page, err := members.GetPage(ctx, store.Query{Sort: []store.Sort{store.Asc("user_name")}}, 5, 0)
		if err != nil {
			return err
		}
		fmt.Printf("available: %d, total: %d, pages of 5: %d\n", active, page.Total, page.Pages())
		for _, m := range page.Items {
			fmt.Printf("  %s  %-10s  %s  status=%d\n", m.ID, m.UserName, m.Title, m.Status)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(demoCmd)
	demoCmd.Flags().IntVarP(&demoCount, "count", "n", 3, "Number of members to create")
}
