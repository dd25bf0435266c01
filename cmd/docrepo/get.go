package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/goccy/go-json"
	"github.com/spf13/cobra"

	"github.com/jacentio/docrepo/store"
)

var getCmd = &cobra.Command{
	Use:   "get [id]",
	Short: "Print a member as JSON",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		client, err := openClient(ctx)
		if err != nil {
			return err
		}
		defer client.Close(context.WithoutCancel(ctx))

		members := newMembers(client, nil)
		defer members.Close()

		m, err := members.GetByID(ctx, args[0])
		if errors.Is(err, store.ErrNotFound) {
			return fmt.Errorf("member %s not found", args[0])
		}
		if err != nil {
			return err
		}
		return printJSON(m)
	},
}

func printJSON(v any) error {
	encoder := json.NewEncoder(os.Stdout)
	encoder.SetIndent("", "  ")
	return encoder.Encode(v)
}

func init() {
	rootCmd.AddCommand(getCmd)
}
