package main

import (
	"fmt"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var infoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show server version, engine and languages",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		info, err := newClient().Info(ctx)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), info)
	},
}

var predictCmd = &cobra.Command{
	Use:   "predict <model-id> <sentence...>",
	Short: "Predict topics, intents and slots for a sentence",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		prediction, err := newClient().Predict(ctx, args[0], password, strings.Join(args[1:], " "))
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), prediction)
	},
}

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List the models reachable with --password",
	Long: `List and manage persisted models.

Subcommands:
  delete - Delete a model`,
	Args: cobra.NoArgs,
	RunE: runModelsList,
}

var modelsDeleteCmd = &cobra.Command{
	Use:   "delete <model-id>",
	Short: "Delete a persisted model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().DeleteModel(ctx, args[0], password); err != nil {
			return err
		}
		fmt.Fprintf(cmd.OutOrStdout(), "Deleted %s\n", args[0])
		return nil
	},
}

func init() {
	modelsCmd.AddCommand(modelsDeleteCmd)
}

func runModelsList(cmd *cobra.Command, args []string) error {
	ctx, cancel := requestContext(cmd)
	defer cancel()
	models, err := newClient().ListModels(ctx, password)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	if len(models) == 0 {
		fmt.Fprintln(out, "No models found.")
		return nil
	}

	tw := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "MODEL ID\tLANGUAGE\tENGINE\tCREATED")
	for _, m := range models {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", m.ModelID, m.Language, m.EngineVersion, m.CreatedAt.Format(time.RFC3339))
	}
	return tw.Flush()
}
