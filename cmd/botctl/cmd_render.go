package main

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/ashureev/botkit/internal/render"
	"github.com/ashureev/botkit/internal/widget"
)

var (
	renderChannel string
	renderRemote  bool
	renderBotURL  string
)

var renderCmd = &cobra.Command{
	Use:   "render <carousel.json>",
	Short: "Render a carousel for a messaging channel",
	Long: `Render a carousel JSON file into the payload of a messaging channel.

Without --channel, pick one from a list. With --remote, the server renders it.`,
	Args: cobra.ExactArgs(1),
	RunE: runRender,
}

func init() {
	renderCmd.Flags().StringVarP(&renderChannel, "channel", "c", "", "target channel")
	renderCmd.Flags().BoolVar(&renderRemote, "remote", false, "render on the server")
	renderCmd.Flags().StringVar(&renderBotURL, "bot-url", os.Getenv("BOT_URL"), "public bot URL substituted for BOT_URL")
}

func runRender(cmd *cobra.Command, args []string) error {
	data, err := os.ReadFile(args[0])
	if err != nil {
		return fmt.Errorf("read carousel: %w", err)
	}
	var carousel render.Carousel
	if err := json.Unmarshal(data, &carousel); err != nil {
		return fmt.Errorf("parse carousel: %w", err)
	}
	if carousel.BotURL == "" {
		carousel.BotURL = renderBotURL
	}

	channel := renderChannel
	if channel == "" {
		channel, err = chooseChannel(cmd.InOrStdin(), cmd.OutOrStdout())
		if err != nil {
			return err
		}
	}

	out := cmd.OutOrStdout()
	if renderRemote {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		payload, err := newClient().Render(ctx, channel, carousel)
		if err != nil {
			return err
		}
		return printJSON(out, payload)
	}

	payload, err := render.Render(carousel, channel)
	if err != nil {
		return err
	}
	return printJSON(out, payload)
}

// chooseChannel prompts for a channel with a numbered list read from in.
func chooseChannel(in io.Reader, out io.Writer) (string, error) {
	options := make([]widget.Option[string], 0, len(render.Channels()))
	for _, ch := range render.Channels() {
		options = append(options, widget.Option[string]{Label: ch, Value: ch})
	}
	dropdown := widget.NewDropdown(options)

	for i, o := range dropdown.Options() {
		fmt.Fprintf(out, "  %d. %s\n", i+1, o.Label)
	}
	fmt.Fprint(out, "Channel: ")

	line, err := bufio.NewReader(in).ReadString('\n')
	if err != nil && line == "" {
		return "", fmt.Errorf("read channel choice: %w", err)
	}
	line = strings.TrimSpace(line)

	if n, convErr := strconv.Atoi(line); convErr == nil {
		_, err = dropdown.Select(n - 1)
	} else {
		_, err = dropdown.SelectLabel(strings.ToLower(line))
	}
	if err != nil {
		return "", fmt.Errorf("channel %q: %w", line, err)
	}

	selected, _ := dropdown.Selected()
	return selected.Value, nil
}
