package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"sync"

	"github.com/spf13/cobra"

	"github.com/ashureev/botkit/internal/client"
	"github.com/ashureev/botkit/internal/domain"
	"github.com/ashureev/botkit/internal/widget"
)

var watchTraining bool

var trainCmd = &cobra.Command{
	Use:   "train <dataset.yaml>",
	Short: "Train a model from a YAML dataset",
	Long: `Train a model from a YAML dataset and print its model id.

With --watch, follow the training until it finishes. Ctrl-C cancels it.`,
	Args: cobra.ExactArgs(1),
	RunE: runTrain,
}

var statusCmd = &cobra.Command{
	Use:   "status <model-id>",
	Short: "Show the training status of a model",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		session, err := newClient().TrainingSession(ctx, args[0], password)
		if err != nil {
			return err
		}
		return printJSON(cmd.OutOrStdout(), session)
	},
}

var cancelCmd = &cobra.Command{
	Use:   "cancel <model-id>",
	Short: "Cancel a running training",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		if err := newClient().CancelTraining(ctx, args[0], password); err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), "Cancellation requested.")
		return nil
	},
}

func init() {
	trainCmd.Flags().BoolVarP(&watchTraining, "watch", "w", false, "follow the training until it finishes")
}

func runTrain(cmd *cobra.Command, args []string) error {
	input, err := loadDataset(args[0], password)
	if err != nil {
		return err
	}

	if !watchTraining {
		ctx, cancel := requestContext(cmd)
		defer cancel()
		modelID, err := newClient().Train(ctx, input)
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), modelID)
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
	defer stop()
	return watch(ctx, cmd.OutOrStdout(), widget.FromClient(newClient()), input)
}

// watch trains input through a TrainingControl and prints progress until a terminal status.
// Cancelling ctx requests cancellation and keeps waiting for the confirmation.
func watch(ctx context.Context, w io.Writer, backend widget.Backend, input *domain.TrainInput) error {
	out := &lockedWriter{w: w}
	finished := make(chan domain.TrainSession, 1)
	control := widget.NewTrainingControl(backend, input, widget.WithOnChange(func(s widget.State) {
		if s.Session == nil {
			return
		}
		fmt.Fprintf(out, "\r%-10s %s %3.0f%%", s.Mode, progressBar(s.Session.Progress, 20), s.Session.Progress*100)
		if s.Session.Status.IsTerminal() && s.Mode == widget.ModeTrainable {
			select {
			case finished <- *s.Session:
			default:
			}
		}
	}))

	if err := control.Mount(context.WithoutCancel(ctx)); err != nil {
		return err
	}
	defer control.Close()

	if err := control.Train(ctx); err != nil {
		return err
	}
	fmt.Fprintf(out, "Training %s\n", control.ModelID())

	done := ctx.Done()
	for {
		select {
		case session := <-finished:
			fmt.Fprintln(out)
			switch session.Status {
			case domain.TrainStatusDone:
				fmt.Fprintf(out, "Model %s is ready.\n", session.ModelID)
				return nil
			case domain.TrainStatusCanceled:
				return fmt.Errorf("training %s canceled", session.ModelID)
			default:
				return fmt.Errorf("training %s failed: %s", session.ModelID, session.Error)
			}
		case <-done:
			done = nil
			fmt.Fprintln(out, "\nCancelling...")
			err := control.CancelTraining(context.WithoutCancel(ctx))
			if err != nil && !errors.Is(err, widget.ErrNotTraining) && !client.IsNotFound(err) {
				return err
			}
		}
	}
}

// lockedWriter serializes writes from the event loop and the caller.
type lockedWriter struct {
	mu sync.Mutex
	w  io.Writer
}

func (l *lockedWriter) Write(p []byte) (int, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.w.Write(p)
}

func progressBar(progress float64, width int) string {
	filled := int(progress * float64(width))
	if filled > width {
		filled = width
	}
	return "[" + strings.Repeat("#", filled) + strings.Repeat(".", width-filled) + "]"
}
