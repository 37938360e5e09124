package commands

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/fivetwenty-io/sapcommissions/internal/constants"
	"github.com/fivetwenty-io/sapcommissions/pkg/commissions"
	"github.com/olekukonko/tablewriter"
	"github.com/spf13/cobra"
)

// waitOptions are shared by every command that can block on a run.
type waitOptions struct {
	wait     bool
	interval time.Duration
	timeout  time.Duration
}

func (o *waitOptions) register(cmd *cobra.Command, withWait bool) {
	if withWait {
		cmd.Flags().BoolVar(&o.wait, "wait", false, "wait for the run to finish")
	}

	cmd.Flags().DurationVar(&o.interval, "interval", 0, "polling interval (default from config, 2s)")
	cmd.Flags().DurationVar(&o.timeout, "wait-timeout", 0, "give up waiting after this long (0 waits forever)")
}

// NewPipelineCommand creates the pipeline command group.
func NewPipelineCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "pipeline",
		Aliases: []string{"pipelines"},
		Short:   "Run and monitor pipelines",
		Long:    "Submit calculation, import and purge pipeline runs, and follow them to completion",
	}

	cmd.AddCommand(newPipelineRunCommand())
	cmd.AddCommand(newPipelineImportCommand())
	cmd.AddCommand(newPipelinePurgeCommand())
	cmd.AddCommand(newPipelineGetCommand())
	cmd.AddCommand(newPipelineWaitCommand())
	cmd.AddCommand(newPipelineCancelCommand())

	return cmd
}

func newPipelineRunCommand() *cobra.Command {
	var (
		job  commissions.StageJob
		mode string
		opts waitOptions
	)

	cmd := &cobra.Command{
		Use:   "run STAGE",
		Short: "Run a calculation stage",
		Long: `Run a calculation stage (Classify, Allocate, Reward, Pay, Summarize,
Compensate, CompensateAndPay, Post, Finalize, ResetFrom*, Undo*,
UpdateAnalytics, ReportsGeneration, ...) for a period.`,
		Example: `  sapcom pipeline run Classify --calendar 2001 --period 3001 --wait
  sapcom pipeline run Reward --calendar 2001 --period 3001 --run-mode positions --position-group West`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job.Stage = commissions.StageType(args[0])
			job.RunMode = commissions.RunMode(mode)

			return submitJob(cmd, &job, opts)
		},
	}

	cmd.Flags().StringVar(&job.Calendar, "calendar", "", "calendar identifier")
	cmd.Flags().StringVar(&job.Period, "period", "", "period identifier")
	cmd.Flags().StringVar(&mode, "run-mode", "", "full, incremental or positions")
	cmd.Flags().StringSliceVar(&job.PositionGroups, "position-group", nil, "position group names (positions mode)")
	cmd.Flags().StringSliceVar(&job.PositionSeqs, "position", nil, "position identifiers (positions mode)")
	cmd.Flags().StringVar(&job.ProcessingUnit, "processing-unit", "", "processing unit identifier")
	cmd.Flags().BoolVar(&job.RunStats, "run-stats", false, "collect run statistics")
	cmd.Flags().StringVar(&job.Description, "description", "", "run description")
	opts.register(cmd, true)

	return cmd
}

func newPipelineImportCommand() *cobra.Command {
	var (
		job  commissions.ImportJob
		mode string
		opts waitOptions
	)

	cmd := &cobra.Command{
		Use:   "import STAGE",
		Short: "Validate or transfer a staged batch",
		Long: `Run an import stage (Validate, Transfer, ValidateAndTransfer,
TransferIfAllValid, ValidateAndTransferIfAllValid, ResetFromValidate)
for a staged batch.`,
		Example: `  sapcom pipeline import ValidateAndTransfer --calendar 2001 --batch transactions_2024_01.txt --wait`,
		Args:    cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job.Stage = commissions.StageType(args[0])
			job.RunMode = commissions.ImportRunMode(mode)

			return submitJob(cmd, &job, opts)
		},
	}

	cmd.Flags().StringVar(&job.Calendar, "calendar", "", "calendar identifier")
	cmd.Flags().StringVar(&job.BatchName, "batch", "", "staged batch name")
	cmd.Flags().StringVar(&mode, "run-mode", "", "all or new")
	cmd.Flags().StringVar(&job.ProcessingUnit, "processing-unit", "", "processing unit identifier")
	cmd.Flags().BoolVar(&job.XML, "xml", false, "use the XML import command")
	cmd.Flags().BoolVar(&job.Revalidate, "revalidate", false, "revalidate previously rejected records")
	opts.register(cmd, true)

	return cmd
}

func newPipelinePurgeCommand() *cobra.Command {
	var (
		job  commissions.PurgeJob
		opts waitOptions
	)

	cmd := &cobra.Command{
		Use:   "purge BATCH",
		Short: "Purge an imported batch",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			job.BatchName = args[0]

			return submitJob(cmd, &job, opts)
		},
	}

	cmd.Flags().StringVar(&job.ProcessingUnit, "processing-unit", "", "processing unit identifier")
	opts.register(cmd, true)

	return cmd
}

func newPipelineGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get SEQ",
		Short: "Show a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			run, err := sess.client.Pipelines().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return renderRun(cmd.OutOrStdout(), sess.client, run)
		},
	}
}

func newPipelineWaitCommand() *cobra.Command {
	var opts waitOptions

	cmd := &cobra.Command{
		Use:   "wait SEQ",
		Short: "Wait for a pipeline run to finish",
		Long:  "Poll a pipeline run until it is done. Exits non-zero unless the run succeeded.",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			run, err := sess.client.Pipelines().Get(cmd.Context(), args[0])
			if err != nil {
				return err
			}

			return awaitRun(cmd, sess, run, opts)
		},
	}

	opts.register(cmd, false)

	return cmd
}

func newPipelineCancelCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "cancel SEQ",
		Short: "Cancel a pipeline run",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			sess, err := newSession(cmd)
			if err != nil {
				return err
			}
			defer sess.Close()

			_, err = sess.client.Pipelines().Submit(cmd.Context(), &commissions.CancelJob{Run: args[0]})
			if err != nil {
				return err
			}

			_, _ = fmt.Fprintf(cmd.OutOrStdout(), "Canceled pipeline run %s\n", args[0])

			return nil
		},
	}
}

// submitJob validates the job before connecting, submits it, and waits for
// the run when asked to.
func submitJob(cmd *cobra.Command, job commissions.Job, opts waitOptions) error {
	err := job.Validate()
	if err != nil {
		return err
	}

	sess, err := newSession(cmd)
	if err != nil {
		return err
	}
	defer sess.Close()

	run, err := sess.client.Pipelines().Submit(cmd.Context(), job)
	if err != nil {
		return err
	}

	if !opts.wait {
		return renderRun(cmd.OutOrStdout(), sess.client, run)
	}

	_, _ = fmt.Fprintf(cmd.ErrOrStderr(), "Submitted pipeline run %s, waiting...\n", run.Seq())

	return awaitRun(cmd, sess, run, opts)
}

func awaitRun(cmd *cobra.Command, sess *session, run *commissions.Run, opts waitOptions) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	if opts.timeout > 0 {
		var cancel context.CancelFunc

		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}

	run, err := sess.client.Pipelines().AwaitCompletion(ctx, run, opts.interval)
	if err != nil {
		_ = renderRun(cmd.OutOrStdout(), sess.client, run)

		return err
	}

	err = renderRun(cmd.OutOrStdout(), sess.client, run)
	if err != nil {
		return err
	}

	if !run.Succeeded() {
		return fmt.Errorf("%w: run %s is %s", constants.ErrRunNotSuccessful, run.Seq(), run.Status())
	}

	return nil
}

func renderRun(w io.Writer, client commissions.Client, run *commissions.Run) error {
	format, err := outputFormat()
	if err != nil {
		return err
	}

	if format != constants.FormatTable {
		return renderResource(w, client, run.Resource, "")
	}

	table := tablewriter.NewWriter(w)
	table.Header("Property", "Value")

	rows := [][]string{
		{"Run", run.Seq()},
		{"Command", run.Command()},
		{"Stage", run.StageType()},
		{"State", run.State()},
		{"Status", valueOrNA(run.Status())},
		{"Started", formatRunTime(run.StartTime())},
		{"Stopped", formatRunTime(run.StopTime())},
	}

	if reason := run.Reason(); reason != "" {
		rows = append(rows, []string{"Reason", reason})
	}

	for _, row := range rows {
		err := table.Append(row)
		if err != nil {
			return fmt.Errorf("failed to append row to table: %w", err)
		}
	}

	err = table.Render()
	if err != nil {
		return fmt.Errorf("failed to render table: %w", err)
	}

	return nil
}

func formatRunTime(t time.Time, ok bool) string {
	if !ok {
		return constants.NotAvailable
	}

	return t.Local().Format(constants.TimestampDisplayFormat)
}

func valueOrNA(value string) string {
	if value == "" {
		return constants.NotAvailable
	}

	return value
}
