package commissions

import (
	"fmt"
	"time"
)

// Pipeline commands.
const (
	CommandPipelineRun = "PipelineRun"
	CommandImport      = "Import"
	CommandXMLImport   = "XMLImport"
	CommandCancel      = "Cancel"
)

// RunMode selects which positions a calculation stage processes.
type RunMode string

const (
	RunModeFull        RunMode = "full"
	RunModeIncremental RunMode = "incremental"
	RunModePositions   RunMode = "positions"
)

// ImportRunMode selects which staged records an import processes.
type ImportRunMode string

const (
	ImportRunModeAll ImportRunMode = "all"
	ImportRunModeNew ImportRunMode = "new"
)

// StageType names a pipeline stage.
type StageType string

// Calculation stages.
const (
	StageClassify             StageType = "Classify"
	StageAllocate             StageType = "Allocate"
	StageReward               StageType = "Reward"
	StagePay                  StageType = "Pay"
	StageSummarize            StageType = "Summarize"
	StageCompensate           StageType = "Compensate"
	StageCompensateAndPay     StageType = "CompensateAndPay"
	StagePost                 StageType = "Post"
	StageFinalize             StageType = "Finalize"
	StageResetFromClassify    StageType = "ResetFromClassify"
	StageResetFromAllocate    StageType = "ResetFromAllocate"
	StageResetFromReward      StageType = "ResetFromReward"
	StageResetFromPay         StageType = "ResetFromPay"
	StageUndoPost             StageType = "UndoPost"
	StageUndoFinalize         StageType = "UndoFinalize"
	StageCleanupDeferredData  StageType = "CleanupDefferedResults"
	StageUpdateAnalytics      StageType = "UpdateAnalytics"
	StageReportsGeneration    StageType = "ReportsGeneration"
	StagePurge                StageType = "Purge"
	StageValidate             StageType = "Validate"
	StageTransfer             StageType = "Transfer"
	StageValidateAndTransfer  StageType = "ValidateAndTransfer"
	StageTransferIfAllValid   StageType = "TransferIfAllValid"
	StageResetFromValidate    StageType = "ResetFromValidate"
	StageValidateAndTransferN StageType = "ValidateAndTransferIfAllValid"
)

var importStages = map[StageType]bool{
	StageValidate:             true,
	StageTransfer:             true,
	StageValidateAndTransfer:  true,
	StageTransferIfAllValid:   true,
	StageResetFromValidate:    true,
	StageValidateAndTransferN: true,
}

// Run lifecycle states.
const (
	StateScheduled = "Scheduled"
	StatePending   = "Pending"
	StateRunning   = "Running"
	StateDone      = "Done"
)

// Terminal run statuses.
const (
	StatusSuccessful = "Successful"
	StatusFailed     = "Failed"
	StatusCanceled   = "Canceled"
)

// Job is a write-only pipeline request.
type Job interface {
	// Command returns the pipeline command the job submits.
	Command() string
	// Validate checks the job parameters without touching the network.
	Validate() error
	// Payload returns the wire object submitted for the job.
	Payload() map[string]any
}

// StageJob runs one calculation stage for a period.
type StageJob struct {
	Stage          StageType
	Calendar       string
	Period         string
	RunMode        RunMode
	PositionGroups []string
	PositionSeqs   []string
	ProcessingUnit string
	RunStats       bool
	Description    string
}

// Command implements Job.
func (j *StageJob) Command() string {
	return CommandPipelineRun
}

// Validate implements Job. The positions run mode takes exactly one of
// PositionGroups and PositionSeqs; the other modes take neither.
func (j *StageJob) Validate() error {
	op := "validate " + string(j.Stage) + " job"

	if j.Stage == "" {
		return NewValidationError(op, "stage_type", ErrMissingJobParameter)
	}

	if j.Calendar == "" {
		return NewValidationError(op, "calendar", ErrMissingJobParameter)
	}

	if j.Period == "" {
		return NewValidationError(op, "period", ErrMissingJobParameter)
	}

	return validateRunMode(op, j.RunMode, j.PositionGroups, j.PositionSeqs)
}

func validateRunMode(op string, mode RunMode, groups, seqs []string) error {
	hasGroups := len(groups) > 0
	hasSeqs := len(seqs) > 0

	switch mode {
	case RunModePositions:
		if hasGroups == hasSeqs {
			return NewValidationError(op, "run_mode",
				fmt.Errorf("%w: %s requires exactly one of position groups or positions", ErrInvalidRunMode, mode))
		}
	case RunModeFull, RunModeIncremental, "":
		if hasGroups || hasSeqs {
			return NewValidationError(op, "run_mode",
				fmt.Errorf("%w: %s does not accept position selectors", ErrInvalidRunMode, runModeOrDefault(mode)))
		}
	default:
		return NewValidationError(op, "run_mode", fmt.Errorf("%w: unknown mode %q", ErrInvalidRunMode, mode))
	}

	return nil
}

func runModeOrDefault(mode RunMode) RunMode {
	if mode == "" {
		return RunModeFull
	}

	return mode
}

// Payload implements Job.
func (j *StageJob) Payload() map[string]any {
	payload := map[string]any{
		"command":     j.Command(),
		"stageType":   string(j.Stage),
		"calendarSeq": j.Calendar,
		"periodSeq":   j.Period,
		"runMode":     string(runModeOrDefault(j.RunMode)),
		"runStats":    j.RunStats,
	}

	if len(j.PositionGroups) > 0 {
		payload["positionGroups"] = j.PositionGroups
	}

	if len(j.PositionSeqs) > 0 {
		payload["positionSeqs"] = j.PositionSeqs
	}

	if j.ProcessingUnit != "" {
		payload["processingUnitSeq"] = j.ProcessingUnit
	}

	if j.Description != "" {
		payload["description"] = j.Description
	}

	return payload
}

// ImportJob validates and transfers a staged batch.
type ImportJob struct {
	Stage          StageType
	Calendar       string
	BatchName      string
	RunMode        ImportRunMode
	ProcessingUnit string
	// XML selects the XML import command.
	XML        bool
	Revalidate bool
}

// Command implements Job.
func (j *ImportJob) Command() string {
	if j.XML {
		return CommandXMLImport
	}

	return CommandImport
}

// Validate implements Job.
func (j *ImportJob) Validate() error {
	op := "validate import job"

	if !importStages[j.Stage] {
		return NewValidationError(op, "stage_type",
			fmt.Errorf("%w: %q is not an import stage", ErrMissingJobParameter, j.Stage))
	}

	if j.Calendar == "" {
		return NewValidationError(op, "calendar", ErrMissingJobParameter)
	}

	if j.BatchName == "" {
		return NewValidationError(op, "batch_name", ErrMissingJobParameter)
	}

	switch j.RunMode {
	case "", ImportRunModeAll, ImportRunModeNew:
	default:
		return NewValidationError(op, "run_mode", fmt.Errorf("%w: unknown mode %q", ErrInvalidRunMode, j.RunMode))
	}

	return nil
}

// Payload implements Job.
func (j *ImportJob) Payload() map[string]any {
	runMode := j.RunMode
	if runMode == "" {
		runMode = ImportRunModeAll
	}

	payload := map[string]any{
		"command":     j.Command(),
		"stageType":   string(j.Stage),
		"calendarSeq": j.Calendar,
		"batchName":   j.BatchName,
		"runMode":     string(runMode),
		"revalidate":  j.Revalidate,
	}

	if j.ProcessingUnit != "" {
		payload["processingUnitSeq"] = j.ProcessingUnit
	}

	return payload
}

// PurgeJob removes an imported batch.
type PurgeJob struct {
	BatchName      string
	ProcessingUnit string
}

// Command implements Job.
func (j *PurgeJob) Command() string {
	return CommandPipelineRun
}

// Validate implements Job.
func (j *PurgeJob) Validate() error {
	if j.BatchName == "" {
		return NewValidationError("validate purge job", "batch_name", ErrMissingJobParameter)
	}

	return nil
}

// Payload implements Job.
func (j *PurgeJob) Payload() map[string]any {
	payload := map[string]any{
		"command":   j.Command(),
		"stageType": string(StagePurge),
		"batchName": j.BatchName,
	}

	if j.ProcessingUnit != "" {
		payload["processingUnitSeq"] = j.ProcessingUnit
	}

	return payload
}

// CancelJob cancels an existing run. It is sent as a DELETE of the run.
type CancelJob struct {
	Run string
}

// Command implements Job.
func (j *CancelJob) Command() string {
	return CommandCancel
}

// Validate implements Job.
func (j *CancelJob) Validate() error {
	if j.Run == "" {
		return NewValidationError("validate cancel job", "pipeline_run_seq", ErrIdentifierRequired)
	}

	return nil
}

// Payload implements Job. Cancellation carries no body.
func (j *CancelJob) Payload() map[string]any {
	return nil
}

// Run is a server-owned pipeline run resource.
type Run struct {
	*Resource
}

// NewRun wraps a decoded pipeline resource.
func NewRun(resource *Resource) *Run {
	return &Run{Resource: resource}
}

// State returns the lifecycle state.
func (r *Run) State() string {
	return r.String("state")
}

// Status returns the outcome status. It is only meaningful once Done.
func (r *Run) Status() string {
	return r.String("status")
}

// Done reports whether the run reached its terminal state. Done is not
// success; inspect Status or Succeeded.
func (r *Run) Done() bool {
	return r.State() == StateDone
}

// Succeeded reports whether the run finished successfully.
func (r *Run) Succeeded() bool {
	return r.Done() && r.Status() == StatusSuccessful
}

// Command returns the pipeline command.
func (r *Run) Command() string {
	return r.String("command")
}

// StageType returns the executed stage.
func (r *Run) StageType() string {
	return r.String("stage_type")
}

// Reason returns the failure reason, if any.
func (r *Run) Reason() string {
	return r.String("reason")
}

// StartTime returns when execution began.
func (r *Run) StartTime() (time.Time, bool) {
	return r.Time("start_time")
}

// StopTime returns when execution ended.
func (r *Run) StopTime() (time.Time, bool) {
	return r.Time("stop_time")
}
