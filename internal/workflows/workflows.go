package workflows

import (
	"time"

	"readerstudy/internal/activities"
	"readerstudy/internal/config"
	"readerstudy/internal/importer"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

const (
	QueryGetImportProgress = "GetImportProgress"

	ErrTypeDryRunUnsupported = "DryRunUnsupported"

	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// ImportWorkflow runs the import stage by stage, one activity per case batch, and writes the
// merged summary at the end. Every activity is idempotent, so retries only redo uncommitted rows.
func ImportWorkflow(ctx workflow.Context, input ImportInput) (importer.Summary, error) {
	if input.DryRun {
		return importer.Summary{}, temporal.NewNonRetryableApplicationError(
			"dry runs keep their overlay in process; use the CLI", ErrTypeDryRunUnsupported, nil)
	}
	runID := input.RunID
	if runID == "" {
		runID = workflow.GetInfo(ctx).WorkflowExecution.ID
	}
	batchSize := input.BatchSize
	if batchSize <= 0 {
		batchSize = config.DefaultCommitBatchSize
	}
	spec := activities.ImportSpec{
		RunID:     runID,
		TermsPath: input.TermsPath,
		CasesPath: input.CasesPath,
		BatchSize: batchSize,
		MaxCases:  input.MaxCases,
		TopK:      input.TopK,
	}

	progress := ImportProgress{RunID: runID, Status: StatusRunning, Stage: "init"}
	if err := workflow.SetQueryHandler(ctx, QueryGetImportProgress, func() (ImportProgress, error) {
		return progress, nil
	}); err != nil {
		return importer.Summary{}, err
	}

	ao := workflow.ActivityOptions{
		StartToCloseTimeout: 5 * time.Minute,
		HeartbeatTimeout:    time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        2 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Second,
			MaximumAttempts:        5,
			NonRetryableErrorTypes: []string{activities.ErrTypeBadSource},
		},
	}
	ctx = workflow.WithActivityOptions(ctx, ao)

	sum := importer.Summary{RunID: runID, StartedAt: workflow.Now(ctx)}
	fail := func(err error) (importer.Summary, error) {
		progress.Status = StatusFailed
		progress.FailReason = err.Error()
		return sum, err
	}
	record := func(part importer.Summary) {
		sum.Merge(part)
		progress.CaseRows = sum.CaseRows
		progress.Cases = sum.Cases
		progress.AIOutputs = sum.AIOutputs
		progress.Warnings = len(sum.Warnings)
	}

	progress.Stage = importer.StageRoles
	var rolesOut activities.StageOutput
	if err := workflow.ExecuteActivity(ctx, "SeedRolesActivity", activities.SeedRolesInput{Spec: spec}).Get(ctx, &rolesOut); err != nil {
		return fail(err)
	}
	record(rolesOut.Summary)

	progress.Stage = importer.StageTerms
	var taxOut activities.StageOutput
	if err := workflow.ExecuteActivity(ctx, "ImportTaxonomyActivity", activities.ImportTaxonomyInput{Spec: spec}).Get(ctx, &taxOut); err != nil {
		return fail(err)
	}
	record(taxOut.Summary)

	progress.Stage = importer.StageCases
	for !progress.Cursor.Done {
		var batchOut activities.ImportCaseBatchOutput
		in := activities.ImportCaseBatchInput{Spec: spec, Offset: progress.Cursor.Offset, Limit: batchSize}
		if err := workflow.ExecuteActivity(ctx, "ImportCaseBatchActivity", in).Get(ctx, &batchOut); err != nil {
			return fail(err)
		}
		record(batchOut.Summary)
		progress.Batches++
		if batchOut.Cursor.Offset == progress.Cursor.Offset && !batchOut.Cursor.Done {
			break
		}
		progress.Cursor = batchOut.Cursor
	}

	progress.Stage = "summary"
	sum.FinishedAt = workflow.Now(ctx)
	var writeOut activities.WriteImportSummaryOutput
	if err := workflow.ExecuteActivity(ctx, "WriteImportSummaryActivity", activities.WriteImportSummaryInput{
		RunID:   runID,
		Summary: sum,
	}).Get(ctx, &writeOut); err != nil {
		return fail(err)
	}
	progress.SummaryPath = writeOut.SummaryPath
	progress.Stage = "done"
	progress.Status = StatusCompleted
	return sum, nil
}
