package queue

import (
	"context"
	"encoding/json"
	"fmt"
	"log"

	"github.com/nats-io/nats.go"
	"github.com/pinggolf/pbi-tmdl-builder/internal/buildlock"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/orchestrator"
)

// BuildJobMessage is published to SubjectBuildRequest to ask a worker
// to run a build out of band from an HTTP request.
type BuildJobMessage struct {
	JobID        string              `json:"job_id"`
	Request      model.BuildRequest  `json:"request"`
	Mode         orchestrator.Mode   `json:"mode"`
	CreateBackup bool                `json:"create_backup"`
}

// BuildProgressMessage mirrors one progress.Sink callback, published
// on GetBuildProgressSubject(jobID) as the build runs.
type BuildProgressMessage struct {
	JobID  string `json:"job_id"`
	Stage  string `json:"stage"`
	Detail string `json:"detail"`
}

// BuildCompleteMessage is published once on a successful run,
// summarising the orchestrator.Result.
type BuildCompleteMessage struct {
	JobID             string `json:"job_id"`
	Applied           bool   `json:"applied"`
	BackupPath        string `json:"backup_path,omitempty"`
	BackupWarning     string `json:"backup_warning,omitempty"`
	ColumnChangeCount int    `json:"column_change_count"`
	IsClean           bool   `json:"is_clean"`
}

// BuildErrorMessage is published when a build returns an error.
type BuildErrorMessage struct {
	JobID string `json:"job_id"`
	Error string `json:"error"`
}

// Worker pulls BuildJobMessages off SubjectBuildRequest and runs them
// through orchestrator.Build, serialising concurrent jobs that target
// the same output folder via locks. The subscribe-unmarshal-run-reply
// shape follows the teacher's BulkOperationWorker, collapsed to a
// single job stage since a TMDL build has no batch fan-out of its own.
type Worker struct {
	nats  *Manager
	locks *buildlock.Registry
}

// NewWorker returns a Worker publishing progress/completion/error
// messages through mgr, serialising concurrent builds via locks.
func NewWorker(mgr *Manager, locks *buildlock.Registry) *Worker {
	return &Worker{nats: mgr, locks: locks}
}

// Start subscribes to SubjectBuildRequest under QueueGroupBuild so
// exactly one running Worker instance handles each job.
func (w *Worker) Start(ctx context.Context) error {
	log.Println("Starting PBI build worker...")

	if _, err := w.nats.QueueSubscribe(SubjectBuildRequest, QueueGroupBuild, func(msg *nats.Msg) {
		w.handleBuildJob(ctx, msg)
	}); err != nil {
		return fmt.Errorf("failed to subscribe to %s: %w", SubjectBuildRequest, err)
	}

	log.Println("PBI build worker started successfully")
	return nil
}

func (w *Worker) handleBuildJob(ctx context.Context, msg *nats.Msg) {
	var job BuildJobMessage
	if err := json.Unmarshal(msg.Data, &job); err != nil {
		log.Printf("Failed to unmarshal build job message: %v", err)
		return
	}

	log.Printf("Worker picked up build job %s (mode: %s, output: %s)", job.JobID, job.Mode, job.Request.OutputFolder)

	err := w.locks.WithLock(job.Request.OutputFolder, func() error {
		sink := func(stage, detail string) {
			w.publishProgress(job.JobID, stage, detail)
		}
		result, err := orchestrator.Build(ctx, job.Request, job.Mode, orchestrator.ApplyOptions{CreateBackup: job.CreateBackup}, sink)
		if err != nil {
			return err
		}
		w.publishComplete(job.JobID, result)
		return nil
	})
	if err != nil {
		log.Printf("Build job %s failed: %v", job.JobID, err)
		w.publishError(job.JobID, err)
	}
}

func (w *Worker) publishProgress(jobID, stage, detail string) {
	data, err := json.Marshal(BuildProgressMessage{JobID: jobID, Stage: stage, Detail: detail})
	if err != nil {
		return
	}
	if err := w.nats.Publish(GetBuildProgressSubject(jobID), data); err != nil {
		log.Printf("Failed to publish progress for job %s: %v", jobID, err)
	}
}

func (w *Worker) publishComplete(jobID string, result orchestrator.Result) {
	data, err := json.Marshal(BuildCompleteMessage{
		JobID:             jobID,
		Applied:           result.Applied,
		BackupPath:        result.BackupPath,
		BackupWarning:     result.BackupWarning,
		ColumnChangeCount: len(result.ChangeSet.ColumnChanges),
		IsClean:           result.ChangeSet.IsClean(),
	})
	if err != nil {
		return
	}
	if err := w.nats.Publish(GetBuildCompleteSubject(jobID), data); err != nil {
		log.Printf("Failed to publish completion for job %s: %v", jobID, err)
	}
}

func (w *Worker) publishError(jobID string, buildErr error) {
	data, err := json.Marshal(BuildErrorMessage{JobID: jobID, Error: buildErr.Error()})
	if err != nil {
		return
	}
	if err := w.nats.Publish(GetBuildErrorSubject(jobID), data); err != nil {
		log.Printf("Failed to publish error for job %s: %v", jobID, err)
	}
}
