package queue

import (
	"encoding/json"
	"testing"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/pinggolf/pbi-tmdl-builder/internal/orchestrator"
	"github.com/stretchr/testify/require"
)

func TestSubjectHelpers_InterpolateJobID(t *testing.T) {
	require.Equal(t, "pbi.build.progress.job-1", GetBuildProgressSubject("job-1"))
	require.Equal(t, "pbi.build.complete.job-1", GetBuildCompleteSubject("job-1"))
	require.Equal(t, "pbi.build.error.job-1", GetBuildErrorSubject("job-1"))
}

func TestBuildJobMessage_RoundTripsThroughJSON(t *testing.T) {
	job := BuildJobMessage{
		JobID: "job-1",
		Mode:  orchestrator.ModeApply,
		Request: model.BuildRequest{
			ProjectName:  "Contoso",
			OutputFolder: "/tmp/out",
			Tables:       []model.TableSpec{{LogicalName: "account", PrimaryIDAttribute: "accountid"}},
		},
		CreateBackup: true,
	}

	data, err := json.Marshal(job)
	require.NoError(t, err)

	var decoded BuildJobMessage
	require.NoError(t, json.Unmarshal(data, &decoded))
	require.Equal(t, job.JobID, decoded.JobID)
	require.Equal(t, job.Mode, decoded.Mode)
	require.Equal(t, job.CreateBackup, decoded.CreateBackup)
	require.Equal(t, job.Request.ProjectName, decoded.Request.ProjectName)
	require.Len(t, decoded.Request.Tables, 1)
}
