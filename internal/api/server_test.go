package api

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"testing"

	"github.com/pinggolf/pbi-tmdl-builder/internal/buildlock"
	"github.com/pinggolf/pbi-tmdl-builder/internal/config"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/stretchr/testify/require"
)

func writeMinimalTemplate(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	smDir := filepath.Join(root, "Template.SemanticModel")
	defDir := filepath.Join(smDir, "definition")
	require.NoError(t, os.MkdirAll(defDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "Template.pbip"), []byte(`{"name":"Template"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(smDir, ".platform"), []byte(`{"metadata":{"type":"SemanticModel","displayName":"Template"},"config":{"version":"2.0","logicalId":"00000000-0000-0000-0000-000000000000"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(smDir, "definition.pbism"), []byte(`{"version":"4.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "expressions.tmdl"), []byte("expression DataverseURL = \"https://template.crm.dynamics.com\"\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "model.tmdl"), []byte("model Model\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "DateTable.tmdl"), []byte("table Date\n\tdataCategory: Time\n"), 0o644))

	return root
}

func testServer(t *testing.T) *Server {
	t.Helper()
	cfg := &config.Config{
		CORSAllowedOrigins: "*",
		BuildApplyRateLimit: 100,
		BuildApplyBurst:     100,
	}
	return NewServer(cfg, buildlock.NewRegistry(), NewRateLimiterService(cfg.BuildApplyRateLimit, cfg.BuildApplyBurst))
}

func TestHandleHealth_ReturnsOK(t *testing.T) {
	s := testServer(t)
	req := httptest.NewRequest(http.MethodGet, "/api/health", nil)
	rec := httptest.NewRecorder()

	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
}

func TestHandleApply_WritesProjectAndReportsChanges(t *testing.T) {
	s := testServer(t)
	templateFolder := writeMinimalTemplate(t)
	outputFolder := t.TempDir()

	body := applyRequest{
		Request: model.BuildRequest{
			ProjectName:    "Contoso",
			OutputFolder:   outputFolder,
			TemplateFolder: templateFolder,
			DataverseURL:   "https://contoso.crm.dynamics.com",
			ConnectionMode: model.ConnectionTds,
			Tables: []model.TableSpec{
				{LogicalName: "account", DisplayName: "Account", PrimaryIDAttribute: "accountid", Role: model.RoleDimension},
			},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/builds/apply", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)

	var resp buildResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	require.True(t, resp.Applied)
	require.False(t, resp.ChangeSet.Clean)

	require.FileExists(t, filepath.Join(outputFolder, "PBIP", "Contoso.pbip"))
}

func TestHandleApply_InvariantViolationReturnsBadRequest(t *testing.T) {
	s := testServer(t)
	body := applyRequest{
		Request: model.BuildRequest{
			ProjectName:  "Contoso",
			OutputFolder: t.TempDir(),
			Tables: []model.TableSpec{
				{LogicalName: "account"}, // no primary_id_attribute
			},
		},
	}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/builds/apply", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestHandleApply_RateLimitedReturnsTooManyRequests(t *testing.T) {
	cfg := &config.Config{CORSAllowedOrigins: "*", BuildApplyRateLimit: 1, BuildApplyBurst: 1}
	s := NewServer(cfg, buildlock.NewRegistry(), NewRateLimiterService(0, 0))

	body := applyRequest{Request: model.BuildRequest{ProjectName: "Contoso", OutputFolder: t.TempDir()}}
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/builds/apply", bytes.NewReader(data))
	rec := httptest.NewRecorder()
	s.Router().ServeHTTP(rec, req)

	require.Equal(t, http.StatusTooManyRequests, rec.Code)
}
