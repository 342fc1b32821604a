package orchestrator

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/pinggolf/pbi-tmdl-builder/internal/differ"
	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/stretchr/testify/require"
)

// writeTemplateFixture lays down the minimum template tree §6 requires
// the core to be able to read: Template.pbip, the .platform/.pbism
// pair, expressions/model/DateTable.tmdl, and a Report subtree holding
// a single report.json.
func writeTemplateFixture(t *testing.T) string {
	t.Helper()
	root := t.TempDir()
	smDir := filepath.Join(root, "Template.SemanticModel")
	defDir := filepath.Join(smDir, "definition")
	reportDir := filepath.Join(root, "Template.Report")

	require.NoError(t, os.MkdirAll(defDir, 0o755))
	require.NoError(t, os.MkdirAll(reportDir, 0o755))

	require.NoError(t, os.WriteFile(filepath.Join(root, "Template.pbip"), []byte(`{"name":"Template"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(smDir, ".platform"), []byte(`{"metadata":{"type":"SemanticModel","displayName":"Template"},"config":{"version":"2.0","logicalId":"00000000-0000-0000-0000-000000000000"}}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(smDir, "definition.pbism"), []byte(`{"version":"4.0"}`), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "expressions.tmdl"), []byte("expression DataverseURL = \"https://template.crm.dynamics.com\" meta [IsParameterQuery=true, Type=\"Text\", IsParameterQueryRequired=true]\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "model.tmdl"), []byte("model Model\n\tculture: en-US\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(defDir, "DateTable.tmdl"), []byte("table Date\n\tdataCategory: Time\n\tpartition Date = calculated\n\t\tmode: import\n\t\tsource =\n\t\t\tVAR _startdate = DATE(2000, 1, 1)\n\t\t\tVAR _enddate = DATE(2001, 1, 1) - 1\n\t\t\tRETURN\n\t\t\t\tCALENDAR(_startdate, _enddate)\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(reportDir, "report.json"), []byte(`{"name":"Template"}`), 0o644))

	return root
}

func s1Request(outputFolder, templateFolder string) model.BuildRequest {
	return model.BuildRequest{
		ProjectName:    "Contoso",
		OutputFolder:   outputFolder,
		TemplateFolder: templateFolder,
		DataverseURL:   "https://contoso.crm.dynamics.com",
		ConnectionMode: model.ConnectionTds,
		Tables: []model.TableSpec{
			{
				LogicalName: "opportunity", DisplayName: "Opportunity", SchemaName: "Opportunity",
				PrimaryIDAttribute: "opportunityid", Role: model.RoleFact, HasStateCode: true,
				Attributes: []model.AttributeSpec{
					{LogicalName: "name", DisplayName: "Name", AttributeType: model.AttributeString},
					{LogicalName: "amount", DisplayName: "Amount", AttributeType: model.AttributeMoney},
					{LogicalName: "accountid", DisplayName: "Account", AttributeType: model.AttributeLookup, Targets: []string{"account"}},
				},
			},
			{
				LogicalName: "account", DisplayName: "Account", SchemaName: "Account",
				PrimaryIDAttribute: "accountid", Role: model.RoleDimension,
				Attributes: []model.AttributeSpec{
					{LogicalName: "name", DisplayName: "Name", AttributeType: model.AttributeString},
				},
			},
		},
		Relationships: []model.RelationshipSpec{
			{SourceTable: "opportunity", SourceAttribute: "accountid", TargetTable: "account", IsActive: true},
		},
	}
}

func TestBuild_S1_FirstBuildTwoTablesOneRelationship(t *testing.T) {
	templateFolder := writeTemplateFixture(t)
	outputFolder := t.TempDir()
	req := s1Request(outputFolder, templateFolder)

	result, err := Build(context.Background(), req, ModeApply, ApplyOptions{}, nil)
	require.NoError(t, err)
	require.True(t, result.Applied)

	oppPath := filepath.Join(outputFolder, "PBIP", "Contoso.SemanticModel", "definition", "tables", "Opportunity.tmdl")
	data, err := os.ReadFile(oppPath)
	require.NoError(t, err)
	content := string(data)

	require.Contains(t, content, "isKey")
	require.Contains(t, content, "sourceColumn: opportunityid")
	require.Contains(t, content, "column Account")
	require.Contains(t, content, "sourceColumn: accountidname")

	relData, err := os.ReadFile(filepath.Join(outputFolder, "PBIP", "Contoso.SemanticModel", "definition", "relationships.tmdl"))
	require.NoError(t, err)
	require.Contains(t, string(relData), "fromColumn: Opportunity.accountid")
	require.Contains(t, string(relData), "toColumn: Account.accountid")

	modelData, err := os.ReadFile(filepath.Join(outputFolder, "PBIP", "Contoso.SemanticModel", "definition", "model.tmdl"))
	require.NoError(t, err)
	require.Contains(t, string(modelData), `annotation PBI_QueryOrder = ["DataverseURL", "Opportunity", "Account"]`)

	require.FileExists(t, filepath.Join(outputFolder, "PBIP", "Contoso.pbip"))
	require.FileExists(t, filepath.Join(outputFolder, "PBIP", "Contoso.SemanticModel", ".platform"))
}

func TestBuild_S2_IncrementalUpdatePreservesUserMeasure(t *testing.T) {
	templateFolder := writeTemplateFixture(t)
	outputFolder := t.TempDir()
	req := s1Request(outputFolder, templateFolder)

	_, err := Build(context.Background(), req, ModeApply, ApplyOptions{}, nil)
	require.NoError(t, err)

	oppPath := filepath.Join(outputFolder, "PBIP", "Contoso.SemanticModel", "definition", "tables", "Opportunity.tmdl")
	data, err := os.ReadFile(oppPath)
	require.NoError(t, err)

	measure := "\nmeasure 'Total Pipeline' = SUM('Opportunity'[amount])\n\tformatString: 0\n\n"
	withMeasure := insertBeforePartition(string(data), measure)
	require.NoError(t, os.WriteFile(oppPath, []byte(withMeasure), 0o644))

	req.Tables[0].Attributes = append(req.Tables[0].Attributes, model.AttributeSpec{
		LogicalName: "estimatedclosedate", DisplayName: "Estimated Close Date", AttributeType: model.AttributeDateTime,
	})

	result, err := Build(context.Background(), req, ModeAnalyze, ApplyOptions{}, nil)
	require.NoError(t, err)
	require.False(t, result.Applied)

	var sawNewColumn, sawPreservedMeasure bool
	for _, c := range result.ChangeSet.ColumnChanges {
		if c.Kind == differ.KindNew && c.Table == "Opportunity" {
			sawNewColumn = true
		}
		if c.Kind == differ.KindPreserve && c.Table == "Opportunity" {
			sawPreservedMeasure = true
		}
	}
	require.True(t, sawNewColumn, "expected a New column change for Estimated Close Date")
	require.True(t, sawPreservedMeasure, "expected a Preserve change covering the user measure")

	applyResult, err := Build(context.Background(), req, ModeApply, ApplyOptions{}, nil)
	require.NoError(t, err)
	require.True(t, applyResult.Applied)

	updated, err := os.ReadFile(oppPath)
	require.NoError(t, err)
	require.Contains(t, string(updated), "measure 'Total Pipeline' = SUM('Opportunity'[amount])")
	require.Contains(t, string(updated), "Estimated Close Date")
}

func TestBuild_S5_AnalyzeOnlyNoChangesIsClean(t *testing.T) {
	templateFolder := writeTemplateFixture(t)
	outputFolder := t.TempDir()
	req := s1Request(outputFolder, templateFolder)

	_, err := Build(context.Background(), req, ModeApply, ApplyOptions{}, nil)
	require.NoError(t, err)

	result, err := Build(context.Background(), req, ModeAnalyze, ApplyOptions{}, nil)
	require.NoError(t, err)
	require.True(t, result.ChangeSet.IsClean())
}

func TestBuild_InvariantViolationAbortsBeforeAnyWrite(t *testing.T) {
	templateFolder := writeTemplateFixture(t)
	outputFolder := t.TempDir()
	req := s1Request(outputFolder, templateFolder)
	req.Relationships[0].TargetTable = "does-not-exist"

	_, err := Build(context.Background(), req, ModeApply, ApplyOptions{}, nil)
	require.Error(t, err)
	require.NoDirExists(t, filepath.Join(outputFolder, "PBIP"))
}

func TestBuild_CancelledContextAbortsBeforeWriting(t *testing.T) {
	templateFolder := writeTemplateFixture(t)
	outputFolder := t.TempDir()
	req := s1Request(outputFolder, templateFolder)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := Build(ctx, req, ModeApply, ApplyOptions{}, nil)
	require.ErrorIs(t, err, ErrCancelled)
}

// insertBeforePartition splices text immediately before the first
// "partition " header line — used by the test to mimic a hand-added
// measure the way a real TMDL editor would leave it.
func insertBeforePartition(content, text string) string {
	idx := indexLineWithPrefix(content, "partition ")
	if idx < 0 {
		return content + text
	}
	return content[:idx] + text + content[idx:]
}

func indexLineWithPrefix(content, prefix string) int {
	offset := 0
	for {
		next := content[offset:]
		i := indexOf(next, "\n"+prefix)
		if i < 0 {
			return -1
		}
		return offset + i + 1
	}
}

func indexOf(s, sub string) int {
	for i := 0; i+len(sub) <= len(s); i++ {
		if s[i:i+len(sub)] == sub {
			return i
		}
	}
	return -1
}
