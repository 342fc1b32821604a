package sqlgen

import (
	"strings"
	"testing"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/stretchr/testify/require"
)

func opportunityAccountRequest() model.BuildRequest {
	return model.BuildRequest{
		DataverseURL:   "https://contoso.crm.dynamics.com",
		ConnectionMode: model.ConnectionTds,
		Tables: []model.TableSpec{
			{
				LogicalName:        "opportunity",
				DisplayName:        "Opportunity",
				PrimaryIDAttribute: "opportunityid",
				Role:               model.RoleFact,
				HasStateCode:       true,
				Attributes: []model.AttributeSpec{
					{LogicalName: "name", AttributeType: model.AttributeString},
					{LogicalName: "amount", AttributeType: model.AttributeMoney},
					{LogicalName: "accountid", AttributeType: model.AttributeLookup, Targets: []string{"account"}},
				},
			},
			{
				LogicalName:        "account",
				DisplayName:        "Account",
				PrimaryIDAttribute: "accountid",
				Role:               model.RoleDimension,
				Attributes: []model.AttributeSpec{
					{LogicalName: "name", AttributeType: model.AttributeString},
				},
			},
		},
	}
}

// TestBuildSelectList_S1 checks the select-list order for the S1
// Opportunity table: the primary key first, then the declared attributes
// in order, with the accountid lookup expanding to its id and name
// columns.
func TestBuildSelectList_S1(t *testing.T) {
	req := opportunityAccountRequest()
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	fields := e.BuildSelectList(opp)
	var rendered []string
	for _, f := range fields {
		rendered = append(rendered, f.Expr)
	}

	require.Equal(t, []string{
		"Base.opportunityid",
		"Base.name",
		"Base.amount",
		"Base.accountid",
		"Base.accountidname",
	}, rendered)
}

func TestBuildWhereClause_StateCodeOnly(t *testing.T) {
	req := opportunityAccountRequest()
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	require.Equal(t, "Base.statecode = 0", e.BuildWhereClause(opp))
}

func TestBuildWhereClause_StateCodeAndView(t *testing.T) {
	req := opportunityAccountRequest()
	opp, _ := req.FindTable("opportunity")
	opp.View = &model.ViewSpec{WhereFragment: "Base.estimatedvalue > 1000"}

	e := NewEmitter(req)
	where := e.BuildWhereClause(opp)
	require.Equal(t, "Base.statecode = 0\n  AND Base.estimatedvalue > 1000", where)
}

func TestBuildPartitionSource_TdsMode(t *testing.T) {
	req := opportunityAccountRequest()
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	src := e.BuildPartitionSource(opp)
	require.True(t, strings.HasPrefix(src, "Value.NativeQuery(CommonDataService.Database("))
	require.Contains(t, src, "EnableFolding=true")
	require.Contains(t, src, "SELECT Base.opportunityid")
}

func TestBuildPartitionSource_FabricLinkMode(t *testing.T) {
	req := opportunityAccountRequest()
	req.ConnectionMode = model.ConnectionFabricLink
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	src := e.BuildPartitionSource(opp)
	require.True(t, strings.HasPrefix(src, "Sql.Database(FabricSQLEndpoint, FabricLakehouse)"))
}

func TestBuildSelectList_DateTimeWrap(t *testing.T) {
	req := model.BuildRequest{
		ConnectionMode: model.ConnectionTds,
		DateConfig: &model.DateTableConfig{
			PrimaryDateTable: "opportunity",
			PrimaryDateField: "estimatedclosedate",
			UTCOffsetHours:   -5,
			WrappedFields:    []model.TableField{{Table: "opportunity", Field: "estimatedclosedate"}},
		},
		Tables: []model.TableSpec{
			{
				LogicalName:        "opportunity",
				PrimaryIDAttribute: "opportunityid",
				Attributes: []model.AttributeSpec{
					{LogicalName: "estimatedclosedate", AttributeType: model.AttributeDateTime},
				},
			},
		},
	}
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	fields := e.BuildSelectList(opp)
	require.Equal(t, "CAST(DATEADD(hour, -5, Base.estimatedclosedate) AS DATE) AS estimatedclosedate", fields[1].Expr)
}

func TestBuildSelectList_RequiredLookupColumnNotUserSelected(t *testing.T) {
	req := model.BuildRequest{
		Tables: []model.TableSpec{
			{
				LogicalName:           "opportunity",
				PrimaryIDAttribute:    "opportunityid",
				RequiredLookupColumns: []string{"ownerid"},
			},
		},
	}
	e := NewEmitter(req)
	opp, _ := req.FindTable("opportunity")

	fields := e.BuildSelectList(opp)
	require.Equal(t, []string{"Base.opportunityid", "Base.ownerid"}, []string{fields[0].Expr, fields[1].Expr})
}
