package model

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func baseRequest() BuildRequest {
	return BuildRequest{
		ProjectName:    "Contoso",
		OutputFolder:   "/out",
		TemplateFolder: "/tmpl",
		DataverseURL:   "https://contoso.crm.dynamics.com",
		ConnectionMode: ConnectionTds,
		Tables: []TableSpec{
			{
				LogicalName:        "opportunity",
				DisplayName:        "Opportunity",
				PrimaryIDAttribute: "opportunityid",
				Role:               RoleFact,
				HasStateCode:       true,
				Attributes: []AttributeSpec{
					{LogicalName: "name", AttributeType: AttributeString},
					{LogicalName: "accountid", AttributeType: AttributeLookup, Targets: []string{"account"}},
				},
			},
			{
				LogicalName:        "account",
				DisplayName:        "Account",
				PrimaryIDAttribute: "accountid",
				Role:               RoleDimension,
				Attributes: []AttributeSpec{
					{LogicalName: "name", AttributeType: AttributeString},
				},
			},
		},
		Relationships: []RelationshipSpec{
			{SourceTable: "opportunity", SourceAttribute: "accountid", TargetTable: "account", IsActive: true},
		},
	}
}

func TestValidate_HappyPath(t *testing.T) {
	require.NoError(t, baseRequest().Validate())
}

func TestValidate_RelationshipUnknownSourceTable(t *testing.T) {
	r := baseRequest()
	r.Relationships[0].SourceTable = "ghost"
	require.Error(t, r.Validate())
}

func TestValidate_RelationshipAttributeMustBeDeclaredOrRequiredLookup(t *testing.T) {
	r := baseRequest()
	r.Relationships[0].SourceAttribute = "undeclaredid"
	require.Error(t, r.Validate())

	// Registering it as a required lookup column satisfies the invariant.
	opp := r.Tables[0]
	opp.RequiredLookupColumns = []string{"undeclaredid"}
	r.Tables[0] = opp
	require.NoError(t, r.Validate())
}

func TestValidate_AtMostOneActiveRelationshipPerPair(t *testing.T) {
	r := baseRequest()
	r.Relationships = append(r.Relationships, RelationshipSpec{
		SourceTable: "opportunity", SourceAttribute: "accountid", TargetTable: "account", IsActive: true,
	})
	require.Error(t, r.Validate())
}

func TestValidate_TwoInactiveRelationshipsBetweenSamePairAreAllowed(t *testing.T) {
	r := baseRequest()
	r.Relationships[0].IsActive = false
	r.Relationships = append(r.Relationships, RelationshipSpec{
		SourceTable: "opportunity", SourceAttribute: "accountid", TargetTable: "account", IsActive: false,
	})
	require.NoError(t, r.Validate())
}

func TestValidate_DateTableMustBeDeclared(t *testing.T) {
	r := baseRequest()
	r.DateConfig = &DateTableConfig{PrimaryDateTable: "ghost"}
	require.Error(t, r.Validate())

	r.DateConfig.PrimaryDateTable = "opportunity"
	require.NoError(t, r.Validate())
}

func TestAttributeSpec_ResolvedVirtualName(t *testing.T) {
	a := AttributeSpec{LogicalName: "statuscode"}
	require.Equal(t, "statuscodename", a.ResolvedVirtualName())

	a.VirtualAttributeName = "statuscodelabel"
	require.Equal(t, "statuscodelabel", a.ResolvedVirtualName())
}

func TestAttributeType_Classification(t *testing.T) {
	require.True(t, AttributeLookup.IsLookupLike())
	require.True(t, AttributeOwner.IsLookupLike())
	require.True(t, AttributeCustomer.IsLookupLike())
	require.False(t, AttributeString.IsLookupLike())

	require.True(t, AttributePicklist.IsChoiceLike())
	require.True(t, AttributeBoolean.IsChoiceLike())
	require.False(t, AttributeLookup.IsChoiceLike())
}

func TestDateTableConfig_IsWrapped(t *testing.T) {
	d := DateTableConfig{WrappedFields: []TableField{{Table: "opportunity", Field: "estimatedclosedate"}}}
	require.True(t, d.IsWrapped("opportunity", "estimatedclosedate"))
	require.False(t, d.IsWrapped("opportunity", "createdon"))
}
