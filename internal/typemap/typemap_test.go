package typemap

import (
	"testing"

	"github.com/pinggolf/pbi-tmdl-builder/internal/model"
	"github.com/stretchr/testify/require"
)

func TestMap_KnownTypes(t *testing.T) {
	cases := []struct {
		name string
		in   model.AttributeType
		want Mapping
	}{
		{"string", model.AttributeString, Mapping{DataType: "string", SummarizeBy: SummarizeNone}},
		{"money", model.AttributeMoney, Mapping{DataType: "decimal", FormatString: moneyFormatString, SourceProviderType: "money", SummarizeBy: SummarizeSum}},
		{"dateonly", model.AttributeDateOnly, Mapping{DataType: "dateTime", FormatString: "Short Date", SourceProviderType: "date", SummarizeBy: SummarizeNone}},
		{"datetime", model.AttributeDateTime, Mapping{DataType: "dateTime", FormatString: "General Date", SourceProviderType: "datetime2", SummarizeBy: SummarizeNone}},
		{"decimal", model.AttributeDecimal, Mapping{DataType: "decimal", SourceProviderType: "decimal", SummarizeBy: SummarizeSum}},
	}
	for _, c := range cases {
		t.Run(c.name, func(t *testing.T) {
			require.Equal(t, c.want, Map(c.in))
		})
	}
}

func TestMap_UnknownTypeFallsThroughToString(t *testing.T) {
	got := Map(model.AttributeType("SomeFutureType"))
	require.Equal(t, Mapping{DataType: "string", SummarizeBy: SummarizeNone}, got)
}
