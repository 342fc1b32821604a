// Package typemap implements the Type-Mapper: a total, pure function
// from a Dataverse attribute type to the TMDL column metadata that
// describes it. It is the single source of truth the differ relies on
// when comparing emitted columns to parsed ones, so every attribute
// type model.AttributeType defines must have an entry here.
package typemap

import "github.com/pinggolf/pbi-tmdl-builder/internal/model"

// SummarizeBy mirrors the TMDL `summarizeBy` property values the
// builder ever emits.
type SummarizeBy string

const (
	SummarizeNone SummarizeBy = "none"
	SummarizeSum  SummarizeBy = "sum"
)

// Mapping is the TMDL column metadata a type maps to. FormatString and
// SourceProviderType are optional; a zero value means "absent", not
// "empty string property".
type Mapping struct {
	DataType           string
	FormatString       string
	SourceProviderType string
	SummarizeBy        SummarizeBy
}

// moneyFormatString is Power BI's standard accounting-style currency
// pattern with parenthesised negatives.
const moneyFormatString = `\$#,0.00;(\$#,0.00);\$#,0.00`

// Map returns the TMDL metadata for attrType. Unknown types fall
// through to the string mapping rather than erroring — this is a
// non-fatal condition (see UnknownAttributeType in the error table);
// callers that need to warn on an unrecognised type should check
// attrType against the known set themselves before calling Map.
func Map(attrType model.AttributeType) Mapping {
	switch attrType {
	case model.AttributeString, model.AttributeMemo:
		return Mapping{DataType: "string", SummarizeBy: SummarizeNone}
	case model.AttributeInteger:
		return Mapping{DataType: "int64", SourceProviderType: "int", SummarizeBy: SummarizeSum}
	case model.AttributeBigInt:
		return Mapping{DataType: "int64", SourceProviderType: "bigint", SummarizeBy: SummarizeSum}
	case model.AttributeDecimal:
		return Mapping{DataType: "decimal", SourceProviderType: "decimal", SummarizeBy: SummarizeSum}
	case model.AttributeDouble:
		return Mapping{DataType: "double", SourceProviderType: "float", SummarizeBy: SummarizeSum}
	case model.AttributeMoney:
		return Mapping{DataType: "decimal", FormatString: moneyFormatString, SourceProviderType: "money", SummarizeBy: SummarizeSum}
	case model.AttributeDateTime:
		return Mapping{DataType: "dateTime", FormatString: "General Date", SourceProviderType: "datetime2", SummarizeBy: SummarizeNone}
	case model.AttributeDateOnly:
		return Mapping{DataType: "dateTime", FormatString: "Short Date", SourceProviderType: "date", SummarizeBy: SummarizeNone}
	case model.AttributeBoolean:
		return Mapping{DataType: "string", SummarizeBy: SummarizeNone}
	case model.AttributeLookup, model.AttributeOwner, model.AttributeCustomer:
		// Only the hidden id half of a lookup is typed here; the
		// visible name half is a plain string handled like Picklist.
		return Mapping{DataType: "int64", SourceProviderType: "int", SummarizeBy: SummarizeNone}
	case model.AttributePicklist, model.AttributeState, model.AttributeStatus:
		return Mapping{DataType: "string", SummarizeBy: SummarizeNone}
	case model.AttributeUniqueIdentifier:
		return Mapping{DataType: "string", SourceProviderType: "uniqueidentifier", SummarizeBy: SummarizeNone}
	default:
		return Mapping{DataType: "string", SummarizeBy: SummarizeNone}
	}
}
