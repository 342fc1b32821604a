package tmdl

import (
	"fmt"
	"strings"

	"github.com/pinggolf/pbi-tmdl-builder/internal/quoting"
)

// ModelFile renders the header, query order, and table references for
// definition/model.tmdl.
type ModelFile struct {
	UserTableDisplayNames []string // in BuildRequest.tables order
	HasDateTable          bool
}

const modelHeader = `model Model
	culture: en-US
	defaultPowerBIDataSourceVersion: powerBI_V3
	sourceQueryCulture: en-US
	dataAccessOptions
		legacyRedirects
		returnErrorValuesAsNull

`

// EmitModel rewrites model.tmdl in full per §4.8.
func EmitModel(m ModelFile) string {
	var b strings.Builder
	b.WriteString(modelHeader)

	b.WriteString("annotation __PBI_TimeIntelligenceEnabled = 0\n\n")

	order := append([]string{"DataverseURL"}, m.UserTableDisplayNames...)
	if m.HasDateTable {
		order = append(order, "Date")
	}
	quotedOrder := make([]string, len(order))
	for i, name := range order {
		quotedOrder[i] = `"` + name + `"`
	}
	fmt.Fprintf(&b, "annotation PBI_QueryOrder = [%s]\n\n", strings.Join(quotedOrder, ", "))

	b.WriteString(`annotation PBI_ProTooling = ["DefaultPowerBIDataSourceVersion"]` + "\n\n")

	for _, name := range m.UserTableDisplayNames {
		fmt.Fprintf(&b, "ref table %s\n", quoting.Quote(name))
	}
	if m.HasDateTable {
		b.WriteString("ref table Date\n")
	}
	b.WriteString("\nref cultureInfo en-US\n")

	return b.String()
}
