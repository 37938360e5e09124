package commissions

import (
	_ "embed"
	"sync"
)

//go:embed catalog.yaml
var catalogYAML []byte

// Resource type names of the built-in catalogue.
const (
	TypeUnitType              = "unit_type"
	TypeProcessingUnit        = "processing_unit"
	TypeBusinessUnit          = "business_unit"
	TypeCalendar              = "calendar"
	TypePeriod                = "period"
	TypeEventType             = "event_type"
	TypeCreditType            = "credit_type"
	TypePlan                  = "plan"
	TypeTitle                 = "title"
	TypePositionGroup         = "position_group"
	TypeParticipant           = "participant"
	TypePosition              = "position"
	TypeSalesOrder            = "sales_order"
	TypeTransactionAssignment = "transaction_assignment"
	TypeSalesTransaction      = "sales_transaction"
	TypeCredit                = "credit"
	TypePipeline              = "pipeline"
)

var defaultRegistry = sync.OnceValues(func() (*Registry, error) {
	return LoadRegistry(catalogYAML)
})

// DefaultRegistry returns the registry built from the embedded catalogue.
// The catalogue is parsed once; later calls share the same registry.
func DefaultRegistry() (*Registry, error) {
	return defaultRegistry()
}

// MustSchema looks a type up in the default registry and panics if it is
// missing. It is meant for package-level variables and tests.
func MustSchema(name string) *Schema {
	registry, err := DefaultRegistry()
	if err != nil {
		panic(err)
	}

	schema, err := registry.Lookup(name)
	if err != nil {
		panic(err)
	}

	return schema
}
