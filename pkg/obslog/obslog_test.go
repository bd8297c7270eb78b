package obslog

import (
	"testing"

	"github.com/bobboyms/graphdb/pkg/graphdberr"
)

func TestReportOnlyForwardsInternalInvariantErrors(t *testing.T) {
	// report is exercised directly rather than through Init, since Init's
	// sync.Once means only the first test in the package binary would
	// actually configure the hook.
	report(&graphdberr.DuplicatePrimaryKeyError{Table: "Person", Key: "1"})
	report(&graphdberr.RelDirectionParityError{Table: "Knows", FwdDeleted: true, BwdDeleted: false})
}
