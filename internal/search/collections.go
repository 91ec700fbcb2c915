package search

import (
	"fmt"

	"github.com/kessa-dev/kessa/internal/errs"
	"github.com/kessa-dev/kessa/internal/model"
)

const (
	collectionMemories = "memories"
	collectionCode     = "code_units"
	collectionCommits  = "commits"
	collectionValues   = "values"
)

// experienceCollection maps an axis to its "{prefix}_{axis}"
// collection name, validating the axis along the way. prefix must
// match whatever the Persister and Clusterer were constructed with —
// "ghap" by default — since they're the ones writing these
// collections.
func experienceCollection(prefix string, axis model.Axis) (string, error) {
	if axis == "" {
		axis = model.AxisFull
	}
	if !axis.Valid() {
		return "", fmt.Errorf("%w: invalid axis %q", errs.ErrValidation, axis)
	}
	return fmt.Sprintf("%s_%s", prefix, axis), nil
}

// textFields lists the payload fields searched in keyword mode, for
// the collections whose names don't vary with the configured prefix.
var textFields = map[string][]string{
	collectionMemories: {"content"},
	collectionCode:     {"code", "qualified_name", "docstring"},
	collectionCommits:  {"message"},
	collectionValues:   {"text"},
}

// experienceTextFields lists the payload fields searched in keyword
// mode for one experience axis, independent of the collection's
// configured prefix.
func experienceTextFields(axis model.Axis) []string {
	base := []string{"goal", "hypothesis", "action", "prediction", "outcome_result"}
	if axis == model.AxisSurprise {
		return append(base, "surprise")
	}
	return base
}
