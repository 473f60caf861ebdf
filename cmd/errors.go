package main

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/sells-group/carbon-cli/internal/calc"
)

// describeError turns engine errors the user can act on into readable
// messages. Anything else is returned unchanged.
func describeError(err error) error {
	var (
		verr *calc.ValidationError
		cerr *calc.UnknownCityError
		xerr *calc.ExtractionIncompleteError
	)
	switch {
	case errors.As(err, &verr):
		fields := make([]string, 0, len(verr.Fields))
		for name, msgs := range verr.Fields {
			fields = append(fields, fmt.Sprintf("%s: %s", name, strings.Join(msgs, ", ")))
		}
		sort.Strings(fields)
		return fmt.Errorf("%s (%s)", verr.Error(), strings.Join(fields, "; "))
	case errors.As(err, &cerr):
		if s := cerr.Suggestion(); s != "" {
			return fmt.Errorf("%s. %s", cerr.Error(), s)
		}
		return err
	case errors.As(err, &xerr):
		return fmt.Errorf("%s (parsed origin %q, destination %q)", xerr.Error(), xerr.Parsed.Origin, xerr.Parsed.Destination)
	default:
		return err
	}
}
