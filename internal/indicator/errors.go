package indicator

import (
	"errors"
	"fmt"
)

// ErrDataInsufficient is matched by every DataInsufficientError.
var ErrDataInsufficient = errors.New("indicator: insufficient data")

// DataInsufficientError reports an unmet minimum-length precondition.
type DataInsufficientError struct {
	Indicator string
	Have      int
	Need      int
}

func (e *DataInsufficientError) Error() string {
	return fmt.Sprintf("%s: have %d values, need %d", e.Indicator, e.Have, e.Need)
}

// Is makes errors.Is(err, ErrDataInsufficient) match.
func (e *DataInsufficientError) Is(target error) bool { return target == ErrDataInsufficient }

// require returns a *DataInsufficientError when have < need.
func require(name string, have, need int) error {
	if have < need {
		return &DataInsufficientError{Indicator: name, Have: have, Need: need}
	}
	return nil
}
