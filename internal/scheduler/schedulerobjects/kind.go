package schedulerobjects

import (
	"strings"

	"github.com/pkg/errors"

	"github.com/armadaproject/batchsched/internal/common/schederrors"
)

// OperationKind is the type of work an Operation performs against a target.
type OperationKind int

const (
	// Extract drains value from a target and raises its security.
	Extract OperationKind = iota
	// Restore grows a target's value back towards its max and raises its security.
	Restore
	// Suppress lowers a target's security towards its floor.
	Suppress
)

var AllOperationKinds = []OperationKind{Extract, Restore, Suppress}

func (k OperationKind) String() string {
	switch k {
	case Extract:
		return "extract"
	case Restore:
		return "restore"
	case Suppress:
		return "suppress"
	default:
		return "unknown"
	}
}

func ParseOperationKind(s string) (OperationKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "extract":
		return Extract, nil
	case "restore":
		return Restore, nil
	case "suppress":
		return Suppress, nil
	default:
		return 0, errors.WithStack(&schederrors.ErrInvalidArgument{
			Name:    "kind",
			Value:   s,
			Message: "expected one of extract, restore or suppress",
		})
	}
}

func (k OperationKind) MarshalText() ([]byte, error) {
	if k < Extract || k > Suppress {
		return nil, errors.Errorf("cannot marshal unknown operation kind %d", int(k))
	}
	return []byte(k.String()), nil
}

func (k *OperationKind) UnmarshalText(text []byte) error {
	parsed, err := ParseOperationKind(string(text))
	if err != nil {
		return err
	}
	*k = parsed
	return nil
}
