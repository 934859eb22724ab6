package enums

import "fmt"

// MovementType maps to the movement_type_enum enum in Postgres.
type MovementType string

const (
	MovementConsume     MovementType = "consume"
	MovementTransferIn  MovementType = "transfer_in"
	MovementTransferOut MovementType = "transfer_out"
	MovementReceive     MovementType = "receive"
)

var validMovementTypes = []MovementType{
	MovementConsume,
	MovementTransferIn,
	MovementTransferOut,
	MovementReceive,
}

// OutboundMovementTypes are the movement types that count as demand.
var OutboundMovementTypes = []MovementType{
	MovementConsume,
	MovementTransferOut,
}

// IsValid reports whether the value matches the canonical movement type enum.
func (m MovementType) IsValid() bool {
	for _, candidate := range validMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// IsOutbound reports whether stock leaves the location for this movement.
func (m MovementType) IsOutbound() bool {
	for _, candidate := range OutboundMovementTypes {
		if candidate == m {
			return true
		}
	}
	return false
}

// ParseMovementType converts raw input into MovementType.
func ParseMovementType(value string) (MovementType, error) {
	for _, candidate := range validMovementTypes {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid movement type %q", value)
}
