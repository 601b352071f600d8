package models

import "time"

// BuildingAvailability is one building's reported quantity for one item.
// Responded is false for buildings that never submitted; their quantity is
// zero-filled so allocation math can treat every building uniformly.
type BuildingAvailability struct {
	BuildingID   string `json:"building_id"`
	BuildingName string `json:"building_name"`
	Available    int    `json:"available"`
	Responded    bool   `json:"responded"`
}

// ItemAvailability aggregates one requested item across all buildings.
type ItemAvailability struct {
	EquipmentID       string                 `json:"equipment_id"`
	EquipmentName     string                 `json:"equipment_name"`
	RequestedQuantity int                    `json:"requested_quantity"`
	TotalAvailable    int                    `json:"total_available"`
	Buildings         []BuildingAvailability `json:"buildings"`
}

// BuildingParticipation summarises one building's standing in the round.
// NonResponsive marks buildings that never submitted before the round
// closed; while the round is still open an unanswered building is merely
// pending.
type BuildingParticipation struct {
	BuildingID    string     `json:"building_id"`
	BuildingName  string     `json:"building_name"`
	Responded     bool       `json:"responded"`
	NonResponsive bool       `json:"non_responsive"`
	SubmittedAt   *time.Time `json:"submitted_at,omitempty"`
}

// RequestAggregation is the availability projection staff review before
// finalizing an allocation plan.
type RequestAggregation struct {
	RequestID   string                  `json:"request_id"`
	Items       []ItemAvailability      `json:"items"`
	Buildings   []BuildingParticipation `json:"buildings"`
	Complete    bool                    `json:"complete"`
	GeneratedAt time.Time               `json:"generated_at"`
}

// AvailabilityFor returns the reported quantity for a building/equipment
// pair, with ok=false when the pair is outside the aggregated set.
func (a *RequestAggregation) AvailabilityFor(buildingID, equipmentID string) (int, bool) {
	for _, item := range a.Items {
		if item.EquipmentID != equipmentID {
			continue
		}
		for _, b := range item.Buildings {
			if b.BuildingID == buildingID {
				return b.Available, true
			}
		}
	}
	return 0, false
}
