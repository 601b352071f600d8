package models

import "time"

// Allocation assigns a quantity of one equipment item to be collected from
// one building. The full set for a request is replaced atomically when staff
// finalize the plan.
type Allocation struct {
	ID                string    `db:"id" json:"id"`
	RequestID         string    `db:"request_id" json:"request_id"`
	BuildingID        string    `db:"building_id" json:"building_id"`
	BuildingName      string    `db:"building_name" json:"building_name"`
	EquipmentID       string    `db:"equipment_id" json:"equipment_id"`
	EquipmentName     string    `db:"equipment_name" json:"equipment_name"`
	AllocatedQuantity int       `db:"allocated_quantity" json:"allocated_quantity"`
	AllocatedBy       string    `db:"allocated_by" json:"allocated_by"`
	CreatedAt         time.Time `db:"created_at" json:"created_at"`
}

// AllocationEntry is one line of a proposed allocation plan.
type AllocationEntry struct {
	BuildingID  string `json:"building_id" validate:"required"`
	EquipmentID string `json:"equipment_id" validate:"required"`
	Quantity    int    `json:"quantity"`
}
