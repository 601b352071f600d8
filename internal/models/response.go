package models

import "time"

// BuildingResponse records one building's availability submission.
type BuildingResponse struct {
	ID           string    `db:"id" json:"id"`
	RequestID    string    `db:"request_id" json:"request_id"`
	BuildingID   string    `db:"building_id" json:"building_id"`
	BuildingName string    `db:"building_name" json:"building_name"`
	TokenID      string    `db:"token_id" json:"-"`
	IPAddress    string    `db:"ip_address" json:"-"`
	SubmittedAt  time.Time `db:"submitted_at" json:"submitted_at"`

	Items []BuildingResponseItem `db:"-" json:"items"`
}

// BuildingResponseItem is one equipment line of a building response.
type BuildingResponseItem struct {
	ID                string `db:"id" json:"id"`
	ResponseID        string `db:"response_id" json:"response_id"`
	EquipmentID       string `db:"equipment_id" json:"equipment_id"`
	AvailableQuantity int    `db:"available_quantity" json:"available_quantity"`
}
