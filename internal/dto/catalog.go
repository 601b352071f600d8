package dto

// BuildingOption is a slim building entry for request composition.
type BuildingOption struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// EquipmentOption is a slim equipment entry for request composition.
type EquipmentOption struct {
	ID          string `json:"id"`
	Name        string `json:"name"`
	Description string `json:"description,omitempty"`
}
