package dto

// PickupDateRequest sets the date a student may collect documents, formatted YYYY-MM-DD.
type PickupDateRequest struct {
	PickupDate string `json:"pickup_date" validate:"notblank,datetime=2006-01-02"`
}

// ActionResponse is returned by registrar operations that only change state.
type ActionResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
}
