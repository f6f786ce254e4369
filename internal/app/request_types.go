package app

import "lab-booking/internal/core"

// AvailabilityRequest selects the window to evaluate. Date is YYYY-MM-DD,
// Start and End are HH:MM.
type AvailabilityRequest struct {
	Date        string
	Start       string
	End         string
	IncludeCart bool
	Simulated   []core.RequestedItem
}

// AddCartItemRequest is the payload of an add-to-cart call.
type AddCartItemRequest struct {
	Type     string `json:"type" jsonschema:"enum=item,enum=kit,description=Whether id refers to an item or a kit"`
	ID       int64  `json:"id" jsonschema:"minimum=1"`
	Quantity int    `json:"quantity" jsonschema:"minimum=1,maximum=100,description=Units to stage; a line holds at most 100 after merging"`
	Date     string `json:"date" jsonschema:"pattern=^[0-9]{4}-[0-9]{2}-[0-9]{2}$,description=Reservation day (YYYY-MM-DD)"`
	Start    string `json:"start" jsonschema:"pattern=^[0-9]{2}:[0-9]{2}$,description=Start time (HH:MM)"`
	End      string `json:"end" jsonschema:"pattern=^[0-9]{2}:[0-9]{2}$,description=End time (HH:MM)"`
}

// BookingItemRequest is the payload of an add-to-booking call.
type BookingItemRequest struct {
	Type     string `json:"type" jsonschema:"enum=item,enum=kit,description=Whether id refers to an item or a kit"`
	ID       int64  `json:"id" jsonschema:"minimum=1"`
	Quantity int    `json:"quantity" jsonschema:"minimum=1,maximum=100,description=Units to add; a line holds at most 100"`
}
