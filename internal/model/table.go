package model

// TableContext identifies the physical table a guest scanned.
type TableContext struct {
	HotelID  string `json:"hotel_id"`
	TableID  string `json:"table_id"`
	ChatPath string `json:"chat_path"`
	MenuPath string `json:"menu_path"`
}

// NewTableContext builds the context with the guest-facing view paths.
func NewTableContext(hotelID, tableID string) TableContext {
	base := "/user/" + hotelID + "/" + tableID
	return TableContext{
		HotelID:  hotelID,
		TableID:  tableID,
		ChatPath: base + "/chat",
		MenuPath: base,
	}
}
