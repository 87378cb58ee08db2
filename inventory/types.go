// Package inventory discovers vehicles needing feature verification and
// manages their attribute checkboxes on the dealer portal.
package inventory

// Vehicle is one discovered inventory vehicle. StickerURL is empty when
// no window sticker could be located; the workflow skips such vehicles.
type Vehicle struct {
	ID          string `json:"id"`
	DetailURL   string `json:"detail_url"`
	StickerURL  string `json:"sticker_url,omitempty"`
	VIN         string `json:"vin,omitempty"`
	StockNumber string `json:"stock_number,omitempty"`
	Year        string `json:"year,omitempty"`
	Make        string `json:"make,omitempty"`
	Model       string `json:"model,omitempty"`
}
