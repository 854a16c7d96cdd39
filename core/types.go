package core

import (
	"encoding/json"
)

// ID is an opaque entity identifier. The remote API serializes database
// row ids as JSON numbers while newer endpoints use strings; the client
// treats every identifier as text.
type ID string

// UnmarshalJSON accepts both string and numeric identifiers
func (id *ID) UnmarshalJSON(data []byte) error {
	if len(data) > 0 && data[0] == '"' {
		var s string
		if err := json.Unmarshal(data, &s); err != nil {
			return err
		}
		*id = ID(s)
		return nil
	}
	var n json.Number
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	*id = ID(n.String())
	return nil
}

func (id ID) String() string { return string(id) }

// Role distinguishes the two account types the marketplace serves
type Role string

const (
	RoleFarmer   Role = "farmer"
	RoleCustomer Role = "customer"
)

// User is the authenticated identity record. Absence means anonymous.
type User struct {
	ID    ID     `json:"id"`
	Name  string `json:"name"`
	Email string `json:"email"`
	Role  Role   `json:"role"`
}

// CartItem is one line of the cart, unique by ProductID.
// Quantity is always >= 1; a mutation that would drive it to zero
// removes the line instead.
type CartItem struct {
	ProductID ID      `json:"productId"`
	Name      string  `json:"name"`
	Price     float64 `json:"price"`
	Unit      string  `json:"unit"`
	FarmName  string  `json:"farmName"`
	Image     string  `json:"image"`
	Quantity  int     `json:"quantity"`
}

// Product is a marketplace listing as served by the browse endpoints
type Product struct {
	ID          ID      `json:"id"`
	Name        string  `json:"name"`
	Description string  `json:"description"`
	Price       float64 `json:"price"`
	Unit        string  `json:"unit"`
	Image       string  `json:"image"`
	Category    string  `json:"category"`
	Organic     bool    `json:"organic"`
	Available   bool    `json:"available"`
	FarmID      ID      `json:"farm_id"`
}

// Farm is a farmer's registered farm record
type Farm struct {
	ID       ID     `json:"farm_id"`
	Name     string `json:"farm_name"`
	Location string `json:"farm_location"`
	Size     string `json:"farm_size"`
	CropType string `json:"farm_crop_type"`
}

// Order is a placed order as returned by the order history endpoints.
// CreatedAt is kept as the server's opaque timestamp string.
type Order struct {
	ID              ID          `json:"id"`
	Status          string      `json:"status"`
	ShippingAddress string      `json:"shipping_address"`
	PaymentMethod   string      `json:"payment_method"`
	CreatedAt       string      `json:"created_at"`
	Items           []OrderItem `json:"items"`
}

// OrderItem is one purchased line of an order
type OrderItem struct {
	Name     string  `json:"name"`
	Price    float64 `json:"price"`
	Quantity int     `json:"quantity"`
}
