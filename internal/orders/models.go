package orders

import (
	"time"

	"github.com/shopspring/decimal"
)

// Address is the shipping destination captured with the order.
type Address struct {
	City               string `json:"city"`
	Street             string `json:"street"`
	Building           string `json:"building"`
	ContactPhoneNumber string `json:"contactPhoneNumber"`
}

func (a Address) Complete() bool {
	return a.City != "" && a.Street != "" && a.Building != "" && a.ContactPhoneNumber != ""
}

// OrderItem snapshots name, image and unit price at order time. The catalog
// may change later; the order does not follow it.
type OrderItem struct {
	ProductID string          `json:"productId"`
	Name      string          `json:"name"`
	Image     string          `json:"image"`
	Price     decimal.Decimal `json:"price"`
	Quantity  int             `json:"quantity"`
}

type Order struct {
	ID              string          `json:"id"`
	UserID          string          `json:"userId"`
	Items           []OrderItem     `json:"items"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	ShippingAddress Address         `json:"shippingAddress"`
	Status          Status          `json:"status"`
	CreatedAt       time.Time       `json:"createdAt"`
	UpdatedAt       time.Time       `json:"updatedAt"`
}

// ItemInput is one requested line of a new order.
type ItemInput struct {
	ProductID string `json:"productId"`
	Quantity  int    `json:"quantity"`
}
