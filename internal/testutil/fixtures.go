package testutil

import (
	"github.com/roach88/relq/internal/schema"
)

// ShopCUE is the model most tests compile against: customers with orders,
// orders with items. It exercises every kind the SQLite dialect maps,
// nullable and required columns, a primitive collection, an owned JSON
// object, and required, optional and collection navigations.
const ShopCUE = `
entity: Customer: {
	table: "Customers"
	key: ["Id"]
	properties: {
		Id:      {kind: "int64"}
		Name:    {kind: "string", nullable: true}
		City:    {kind: "string"}
		Email:   {kind: "string", nullable: true}
		Tags:    {kind: "array", element: "string"}
		Address: {
			kind:     "object"
			nullable: true
			fields: {
				Street: {kind: "string"}
				Zip:    {kind: "string", nullable: true}
			}
		}
	}
	navigations: Orders: {target: "Order", foreignKey: ["CustomerId"], collection: true}
}

entity: Order: {
	table: "Orders"
	key: ["Id"]
	properties: {
		Id:         {kind: "int64"}
		CustomerId: {kind: "int64", nullable: true}
		Total:      {kind: "decimal"}
		Quantity:   {kind: "int32"}
		Discount:   {kind: "float64", nullable: true}
		Placed:     {kind: "datetime"}
		Shipped:    {kind: "datetime", nullable: true}
		Due:        {kind: "date", nullable: true}
		Window:     {kind: "timespan"}
		Stamp:      {kind: "datetimeoffset"}
		Code:       {kind: "uuid"}
		Priority:   {kind: "uint64"}
		Rush:       {kind: "bool"}
		Notes:      {kind: "string", nullable: true}
		Blob:       {kind: "bytes", nullable: true}
		Scores:     {kind: "array", element: "int32"}
		Visits:     {kind: "array", element: "datetime"}
	}
	navigations: {
		Customer: {target: "Customer", foreignKey: ["CustomerId"]}
		Items:    {target: "Item", foreignKey: ["OrderId"], collection: true}
	}
}

entity: Item: {
	table: "Items"
	key: ["Id"]
	properties: {
		Id:      {kind: "int64"}
		OrderId: {kind: "int64"}
		Product: {kind: "string"}
		Price:   {kind: "decimal"}
		Count:   {kind: "int32"}
	}
	navigations: Order: {target: "Order", foreignKey: ["OrderId"], required: true}
}
`

// ShopModel loads ShopCUE. It panics if the model does not load, which
// would be a bug in this package.
func ShopModel() *schema.StaticModel {
	m, err := schema.LoadString(ShopCUE)
	if err != nil {
		panic("testutil: shop model: " + err.Error())
	}
	return m
}
