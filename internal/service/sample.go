package service

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/mmeshcher/courier-agent/internal/model"
)

// SampleOrders возвращает фиксированный набор открытых заказов, который показывается,
// когда оба источника недоступны. Каждый вызов возвращает новую копию.
func SampleOrders() []model.Order {
	created := time.Date(2024, time.January, 15, 9, 30, 0, 0, time.UTC)
	bill := decimal.NewFromInt(1210)
	charge := decimal.NewFromInt(40)
	free := false

	return []model.Order{
		{
			ID:            "sample-1",
			Number:        "ORD-SAMPLE-000101",
			Source:        model.SourceStockist,
			CustomerName:  "Apollo Pharmacy",
			CustomerPhone: "+91 98765 43210",
			Pickup: model.Place{
				Address:      "12 MG Road, Pune, Maharashtra, 411001",
				Latitude:     18.5204,
				Longitude:    73.8567,
				Instructions: "Pickup from Shree Medical Distributors",
			},
			Delivery: model.Place{
				Address:   "45 FC Road, Pune, Maharashtra, 411004",
				Latitude:  18.5286,
				Longitude: 73.8412,
			},
			Items: []model.Item{
				{ID: "sample-item-1", Name: "Paracetamol 500mg", Quantity: 10, Price: decimal.NewFromInt(25), Category: "Analgesic"},
				{ID: "sample-item-2", Name: "Amoxicillin 250mg", Quantity: 5, Price: decimal.NewFromInt(15), Category: "Antibiotic"},
			},
			TotalAmount: decimal.NewFromInt(325),
			Status:      model.StatusUnassigned,
			CreatedAt:   created,
			Stockist:    &model.StockistDetails{SellerID: "sample-seller-1", SellerName: "Shree Medical Distributors"},
		},
		{
			ID:            "sample-2",
			Number:        "ORD-SAMPLE-000102",
			Source:        model.SourceDirect,
			CustomerName:  "Care Medicals",
			CustomerPhone: "+91 91234 56780",
			Pickup:        model.Place{Address: "Lifeline Stockists, Kothrud, Pune"},
			Delivery:      model.Place{Address: "Care Medicals, Baner, Pune"},
			Items:         []model.Item{},
			TotalAmount:   decimal.NewFromInt(1250),
			BillAmount:    &bill,
			Status:        model.StatusUnassigned,
			CreatedAt:     created.Add(45 * time.Minute),

			DeliveryCharge:       &charge,
			FreeDeliveryExceeded: &free,

			Direct: &model.DirectDetails{
				RetailerID:    "sample-retailer-1",
				RetailerName:  "Care Medicals",
				RetailerPhone: "+91 91234 56780",
				StockistName:  "Lifeline Stockists",
				StockistPhone: "+91 99887 76655",
			},
		},
	}
}
