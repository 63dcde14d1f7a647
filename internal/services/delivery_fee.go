package services

import (
	"maps"
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

const (
	defaultDeliveryFee         int64 = 1000
	defaultFreeDeliveryAbove   int64 = 10000
	defaultSmallOrderBelow     int64 = 5000
	defaultSmallOrderSurcharge int64 = 200
)

var defaultCityFees = map[string]int64{
	"accra":    500,
	"kumasi":   700,
	"tema":     600,
	"takoradi": 800,
}

// DeliveryFeeTable prices delivery from the destination city and the items subtotal. Amounts are pesewas.
type DeliveryFeeTable struct {
	CityFees            map[string]int64
	DefaultFee          int64
	FreeAbove           int64
	SmallOrderBelow     int64
	SmallOrderSurcharge int64
}

// DefaultDeliveryFeeTable returns the built-in fee table.
func DefaultDeliveryFeeTable() DeliveryFeeTable {
	return DeliveryFeeTable{
		CityFees:            maps.Clone(defaultCityFees),
		DefaultFee:          defaultDeliveryFee,
		FreeAbove:           defaultFreeDeliveryAbove,
		SmallOrderBelow:     defaultSmallOrderBelow,
		SmallOrderSurcharge: defaultSmallOrderSurcharge,
	}
}

// WithOverrides returns a copy of the table with every non-zero override applied. City keys are normalised.
func (t DeliveryFeeTable) WithOverrides(override DeliveryFeeTable) DeliveryFeeTable {
	out := t
	out.CityFees = make(map[string]int64, len(t.CityFees)+len(override.CityFees))
	for city, fee := range t.CityFees {
		out.CityFees[normaliseCity(city)] = fee
	}
	for city, fee := range override.CityFees {
		if key := normaliseCity(city); key != "" && fee >= 0 {
			out.CityFees[key] = fee
		}
	}
	if override.DefaultFee > 0 {
		out.DefaultFee = override.DefaultFee
	}
	if override.FreeAbove > 0 {
		out.FreeAbove = override.FreeAbove
	}
	if override.SmallOrderBelow > 0 {
		out.SmallOrderBelow = override.SmallOrderBelow
	}
	if override.SmallOrderSurcharge > 0 {
		out.SmallOrderSurcharge = override.SmallOrderSurcharge
	}
	return out
}

// Fee returns the delivery fee for a subtotal shipped to city.
func (t DeliveryFeeTable) Fee(city string, itemsPrice int64) int64 {
	if itemsPrice > t.FreeAbove {
		return 0
	}
	fee, ok := t.CityFees[normaliseCity(city)]
	if !ok {
		fee = t.DefaultFee
	}
	if itemsPrice < t.SmallOrderBelow {
		fee += t.SmallOrderSurcharge
	}
	return fee
}

func normaliseCity(city string) string {
	return cases.Lower(language.Und).String(strings.Join(strings.Fields(city), " "))
}
