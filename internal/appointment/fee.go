package appointment

import (
	"time"

	"github.com/shopspring/decimal"

	"github.com/hackgods/doctor-appointment-booking/internal/availability"
)

var (
	nanosPerHour = decimal.NewFromInt(int64(time.Hour))
	centsPerUnit = decimal.NewFromInt(100)
)

// CalculateFee is durationHours(iv) x hourlyRate, with fractional hours kept exact.
func CalculateFee(iv availability.Interval, hourlyRate decimal.Decimal) decimal.Decimal {
	return hourlyRate.Mul(decimal.NewFromInt(int64(iv.Duration()))).Div(nanosPerHour)
}

// FeeInCents rounds a fee to the smallest currency unit.
func FeeInCents(fee decimal.Decimal) int64 {
	return fee.Mul(centsPerUnit).Round(0).IntPart()
}
