package model

import "github.com/shopspring/decimal"

// NumberedSeats lays out n library seats numbered from 1.
func NumberedSeats(n int) []Seat {
	seats := make([]Seat, 0, n)
	for i := 1; i <= n; i++ {
		seats = append(seats, Seat{Number: i, Price: decimal.Zero})
	}
	return seats
}

// RowSeats lays out n event seats perRow to a row (A1..A<perRow>, B1, ...)
// and prices seat i with price(i).
func RowSeats(n, perRow int, price func(i int) decimal.Decimal) []Seat {
	if perRow <= 0 {
		perRow = n
	}
	seats := make([]Seat, 0, n)
	for i := 0; i < n; i++ {
		s := Seat{Row: RowLabel(i / perRow), Number: i%perRow + 1, Price: decimal.Zero}
		if price != nil {
			s.Price = price(i)
		}
		seats = append(seats, s)
	}
	return seats
}

// TieredPrice charges tiers[i/tierSize] and the last tier beyond the end.
func TieredPrice(tierSize int, tiers ...decimal.Decimal) func(int) decimal.Decimal {
	return func(i int) decimal.Decimal {
		if len(tiers) == 0 {
			return decimal.Zero
		}
		t := len(tiers) - 1
		if tierSize > 0 && i/tierSize < t {
			t = i / tierSize
		}
		return tiers[t]
	}
}
