package burst

// Category is the probable cause assigned to a burst.
type Category string

const (
	CategoryUserInput      Category = "USER_INPUT"
	CategoryPeriodical     Category = "PERIODICAL"
	CategoryTCPLossOrDup   Category = "TCP_LOSS_OR_DUP"
	CategoryTCPProtocol    Category = "TCP_PROTOCOL"
	CategoryScreenRotation Category = "SCREEN_ROTATION"
	CategoryClientApp      Category = "CLIENT_APP"
	CategoryCPU            Category = "CPU"
	CategoryServerNetDelay Category = "SERVER_NET_DELAY"
	// CategoryLong is reported through LongBurstCount; no burst is assigned it.
	CategoryLong    Category = "LONG"
	CategoryUnknown Category = "UNKNOWN"
)

// AllCategories lists categories in classifier priority order.
func AllCategories() []Category {
	return []Category{
		CategoryUserInput,
		CategoryPeriodical,
		CategoryTCPLossOrDup,
		CategoryTCPProtocol,
		CategoryScreenRotation,
		CategoryClientApp,
		CategoryCPU,
		CategoryServerNetDelay,
		CategoryLong,
		CategoryUnknown,
	}
}

// Valid reports whether c belongs to the closed category set.
func (c Category) Valid() bool {
	return c.Rank() >= 0
}

// Rank returns the priority position of c, -1 for values outside the set.
func (c Category) Rank() int {
	for idx, known := range AllCategories() {
		if c == known {
			return idx
		}
	}
	return -1
}
