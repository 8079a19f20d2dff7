package domain

// Flight is the part of the inventory record the booking service reads.
// AvailableSeats is what the flight service reports as remaining capacity.
type Flight struct {
	ID             int64
	Price          int64
	AvailableSeats int
}
