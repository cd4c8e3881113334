package freetable

// Restaurant is a restaurant listed by the FreeTable API
type Restaurant struct {
	ID          int    `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Description string `json:"description" yaml:"description"`
	Cuisine     string `json:"cuisine" yaml:"cuisine"`
	PriceRange  string `json:"priceRange" yaml:"priceRange"`
	Address     string `json:"address" yaml:"address"`
	Phone       string `json:"phone" yaml:"phone"`
	Email       string `json:"email" yaml:"email"`
}

// RestaurantsResponse is the body of GET /api/restaurants
type RestaurantsResponse struct {
	Restaurants []Restaurant `json:"restaurants" yaml:"restaurants"`
}

// BookingRequest is the body of POST /api/bookings
type BookingRequest struct {
	RestaurantID    int    `json:"restaurantId" yaml:"restaurantId"`
	TableID         int    `json:"tableId" yaml:"tableId"`
	CustomerName    string `json:"customerName" yaml:"customerName"`
	CustomerEmail   string `json:"customerEmail" yaml:"customerEmail"`
	CustomerPhone   string `json:"customerPhone" yaml:"customerPhone"`
	BookingDate     string `json:"bookingDate" yaml:"bookingDate"`
	BookingTime     string `json:"bookingTime" yaml:"bookingTime"`
	PartySize       int    `json:"partySize" yaml:"partySize"`
	SpecialRequests string `json:"specialRequests" yaml:"specialRequests"`
}

// Booking is a booking created by the FreeTable API.
// ID is kept as sent by the API: the text of a string id,
// or the literal of a numeric one.
type Booking struct {
	ID              string `json:"id" yaml:"id"`
	RestaurantID    int    `json:"restaurantId,omitempty" yaml:"restaurantId,omitempty"`
	TableID         int    `json:"tableId,omitempty" yaml:"tableId,omitempty"`
	CustomerName    string `json:"customerName,omitempty" yaml:"customerName,omitempty"`
	CustomerEmail   string `json:"customerEmail,omitempty" yaml:"customerEmail,omitempty"`
	CustomerPhone   string `json:"customerPhone,omitempty" yaml:"customerPhone,omitempty"`
	BookingDate     string `json:"bookingDate" yaml:"bookingDate"`
	BookingTime     string `json:"bookingTime" yaml:"bookingTime"`
	PartySize       int    `json:"partySize" yaml:"partySize"`
	SpecialRequests string `json:"specialRequests,omitempty" yaml:"specialRequests,omitempty"`
	Status          string `json:"status" yaml:"status"`
}

// BookingResponse is the body of a successful POST /api/bookings
type BookingResponse struct {
	Booking *Booking `json:"booking" yaml:"booking"`
}
