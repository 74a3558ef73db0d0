package models

// Canonical column names shared by the coercer, the frame builder and exported artifacts.
const (
	ColBookingValue   = "booking_value"
	ColRideDistance   = "ride_distance"
	ColDriverRatings  = "driver_ratings"
	ColCustomerRating = "customer_rating"
	ColAvgVTAT        = "avg_vtat"
	ColAvgCTAT        = "avg_ctat"
	ColVehicleType    = "vehicle_type"
	ColPickupLocation = "pickup_location"
	ColDropLocation   = "drop_location"
	ColPaymentMethod  = "payment_method"
	ColDayOfWeek      = "day_of_week"
	ColIsWeekend      = "is_weekend"
	ColHourOfDay      = "hour_of_day"
	ColPeakHour       = "peak_hour"
)

// NumericColumns are the booking attributes parsed as floats.
var NumericColumns = []string{
	ColBookingValue,
	ColRideDistance,
	ColDriverRatings,
	ColCustomerRating,
	ColAvgVTAT,
	ColAvgCTAT,
}

// CategoricalColumns are the booking attributes coerced to strings.
var CategoricalColumns = []string{
	ColVehicleType,
	ColPickupLocation,
	ColDropLocation,
	ColPaymentMethod,
}

// TemporalColumns are present together or not at all.
var TemporalColumns = []string{
	ColDayOfWeek,
	ColIsWeekend,
	ColHourOfDay,
	ColPeakHour,
}

// VehicleTypes and PaymentMethods are the options offered by the form.
// The API does not restrict categories to these lists.
var (
	VehicleTypes   = []string{"premier sedan", "micro", "suv", "go sedan", "auto", "bike", "e-bike"}
	PaymentMethods = []string{"credit card", "cash", "uber-wallet", "upi", "debit card", "no"}
)

// RideTime holds the derived temporal features of a ride.
type RideTime struct {
	DayOfWeek int     `json:"day_of_week"` // Monday=0 ... Sunday=6
	IsWeekend bool    `json:"is_weekend"`
	HourOfDay float64 `json:"hour_of_day"`
	PeakHour  bool    `json:"peak_hour"`
}

// RideRecord is one well-typed row submitted for a single prediction.
// It is built per request and discarded after the verdict.
type RideRecord struct {
	BookingValue   float64 `json:"booking_value"`
	RideDistance   float64 `json:"ride_distance"`
	DriverRatings  float64 `json:"driver_ratings"`
	CustomerRating float64 `json:"customer_rating"`
	AvgVTAT        float64 `json:"avg_vtat"`
	AvgCTAT        float64 `json:"avg_ctat"`
	VehicleType    string  `json:"vehicle_type"`
	PickupLocation string  `json:"pickup_location"`
	DropLocation   string  `json:"drop_location"`
	PaymentMethod  string  `json:"payment_method"`

	Time *RideTime `json:"time,omitempty"`
}

// Values returns the record keyed by column name. Numeric and flag columns
// are float64, categorical columns are string. Temporal columns are only
// present when Time is set.
func (r RideRecord) Values() map[string]any {
	values := map[string]any{
		ColBookingValue:   r.BookingValue,
		ColRideDistance:   r.RideDistance,
		ColDriverRatings:  r.DriverRatings,
		ColCustomerRating: r.CustomerRating,
		ColAvgVTAT:        r.AvgVTAT,
		ColAvgCTAT:        r.AvgCTAT,
		ColVehicleType:    r.VehicleType,
		ColPickupLocation: r.PickupLocation,
		ColDropLocation:   r.DropLocation,
		ColPaymentMethod:  r.PaymentMethod,
	}
	if r.Time != nil {
		values[ColDayOfWeek] = float64(r.Time.DayOfWeek)
		values[ColIsWeekend] = boolToFloat(r.Time.IsWeekend)
		values[ColHourOfDay] = r.Time.HourOfDay
		values[ColPeakHour] = boolToFloat(r.Time.PeakHour)
	}
	return values
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}
