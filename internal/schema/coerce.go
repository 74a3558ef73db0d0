package schema

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/aigoflow/rideguard/internal/models"
)

// Raw input keys that feed the temporal block besides the canonical columns.
const (
	KeyRideDate = "ride_date"
	KeyRideTime = "ride_time"
)

var temporalKeys = []string{
	models.ColDayOfWeek,
	models.ColIsWeekend,
	models.ColHourOfDay,
	models.ColPeakHour,
	KeyRideDate,
	KeyRideTime,
}

// Options tune how strictly raw values are checked.
type Options struct {
	// StrictRanges rejects negative amounts and ratings outside [1,5].
	// By default only numeric parseability is enforced.
	StrictRanges bool
}

// Coercer turns raw submitted values into a RideRecord. It holds no state
// besides its options and is safe for concurrent use.
type Coercer struct {
	opts Options
}

func NewCoercer(opts Options) *Coercer {
	return &Coercer{opts: opts}
}

// Coerce validates raw (decoded JSON or form values) against the ride schema.
// The first offending field is reported as a *ValidationError.
func (c *Coercer) Coerce(raw map[string]any) (models.RideRecord, error) {
	var rec models.RideRecord

	numeric := map[string]*float64{
		models.ColBookingValue:   &rec.BookingValue,
		models.ColRideDistance:   &rec.RideDistance,
		models.ColDriverRatings:  &rec.DriverRatings,
		models.ColCustomerRating: &rec.CustomerRating,
		models.ColAvgVTAT:        &rec.AvgVTAT,
		models.ColAvgCTAT:        &rec.AvgCTAT,
	}
	for _, col := range models.NumericColumns {
		v, err := requireNumber(raw, col)
		if err != nil {
			return models.RideRecord{}, err
		}
		if c.opts.StrictRanges {
			if err := checkRange(col, v); err != nil {
				return models.RideRecord{}, err
			}
		}
		*numeric[col] = v
	}

	categorical := map[string]*string{
		models.ColVehicleType:    &rec.VehicleType,
		models.ColPickupLocation: &rec.PickupLocation,
		models.ColDropLocation:   &rec.DropLocation,
		models.ColPaymentMethod:  &rec.PaymentMethod,
	}
	for _, col := range models.CategoricalColumns {
		v, ok := raw[col]
		if !ok || v == nil {
			return models.RideRecord{}, invalid(col, "field required")
		}
		s, err := toString(col, v)
		if err != nil {
			return models.RideRecord{}, err
		}
		*categorical[col] = s
	}

	rt, err := coerceTime(raw)
	if err != nil {
		return models.RideRecord{}, err
	}
	rec.Time = rt

	return rec, nil
}

func coerceTime(raw map[string]any) (*models.RideTime, error) {
	if !anyPresent(raw, temporalKeys) {
		return nil, nil
	}

	var rt models.RideTime

	switch {
	case present(raw, models.ColDayOfWeek):
		day, err := toDay(raw[models.ColDayOfWeek])
		if err != nil {
			return nil, err
		}
		rt.DayOfWeek = day
	case present(raw, KeyRideDate):
		s, ok := raw[KeyRideDate].(string)
		if !ok {
			return nil, invalid(KeyRideDate, "expected YYYY-MM-DD")
		}
		d, err := time.Parse("2006-01-02", strings.TrimSpace(s))
		if err != nil {
			return nil, invalid(KeyRideDate, "expected YYYY-MM-DD")
		}
		rt.DayOfWeek = DayOfWeek(d)
	default:
		return nil, invalid(models.ColDayOfWeek, "field required")
	}
	rt.IsWeekend = IsWeekend(rt.DayOfWeek)

	switch {
	case present(raw, models.ColHourOfDay):
		h, err := toNumber(models.ColHourOfDay, raw[models.ColHourOfDay])
		if err != nil {
			return nil, err
		}
		if h < 0 || h >= 24 {
			return nil, invalid(models.ColHourOfDay, "must be in [0, 24)")
		}
		rt.HourOfDay = h
	case present(raw, KeyRideTime):
		s, ok := raw[KeyRideTime].(string)
		if !ok {
			return nil, invalid(KeyRideTime, "expected HH:MM")
		}
		h, err := ParseClock(s)
		if err != nil {
			return nil, invalid(KeyRideTime, err.Error())
		}
		rt.HourOfDay = h
	default:
		return nil, invalid(models.ColHourOfDay, "field required")
	}

	if !present(raw, models.ColPeakHour) {
		return nil, invalid(models.ColPeakHour, "field required")
	}
	peak, err := toFlag(models.ColPeakHour, raw[models.ColPeakHour])
	if err != nil {
		return nil, err
	}
	rt.PeakHour = peak

	if present(raw, models.ColIsWeekend) {
		weekend, err := toFlag(models.ColIsWeekend, raw[models.ColIsWeekend])
		if err != nil {
			return nil, err
		}
		if weekend != rt.IsWeekend {
			return nil, invalid(models.ColIsWeekend, "inconsistent with day_of_week")
		}
	}

	return &rt, nil
}

func checkRange(col string, v float64) error {
	switch col {
	case models.ColDriverRatings, models.ColCustomerRating:
		if v < 1 || v > 5 {
			return invalid(col, "must be in [1, 5]")
		}
	default:
		if v < 0 {
			return invalid(col, "must be non-negative")
		}
	}
	return nil
}

func present(raw map[string]any, key string) bool {
	v, ok := raw[key]
	if !ok || v == nil {
		return false
	}
	if s, isStr := v.(string); isStr && strings.TrimSpace(s) == "" {
		return false
	}
	return true
}

func anyPresent(raw map[string]any, keys []string) bool {
	for _, k := range keys {
		if present(raw, k) {
			return true
		}
	}
	return false
}

func requireNumber(raw map[string]any, field string) (float64, error) {
	if !present(raw, field) {
		return 0, invalid(field, "field required")
	}
	return toNumber(field, raw[field])
}

func toNumber(field string, v any) (float64, error) {
	var f float64
	switch n := v.(type) {
	case float64:
		f = n
	case float32:
		f = float64(n)
	case int:
		f = float64(n)
	case int64:
		f = float64(n)
	case json.Number:
		parsed, err := n.Float64()
		if err != nil {
			return 0, invalid(field, "must be numeric")
		}
		f = parsed
	case string:
		parsed, err := strconv.ParseFloat(strings.TrimSpace(n), 64)
		if err != nil {
			return 0, invalid(field, "must be numeric")
		}
		f = parsed
	default:
		return 0, invalid(field, "must be numeric")
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0, invalid(field, "must be a finite number")
	}
	return f, nil
}

func toString(field string, v any) (string, error) {
	switch s := v.(type) {
	case string:
		return s, nil
	case json.Number:
		return s.String(), nil
	case float64:
		return strconv.FormatFloat(s, 'f', -1, 64), nil
	case int:
		return strconv.Itoa(s), nil
	case int64:
		return strconv.FormatInt(s, 10), nil
	case bool:
		return strconv.FormatBool(s), nil
	default:
		return "", invalid(field, "must be a string")
	}
}

func toDay(v any) (int, error) {
	if s, ok := v.(string); ok {
		if day, err := ParseDayName(s); err == nil {
			return day, nil
		}
	}
	f, err := toNumber(models.ColDayOfWeek, v)
	if err != nil {
		return 0, invalid(models.ColDayOfWeek, "must be 0-6 or a day name")
	}
	if f != math.Trunc(f) || f < 0 || f > 6 {
		return 0, invalid(models.ColDayOfWeek, "must be 0-6 or a day name")
	}
	return int(f), nil
}

func toFlag(field string, v any) (bool, error) {
	switch b := v.(type) {
	case bool:
		return b, nil
	case string:
		switch strings.ToLower(strings.TrimSpace(b)) {
		case "1", "yes", "y", "true", "on":
			return true, nil
		case "0", "no", "n", "false", "off":
			return false, nil
		}
		return false, invalid(field, "must be a yes/no flag")
	}
	f, err := toNumber(field, v)
	if err != nil || (f != 0 && f != 1) {
		return false, invalid(field, "must be 0 or 1")
	}
	return f == 1, nil
}
