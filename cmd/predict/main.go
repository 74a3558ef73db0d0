package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/aigoflow/rideguard/pkg/client"
)

func main() {
	var (
		transport = flag.String("transport", "http", "Transport to use: http or nats")
		httpURL   = flag.String("url", "http://127.0.0.1:8081", "Server base URL (http transport)")
		natsURL   = flag.String("nats", "nats://127.0.0.1:4222", "NATS server URL (nats transport)")
		subject   = flag.String("subject", "rides.predict.request", "Work queue subject (nats transport)")
		timeout   = flag.Duration("timeout", 30*time.Second, "Request timeout")
		asJSON    = flag.Bool("json", false, "Print the raw response as JSON")
		health    = flag.String("health", "", "Query replica health for this model name and exit (nats transport)")

		bookingValue   = flag.Float64("booking-value", 0, "Booking value")
		rideDistance   = flag.Float64("ride-distance", 0, "Ride distance (km)")
		driverRatings  = flag.Float64("driver-ratings", 3, "Driver rating, 1-5")
		customerRating = flag.Float64("customer-rating", 3, "Customer rating, 1-5")
		avgVTAT        = flag.Float64("avg-vtat", 0, "Average vehicle arrival time (minutes)")
		avgCTAT        = flag.Float64("avg-ctat", 0, "Average customer arrival time (minutes)")
		vehicleType    = flag.String("vehicle-type", "auto", "Vehicle type")
		pickup         = flag.String("pickup", "", "Pickup location")
		drop           = flag.String("drop", "", "Drop location")
		payment        = flag.String("payment", "upi", "Payment method")

		day      = flag.Int("day", -1, "Day of week, Monday=0 (optional)")
		date     = flag.String("date", "", "Ride date YYYY-MM-DD, alternative to -day (optional)")
		rideTime = flag.String("time", "", "Ride time HH:MM (optional)")
		peak     = flag.String("peak", "", "Peak hour yes/no (optional)")
	)
	flag.Parse()

	ride := client.RideRequest{
		BookingValue:   *bookingValue,
		RideDistance:   *rideDistance,
		DriverRatings:  *driverRatings,
		CustomerRating: *customerRating,
		AvgVTAT:        *avgVTAT,
		AvgCTAT:        *avgCTAT,
		VehicleType:    *vehicleType,
		PickupLocation: *pickup,
		DropLocation:   *drop,
		PaymentMethod:  *payment,
		RideDate:       *date,
		RideTime:       *rideTime,
	}
	if *day >= 0 {
		ride.DayOfWeek = day
	}
	if *peak != "" {
		p, err := parseYesNo(*peak)
		if err != nil {
			fatalf("%v", err)
		}
		ride.PeakHour = &p
	}

	ctx, cancel := context.WithTimeout(context.Background(), *timeout)
	defer cancel()

	var c client.PredictionClient
	switch *transport {
	case "http":
		c = client.NewHTTPClient(*httpURL)
	case "nats":
		nc, err := client.NewNATSClient(*natsURL, *subject, "")
		if err != nil {
			fatalf("%v", err)
		}
		nc.SetTimeout(*timeout)
		if *health != "" {
			defer nc.Close()
			printHealth(ctx, nc, *health)
			return
		}
		c = nc
	default:
		fatalf("unknown transport %q (want http or nats)", *transport)
	}
	defer c.Close()

	resp, err := c.Predict(ctx, ride)
	if err != nil {
		fatalf("prediction request failed: %v", err)
	}

	if *asJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		_ = enc.Encode(resp)
	} else {
		printResponse(resp)
	}
	if resp.Error != "" {
		os.Exit(2)
	}
}

func printResponse(resp *client.PredictResponse) {
	if resp.Error != "" {
		fmt.Printf("Error: %s\n", resp.Error)
		return
	}
	if resp.Cancelled() {
		fmt.Println("Your Ride is likely to be CANCELLED")
	} else {
		fmt.Println("Your Ride is unlikely to be Cancelled")
	}
	fmt.Printf("  %s\n", resp.Prediction)
	if resp.Probability != nil && resp.Confidence != nil {
		fmt.Printf("  Probability of cancellation: %.2f\n", *resp.Probability)
		fmt.Printf("  Confidence: %.2f%%\n", *resp.Confidence)
	}
	if resp.Threshold != nil {
		fmt.Printf("  Threshold: %.2f\n", *resp.Threshold)
	}
	if resp.ModelVersion != "" {
		fmt.Printf("  Model: %s\n", resp.ModelVersion)
	}
}

func printHealth(ctx context.Context, c *client.NATSClient, model string) {
	h, err := c.CheckHealth(ctx, model)
	if err != nil {
		fatalf("%v", err)
	}
	fmt.Printf("%s on %s: %s\n", h.ModelName, h.Instance, h.Status)
	if h.Reason != "" {
		fmt.Printf("  Reason: %s\n", h.Reason)
	}
	fmt.Printf("  Capabilities: %s\n", strings.Join(h.Capabilities, ", "))
	fmt.Printf("  Threshold: %.2f  Uptime: %s\n", h.Threshold, h.Uptime)
}

func parseYesNo(s string) (bool, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "yes", "y", "true", "1":
		return true, nil
	case "no", "n", "false", "0":
		return false, nil
	}
	return false, fmt.Errorf("invalid -peak value %q (want yes or no)", s)
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, "Error: "+format+"\n", args...)
	os.Exit(1)
}
