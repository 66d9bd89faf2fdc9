package cli

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"github.com/fatih/color"

	"github.com/mmeshcher/courier-agent/internal/model"
)

var (
	okMark   = color.New(color.FgGreen).Sprint("✓")
	warnMark = color.New(color.FgYellow).Sprint("!")
	failMark = color.New(color.FgRed).Sprint("✗")
)

func statusText(s model.OrderStatus) string {
	label := s.Label()
	switch s {
	case model.StatusUnassigned:
		return color.New(color.FgCyan).Sprint(label)
	case model.StatusAccepted, model.StatusAssigned:
		return color.New(color.FgBlue).Sprint(label)
	case model.StatusPickedUp:
		return color.New(color.FgYellow).Sprint(label)
	case model.StatusDelivered:
		return color.New(color.FgGreen).Sprint(label)
	case model.StatusDeclined:
		return color.New(color.FgRed).Sprint(label)
	}
	return label
}

func printOrders(out io.Writer, orders []model.Order, withDistance bool) {
	if len(orders) == 0 {
		fmt.Fprintln(out, "No orders found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	header := "ID\tORDER\tSOURCE\tSTATUS\tCUSTOMER\tTOTAL"
	if withDistance {
		header += "\tDISTANCE"
	}
	fmt.Fprintln(w, header)

	for _, o := range orders {
		line := fmt.Sprintf("%s\t%s\t%s\t%s\t%s\t%s",
			o.ID, o.DisplayID(), o.Source, statusText(o.Status), o.CustomerName, o.TotalAmount.StringFixed(2))
		if withDistance {
			dist := "-"
			if o.DistanceKm != nil {
				dist = fmt.Sprintf("%.1f km", *o.DistanceKm)
			}
			line += "\t" + dist
		}
		fmt.Fprintln(w, line)
	}
	w.Flush()
}

func printOrder(out io.Writer, o model.Order) {
	fmt.Fprintf(out, "Order %s (%s, %s)\n", o.DisplayID(), o.Source, statusText(o.Status))
	fmt.Fprintf(out, "  Customer: %s, %s\n", o.CustomerName, o.CustomerPhone)
	if o.Pickup.Address != "" {
		fmt.Fprintf(out, "  Pickup:   %s\n", o.Pickup.Address)
	}
	if o.Delivery.Address != "" {
		fmt.Fprintf(out, "  Delivery: %s\n", o.Delivery.Address)
	}
	fmt.Fprintf(out, "  Total:    %s\n", o.TotalAmount.StringFixed(2))
}

func printEarnings(out io.Writer, list []model.Earnings) {
	if len(list) == 0 {
		fmt.Fprintln(out, "No earnings found")
		return
	}

	w := tabwriter.NewWriter(out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "MONTH\tYEAR\tORDERS\tGROSS\tBONUS\tDEDUCTIONS\tNET\tPAID")
	for _, e := range list {
		paid := color.New(color.FgYellow).Sprint("pending")
		if e.Paid {
			paid = color.New(color.FgGreen).Sprint("paid")
		}
		fmt.Fprintf(w, "%s\t%d\t%d\t%s\t%s\t%s\t%s\t%s\n",
			e.Month, e.Year, e.OrderCount,
			e.Gross.StringFixed(2), e.Bonus.StringFixed(2), e.Deductions.StringFixed(2), e.Net.StringFixed(2),
			paid)
	}
	w.Flush()
}

func printCourier(out io.Writer, c model.Courier) {
	fmt.Fprintf(out, "%s (id %s)\n", c.Name, c.ID)
	if c.Phone != "" {
		fmt.Fprintf(out, "  Phone:    %s\n", c.Phone)
	}
	if c.VehicleNumber != "" {
		fmt.Fprintf(out, "  Vehicle:  %s %s\n", c.VehicleType, c.VehicleNumber)
	}
	if c.Location != nil {
		fmt.Fprintf(out, "  Location: %.5f, %.5f\n", c.Location.Latitude, c.Location.Longitude)
	}
}

// readLine читает строку ввода. Пустой ввод в конце потока возвращает io.EOF.
func readLine(in *bufio.Reader, out io.Writer, label string) (string, error) {
	fmt.Fprint(out, label)
	line, err := in.ReadString('\n')
	if err != nil && !(errors.Is(err, io.EOF) && line != "") {
		fmt.Fprintln(out)
		return "", err
	}
	return strings.TrimSpace(line), nil
}

func askYesNo(in *bufio.Reader, out io.Writer, question string) (bool, error) {
	answer, err := readLine(in, out, question+" [y/N]: ")
	if err != nil {
		if errors.Is(err, io.EOF) {
			return false, nil
		}
		return false, err
	}
	switch strings.ToLower(answer) {
	case "y", "yes":
		return true, nil
	}
	return false, nil
}
