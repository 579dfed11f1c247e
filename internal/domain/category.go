package domain

import (
	"fmt"
	"strings"
	"unicode/utf8"
)

// Category identifies the form a ticket was submitted from.
type Category string

const (
	CategoryEmployeeRegistration Category = "registration/employee"
	CategoryGuestRegistration    Category = "registration/guest"
	CategoryTransportBooking     Category = "transport/booking"
	CategoryGuestHouseVisitor    Category = "guesthouse/visitor"
	CategoryServiceMaintenance   Category = "service/maintenance"
)

type categoryRules struct {
	prefix          string
	required        []string
	amountField     string
	defaultPriority TicketPriority
}

var categories = map[Category]categoryRules{
	CategoryEmployeeRegistration: {
		prefix:          "REG",
		required:        []string{"employeeId", "fullName", "officeEmail", "department", "managerName", "contactNumber"},
		defaultPriority: TicketPriorityHigh,
	},
	CategoryGuestRegistration: {
		prefix:          "REG",
		required:        []string{"guestName", "guestContact", "visitPurpose", "visitDuration", "hostEmployee", "hostDepartment", "arrivalDate", "idProofType"},
		amountField:     "visitDuration",
		defaultPriority: TicketPriorityHigh,
	},
	CategoryTransportBooking: {
		prefix:          "TRN",
		required:        []string{"from", "to", "date", "time", "passengers"},
		amountField:     "passengers",
		defaultPriority: TicketPriorityMedium,
	},
	CategoryGuestHouseVisitor: {
		prefix:          "GST",
		required:        []string{"guestName", "hostEmployee", "arrivalDate", "visitDuration"},
		amountField:     "visitDuration",
		defaultPriority: TicketPriorityHigh,
	},
	CategoryServiceMaintenance: {
		prefix:          "SR",
		required:        []string{"problemDescription", "urgencyLevel", "buildingName", "apartmentNumber", "residentName", "contactNumber"},
		amountField:     "estimatedCost",
		defaultPriority: TicketPriorityMedium,
	},
}

// Categories lists every known category.
func Categories() []Category {
	return []Category{
		CategoryEmployeeRegistration,
		CategoryGuestRegistration,
		CategoryTransportBooking,
		CategoryGuestHouseVisitor,
		CategoryServiceMaintenance,
	}
}

// Valid reports whether c is a known category.
func (c Category) Valid() bool {
	_, ok := categories[c]
	return ok
}

// Prefix returns the ticket id prefix for the category.
func (c Category) Prefix() string {
	return categories[c].prefix
}

// RequiredFields returns the fixed set of payload fields the category needs.
func (c Category) RequiredFields() []string {
	return append([]string(nil), categories[c].required...)
}

// AmountField names the numeric payload field compared against
// auto-approve limits. Empty when the category has none.
func (c Category) AmountField() string {
	return categories[c].amountField
}

// DefaultPriority is used when a submission carries no priority.
func (c Category) DefaultPriority() TicketPriority {
	if p := categories[c].defaultPriority; p != "" {
		return p
	}
	return TicketPriorityMedium
}

// MissingFields returns required fields absent or blank in payload, in
// declaration order.
func (c Category) MissingFields(payload map[string]any) []string {
	var missing []string
	for _, field := range categories[c].required {
		if !present(payload[field]) {
			missing = append(missing, field)
		}
	}
	return missing
}

// DefaultTitle renders the summary the portal forms used.
func (c Category) DefaultTitle(payload map[string]any) string {
	switch c {
	case CategoryEmployeeRegistration:
		return "Employee Registration - " + field(payload, "fullName")
	case CategoryGuestRegistration:
		return "Guest Registration - " + field(payload, "guestName")
	case CategoryTransportBooking:
		return fmt.Sprintf("Transport Booking - %s to %s", field(payload, "from"), field(payload, "to"))
	case CategoryGuestHouseVisitor:
		return "Guest House Visit - " + field(payload, "guestName")
	case CategoryServiceMaintenance:
		return "Service Request - " + Preview(field(payload, "problemDescription"), 60)
	}
	return string(c)
}

func present(v any) bool {
	switch val := v.(type) {
	case nil:
		return false
	case string:
		return strings.TrimSpace(val) != ""
	}
	return true
}

func field(payload map[string]any, key string) string {
	v, ok := payload[key]
	if !ok || v == nil {
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

// Preview trims s and shortens it to at most max runes, marking the cut
// with "...".
func Preview(s string, max int) string {
	s = strings.TrimSpace(s)
	if utf8.RuneCountInString(s) <= max {
		return s
	}
	if max <= 0 {
		return ""
	}
	runes := []rune(s)
	if max <= 3 {
		return string(runes[:max])
	}
	return string(runes[:max-3]) + "..."
}
