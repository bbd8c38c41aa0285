package escalation

// carrierContact is where a carrier receives escalations.
type carrierContact struct {
	Email string
	Phone string
}

var carrierContacts = map[string]carrierContact{
	"FedEx Freight": {Email: "freight-support@fedex.com", Phone: "1-800-463-3339"},
	"UPS Freight":   {Email: "freight@ups.com", Phone: "1-800-333-7400"},
	"YRC Freight":   {Email: "customerservice@yrc.com", Phone: "1-800-610-6500"},
}

// contactFor falls back to the configured default address when the
// carrier is unknown.
func contactFor(carrier, fallbackEmail string) carrierContact {
	if c, ok := carrierContacts[carrier]; ok {
		return c
	}
	return carrierContact{Email: fallbackEmail}
}
