package narration

import (
	"fmt"
	"strings"
)

// AnonymousDonor is narrated and displayed when the supporter left no name.
const AnonymousDonor = "Anonymous"

// RenderTemplate fills the streamer's narration template. Supported
// placeholders: {donor}, {amount}, {message}.
func RenderTemplate(template, donor, amount, message string) string {
	if strings.TrimSpace(donor) == "" {
		donor = AnonymousDonor
	}
	r := strings.NewReplacer(
		"{donor}", donor,
		"{amount}", amount,
		"{message}", message,
	)
	return strings.TrimSpace(r.Replace(template))
}

// FormatAmount renders cents as a human amount for narration and display.
func FormatAmount(cents int64, currency string) string {
	units := cents / 100
	frac := cents % 100
	if frac < 0 {
		frac = -frac
	}

	switch strings.ToUpper(strings.TrimSpace(currency)) {
	case "BRL":
		return fmt.Sprintf("R$ %d,%02d", units, frac)
	case "USD":
		return fmt.Sprintf("$ %d.%02d", units, frac)
	case "EUR":
		return fmt.Sprintf("€ %d.%02d", units, frac)
	default:
		return fmt.Sprintf("%s %d.%02d", strings.ToUpper(strings.TrimSpace(currency)), units, frac)
	}
}
