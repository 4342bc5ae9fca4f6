package common

import (
	"fmt"
	"strings"
)

const (
	// Default separator widths
	DefaultWidth = 80
	WideWidth    = 100
)

// PrintSeparator prints a separator line with the specified character and width
func PrintSeparator(char string, width int) {
	fmt.Println(strings.Repeat(char, width))
}

// PrintHeader prints a title between two rules
func PrintHeader(title string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(title)
	PrintSeparator("=", width)
}

// PrintFooter prints a closing message under a rule
func PrintFooter(message string, width int) {
	fmt.Println("\n" + strings.Repeat("=", width))
	fmt.Println(message)
	fmt.Println(strings.Repeat("=", width) + "\n")
}

// BoxPrefix returns the box-drawing prefix for list items
func BoxPrefix(isLast bool) string {
	if isLast {
		return "└  "
	}
	return "├  "
}

// BoxDetailPrefix returns the prefix for detail lines under list items
func BoxDetailPrefix(isLast bool) string {
	if isLast {
		return "   "
	}
	return "│  "
}

// FormatCoins renders an amount with its unit
func FormatCoins(amount int64) string {
	if amount == 1 || amount == -1 {
		return fmt.Sprintf("%d coin", amount)
	}
	return fmt.Sprintf("%d coins", amount)
}

// FormatAccountLine renders one account for listings
func FormatAccountLine(a AccountInfo) string {
	role := ""
	if a.IsAdmin {
		role = " [admin]"
	}
	return fmt.Sprintf("%s <%s>%s: %s", a.Name, a.Email, role, FormatCoins(a.Balance))
}
