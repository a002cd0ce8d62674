package models

// Menu items offered on the order form.
var (
	CoffeeTypes = []string{
		"Espresso",
		"Cappuccino",
		"Latte",
		"Long Black",
		"Flat White",
		"Piccolo",
		"Iced Latte",
		"Iced Long Black",
		"Chai Latte",
	}

	// MilkNone is the "no milk" sentinel
	MilkNone    = "None"
	MilkOptions = []string{MilkNone, "Cow", "Oat", "Almond", "Soy"}

	ExtraOptions = []string{"Extra shot", "Sugar", "Honey"}
)

// IsCoffeeType reports whether name is on the coffee menu
func IsCoffeeType(name string) bool {
	return contains(CoffeeTypes, name)
}

// IsMilkOption reports whether name is a known milk option
func IsMilkOption(name string) bool {
	return contains(MilkOptions, name)
}

// IsExtra reports whether name is a known extra
func IsExtra(name string) bool {
	return contains(ExtraOptions, name)
}

func contains(list []string, v string) bool {
	for _, item := range list {
		if item == v {
			return true
		}
	}
	return false
}
