package domain

import "strings"

type Category struct {
	Name        string
	Description string
}

// Categories is the closed nine-category marketing taxonomy every
// classification draws its labels from.
var Categories = []Category{
	{Name: "Product", Description: "Features, quality, design, functionality"},
	{Name: "Place", Description: "Distribution, availability, location"},
	{Name: "Price", Description: "Cost, value, pricing strategy"},
	{Name: "Publicity", Description: "Advertising, PR, brand awareness"},
	{Name: "Post-consumption", Description: "Customer service, support, returns"},
	{Name: "Purpose", Description: "Brand mission, values, social responsibility"},
	{Name: "Partnerships", Description: "Collaborations, sponsorships"},
	{Name: "People", Description: "Employees, leadership, company culture"},
	{Name: "Planet", Description: "Sustainability, environmental impact"},
}

var categoryByKey = func() map[string]string {
	m := make(map[string]string, len(Categories))
	for _, c := range Categories {
		m[strings.ToLower(c.Name)] = c.Name
	}
	return m
}()

// CanonicalCategory maps a label to its taxonomy spelling, matching
// case-insensitively. ok is false for labels outside the taxonomy.
func CanonicalCategory(label string) (string, bool) {
	name, ok := categoryByKey[strings.ToLower(strings.TrimSpace(label))]
	return name, ok
}

func CategoryNames() []string {
	names := make([]string, len(Categories))
	for i, c := range Categories {
		names[i] = c.Name
	}
	return names
}
