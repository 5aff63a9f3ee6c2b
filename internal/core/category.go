package core

// Category labels a transaction for grouping and display.
type Category string

const (
	Salary         Category = "Salary"
	Food           Category = "Food"
	Transportation Category = "Transportation"
	Entertainment  Category = "Entertainment"
	Shopping       Category = "Shopping"
	Utilities      Category = "Utilities"
	Housing        Category = "Housing"
	Freelance      Category = "Freelance"
	Other          Category = "Other"
)

// CategoryInfo describes how a category is presented.
type CategoryInfo struct {
	Name        Category        `json:"name"`
	DefaultType TransactionType `json:"default_type"`
	Color       string          `json:"color"`
}

var catalogue = []CategoryInfo{
	{Salary, Income, "#10B981"},
	{Freelance, Income, "#3B82F6"},
	{Food, Expense, "#F59E0B"},
	{Transportation, Expense, "#EF4444"},
	{Entertainment, Expense, "#8B5CF6"},
	{Shopping, Expense, "#EC4899"},
	{Utilities, Expense, "#0EA5E9"},
	{Housing, Expense, "#6366F1"},
	{Other, Expense, "#6B7280"},
}

// Categories returns the catalogue in display order.
func Categories() []CategoryInfo {
	return append([]CategoryInfo(nil), catalogue...)
}

// Known reports whether c belongs to the catalogue.
func (c Category) Known() bool {
	_, ok := c.Info()
	return ok
}

// Info returns the catalogue entry for c.
func (c Category) Info() (CategoryInfo, bool) {
	for _, info := range catalogue {
		if info.Name == c {
			return info, true
		}
	}
	return CategoryInfo{}, false
}
