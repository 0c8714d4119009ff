// Package categorize maps vendors and transaction context to Schedule F
// categories and QuickBooks accounts. Learned vendor mappings win, then the
// built-in vendor defaults (with fuzzy matching), then the model decides.
package categorize

import "github.com/sells-group/agentt/internal/model"

// Fallback category slugs when nothing better can be determined.
const (
	FallbackExpenseCategory = "other_expenses"
	FallbackIncomeCategory  = "other_farm_income"
)

// ExpenseCategories lists the Schedule F expense category slugs.
var ExpenseCategories = []string{
	"car_truck_expenses",
	"chemicals",
	"conservation_expenses",
	"custom_hire",
	"depreciation",
	"employee_benefit_programs",
	"feed",
	"fertilizers_lime",
	"freight_trucking",
	"gasoline_fuel_oil",
	"insurance",
	"interest_mortgage",
	"interest_other",
	"labor_hired",
	"pension_profit_sharing",
	"rent_machinery_equipment",
	"rent_land_animals",
	"repairs_maintenance",
	"seeds_plants",
	"storage_warehousing",
	"supplies",
	"taxes",
	"utilities",
	"veterinary_breeding_medicine",
	"other_expenses",
}

// IncomeCategories lists the Schedule F income category slugs.
var IncomeCategories = []string{
	"grain_sales",
	"livestock_sales_purchased",
	"livestock_sales_raised",
	"cooperative_distributions",
	"agricultural_program_payments",
	"ccc_loans_reported",
	"ccc_loans_forfeited",
	"crop_insurance_proceeds",
	"custom_hire_income",
	"other_farm_income",
}

// expenseCategoryToQBAccount maps expense category slugs to QB account names.
var expenseCategoryToQBAccount = map[string]string{
	"car_truck_expenses":           "Car & Truck Expenses",
	"chemicals":                    "Chemicals",
	"conservation_expenses":        "Conservation Expenses",
	"custom_hire":                  "Custom Hire",
	"depreciation":                 "Depreciation",
	"employee_benefit_programs":    "Employee Benefit Programs",
	"feed":                         "Feed",
	"fertilizers_lime":             "Fertilizers & Lime",
	"freight_trucking":             "Freight & Trucking",
	"gasoline_fuel_oil":            "Gasoline, Fuel & Oil",
	"insurance":                    "Insurance",
	"interest_mortgage":            "Interest - Mortgage",
	"interest_other":               "Interest - Other",
	"labor_hired":                  "Labor Hired",
	"pension_profit_sharing":       "Pension & Profit-Sharing",
	"rent_machinery_equipment":     "Rent - Machinery & Equipment",
	"rent_land_animals":            "Rent - Land & Animals",
	"repairs_maintenance":          "Repairs & Maintenance",
	"seeds_plants":                 "Seeds & Plants",
	"storage_warehousing":          "Storage & Warehousing",
	"supplies":                     "Supplies",
	"taxes":                        "Taxes",
	"utilities":                    "Utilities",
	"veterinary_breeding_medicine": "Veterinary, Breeding & Medicine",
	"other_expenses":               "Other Farm Expenses",
}

// incomeCategoryToQBAccount maps income category slugs to QB account names.
var incomeCategoryToQBAccount = map[string]string{
	"grain_sales":                   "Grain Sales",
	"livestock_sales_purchased":     "Livestock Sales - Purchased",
	"livestock_sales_raised":        "Livestock Sales - Raised",
	"cooperative_distributions":     "Cooperative Distributions",
	"agricultural_program_payments": "Agricultural Program Payments",
	"ccc_loans_reported":            "CCC Loans Reported",
	"ccc_loans_forfeited":           "CCC Loans Forfeited",
	"crop_insurance_proceeds":       "Crop Insurance Proceeds",
	"custom_hire_income":            "Custom Hire Income",
	"other_farm_income":             "Other Farm Income",
}

// vendorCategoryDefaults seeds common farm vendors with their usual expense
// categories.
var vendorCategoryDefaults = map[string]string{
	"helena chemical":         "chemicals",
	"helena agri-enterprises": "chemicals",
	"corteva agriscience":     "chemicals",
	"basf":                    "chemicals",
	"syngenta":                "chemicals",
	"bayer cropscience":       "chemicals",
	"fmc corporation":         "chemicals",
	"pioneer":                 "seeds_plants",
	"dekalb":                  "seeds_plants",
	"asgrow":                  "seeds_plants",
	"channel seeds":           "seeds_plants",
	"shell":                   "gasoline_fuel_oil",
	"exxon":                   "gasoline_fuel_oil",
	"chevron":                 "gasoline_fuel_oil",
	"valero":                  "gasoline_fuel_oil",
	"marathon":                "gasoline_fuel_oil",
	"entergy":                 "utilities",
	"cleco":                   "utilities",
	"swepco":                  "utilities",
	"at&t":                    "utilities",
	"john deere financial":    "rent_machinery_equipment",
	"cnh industrial":          "rent_machinery_equipment",
	"agco finance":            "rent_machinery_equipment",
	"farm plan":               "repairs_maintenance",
	"napa auto parts":         "repairs_maintenance",
	"tractor supply":          "supplies",
	"fastenal":                "supplies",
	"progressive insurance":   "insurance",
	"rain and hail":           "insurance",
	"crop risk services":      "insurance",
	"fedex":                   "freight_trucking",
	"ups":                     "freight_trucking",
	"farm bureau insurance":   "insurance",
	"nutrien ag solutions":    "fertilizers_lime",
	"mosaic":                  "fertilizers_lime",
	"cf industries":           "fertilizers_lime",
}

// QBAccountFor returns the QB account name for a category slug, or "" when
// the slug is not in the vocabulary for the transaction type.
func QBAccountFor(categorySlug string, txnType model.TransactionType) string {
	if txnType == model.TransactionIncome {
		return incomeCategoryToQBAccount[categorySlug]
	}
	return expenseCategoryToQBAccount[categorySlug]
}

// CategoriesFor returns the category vocabulary for a transaction type.
func CategoriesFor(txnType model.TransactionType) []string {
	if txnType == model.TransactionIncome {
		return IncomeCategories
	}
	return ExpenseCategories
}

// FallbackCategoryFor returns the catch-all slug for a transaction type.
func FallbackCategoryFor(txnType model.TransactionType) string {
	if txnType == model.TransactionIncome {
		return FallbackIncomeCategory
	}
	return FallbackExpenseCategory
}

func validCategory(slug string, txnType model.TransactionType) bool {
	for _, c := range CategoriesFor(txnType) {
		if c == slug {
			return true
		}
	}
	return false
}
