package transaction

// Transaction direction and derived category values.
const (
	TypeCredit = "credit"
	TypeDebit  = "debit"

	CategoryIncome  = "income"
	CategoryExpense = "expense"
)

// CategoryForType derives the spending category from a transaction
// direction. Credits are income, everything else is an expense.
func CategoryForType(txType string) string {
	if txType == TypeCredit {
		return CategoryIncome
	}
	return CategoryExpense
}
