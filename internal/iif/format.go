// Package iif renders QuickBooks Desktop IIF import files.
//
// Format rules: tab-separated values, CRLF line endings, ASCII-safe fields,
// UTF-8 without BOM, and TRNS/SPL lines that balance to zero.
package iif

import (
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/rotisserie/eris"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"

	"github.com/sells-group/agentt/internal/model"
)

const (
	tab  = "\t"
	crlf = "\r\n"
)

// Fallback accounts used when a transaction carries no QuickBooks account.
const (
	FallbackExpenseAccount = "Other Farm Expenses"
	FallbackIncomeAccount  = "Other Farm Income"
)

// Header returns the IIF column header rows shared by all transaction types.
func Header() string {
	trns := strings.Join([]string{
		"!TRNS", "TRNSID", "TRNSTYPE", "DATE", "ACCNT", "NAME",
		"AMOUNT", "DOCNUM", "MEMO",
	}, tab)
	spl := strings.Join([]string{
		"!SPL", "SPLID", "TRNSTYPE", "DATE", "ACCNT", "NAME",
		"AMOUNT", "DOCNUM", "MEMO",
	}, tab)
	return strings.Join([]string{trns, spl, "!ENDTRNS"}, crlf)
}

// EffectiveIIFType resolves the IIF type for a transaction, defaulting by
// transaction type when none was set.
func EffectiveIIFType(txn *model.Transaction) model.IIFType {
	if txn.IIFType != "" {
		return txn.IIFType
	}
	return model.DefaultIIFType(txn.Type)
}

// formatBody renders the TRNS/SPL/ENDTRNS block for one transaction.
func formatBody(txn *model.Transaction, entity *model.Entity) (string, error) {
	switch EffectiveIIFType(txn) {
	case model.IIFBill:
		return formatBillBody(txn, entity), nil
	case model.IIFCheck:
		return formatCheckBody(txn, entity), nil
	case model.IIFDeposit:
		return formatDepositBody(txn, entity), nil
	default:
		return "", eris.Errorf("iif: unknown iif type %q", txn.IIFType)
	}
}

// formatBillBody renders an accounts-payable entry from a vendor invoice:
// negative amount on AP, positive on the expense account.
func formatBillBody(txn *model.Transaction, entity *model.Entity) string {
	amount := abs(txn.Amount)
	date := formatDate(txn.Date)
	vendor := safeField(txn.VendorCustomer)
	memo := safeField(txn.Description)
	refNum := safeField(txn.ReferenceNumber)
	expenseAccount := txn.QBAccount
	if expenseAccount == "" {
		expenseAccount = FallbackExpenseAccount
	}

	trns := strings.Join([]string{
		"TRNS", "", "BILL", date, entity.AccountsPayable(), vendor,
		fmt.Sprintf("-%.2f", amount), refNum, memo,
	}, tab)
	spl := strings.Join([]string{
		"SPL", "", "BILL", date, expenseAccount, vendor,
		fmt.Sprintf("%.2f", amount), refNum, memo,
	}, tab)
	return strings.Join([]string{trns, spl, "ENDTRNS"}, crlf)
}

// formatCheckBody renders a direct payment: negative amount on checking,
// positive on the expense account.
func formatCheckBody(txn *model.Transaction, entity *model.Entity) string {
	amount := abs(txn.Amount)
	date := formatDate(txn.Date)
	vendor := safeField(txn.VendorCustomer)
	memo := safeField(txn.Description)
	refNum := safeField(txn.ReferenceNumber)
	expenseAccount := txn.QBAccount
	if expenseAccount == "" {
		expenseAccount = FallbackExpenseAccount
	}

	trns := strings.Join([]string{
		"TRNS", "", "CHECK", date, entity.Checking(), vendor,
		fmt.Sprintf("-%.2f", amount), refNum, memo,
	}, tab)
	spl := strings.Join([]string{
		"SPL", "", "CHECK", date, expenseAccount, vendor,
		fmt.Sprintf("%.2f", amount), refNum, memo,
	}, tab)
	return strings.Join([]string{trns, spl, "ENDTRNS"}, crlf)
}

// formatDepositBody renders an income deposit: positive amount on checking
// with no name, negative on the income account with the customer.
func formatDepositBody(txn *model.Transaction, entity *model.Entity) string {
	amount := abs(txn.Amount)
	date := formatDate(txn.Date)
	customer := safeField(txn.VendorCustomer)
	memo := safeField(txn.Description)
	refNum := safeField(txn.ReferenceNumber)
	incomeAccount := txn.QBAccount
	if incomeAccount == "" {
		incomeAccount = FallbackIncomeAccount
	}

	trns := strings.Join([]string{
		"TRNS", "", "DEPOSIT", date, entity.Checking(), "",
		fmt.Sprintf("%.2f", amount), refNum, memo,
	}, tab)
	spl := strings.Join([]string{
		"SPL", "", "DEPOSIT", date, incomeAccount, customer,
		fmt.Sprintf("-%.2f", amount), refNum, memo,
	}, tab)
	return strings.Join([]string{trns, spl, "ENDTRNS"}, crlf)
}

// formatDate renders MM/DD/YYYY; a zero date renders empty.
func formatDate(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.Format("01/02/2006")
}

// asciiFold strips combining marks after NFD decomposition, turning "Café"
// into "Cafe".
var asciiFold = transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)

// safeField makes a string safe for an IIF field: no tabs, no line breaks,
// diacritics folded to their ASCII base characters.
func safeField(s string) string {
	if folded, _, err := transform.String(asciiFold, s); err == nil {
		s = folded
	}
	s = strings.ReplaceAll(s, "\t", " ")
	s = strings.ReplaceAll(s, "\r", "")
	s = strings.ReplaceAll(s, "\n", " ")
	return strings.TrimSpace(s)
}

func abs(f float64) float64 {
	if f < 0 {
		return -f
	}
	return f
}
