package constants

import (
	"strings"
	"unicode"
)

// Role is the semantic role of a statement column.
type Role string

const (
	RoleDate        Role = "date"
	RoleDescription Role = "description"
	RoleReference   Role = "reference"
	RoleDebit       Role = "debit"
	RoleCredit      Role = "credit"
	RoleAmount      Role = "amount" // signed single-column amount
	RoleBalance     Role = "balance"
	RoleOther       Role = "other"
)

// ValueType is the normalized type a role coerces to.
type ValueType string

const (
	TypeText   ValueType = "text"
	TypeAmount ValueType = "amount"
	TypeDate   ValueType = "date"
)

var allRoles = []Role{
	RoleDate,
	RoleDescription,
	RoleReference,
	RoleDebit,
	RoleCredit,
	RoleAmount,
	RoleBalance,
	RoleOther,
}

// Type returns the value type values of this role normalize to.
func (r Role) Type() ValueType {
	switch r {
	case RoleDate:
		return TypeDate
	case RoleDebit, RoleCredit, RoleAmount, RoleBalance:
		return TypeAmount
	default:
		return TypeText
	}
}

// IsAmount reports whether the role carries a monetary value.
func (r Role) IsAmount() bool { return r.Type() == TypeAmount }

// Valid reports whether r is one of the known roles.
func (r Role) Valid() bool {
	for _, known := range allRoles {
		if r == known {
			return true
		}
	}
	return false
}

// RolesAsStringSlice returns every role in declaration order.
func RolesAsStringSlice() []string {
	result := make([]string, len(allRoles))
	for i, r := range allRoles {
		result[i] = string(r)
	}
	return result
}

type roleSynonyms struct {
	role  Role
	names []string
}

// headerSynonyms is ordered: the first role whose synonym matches wins, so
// the more specific roles come first.
var headerSynonyms = []roleSynonyms{
	{RoleDate, []string{"date", "txn date", "transaction date", "value date", "posting date", "tran date"}},
	{RoleBalance, []string{"balance", "closing balance", "available balance", "avail bal", "bal", "ledger bal", "running balance"}},
	{RoleDebit, []string{"debit", "debit amt", "withdrawal", "withdrawal amount", "withdrawals", "dr", "amount debit", "paid", "paid out"}},
	{RoleCredit, []string{"credit", "credit amt", "deposit", "deposit amount", "deposits", "cr", "amount credit", "received", "paid in"}},
	{RoleReference, []string{"chq no", "cheque no", "chq ref no", "ref no", "reference", "ref", "chq"}},
	{RoleDescription, []string{"description", "narration", "details", "particulars", "remarks", "narr", "transaction details"}},
	{RoleAmount, []string{"amount", "amt", "transaction amount"}},
}

// HeaderKey reduces a header to its lowercase ASCII letters, which is the
// form synonym matching operates on.
func HeaderKey(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(s) {
		if r < unicode.MaxASCII && unicode.IsLetter(r) {
			b.WriteRune(r)
		}
	}
	return b.String()
}

// CanonicalizeHeader maps a column header to a role using the synonym table,
// merged with caller-supplied extra synonyms (extra is consulted first).
// Exact matches across all roles are tried before containment matches.
func CanonicalizeHeader(header string, extra map[Role][]string) (Role, bool) {
	key := HeaderKey(header)
	if key == "" {
		return RoleOther, false
	}

	table := synonymTable(extra)
	for _, rs := range table {
		for _, name := range rs.names {
			if HeaderKey(name) == key {
				return rs.role, true
			}
		}
	}
	for _, rs := range table {
		for _, name := range rs.names {
			syn := HeaderKey(name)
			if len(syn) >= 3 && strings.Contains(key, syn) {
				return rs.role, true
			}
			if len(key) >= 4 && strings.Contains(syn, key) {
				return rs.role, true
			}
		}
	}
	return RoleOther, false
}

func synonymTable(extra map[Role][]string) []roleSynonyms {
	if len(extra) == 0 {
		return headerSynonyms
	}
	out := make([]roleSynonyms, 0, len(headerSynonyms)+len(extra))
	// iterate allRoles rather than the map so the order is stable
	for _, r := range allRoles {
		if names, ok := extra[r]; ok && len(names) > 0 {
			out = append(out, roleSynonyms{role: r, names: names})
		}
	}
	return append(out, headerSynonyms...)
}
