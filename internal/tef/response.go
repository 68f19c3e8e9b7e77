package tef

// Field numbers for the auxiliary response attributes that are populated on
// approval. These are inferred from one observed terminal capture (not
// published by the vendor); see DESIGN.md's Open Questions for the caveat.
const (
	fieldAuthCode     = "01"
	fieldRespAmount   = "40"
	fieldFranchise    = "49"
	fieldAccountType  = "50"
	fieldMaskedPAN    = "75"
	fieldTxnDate      = "76"
	fieldReceiptNoRsp = "79"
)

// TerminalResponse is the decoded outcome of a purchase or reversal
// exchange. Approved is the only field the approval gate (§4.1) guarantees;
// everything else is best-effort from whatever fields the terminal sent.
type TerminalResponse struct {
	Approved     bool
	ResponseCode string
	Message      string
	Fields       map[string]ParsedField
}

// field returns the trimmed ASCII value of a field, or "" if absent.
func (r TerminalResponse) field(fieldType string) string {
	if f, ok := r.Fields[fieldType]; ok {
		return f.ASCIITrimmed()
	}
	return ""
}

// AuthCode returns the authorization code on approval, else "".
func (r TerminalResponse) AuthCode() string { return r.field(fieldAuthCode) }

// Amount returns the approved amount as the terminal echoed it, else "".
func (r TerminalResponse) Amount() string { return r.field(fieldRespAmount) }

// Franchise returns the card network/franchise descriptor, else "".
func (r TerminalResponse) Franchise() string { return r.field(fieldFranchise) }

// AccountType returns the account type code (e.g. "CR", "SV"), else "".
func (r TerminalResponse) AccountType() string { return r.field(fieldAccountType) }

// MaskedPAN returns the masked card number fragment the terminal sent,
// else "". The terminal profile observed here sends a BIN fragment rather
// than the full "400558******1234" form described in the glossary.
func (r TerminalResponse) MaskedPAN() string { return r.field(fieldMaskedPAN) }

// TransactionDate returns the terminal's date field, else "".
func (r TerminalResponse) TransactionDate() string { return r.field(fieldTxnDate) }

// ReceiptNumber returns the receipt number field, else "".
func (r TerminalResponse) ReceiptNumber() string { return r.field(fieldReceiptNoRsp) }
