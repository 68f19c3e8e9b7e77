// Package tef implements the Credibanco TEF II datáfono frame codec: the
// byte-level encoding and decoding of purchase and reversal messages
// exchanged with the serial card terminal.
package tef

// Control bytes that delimit and acknowledge a TEF II frame.
const (
	STX       byte = 0x02
	ETX       byte = 0x03
	Separator byte = 0x1C
	ACK       byte = 0x06
	NACK      byte = 0x15
)

// TransportHeader is the fixed 10-byte decimal-ASCII transport-level header
// present in every frame, request or response.
const TransportHeader = "6000000000"

// Presentation headers select the operation a frame carries. Each is a
// fixed 7-byte ASCII literal. Headers beyond Purchase/Reversal/Handshake
// are recognized as a dictionary of known values but have no dedicated
// encode path in this module.
const (
	HeaderPurchase  = "1000000"
	HeaderReversal  = "1002000"
	HeaderHandshake = "1000  0"

	HeaderBalanceInquiry = "1003000"
	HeaderCashAdvance    = "1004000"
	HeaderClose          = "1005000"
	HeaderCoupon         = "1006000"
	HeaderBonoRecharge   = "1007000"
)

// Field numbers used by the purchase encoding (§4.1). Reversal reuses
// FieldReceiptNumber; the rest of its field set is vendor-defined and out
// of scope (see SPEC_FULL.md).
const (
	FieldAmount          = "40"
	FieldTax             = "41"
	FieldTerminalID      = "42"
	FieldTransactionID   = "53"
	FieldTipCashback     = "81"
	FieldIAC             = "82"
	FieldCashierID       = "83"
	FieldFiller          = "84"
	FieldReceiptNumber   = "44"
	FieldResponseCode    = "48"
)

// fillerValue is the literal filler field emitted on every purchase frame.
const fillerValue = "000000000000"
