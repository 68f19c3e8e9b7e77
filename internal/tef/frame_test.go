package tef

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validPurchase() PurchaseRequest {
	return PurchaseRequest{
		AmountCents:   5000000,
		TaxCents:      0,
		TipCents:      0,
		IAC:           100,
		TerminalID:    "001",
		TransactionID: "T000000001",
		CashierID:     "OSCROM",
		SendPAN:       true,
	}
}

// Property 1: round-trip. Every legal field survives encode+parse bit for
// bit, with the documented width and padding.
func TestPurchaseRoundTrip(t *testing.T) {
	req := validPurchase()
	raw, err := EncodePurchase(req)
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)

	assert.Equal(t, HeaderPurchase, parsed.PresentationHeader)
	assert.Equal(t, "000005000000", parsed.Fields[FieldAmount].ASCIITrimmed())
	assert.Equal(t, uint16(12), parsed.Fields[FieldAmount].Length)
	assert.Equal(t, "000000000000", parsed.Fields[FieldTax].ASCIITrimmed())
	assert.Equal(t, "001", parsed.Fields[FieldTerminalID].ASCIITrimmed())
	assert.Equal(t, "T000000001", parsed.Fields[FieldTransactionID].ASCIITrimmed())
	assert.Equal(t, "000000000000", parsed.Fields[FieldTipCashback].ASCIITrimmed())
	assert.Equal(t, "000000000100", parsed.Fields[FieldIAC].ASCIITrimmed())
	assert.Equal(t, "OSCROM", parsed.Fields[FieldCashierID].ASCIITrimmed())
	assert.Equal(t, "000000000000", parsed.Fields[FieldFiller].ASCIITrimmed())
}

// Property 2: LRC self-consistency. Flipping any byte after STX invalidates
// the frame, either via a checksum or a structural error.
func TestLRCSelfConsistency(t *testing.T) {
	raw, err := EncodePurchase(validPurchase())
	require.NoError(t, err)

	_, err = Parse(raw)
	require.NoError(t, err)

	for i := 1; i < len(raw); i++ {
		mutated := append([]byte(nil), raw...)
		mutated[i] ^= 0xFF

		_, err := Parse(mutated)
		assert.Error(t, err, "flipping byte %d should invalidate the frame", i)
	}
}

// Property 3: the decimal length field equals len(frame) - 6 (STX, 4
// length bytes, and LRC excluded; body+ETX included).
func TestLengthField(t *testing.T) {
	raw, err := EncodePurchase(validPurchase())
	require.NoError(t, err)

	declared := string(raw[1:5])
	assert.Equal(t, fourDigitDecimal(len(raw)-6), declared)
}

func fourDigitDecimal(n int) string {
	s := ""
	for i := 0; i < 4; i++ {
		s = string(rune('0'+n%10)) + s
		n /= 10
	}
	return s
}

// Property 4: approval gate. approved is true iff field 48 exists and
// trims to "00".
func TestApprovalGate(t *testing.T) {
	approvedFields := map[string]ParsedField{
		FieldResponseCode: {Type: FieldResponseCode, Length: 2, Value: []byte("00")},
	}
	declinedFields := map[string]ParsedField{
		FieldResponseCode: {Type: FieldResponseCode, Length: 2, Value: []byte("51")},
	}
	noCodeFields := map[string]ParsedField{}

	assert.True(t, buildResponse(approvedFields).Approved)
	assert.False(t, buildResponse(declinedFields).Approved)
	assert.False(t, buildResponse(noCodeFields).Approved)
	assert.Equal(t, "Fondos insuficientes", buildResponse(declinedFields).Message)
}

// S3 Short frame.
func TestShortFrame(t *testing.T) {
	_, err := Parse([]byte{0x02, 0x01})
	assert.ErrorIs(t, err, ErrShortFrame)
}

// S4 LRC mismatch: flipping the last byte of a valid frame produces a
// ChecksumMismatchError naming the original LRC as Expected.
func TestChecksumMismatch(t *testing.T) {
	raw, err := EncodePurchase(validPurchase())
	require.NoError(t, err)
	originalLRC := raw[len(raw)-1]

	mutated := append([]byte(nil), raw...)
	mutated[len(mutated)-1] ^= 0xFF

	_, err = Parse(mutated)
	var mismatch *ChecksumMismatchError
	require.True(t, errors.As(err, &mismatch))
	assert.Equal(t, originalLRC, mismatch.Expected)
	assert.Equal(t, mutated[len(mutated)-1], mismatch.Received)
	assert.NotEqual(t, mismatch.Expected, mismatch.Received)
}

func TestMissingSTXOrETX(t *testing.T) {
	raw, err := EncodePurchase(validPurchase())
	require.NoError(t, err)

	noSTX := append([]byte(nil), raw...)
	noSTX[0] = 0x00
	_, err = Parse(noSTX)
	assert.ErrorIs(t, err, ErrMalformedFrame)

	noETX := raw[:len(raw)-2] // drop ETX and LRC entirely
	noETX = append(noETX, 0xFF)
	_, err = Parse(noETX)
	assert.ErrorIs(t, err, ErrMalformedFrame)
}

func TestInvalidRequestRejected(t *testing.T) {
	_, err := EncodePurchase(PurchaseRequest{AmountCents: 0, TransactionID: "T1"})
	assert.ErrorIs(t, err, ErrInvalidRequest)

	_, err = EncodePurchase(PurchaseRequest{AmountCents: 100, TransactionID: ""})
	assert.ErrorIs(t, err, ErrInvalidRequest)
}

func TestReversalEncoding(t *testing.T) {
	raw, err := EncodeReversal(ReversalRequest{
		ReceiptNumber: "012345",
		TerminalID:    "001",
		TransactionID: "T000000002",
		CashierID:     "OSCROM",
	})
	require.NoError(t, err)

	parsed, err := Parse(raw)
	require.NoError(t, err)
	assert.Equal(t, HeaderReversal, parsed.PresentationHeader)
	assert.Equal(t, "012345", parsed.Fields[FieldReceiptNumber].ASCIITrimmed())
}

func TestTruncationAndPadding(t *testing.T) {
	assert.Equal(t, "AB    ", padOrTruncate("AB", 6))
	assert.Equal(t, "ABCDEF", padOrTruncate("ABCDEFGH", 6))
	assert.Equal(t, "000042", zeroPadded(42, 6))
}

func TestDeclineDictionary(t *testing.T) {
	assert.Equal(t, "Fondos insuficientes", DeclineMessage("51"))
	assert.Equal(t, "Código desconocido: ZZ", DeclineMessage("ZZ"))
}
