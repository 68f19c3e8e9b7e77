package tef

import (
	"fmt"
)

// purchaseField describes one TLV record of the purchase encoding, in the
// fixed emission order of §4.1's field table.
type purchaseField struct {
	fieldType string
	width     int
	value     string
}

// EncodePurchase builds the wire bytes for a PurchaseRequest. It returns
// ErrInvalidRequest if amount or transaction ID are missing, per the data
// model invariant.
func EncodePurchase(req PurchaseRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fields := []purchaseField{
		{FieldAmount, 12, zeroPadded(req.AmountCents, 12)},
		{FieldTax, 12, zeroPadded(req.TaxCents, 12)},
		{FieldTerminalID, 10, req.TerminalID},
		{FieldTransactionID, 10, req.TransactionID},
		{FieldTipCashback, 12, zeroPadded(req.TipCents, 12)},
		{FieldIAC, 12, zeroPadded(req.IAC, 12)},
		{FieldCashierID, 12, req.CashierID},
		{FieldFiller, 12, fillerValue},
	}

	return encodeFrame(HeaderPurchase, fields)
}

// EncodeReversal builds the wire bytes for a ReversalRequest. The REVERSAL
// header is used with the subset of fields this module defines (see
// SPEC_FULL.md "Reversal field set"); the remainder of the vendor's
// reversal field set is not reproduced here.
func EncodeReversal(req ReversalRequest) ([]byte, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	fields := []purchaseField{
		{FieldTerminalID, 10, req.TerminalID},
		{FieldTransactionID, 10, req.TransactionID},
		{FieldCashierID, 12, req.CashierID},
		{FieldReceiptNumber, 6, req.ReceiptNumber},
	}

	return encodeFrame(HeaderReversal, fields)
}

// encodeFrame assembles STX | LENGTH | TRANSPORT_HEADER | PRESENTATION_HEADER
// | (SEP FIELD)* | ETX | LRC. LENGTH is computed first (§4.1 "LRC
// computation order"), as the decimal-ASCII byte count of everything
// between LENGTH and ETX inclusive.
func encodeFrame(presentationHeader string, fields []purchaseField) ([]byte, error) {
	var body []byte
	body = append(body, TransportHeader...)
	body = append(body, presentationHeader...)
	for _, f := range fields {
		body = append(body, Separator)
		body = append(body, encodeField(f.fieldType, f.width, f.value)...)
	}

	lengthValue := len(body) + 1 // + ETX
	if lengthValue > 9999 {
		return nil, fmt.Errorf("%w: encoded body too long (%d bytes)", ErrInvalidRequest, lengthValue)
	}
	lengthBytes := []byte(fmt.Sprintf("%04d", lengthValue))

	frame := make([]byte, 0, 1+len(lengthBytes)+len(body)+2)
	frame = append(frame, STX)
	frame = append(frame, lengthBytes...)
	frame = append(frame, body...)
	frame = append(frame, ETX)

	lrc := computeLRC(frame[1:])
	frame = append(frame, lrc)

	return frame, nil
}

// computeLRC XORs every byte in data together.
func computeLRC(data []byte) byte {
	var lrc byte
	for _, b := range data {
		lrc ^= b
	}
	return lrc
}

// ParsedFrame is the structural result of validating and scanning a raw
// frame, independent of whether it is a request or a response.
type ParsedFrame struct {
	PresentationHeader string
	Fields             map[string]ParsedField
}

// Parse validates a raw frame's structure (STX/ETX presence, minimum
// length, LRC) and scans its TLV fields. It is used both by Decode (to
// build a TerminalResponse) and by tests verifying an encoded frame
// round-trips.
func Parse(raw []byte) (ParsedFrame, error) {
	if len(raw) < 5 {
		return ParsedFrame{}, ErrShortFrame
	}
	if raw[0] != STX {
		return ParsedFrame{}, ErrMalformedFrame
	}

	etxIdx := -1
	for i := len(raw) - 2; i >= 1; i-- {
		if raw[i] == ETX {
			etxIdx = i
			break
		}
	}
	if etxIdx < 0 {
		return ParsedFrame{}, ErrMalformedFrame
	}

	declaredLRC := raw[len(raw)-1]
	computed := computeLRC(raw[1 : len(raw)-1])
	if computed != declaredLRC {
		return ParsedFrame{}, &ChecksumMismatchError{Expected: computed, Received: declaredLRC}
	}

	// Body starts after STX + 4-byte decimal length field + the 10-byte
	// transport header + the 7-byte presentation header, and runs up to
	// (but excluding) ETX.
	const headerSkip = 1 + 4 + len(TransportHeader) + 7
	presentationStart := 1 + 4 + len(TransportHeader)
	bodyStart := headerSkip
	presentationHeader := ""
	if presentationStart+7 <= etxIdx {
		presentationHeader = string(raw[presentationStart : presentationStart+7])
	}
	if bodyStart > etxIdx {
		bodyStart = etxIdx
	}

	return ParsedFrame{
		PresentationHeader: presentationHeader,
		Fields:             parseFields(raw[bodyStart:etxIdx]),
	}, nil
}

// Decode parses a raw response frame into a TerminalResponse.
func Decode(raw []byte) (TerminalResponse, error) {
	parsed, err := Parse(raw)
	if err != nil {
		return TerminalResponse{}, err
	}
	return buildResponse(parsed.Fields), nil
}

// buildResponse applies the approval gate (§4.1) and populates the
// auxiliary response fields from whatever was parsed.
func buildResponse(fields map[string]ParsedField) TerminalResponse {
	resp := TerminalResponse{Fields: fields}

	rc, hasCode := fields[FieldResponseCode]
	if !hasCode {
		resp.Approved = false
		resp.ResponseCode = ""
		resp.Message = "Código desconocido: (none)"
		return resp
	}

	code := rc.ASCIITrimmed()
	resp.ResponseCode = code
	resp.Approved = code == "00"
	resp.Message = DeclineMessage(code)

	if resp.Approved {
		resp.Message = ""
	}

	return resp
}
