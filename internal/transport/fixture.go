package transport

import "fmt"

// buildApprovedFixture hand-assembles a wire-valid approved-purchase
// response frame using the same control bytes and TLV layout the tef
// package decodes (§4.1), without importing that package: the mock
// transport only ever needs to produce bytes, not interpret them.
func buildApprovedFixture() []byte {
	const (
		stx       = 0x02
		etx       = 0x03
		separator = 0x1C
	)

	field := func(fieldType string, width int, value string) []byte {
		if len(value) > width {
			value = value[:width]
		}
		for len(value) < width {
			value += " "
		}
		return append([]byte(fmt.Sprintf("%s%04X", fieldType, width)), value...)
	}

	var body []byte
	body = append(body, "6000000000"...) // transport header
	body = append(body, "1000000"...)    // purchase presentation header
	body = append(body, separator)
	body = append(body, field("01", 6, "917107")...) // auth code
	body = append(body, separator)
	body = append(body, field("40", 12, "000005000000")...) // amount
	body = append(body, separator)
	body = append(body, field("48", 2, "00")...) // response code: approved

	lengthValue := len(body) + 1
	frame := make([]byte, 0, 1+4+len(body)+2)
	frame = append(frame, stx)
	frame = append(frame, []byte(fmt.Sprintf("%04d", lengthValue))...)
	frame = append(frame, body...)
	frame = append(frame, etx)

	var lrc byte
	for _, b := range frame[1:] {
		lrc ^= b
	}
	frame = append(frame, lrc)

	return frame
}
