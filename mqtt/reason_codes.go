// Copyright (c) Microsoft Corporation.
// Licensed under the MIT License.
package mqtt

// MQTT v5 reason codes the session client inspects.
const (
	reasonUnspecifiedError      byte = 0x80
	reasonMalformedPacket       byte = 0x81
	reasonProtocolError         byte = 0x82
	reasonUnsupportedProtocol   byte = 0x84
	reasonClientIDNotValid      byte = 0x85
	reasonBadUsernameOrPassword byte = 0x86
	reasonNotAuthorized         byte = 0x87
	reasonBanned                byte = 0x8A
	reasonBadAuthMethod         byte = 0x8C
	reasonSessionTakenOver      byte = 0x8E
	reasonTopicFilterInvalid    byte = 0x8F
	reasonTopicNameInvalid      byte = 0x90
	reasonPacketTooLarge        byte = 0x95
	reasonPayloadFormatInvalid  byte = 0x99
	reasonRetainNotSupported    byte = 0x9A
	reasonQoSNotSupported       byte = 0x9B
	reasonUseAnotherServer      byte = 0x9C
	reasonServerMoved           byte = 0x9D
	reasonWildcardsNotSupported byte = 0xA2
)

var fatalConnackReasonCodes = map[byte]struct{}{
	reasonMalformedPacket:       {},
	reasonProtocolError:         {},
	reasonUnsupportedProtocol:   {},
	reasonClientIDNotValid:      {},
	reasonBadUsernameOrPassword: {},
	reasonNotAuthorized:         {},
	reasonBanned:                {},
	reasonBadAuthMethod:         {},
	reasonUseAnotherServer:      {},
	reasonServerMoved:           {},
}

var fatalDisconnectReasonCodes = map[byte]struct{}{
	reasonMalformedPacket:       {},
	reasonProtocolError:         {},
	reasonNotAuthorized:         {},
	reasonSessionTakenOver:      {},
	reasonTopicFilterInvalid:    {},
	reasonTopicNameInvalid:      {},
	reasonPacketTooLarge:        {},
	reasonPayloadFormatInvalid:  {},
	reasonRetainNotSupported:    {},
	reasonQoSNotSupported:       {},
	reasonUseAnotherServer:      {},
	reasonServerMoved:           {},
	reasonWildcardsNotSupported: {},
}

func isFatalConnack(code byte) bool {
	_, ok := fatalConnackReasonCodes[code]
	return ok
}

func isFatalDisconnect(code byte) bool {
	_, ok := fatalDisconnectReasonCodes[code]
	return ok
}

func isFailure(code byte) bool {
	return code >= reasonUnspecifiedError
}
