package protocol

// PingByte identifies a heartbeat frame.
const PingByte byte = 0x09

// PingFrame returns a fresh one-byte heartbeat payload.
func PingFrame() []byte { return []byte{PingByte} }

// IsPing reports whether a binary frame is a heartbeat.
func IsPing(b []byte) bool { return len(b) == 1 && b[0] == PingByte }
