package lor

import "time"

// Wire constants. ReferenceVoltage is the load voltage at which an
// intensity maps one to one onto the controller's scale; lower voltages are
// dimmed proportionally. HeartbeatPeriod is how often Link sends Heartbeat.
// CmdSetIntensity is byte 2 of a Packet and CircuitFlag is OR'ed with the
// zero-based circuit in byte 4.
const (
	ReferenceVoltage = 220.0
	HeartbeatPeriod  = 500 * time.Millisecond

	CmdSetIntensity = 0x03
	CircuitFlag     = 0x80

	IntensityOff  = 0xF0 // darkest code the controller accepts
	IntensityFull = 0x01
)

// Heartbeat keeps the controller treating the link as live.
var Heartbeat = [5]byte{0x00, 0xFF, 0x81, 0x56, 0x00}

// Address locates one output circuit on the controller network.
type Address struct {
	Unit    uint8
	Circuit uint8 // 1-16
	Voltage float64
}

// Packet is a single set-intensity command for one circuit.
type Packet [6]byte

// EncodeIntensity maps an intensity in [0,1] onto the wire:
//
//	[0x00][unit][0x03][intensity code][0x80 | circuit-1][0x00]
//
// The voltage of the load scales the intensity against a 220V reference
// before it is turned into the controller's inverted percentage code.
func EncodeIntensity(intensity float64, addr Address) Packet {
	scaled := intensity * (addr.Voltage / ReferenceVoltage)
	pct := (1 - scaled) * 100
	if pct > 100 {
		pct = 100
	} else if pct < 0 {
		pct = 0
	}

	return Packet{
		0x00,
		addr.Unit,
		CmdSetIntensity,
		intensityCode(pct),
		CircuitFlag | ((addr.Circuit - 1) & 0x0F),
		0x00,
	}
}

// intensityCode converts an inverted percentage (0 = full on, 100 = off) into
// the controller's intensity byte.
func intensityCode(pct float64) byte {
	switch {
	case pct > 99:
		return IntensityOff
	case pct < 1:
		return IntensityFull
	default:
		return uint8(pct*2 + 30)
	}
}
