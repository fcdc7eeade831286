// Package sensor defines the hardware boundary of the bottle. The controller
// only sees these interfaces; a hardware backend would wire them to GPIO/ADC
// pins, the simulated bank stands in for them everywhere else.
package sensor

// Bank groups the bottle's physical inputs. Implementations return logical
// values: a backend whose tilt switch is mounted inverted is responsible for
// flipping the raw reading before it crosses this boundary.
type Bank interface {
	// LidOpen reports the raw cap switch: true while the cap is off.
	LidOpen() bool

	// Tilted reports the raw tilt switch: true while the bottle is tipped.
	Tilted() bool

	// Dial reports the raw selector potentiometer reading, 0-4095.
	Dial() int

	// ReadMic reports one raw microphone ADC sample, 0-4095.
	ReadMic() int

	// ReadColor reports one RGB reading, each channel 0-255. An error means
	// the color sensor is unavailable.
	ReadColor() (r, g, b uint8, err error)
}
