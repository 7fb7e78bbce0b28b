package ad74xx

import (
	"encoding/binary"
	"sync"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"
)

// Bus is the transport a Dev exchanges frames over.
//
// Begin and End bracket one frame. Implementations sharing a physical bus
// with other devices should serialize frames there.
type Bus interface {
	String() string
	Begin() error
	End() error
	Transfer8(w byte) (byte, error)
	// Transfer16 clocks w out MSB first and returns the 16 bits clocked in.
	Transfer16(w uint16) (uint16, error)
}

// PinRouter is implemented by SPI ports whose signals can be routed to
// arbitrary GPIOs at runtime. Microcontrollers with a GPIO matrix (ESP32) and
// bitbang.Port support it; the periph.io host drivers don't.
type PinRouter interface {
	RoutePins(clk, mosi gpio.PinOut, miso gpio.PinIn) error
}

// OutputPin is a digital output as exposed by TinyGo's machine.Pin.
type OutputPin interface {
	Set(high bool)
}

// csPin is the chip select line driven around each frame. gpio.PinOut
// satisfies it.
type csPin interface {
	Out(l gpio.Level) error
}

// tinyGoPin drives a TinyGo output as a chip select line.
type tinyGoPin struct {
	p OutputPin
}

func (t tinyGoPin) Out(l gpio.Level) error {
	t.p.Set(bool(l))
	return nil
}

// spiBus runs frames over a periph.io SPI connection.
type spiBus struct {
	c  spi.Conn
	mu sync.Locker
	w  [2]byte
	r  [2]byte
}

func (b *spiBus) String() string {
	return b.c.String()
}

func (b *spiBus) Begin() error {
	if b.mu != nil {
		b.mu.Lock()
	}
	return nil
}

func (b *spiBus) End() error {
	if b.mu != nil {
		b.mu.Unlock()
	}
	return nil
}

func (b *spiBus) Transfer8(w byte) (byte, error) {
	b.w[0] = w
	if err := b.c.Tx(b.w[:1], b.r[:1]); err != nil {
		return 0, err
	}
	return b.r[0], nil
}

func (b *spiBus) Transfer16(w uint16) (uint16, error) {
	binary.BigEndian.PutUint16(b.w[:], w)
	if err := b.c.Tx(b.w[:], b.r[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b.r[:]), nil
}

// tinyGoBus runs frames over a TinyGo SPI bus, typically a machine.SPI that
// was configured for Mode0, MSB first, by the caller.
type tinyGoBus struct {
	s  drivers.SPI
	mu sync.Locker
	w  [2]byte
	r  [2]byte
}

func (b *tinyGoBus) String() string {
	return "tinygo"
}

func (b *tinyGoBus) Begin() error {
	if b.mu != nil {
		b.mu.Lock()
	}
	return nil
}

func (b *tinyGoBus) End() error {
	if b.mu != nil {
		b.mu.Unlock()
	}
	return nil
}

func (b *tinyGoBus) Transfer8(w byte) (byte, error) {
	return b.s.Transfer(w)
}

func (b *tinyGoBus) Transfer16(w uint16) (uint16, error) {
	binary.BigEndian.PutUint16(b.w[:], w)
	if err := b.s.Tx(b.w[:], b.r[:]); err != nil {
		return 0, err
	}
	return binary.BigEndian.Uint16(b.r[:]), nil
}

var (
	_ Bus   = &spiBus{}
	_ Bus   = &tinyGoBus{}
	_ csPin = gpio.PinOut(nil)
	_ csPin = tinyGoPin{}
)
