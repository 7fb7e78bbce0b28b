package ad74xx

import (
	"errors"
	"fmt"
	"io"
	"sync"

	"periph.io/x/conn/v3/analog"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"tinygo.org/x/drivers"
)

var (
	// ErrUnknownVariant is returned for a Variant outside the supported table.
	ErrUnknownVariant = errors.New("ad74xx: unknown variant")
	// ErrNoPowerDown is returned by PowerDown and PowerUp on chips without a
	// partial power-down mode.
	ErrNoPowerDown = errors.New("ad74xx: power-down not supported")
	// ErrNoPinRouting is returned by NewSPIPins when the port can't be routed
	// to arbitrary pins.
	ErrNoPinRouting = errors.New("ad74xx: SPI port cannot route pins")
)

// Opts is the configuration for the converter.
type Opts struct {
	// MaxSpeed is the SPI clock (default: 1MHz).
	MaxSpeed physic.Frequency
	// Vref is the reference voltage used to fill analog.Sample.V. Leave it 0
	// to only report raw codes.
	Vref physic.ElectricPotential
	// Lock, if set, is held for the duration of every frame. Share it between
	// devices on the same bus.
	Lock sync.Locker
}

// DefaultOpts is used when nil is passed as opts.
var DefaultOpts = Opts{
	MaxSpeed: 1 * physic.MegaHertz,
}

func (o *Opts) resolve() Opts {
	if o == nil {
		return DefaultOpts
	}
	r := *o
	if r.MaxSpeed <= 0 {
		r.MaxSpeed = DefaultOpts.MaxSpeed
	}
	return r
}

// Dev is a handle to an AD74xx converter.
//
// A Dev is not safe for concurrent use.
type Dev struct {
	v     Variant
	bits  int
	bus   Bus
	cs    csPin     // nil when the bus frames CS itself
	owned io.Closer // transport created by the driver, released by Close
	vref  physic.ElectricPotential
	last  analog.Sample
}

// NewSPI returns a converter connected to a caller-initialized SPI port.
//
// If cs is not nil it is driven by the driver and the port is connected with
// spi.NoCS. Otherwise the port's own chip select frames each transfer.
// The port is connected in Mode0 (CPOL=0, CPHA=0), MSB first, 8 bits words.
func NewSPI(p spi.Port, cs gpio.PinOut, v Variant, opts *Opts) (*Dev, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("ad74xx: nil SPI port")
	}

	// Apply defaults
	o := opts.resolve()

	// Let the port frame CS only when no pin was given
	mode := spi.Mode0
	if cs != nil {
		mode |= spi.NoCS
	}

	// Establish SPI connection
	c, err := p.Connect(o.MaxSpeed, mode, 8)
	if err != nil {
		return nil, fmt.Errorf("ad74xx: failed to connect: %w", err)
	}

	// Create device
	return newDev(&spiBus{c: c, mu: o.Lock}, cs, v, &o, nil)
}

// NewSPIPins routes the port's clock and data input to sclk and miso, then
// connects like NewSPI. MOSI is left unassigned since the converter is read
// only.
//
// The port must implement PinRouter, otherwise ErrNoPinRouting is returned.
func NewSPIPins(p spi.Port, miso gpio.PinIn, sclk, cs gpio.PinOut, v Variant, opts *Opts) (*Dev, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}
	if p == nil {
		return nil, errors.New("ad74xx: nil SPI port")
	}
	r, ok := p.(PinRouter)
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrNoPinRouting, p)
	}
	// Route before connecting, ports lock their pins on Connect
	if err := r.RoutePins(sclk, gpio.INVALID, miso); err != nil {
		return nil, fmt.Errorf("ad74xx: failed to route pins: %w", err)
	}
	return NewSPI(p, cs, v, opts)
}

// NewBus returns a converter on an arbitrary transport.
//
// cs may be nil if the transport frames chip select itself.
func NewBus(b Bus, cs gpio.PinOut, v Variant, opts *Opts) (*Dev, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}
	if b == nil {
		return nil, errors.New("ad74xx: nil bus")
	}
	o := opts.resolve()
	return newDev(b, cs, v, &o, nil)
}

// NewTinyGo returns a converter on a TinyGo SPI bus, usually a machine.SPI
// configured by the caller for Mode0, MSB first. cs is typically a
// machine.Pin configured as an output. opts.MaxSpeed is ignored.
func NewTinyGo(s drivers.SPI, cs OutputPin, v Variant, opts *Opts) (*Dev, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}
	if s == nil {
		return nil, errors.New("ad74xx: nil SPI bus")
	}
	if cs == nil {
		return nil, errors.New("ad74xx: CS pin is required")
	}
	o := opts.resolve()
	return newDev(&tinyGoBus{s: s, mu: o.Lock}, tinyGoPin{cs}, v, &o, nil)
}

func checkVariant(v Variant) error {
	if !v.Valid() {
		return fmt.Errorf("%w: %s", ErrUnknownVariant, v)
	}
	return nil
}

func newDev(b Bus, cs csPin, v Variant, o *Opts, owned io.Closer) (*Dev, error) {
	// CS idles high.
	if cs != nil {
		if err := cs.Out(gpio.High); err != nil {
			return nil, fmt.Errorf("ad74xx: failed to pull CS high: %w", err)
		}
	}
	return &Dev{
		v:     v,
		bits:  v.Resolution(),
		bus:   b,
		cs:    cs,
		owned: owned,
		vref:  o.Vref,
	}, nil
}

// Variant returns the chip model.
func (d *Dev) Variant() Variant {
	return d.v
}

// Resolution returns the conversion resolution in bits: 8, 10 or 12.
func (d *Dev) Resolution() int {
	return d.bits
}

// RawValue runs one conversion and returns the 16 bits clocked out of the
// chip, unmodified. Use Code to extract the result.
func (d *Dev) RawValue() (uint16, error) {
	var raw uint16
	err := d.frame(func() error {
		if err := d.setCS(gpio.Low); err != nil {
			return err
		}
		var err error
		if raw, err = d.bus.Transfer16(0); err != nil {
			err = fmt.Errorf("ad74xx: failed to read conversion: %w", err)
		}
		if e := d.setCS(gpio.High); err == nil {
			err = e
		}
		return err
	})
	return raw, err
}

// Voltage runs one conversion and scales the raw word against vref, so that
// 2^Resolution() maps to vref.
func (d *Dev) Voltage(vref float64) (float64, error) {
	raw, err := d.RawValue()
	if err != nil {
		return 0, err
	}
	return voltage(raw, vref, d.bits), nil
}

func voltage(raw uint16, vref float64, bits int) float64 {
	return float64(raw) * vref / float64(uint32(1)<<bits)
}

// Code extracts the conversion result from a raw word. The chips shift out
// four leading zeros, then the result MSB first, then zeros up to the 16th
// clock.
func (d *Dev) Code(raw uint16) uint16 {
	return (raw >> (12 - d.bits)) & (uint16(1)<<d.bits - 1)
}

// PowerDown puts the chip in partial power-down by raising CS after the
// first 8 clocks of a frame.
//
// Only the AD7475 and AD7495 support it; other chips return ErrNoPowerDown
// and the bus is not touched.
func (d *Dev) PowerDown() error {
	if !d.v.SupportsPowerDown() {
		return fmt.Errorf("%w: %s", ErrNoPowerDown, d.v)
	}
	return d.frame(func() error {
		if err := d.setCS(gpio.Low); err != nil {
			return err
		}
		_, err := d.bus.Transfer8(0)
		if err != nil {
			err = fmt.Errorf("ad74xx: failed to interrupt conversion: %w", err)
		}
		// CS must rise between the 2nd and 10th falling edge of SCLK.
		if e := d.setCS(gpio.High); err == nil {
			err = e
		}
		if err != nil {
			return err
		}
		if _, err := d.bus.Transfer8(0); err != nil {
			return fmt.Errorf("ad74xx: failed to complete power-down: %w", err)
		}
		return nil
	})
}

// PowerUp wakes the chip from partial power-down with a dummy conversion.
// The conversion result is discarded.
func (d *Dev) PowerUp() error {
	if !d.v.SupportsPowerDown() {
		return fmt.Errorf("%w: %s", ErrNoPowerDown, d.v)
	}
	_, err := d.RawValue()
	return err
}

// Read implements analog.PinADC.
//
// Raw is the conversion code. V is set when Opts.Vref was provided.
func (d *Dev) Read() (analog.Sample, error) {
	raw, err := d.RawValue()
	if err != nil {
		return analog.Sample{}, err
	}
	return d.sample(d.Code(raw)), nil
}

// Range implements analog.PinADC.
func (d *Dev) Range() (analog.Sample, analog.Sample) {
	return d.sample(0), d.sample(uint16(1)<<d.bits - 1)
}

func (d *Dev) sample(code uint16) analog.Sample {
	s := analog.Sample{Raw: int32(code)}
	if d.vref != 0 {
		s.V = d.vref * physic.ElectricPotential(code) / physic.ElectricPotential(1<<d.bits)
	}
	return s
}

// Update implements drivers.Sensor. Only drivers.Voltage triggers a
// conversion; the result is available through Sample.
func (d *Dev) Update(which drivers.Measurement) error {
	if which&drivers.Voltage == 0 {
		return nil
	}
	s, err := d.Read()
	if err != nil {
		return err
	}
	d.last = s
	return nil
}

// Sample returns the sample taken by the last successful Update.
func (d *Dev) Sample() analog.Sample {
	return d.last
}

// Halt implements conn.Resource.
//
// It enters partial power-down on chips supporting it and does nothing on
// the others.
func (d *Dev) Halt() error {
	if !d.v.SupportsPowerDown() {
		return nil
	}
	return d.PowerDown()
}

// Close releases the transport created by NewBitBang. Ports passed by the
// caller are left open.
func (d *Dev) Close() error {
	if d.owned == nil {
		return nil
	}
	err := d.owned.Close()
	d.owned = nil
	return err
}

// Name implements pin.Pin.
func (d *Dev) Name() string {
	return d.v.String()
}

// Number implements pin.Pin.
func (d *Dev) Number() int {
	return -1
}

// Function implements pin.Pin.
func (d *Dev) Function() string {
	return "ADC"
}

// String returns a string representation of the device.
func (d *Dev) String() string {
	return fmt.Sprintf("ad74xx.Dev{%s, %s}", d.v, d.bus)
}

// frame runs fn as one bus transaction.
func (d *Dev) frame(fn func() error) error {
	if err := d.bus.Begin(); err != nil {
		return fmt.Errorf("ad74xx: failed to begin transaction: %w", err)
	}
	err := fn()
	// Always close the transaction, keep the first error
	if e := d.bus.End(); e != nil && err == nil {
		err = fmt.Errorf("ad74xx: failed to end transaction: %w", e)
	}
	return err
}

func (d *Dev) setCS(l gpio.Level) error {
	if d.cs == nil {
		return nil
	}
	if err := d.cs.Out(l); err != nil {
		return fmt.Errorf("ad74xx: failed to pull CS %s: %w", l, err)
	}
	return nil
}

var (
	_ analog.PinADC  = &Dev{}
	_ drivers.Sensor = &Dev{}
)
