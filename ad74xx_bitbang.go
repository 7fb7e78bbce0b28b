//go:build !tinygo

package ad74xx

import (
	"errors"
	"fmt"

	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/devices/v3/ad74xx/bitbang"
)

// NewBitBang returns a converter on a software SPI clocked over sclk and miso.
//
// The driver owns the software port; Close releases it. NewBitBang is not
// available on TinyGo, where NewTinyGo should be used instead.
func NewBitBang(miso gpio.PinIn, sclk, cs gpio.PinOut, v Variant, opts *Opts) (*Dev, error) {
	if err := checkVariant(v); err != nil {
		return nil, err
	}
	// A missing data line would read as a stream of zeros.
	if miso == nil || miso == gpio.INVALID {
		return nil, errors.New("ad74xx: MISO pin is required")
	}
	if cs == nil {
		return nil, errors.New("ad74xx: CS pin is required")
	}

	// Apply defaults
	o := opts.resolve()

	// Create the software port, MOSI is never driven
	p, err := bitbang.New(sclk, nil, miso)
	if err != nil {
		return nil, fmt.Errorf("ad74xx: %w", err)
	}
	c, err := p.Connect(o.MaxSpeed, spi.Mode0|spi.NoCS, 8)
	if err != nil {
		p.Close()
		return nil, fmt.Errorf("ad74xx: failed to connect: %w", err)
	}

	// Create device, it releases the port on Close
	d, err := newDev(&spiBus{c: c, mu: o.Lock}, cs, v, &o, p)
	if err != nil {
		p.Close()
		return nil, err
	}
	return d, nil
}
