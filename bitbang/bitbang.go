// Package bitbang implements a software SPI port over GPIO pins.
//
// It is meant for chips wired to pins that are not connected to a SPI
// controller. Only the clock and one data line are required: MOSI may be
// omitted for read-only devices and MISO for write-only ones. Chip select is
// left to the device driver, so connect with spi.NoCS.
//
// Timing relies on busy loops for half-periods up to 10µs and on time.Sleep
// above. The effective clock is slower than requested since toggling a GPIO
// is not free.
package bitbang

import (
	"errors"
	"fmt"
	"sync"
	"time"

	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
	"periph.io/x/host/v3/cpu"
)

// Port is a software SPI port. It implements spi.PortCloser and spi.Pins.
type Port struct {
	mu        sync.Mutex
	clk       gpio.PinOut
	mosi      gpio.PinOut // nil if not wired
	miso      gpio.PinIn  // nil if not wired
	limit     physic.Frequency
	freq      physic.Frequency
	half      time.Duration
	mode      spi.Mode
	connected bool
	closed    bool
}

// New returns a software SPI port clocked on clk.
//
// mosi and miso may be nil or gpio.INVALID when the line is not wired. clk is
// driven low and miso configured as input.
func New(clk, mosi gpio.PinOut, miso gpio.PinIn) (*Port, error) {
	p := &Port{}
	if err := p.setPins(clk, mosi, miso); err != nil {
		return nil, err
	}
	return p, nil
}

// String implements spi.Port.
func (p *Port) String() string {
	return fmt.Sprintf("bitbang(%s)", p.clk)
}

// RoutePins assigns new pins to the port. It must be called before Connect.
func (p *Port) RoutePins(clk, mosi gpio.PinOut, miso gpio.PinIn) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("bitbang: port closed")
	}
	if p.connected {
		return errors.New("bitbang: cannot route pins after Connect")
	}
	return p.setPins(clk, mosi, miso)
}

func (p *Port) setPins(clk, mosi gpio.PinOut, miso gpio.PinIn) error {
	if clk == nil || clk == gpio.INVALID {
		return errors.New("bitbang: a clock pin is required")
	}
	if mosi == gpio.INVALID {
		mosi = nil
	}
	if miso == gpio.INVALID {
		miso = nil
	}
	if err := clk.Out(gpio.Low); err != nil {
		return fmt.Errorf("bitbang: failed to pull CLK low: %w", err)
	}
	if mosi != nil {
		if err := mosi.Out(gpio.Low); err != nil {
			return fmt.Errorf("bitbang: failed to pull MOSI low: %w", err)
		}
	}
	if miso != nil {
		if err := miso.In(gpio.PullNoChange, gpio.NoEdge); err != nil {
			return fmt.Errorf("bitbang: failed to set MISO as input: %w", err)
		}
	}
	p.clk, p.mosi, p.miso = clk, mosi, miso
	return nil
}

// Connect implements spi.Port.
//
// Only 8 bits words are supported. A zero frequency clocks as fast as the
// pins can toggle. Connect can only be called once.
func (p *Port) Connect(f physic.Frequency, mode spi.Mode, bits int) (spi.Conn, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil, errors.New("bitbang: port closed")
	}
	if p.connected {
		return nil, errors.New("bitbang: Connect cannot be called twice")
	}
	if f < 0 {
		return nil, fmt.Errorf("bitbang: invalid frequency %s", f)
	}
	if bits != 8 {
		return nil, fmt.Errorf("bitbang: unsupported word size %d", bits)
	}
	if mode&spi.HalfDuplex != 0 {
		return nil, errors.New("bitbang: half duplex is not supported")
	}
	p.mode = mode
	p.setFreq(f)
	if err := p.clk.Out(p.idle()); err != nil {
		return nil, fmt.Errorf("bitbang: failed to idle CLK: %w", err)
	}
	p.connected = true
	return &portConn{p: p}, nil
}

// LimitSpeed implements spi.PortCloser.
func (p *Port) LimitSpeed(f physic.Frequency) error {
	if f <= 0 {
		return fmt.Errorf("bitbang: invalid speed %s", f)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	p.limit = f
	if p.connected {
		p.setFreq(p.freq)
	}
	return nil
}

func (p *Port) setFreq(f physic.Frequency) {
	if p.limit != 0 && (f == 0 || f > p.limit) {
		f = p.limit
	}
	p.freq = f
	p.half = f.Period() / 2
}

// Close implements spi.PortCloser. It halts the pins.
func (p *Port) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return nil
	}
	p.closed = true
	err := p.clk.Halt()
	if p.mosi != nil {
		if e := p.mosi.Halt(); err == nil {
			err = e
		}
	}
	if p.miso != nil {
		if e := p.miso.Halt(); err == nil {
			err = e
		}
	}
	return err
}

// CLK implements spi.Pins.
func (p *Port) CLK() gpio.PinOut {
	return p.clk
}

// MOSI implements spi.Pins.
func (p *Port) MOSI() gpio.PinOut {
	if p.mosi == nil {
		return gpio.INVALID
	}
	return p.mosi
}

// MISO implements spi.Pins.
func (p *Port) MISO() gpio.PinIn {
	if p.miso == nil {
		return gpio.INVALID
	}
	return p.miso
}

// CS implements spi.Pins. Chip select is driven by the device driver.
func (p *Port) CS() gpio.PinOut {
	return gpio.INVALID
}

func (p *Port) tx(w, r []byte) error {
	if len(w) != 0 && len(r) != 0 && len(w) != len(r) {
		return errors.New("bitbang: w and r must be the same length")
	}
	n := len(w)
	if len(r) > n {
		n = len(r)
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.closed {
		return errors.New("bitbang: port closed")
	}
	for i := 0; i < n; i++ {
		var out byte
		if i < len(w) {
			out = w[i]
		}
		in, err := p.transfer(out)
		if err != nil {
			return err
		}
		if i < len(r) {
			r[i] = in
		}
	}
	return nil
}

// transfer clocks one byte out and one byte in.
func (p *Port) transfer(out byte) (byte, error) {
	var in byte
	for i := uint(0); i < 8; i++ {
		shift := 7 - i
		if p.mode&spi.LSBFirst != 0 {
			shift = i
		}
		l, err := p.clockBit(gpio.Level(out>>shift&1 == 1))
		if err != nil {
			return 0, err
		}
		if l {
			in |= 1 << shift
		}
	}
	return in, nil
}

// clockBit runs one clock cycle. With CPHA=0 data is presented before the
// leading edge and sampled on it; with CPHA=1 data changes on the leading
// edge and is sampled on the trailing one.
func (p *Port) clockBit(out gpio.Level) (gpio.Level, error) {
	idle := p.idle()
	if p.mode&spi.Mode1 != 0 {
		if err := p.clk.Out(!idle); err != nil {
			return gpio.Low, err
		}
		if err := p.writeMOSI(out); err != nil {
			return gpio.Low, err
		}
		p.delay()
		if err := p.clk.Out(idle); err != nil {
			return gpio.Low, err
		}
		in := p.readMISO()
		p.delay()
		return in, nil
	}
	if err := p.writeMOSI(out); err != nil {
		return gpio.Low, err
	}
	p.delay()
	if err := p.clk.Out(!idle); err != nil {
		return gpio.Low, err
	}
	in := p.readMISO()
	p.delay()
	if err := p.clk.Out(idle); err != nil {
		return gpio.Low, err
	}
	return in, nil
}

// idle is the clock level between transfers, set by CPOL.
func (p *Port) idle() gpio.Level {
	return gpio.Level(p.mode&spi.Mode2 != 0)
}

func (p *Port) writeMOSI(l gpio.Level) error {
	if p.mosi == nil {
		return nil
	}
	return p.mosi.Out(l)
}

func (p *Port) readMISO() gpio.Level {
	if p.miso == nil {
		return gpio.Low
	}
	return p.miso.Read()
}

func (p *Port) delay() {
	switch {
	case p.half <= 0:
	case p.half <= 10*time.Microsecond:
		cpu.Nanospin(p.half)
	default:
		time.Sleep(p.half)
	}
}

// portConn is the spi.Conn returned by Port.Connect.
type portConn struct {
	p *Port
}

func (c *portConn) String() string {
	return c.p.String()
}

func (c *portConn) Duplex() conn.Duplex {
	return conn.Full
}

func (c *portConn) Tx(w, r []byte) error {
	return c.p.tx(w, r)
}

// TxPackets runs the packets back to back. KeepCS has no effect since chip
// select is not driven by the port.
func (c *portConn) TxPackets(pkts []spi.Packet) error {
	for i := range pkts {
		if b := pkts[i].BitsPerWord; b != 0 && b != 8 {
			return fmt.Errorf("bitbang: unsupported word size %d", b)
		}
		if err := c.p.tx(pkts[i].W, pkts[i].R); err != nil {
			return err
		}
	}
	return nil
}

func (c *portConn) CLK() gpio.PinOut {
	return c.p.CLK()
}

func (c *portConn) MOSI() gpio.PinOut {
	return c.p.MOSI()
}

func (c *portConn) MISO() gpio.PinIn {
	return c.p.MISO()
}

func (c *portConn) CS() gpio.PinOut {
	return c.p.CS()
}

var (
	_ spi.PortCloser = &Port{}
	_ spi.Pins       = &Port{}
	_ spi.Conn       = &portConn{}
	_ spi.Pins       = &portConn{}
)
