package bitbang

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"periph.io/x/conn/v3"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpiotest"
	"periph.io/x/conn/v3/physic"
	"periph.io/x/conn/v3/spi"
)

// edgePin counts the clock edges it is driven through.
type edgePin struct {
	gpiotest.Pin
	rising, falling int
}

func (p *edgePin) Out(l gpio.Level) error {
	prev := p.Pin.Read()
	if !prev && l {
		p.rising++
	}
	if prev && !l {
		p.falling++
	}
	return p.Pin.Out(l)
}

func TestLoopback(t *testing.T) {
	modes := []spi.Mode{
		spi.Mode0,
		spi.Mode1,
		spi.Mode2,
		spi.Mode3,
		spi.Mode0 | spi.LSBFirst,
		spi.Mode3 | spi.LSBFirst,
	}
	for _, mode := range modes {
		t.Run(mode.String(), func(t *testing.T) {
			// MOSI tied to MISO.
			data := &gpiotest.Pin{N: "DATA"}
			clk := &edgePin{Pin: gpiotest.Pin{N: "CLK"}}
			p, err := New(clk, data, data)
			require.NoError(t, err)
			c, err := p.Connect(0, mode|spi.NoCS, 8)
			require.NoError(t, err)

			w := []byte{0xA5, 0x3C, 0x00, 0xFF}
			r := make([]byte, len(w))
			require.NoError(t, c.Tx(w, r))
			assert.Equal(t, w, r)

			edges := 8 * len(w)
			if mode&spi.Mode2 != 0 {
				// Idles high; New drove it low first.
				assert.Equal(t, gpio.High, clk.Read())
				assert.Equal(t, edges+1, clk.rising)
				assert.Equal(t, edges, clk.falling)
			} else {
				assert.Equal(t, gpio.Low, clk.Read())
				assert.Equal(t, edges, clk.rising)
				assert.Equal(t, edges, clk.falling)
			}
		})
	}
}

// shiftPin presents the bits of word MSB first, advancing on reads.
type shiftPin struct {
	gpiotest.Pin
	word uint16
	n    int
}

func (p *shiftPin) Read() gpio.Level {
	l := gpio.Level(p.word>>(15-p.n)&1 == 1)
	p.n++
	return l
}

func TestReadOnly(t *testing.T) {
	miso := &shiftPin{word: 0x8421}
	p, err := New(&gpiotest.Pin{N: "CLK"}, nil, miso)
	require.NoError(t, err)
	c, err := p.Connect(physic.MegaHertz, spi.Mode0|spi.NoCS, 8)
	require.NoError(t, err)

	r := make([]byte, 2)
	require.NoError(t, c.Tx(nil, r))
	assert.Equal(t, []byte{0x84, 0x21}, r)
	assert.Equal(t, gpio.INVALID, p.MOSI())
	assert.Equal(t, conn.Full, c.Duplex())
}

func TestWriteOnly(t *testing.T) {
	mosi := &gpiotest.Pin{N: "MOSI"}
	p, err := New(&gpiotest.Pin{N: "CLK"}, mosi, nil)
	require.NoError(t, err)
	c, err := p.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)

	require.NoError(t, c.Tx([]byte{0x01}, nil))
	assert.Equal(t, gpio.High, mosi.Read())
	assert.Equal(t, gpio.INVALID, p.MISO())
}

func TestTxPackets(t *testing.T) {
	data := &gpiotest.Pin{N: "DATA"}
	p, err := New(&gpiotest.Pin{N: "CLK"}, data, data)
	require.NoError(t, err)
	c, err := p.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)

	r1, r2 := make([]byte, 1), make([]byte, 2)
	pkts := []spi.Packet{
		{W: []byte{0x12}, R: r1},
		{W: []byte{0x34, 0x56}, R: r2, BitsPerWord: 8},
	}
	require.NoError(t, c.TxPackets(pkts))
	assert.Equal(t, []byte{0x12}, r1)
	assert.Equal(t, []byte{0x34, 0x56}, r2)

	assert.Error(t, c.TxPackets([]spi.Packet{{W: []byte{0, 0}, BitsPerWord: 16}}))
}

func TestConnectErrors(t *testing.T) {
	p, err := New(&gpiotest.Pin{N: "CLK"}, nil, &gpiotest.Pin{N: "MISO"})
	require.NoError(t, err)

	_, err = p.Connect(physic.MegaHertz, spi.Mode0, 16)
	assert.Error(t, err)
	_, err = p.Connect(physic.MegaHertz, spi.Mode0|spi.HalfDuplex, 8)
	assert.Error(t, err)
	_, err = p.Connect(-1, spi.Mode0, 8)
	assert.Error(t, err)

	_, err = p.Connect(physic.MegaHertz, spi.Mode0, 8)
	require.NoError(t, err)
	_, err = p.Connect(physic.MegaHertz, spi.Mode0, 8)
	assert.Error(t, err)
}

func TestNewErrors(t *testing.T) {
	_, err := New(nil, nil, nil)
	assert.Error(t, err)
	_, err = New(gpio.INVALID, nil, nil)
	assert.Error(t, err)
}

func TestTxLengthMismatch(t *testing.T) {
	data := &gpiotest.Pin{N: "DATA"}
	p, err := New(&gpiotest.Pin{N: "CLK"}, data, data)
	require.NoError(t, err)
	c, err := p.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)
	assert.Error(t, c.Tx([]byte{1, 2}, make([]byte, 1)))
}

func TestSpeed(t *testing.T) {
	p, err := New(&gpiotest.Pin{N: "CLK"}, nil, &gpiotest.Pin{N: "MISO"})
	require.NoError(t, err)
	require.NoError(t, p.LimitSpeed(500*physic.KiloHertz))
	_, err = p.Connect(physic.MegaHertz, spi.Mode0, 8)
	require.NoError(t, err)
	assert.Equal(t, 500*physic.KiloHertz, p.freq)
	assert.Equal(t, physic.MegaHertz.Period(), p.half)

	require.NoError(t, p.LimitSpeed(250*physic.KiloHertz))
	assert.Equal(t, 250*physic.KiloHertz, p.freq)
	assert.Error(t, p.LimitSpeed(0))
}

func TestRoutePins(t *testing.T) {
	p, err := New(&gpiotest.Pin{N: "CLK"}, nil, &gpiotest.Pin{N: "MISO"})
	require.NoError(t, err)

	clk := &gpiotest.Pin{N: "GPIO18", L: gpio.High}
	miso := &gpiotest.Pin{N: "GPIO19"}
	require.NoError(t, p.RoutePins(clk, gpio.INVALID, miso))
	assert.Equal(t, clk, p.CLK())
	assert.Equal(t, miso, p.MISO())
	assert.Equal(t, gpio.INVALID, p.MOSI())
	assert.Equal(t, gpio.Low, clk.Read())
	assert.Equal(t, "bitbang(GPIO18(0))", p.String())

	_, err = p.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)
	assert.Error(t, p.RoutePins(clk, nil, miso))
}

func TestClose(t *testing.T) {
	data := &gpiotest.Pin{N: "DATA"}
	p, err := New(&gpiotest.Pin{N: "CLK"}, data, data)
	require.NoError(t, err)
	c, err := p.Connect(0, spi.Mode0, 8)
	require.NoError(t, err)

	require.NoError(t, p.Close())
	require.NoError(t, p.Close())
	assert.Error(t, c.Tx([]byte{0}, make([]byte, 1)))
	assert.Error(t, p.RoutePins(&gpiotest.Pin{N: "CLK"}, nil, nil))
	assert.Equal(t, gpio.INVALID, p.CS())
}
