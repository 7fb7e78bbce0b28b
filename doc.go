// Package ad74xx controls an AD74xx family analog-to-digital converter over
// SPI.
//
// The family shares one serial interface: a conversion starts on the falling
// edge of CS and the result is shifted out on the next 16 SCLK cycles, four
// leading zeros first, MSB first. Supported chips:
//
//	Chip     Resolution  Partial power-down
//	AD7466   12 bits     no
//	AD7467   10 bits     no
//	AD7468    8 bits     no
//	AD7475   12 bits     yes
//	AD7476   12 bits     no
//	AD7476A  12 bits     no
//	AD7477   10 bits     no
//	AD7477A  10 bits     no
//	AD7478    8 bits     no
//	AD7478A   8 bits     no
//	AD7495   12 bits     yes
//
// # Hardware Connection
//
//	ADC Pin  → System Pin
//	GND      → GND
//	VDD      → 3.3V (or 5V depending on the chip)
//	SCLK     → SPI Clock (SCLK) or any GPIO with NewBitBang
//	SDATA    → SPI Data In (MISO) or any GPIO with NewBitBang
//	CS       → GPIO, or the SPI controller's chip select
//
// MOSI is not used; the chips are read only.
//
// # Transports
//
// NewSPI binds to a SPI port already opened by the caller, typically with
// spireg.Open. NewBitBang clocks the chip over two GPIOs with the software
// port of package bitbang. NewSPIPins routes a port to the given pins first;
// it only works with ports implementing PinRouter. NewTinyGo binds a
// tinygo.org/x/drivers SPI bus with a machine.Pin as chip select, and NewBus
// any Bus implementation. NewBitBang needs periph.io/x/host and is left out
// of TinyGo builds.
//
// # Basic Usage
//
//	host.Init()
//	p, _ := spireg.Open("")
//	defer p.Close()
//	cs := gpioreg.ByName("GPIO5")
//	dev, _ := ad74xx.NewSPI(p, cs, ad74xx.AD7476, &ad74xx.Opts{Vref: 3300 * physic.MilliVolt})
//	s, _ := dev.Read()
//	fmt.Printf("%d %s\n", s.Raw, s.V)
//
// Voltage scales the raw 16 bits word against a reference, without removing
// the frame's leading and trailing zeros. Read and Code extract the
// conversion result first.
//
// # Datasheets
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/AD7476A_7477A_7478A.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/AD7466_7467_7468.pdf
//
// https://www.analog.com/media/en/technical-documentation/data-sheets/AD7475_7495.pdf
package ad74xx
