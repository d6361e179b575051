package register

import (
	"fmt"
	"strings"
)

// Baud is a serial baud rate supported by the device.
type Baud uint32

const (
	Baud9600   Baud = 9600
	Baud19200  Baud = 19200
	Baud38400  Baud = 38400
	Baud57600  Baud = 57600
	Baud115200 Baud = 115200
	Baud128000 Baud = 128000
	Baud230400 Baud = 230400
	Baud460800 Baud = 460800
	Baud921600 Baud = 921600
)

// BaudRates lists every supported baud rate in ascending order.
var BaudRates = []Baud{
	Baud9600, Baud19200, Baud38400, Baud57600, Baud115200,
	Baud128000, Baud230400, Baud460800, Baud921600,
}

func baudCodes() []uint64 {
	out := make([]uint64, len(BaudRates))
	for i, b := range BaudRates {
		out[i] = uint64(b)
	}
	return out
}

// Valid reports whether b is one of BaudRates.
func (b Baud) Valid() bool {
	for _, v := range BaudRates {
		if v == b {
			return true
		}
	}
	return false
}

// SerialPort selects which device port a port-specific register targets.
type SerialPort uint8

const (
	PortActive SerialPort = 0
	Port1      SerialPort = 1
	Port2      SerialPort = 2
)

var serialPortCodes = []uint64{0, 1, 2}

// Ador is the asynchronous ASCII output type.
type Ador uint32

const (
	AdorOff Ador = 0
	AdorYPR Ador = 1
	AdorQTN Ador = 2
	AdorQMR Ador = 8
	AdorMAG Ador = 10
	AdorACC Ador = 11
	AdorGYR Ador = 12
	AdorMAR Ador = 13
	AdorYMR Ador = 14
	AdorYBA Ador = 16
	AdorYIA Ador = 17
	AdorIMU Ador = 19
	AdorGPS Ador = 20
	AdorGPE Ador = 21
	AdorINS Ador = 22
	AdorINE Ador = 23
	AdorISL Ador = 28
	AdorISE Ador = 29
	AdorDTV Ador = 30
	AdorG2S Ador = 32
	AdorG2E Ador = 33
	AdorHVE Ador = 34
)

var adorNames = map[Ador]string{
	AdorOff: "OFF", AdorYPR: "YPR", AdorQTN: "QTN", AdorQMR: "QMR", AdorMAG: "MAG",
	AdorACC: "ACC", AdorGYR: "GYR", AdorMAR: "MAR", AdorYMR: "YMR", AdorYBA: "YBA",
	AdorYIA: "YIA", AdorIMU: "IMU", AdorGPS: "GPS", AdorGPE: "GPE", AdorINS: "INS",
	AdorINE: "INE", AdorISL: "ISL", AdorISE: "ISE", AdorDTV: "DTV", AdorG2S: "G2S",
	AdorG2E: "G2E", AdorHVE: "HVE",
}

func adorCodes() []uint64 {
	out := make([]uint64, 0, len(adorNames))
	for a := range adorNames {
		out = append(out, uint64(a))
	}
	return out
}

func (a Ador) String() string {
	if n, ok := adorNames[a]; ok {
		return n
	}
	return fmt.Sprintf("Ador(%d)", uint32(a))
}

// ParseAdor maps a three letter output name such as "YMR" to its code.
func ParseAdor(name string) (Ador, error) {
	name = strings.ToUpper(strings.TrimSpace(name))
	for a, n := range adorNames {
		if n == name {
			return a, nil
		}
	}
	return 0, fmt.Errorf("unknown async output type %q", name)
}

// AdofRates lists the accepted async output frequencies in Hz.
var AdofRates = []uint64{0, 1, 2, 4, 5, 10, 20, 25, 40, 50, 100, 200}

// ChecksumMode selects the checksum used on ASCII or SPI messages.
type ChecksumMode uint8

const (
	ChecksumOff   ChecksumMode = 0
	Checksum8Bit  ChecksumMode = 1
	ChecksumCRC16 ChecksumMode = 3
)

type SyncInMode uint8

const (
	SyncInDisable   SyncInMode = 0
	SyncInCount     SyncInMode = 3
	SyncInImuSample SyncInMode = 4
	SyncInAsyncAll  SyncInMode = 5
	SyncInAsync0    SyncInMode = 6
)

type SyncOutMode uint8

const (
	SyncOutNone     SyncOutMode = 0
	SyncOutImuStart SyncOutMode = 1
	SyncOutImuReady SyncOutMode = 2
	SyncOutNavReady SyncOutMode = 3
	SyncOutGpsPps   SyncOutMode = 6
)
