// Package sim is a simulated sensor for tests and bench runs without
// hardware. A Device answers register and named commands and streams
// async ASCII and binary output over an in-memory serial link.
package sim

import (
	"bytes"
	"fmt"
	"io"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/binout"
	"vnsensor/internal/frame"
	"vnsensor/internal/measurement"
	"vnsensor/internal/register"
	"vnsensor/internal/transport"
)

const (
	readTimeout = 20 * time.Millisecond
	defaultTick = 5 * time.Millisecond

	// imuRate is the rate binary output rate divisors apply to.
	imuRate = 800
)

// Options configures a Device. Zero values select an idle VN-200 at
// 115200 baud.
type Options struct {
	Baud      int
	Model     string
	SerialNum uint32
	FwVer     string

	AsyncType register.Ador
	AsyncFreq uint32
	Binary    [3]binout.Config

	Scenario *Scenario
	Motion   Motion
	Tick     time.Duration
	Log      logrus.FieldLogger
}

type Device struct {
	opts Options
	log  logrus.FieldLogger
	now  func() time.Time

	mu        sync.Mutex
	baud      int
	regs      map[uint8]register.Register
	asyncOn   bool
	port      *hostPort
	line      []byte
	received  []string
	start     time.Time
	nextASCII time.Time
	nextBin   [3]time.Time
	syncIn    uint32
}

func NewDevice(opts Options) *Device {
	if opts.Baud == 0 {
		opts.Baud = 115200
	}
	if opts.Model == "" {
		opts.Model = "VN-200"
	}
	if opts.FwVer == "" {
		opts.FwVer = "2.1.0.0"
	}
	if opts.SerialNum == 0 {
		opts.SerialNum = 100200300
	}
	if opts.Tick <= 0 {
		opts.Tick = defaultTick
	}
	log := opts.Log
	if log == nil {
		log = logrus.StandardLogger()
	}
	d := &Device{
		opts:    opts,
		log:     log.WithField("component", "sim"),
		now:     time.Now,
		baud:    opts.Baud,
		asyncOn: true,
	}
	d.regs = d.defaults()
	d.start = d.now()
	return d
}

func (d *Device) defaults() map[uint8]register.Register {
	regs := make(map[uint8]register.Register)
	for _, id := range register.IDs() {
		r, _ := register.New(id)
		regs[id] = r
	}
	regs[register.IDModel] = &register.Model{Model: d.opts.Model}
	regs[register.IDHwVer] = &register.HwVer{HwVer: 3, HwMinVer: 1}
	regs[register.IDSerial] = &register.Serial{SerialNum: d.opts.SerialNum}
	regs[register.IDFwVer] = &register.FwVer{FwVer: d.opts.FwVer}
	regs[register.IDBaudRate] = &register.BaudRate{Baud: register.Baud(d.opts.Baud)}
	regs[register.IDAsyncOutputType] = &register.AsyncOutputType{Ador: d.opts.AsyncType}
	regs[register.IDAsyncOutputFreq] = &register.AsyncOutputFreq{Adof: d.opts.AsyncFreq}
	regs[register.IDProtocolControl] = &register.ProtocolControl{AsciiChecksum: register.Checksum8Bit}
	regs[register.IDMagGravRefVec] = &register.MagGravRefVec{MagRefN: 0.2, MagRefD: 0.45, GravRefD: gravity}
	for i, cfg := range d.opts.Binary {
		r, _ := register.NewBinaryOutput(i+1, cfg)
		regs[r.ID()] = r
	}
	return regs
}

// Open attaches a host link at baud, replacing any earlier one. It has the
// transport.Opener signature.
func (d *Device) Open(name string, baud int) (transport.Port, error) {
	if strings.TrimSpace(name) == "" {
		return nil, fmt.Errorf("sim: empty port name")
	}
	p := &hostPort{dev: d, baud: baud, rx: newPipe(), done: make(chan struct{})}
	d.mu.Lock()
	old := d.port
	d.port = p
	d.line = d.line[:0]
	d.mu.Unlock()
	if old != nil {
		_ = old.Close()
	}
	go d.stream(p)
	return p, nil
}

func (d *Device) detach(p *hostPort) {
	d.mu.Lock()
	if d.port == p {
		d.port = nil
	}
	d.mu.Unlock()
}

// Baud is the device's current serial rate.
func (d *Device) Baud() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.baud
}

// Received lists the verified command bodies the device has seen.
func (d *Device) Received() []string {
	d.mu.Lock()
	defer d.mu.Unlock()
	return append([]string(nil), d.received...)
}

// Register returns a copy of the device's register id.
func (d *Device) Register(id uint8) (register.Register, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	r, ok := d.regs[id]
	if !ok {
		return nil, false
	}
	s, err := register.EncodeASCII(r)
	if err != nil {
		return nil, false
	}
	out, err := register.DecodeASCII(id, s)
	return out, err == nil
}

// PulseSyncIn counts one SyncIn edge, as a camera trigger line would.
func (d *Device) PulseSyncIn() {
	d.mu.Lock()
	d.syncIn++
	if st, ok := d.regs[register.IDSyncStatus].(*register.SyncStatus); ok {
		st.SyncInCount = d.syncIn
		st.SyncInTime = uint32(d.now().Sub(d.start) / time.Microsecond)
	}
	d.mu.Unlock()
}

// Inject writes raw bytes to the host as the device would send them.
func (d *Device) Inject(raw []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return io.ErrClosedPipe
	}
	return d.toHostLocked(raw)
}

// InjectASCII frames body with the device's checksum and sends it.
func (d *Device) InjectASCII(body string) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port == nil {
		return io.ErrClosedPipe
	}
	return d.replyLocked(body)
}

func (d *Device) toHostLocked(raw []byte) error {
	if d.port.baud != d.baud {
		raw = garble(raw)
	}
	return d.port.rx.write(raw)
}

func (d *Device) replyLocked(body string) error {
	cs := frame.Checksum8Bit
	if pc, ok := d.regs[register.IDProtocolControl].(*register.ProtocolControl); ok && pc.AsciiChecksum == register.ChecksumCRC16 {
		cs = frame.ChecksumCRC16
	}
	return d.toHostLocked(frame.AppendASCII(nil, body, cs))
}

func (d *Device) fromHost(p *hostPort, b []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port != p {
		return io.ErrClosedPipe
	}
	if p.baud != d.baud {
		// Framing errors; the device sees noise and stays silent.
		d.line = d.line[:0]
		return nil
	}
	d.line = append(d.line, b...)
	for {
		i := bytes.IndexByte(d.line, '\n')
		if i < 0 {
			break
		}
		raw := append([]byte(nil), d.line[:i+1]...)
		d.line = d.line[i+1:]
		if start := bytes.IndexByte(raw, '$'); start >= 0 {
			d.handleLocked(raw[start:])
		}
	}
	return nil
}

func (d *Device) errorLocked(code int) {
	_ = d.replyLocked(fmt.Sprintf("VNERR,%02X", code))
}

func (d *Device) handleLocked(raw []byte) {
	body, err := frame.VerifyASCII(raw)
	if err != nil {
		d.errorLocked(3)
		return
	}
	d.received = append(d.received, body)
	if !strings.HasPrefix(body, "VN") {
		d.errorLocked(4)
		return
	}
	cmd := body[2:]
	mnemonic, args, _ := strings.Cut(cmd, ",")
	switch mnemonic {
	case "RRG":
		d.readRegisterLocked(args)
	case "WRG":
		d.writeRegisterLocked(args)
	case "WNV", "RST", "KMD", "KAD", "SIH", "SFB":
		_ = d.replyLocked(body)
	case "RFS":
		baud := d.baud
		d.regs = d.defaults()
		d.regs[register.IDBaudRate] = &register.BaudRate{Baud: register.Baud(baud)}
		_ = d.replyLocked(body)
	case "ASY":
		d.asyncOn = strings.TrimSpace(args) != "0"
		_ = d.replyLocked(body)
	case "BOM":
		n, err := strconv.Atoi(strings.TrimSpace(args))
		if err != nil || n < 1 || n > 3 {
			d.errorLocked(7)
			return
		}
		now := d.now()
		snap := d.snapshotLocked(now)
		d.emitBinaryLocked(n, snap)
	default:
		d.errorLocked(4)
	}
}

func parseID(s string) (uint8, bool) {
	v, err := strconv.ParseUint(strings.TrimSpace(s), 10, 8)
	return uint8(v), err == nil
}

func (d *Device) readRegisterLocked(args string) {
	idStr, _, _ := strings.Cut(args, ",")
	id, ok := parseID(idStr)
	if !ok {
		d.errorLocked(7)
		return
	}
	r, ok := d.regs[id]
	if !ok {
		d.errorLocked(8)
		return
	}
	s, err := register.EncodeASCII(r)
	if err != nil {
		d.errorLocked(1)
		return
	}
	_ = d.replyLocked(fmt.Sprintf("VNRRG,%02d,%s", id, s))
}

func (d *Device) writeRegisterLocked(args string) {
	idStr, fields, ok := strings.Cut(args, ",")
	if !ok {
		d.errorLocked(5)
		return
	}
	id, ok := parseID(idStr)
	if !ok {
		d.errorLocked(7)
		return
	}
	cur, ok := d.regs[id]
	if !ok {
		d.errorLocked(8)
		return
	}
	if _, writable := cur.(register.Writable); !writable {
		d.errorLocked(9)
		return
	}
	r, err := register.DecodeASCII(id, fields)
	if err != nil {
		d.errorLocked(7)
		return
	}
	s, _ := register.EncodeASCII(r)
	d.regs[id] = r
	_ = d.replyLocked(fmt.Sprintf("VNWRG,%02d,%s", id, s))
	if br, ok := r.(*register.BaudRate); ok && int(br.Baud) != d.baud {
		d.log.WithFields(logrus.Fields{"from": d.baud, "to": int(br.Baud)}).Debug("baud change")
		d.baud = int(br.Baud)
	}
	d.nextASCII = time.Time{}
	d.nextBin = [3]time.Time{}
}

func (d *Device) stream(p *hostPort) {
	t := time.NewTicker(d.opts.Tick)
	defer t.Stop()
	for {
		select {
		case <-p.done:
			return
		case <-t.C:
			d.emitDue(p)
		}
	}
}

func (d *Device) emitDue(p *hostPort) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.port != p || !d.asyncOn {
		return
	}
	now := d.now()
	var snap *measurement.CompositeData
	get := func() measurement.CompositeData {
		if snap == nil {
			c := d.snapshotLocked(now)
			snap = &c
		}
		return *snap
	}

	if ador, freq := d.asyncOutputLocked(); ador != register.AdorOff && freq > 0 {
		if !now.Before(d.nextASCII) {
			d.nextASCII = schedule(d.nextASCII, now, time.Second/time.Duration(freq))
			tag := "VN" + ador.String()
			if body, err := measurement.AppendASCII(nil, tag, get()); err == nil {
				_ = d.replyLocked(string(body))
			}
		}
	}
	for i := 0; i < 3; i++ {
		cfg, ok := d.binaryOutputLocked(i + 1)
		if !ok {
			continue
		}
		if now.Before(d.nextBin[i]) {
			continue
		}
		period := time.Second * time.Duration(cfg.RateDivisor) / imuRate
		d.nextBin[i] = schedule(d.nextBin[i], now, period)
		d.emitBinaryLocked(i+1, get())
	}
}

// schedule advances next by period, resyncing to now when it fell behind.
func schedule(next, now time.Time, period time.Duration) time.Time {
	if next.IsZero() || now.Sub(next) > period {
		return now.Add(period)
	}
	return next.Add(period)
}

func (d *Device) asyncOutputLocked() (register.Ador, uint32) {
	t, _ := d.regs[register.IDAsyncOutputType].(*register.AsyncOutputType)
	f, _ := d.regs[register.IDAsyncOutputFreq].(*register.AsyncOutputFreq)
	if t == nil || f == nil {
		return register.AdorOff, 0
	}
	return t.Ador, f.Adof
}

func (d *Device) binaryOutputLocked(slot int) (binout.Config, bool) {
	r, ok := d.regs[register.IDBinaryOutput1+uint8(slot-1)]
	if !ok {
		return binout.Config{}, false
	}
	cfg, _, ok := register.BinaryOutputConfig(r)
	if !ok || cfg.RateDivisor == 0 || cfg.AsyncMode&(binout.AsyncSerial1|binout.AsyncSerial2) == 0 {
		return binout.Config{}, false
	}
	return cfg, !cfg.Header().Empty()
}

func (d *Device) emitBinaryLocked(slot int, snap measurement.CompositeData) {
	r, ok := d.regs[register.IDBinaryOutput1+uint8(slot-1)]
	if !ok {
		return
	}
	cfg, _, _ := register.BinaryOutputConfig(r)
	h := cfg.Header()
	if h.Empty() {
		return
	}
	payload, err := measurement.AppendPayload(nil, h, snap)
	if err != nil {
		d.log.WithError(err).Warn("binary output")
		return
	}
	_ = d.toHostLocked(frame.AppendBinary(nil, h, payload))
}

func (d *Device) snapshotLocked(now time.Time) measurement.CompositeData {
	elapsed := now.Sub(d.start)
	var st State
	if d.opts.Scenario != nil {
		st = d.opts.Scenario.StateAt(elapsed, true)
	} else {
		st = d.opts.Motion.StateAt(elapsed)
	}
	return snapshot(st, elapsed, now, d.syncIn)
}
