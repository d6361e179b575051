package export

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"sync"

	"github.com/sirupsen/logrus"

	"vnsensor/internal/measurement"
)

// CSV writes one file per message layout: one per ASCII tag and one per
// binary header. The first row names the columns.
type CSV struct {
	*pump
	dir string

	mu    sync.Mutex
	files map[string]*csvFile
}

type csvFile struct {
	f    *os.File
	buf  *bufio.Writer
	w    *csv.Writer
	cols int
}

func NewCSV(dir string, capacity int, log logrus.FieldLogger) (*CSV, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("csv dir: %w", err)
	}
	c := &CSV{dir: dir, files: make(map[string]*csvFile)}
	c.pump = newPump("csv", capacity, log, c.write)
	return c, nil
}

// fileKey names the output file for m's layout.
func fileKey(m measurement.CompositeData) string {
	if !m.IsBinary() {
		return m.Tag
	}
	return fmt.Sprintf("binary_%x", m.Header.AppendWire(nil))
}

func columns(m measurement.CompositeData) ([]string, [][]string) {
	head := []string{"received"}
	var cells [][]string
	for _, f := range m.Fields() {
		v, _ := m.Get(f)
		s := v.Strings()
		cells = append(cells, s)
		if len(s) == 1 {
			head = append(head, f.String())
			continue
		}
		for i := range s {
			head = append(head, f.String()+"["+strconv.Itoa(i)+"]")
		}
	}
	return head, cells
}

func (c *CSV) write(m measurement.CompositeData) error {
	head, cells := columns(m)
	c.mu.Lock()
	defer c.mu.Unlock()
	key := fileKey(m)
	cf, ok := c.files[key]
	if !ok {
		path := filepath.Join(c.dir, key+".csv")
		f, err := os.Create(path)
		if err != nil {
			return fmt.Errorf("create %s: %w", path, err)
		}
		buf := bufio.NewWriter(f)
		cf = &csvFile{f: f, buf: buf, w: csv.NewWriter(buf), cols: len(head)}
		c.files[key] = cf
		if err := cf.w.Write(head); err != nil {
			return err
		}
		c.log.WithField("path", path).Info("csv file opened")
	}
	row := make([]string, 0, cf.cols)
	row = append(row, m.Received.UTC().Format("2006-01-02T15:04:05.000000Z"))
	for _, s := range cells {
		row = append(row, s...)
	}
	if len(row) != cf.cols {
		return fmt.Errorf("%s: row has %d columns, header %d", key, len(row), cf.cols)
	}
	cf.w.Write(row)
	cf.w.Flush()
	return cf.w.Error()
}

// Files lists the paths written so far.
func (c *CSV) Files() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.files))
	for _, cf := range c.files {
		out = append(out, cf.f.Name())
	}
	return out
}

// Close drains the queue, then flushes and closes every file.
func (c *CSV) Close() error {
	c.pump.close()
	c.mu.Lock()
	defer c.mu.Unlock()
	var errs []error
	for key, cf := range c.files {
		if err := cf.buf.Flush(); err != nil {
			errs = append(errs, err)
		}
		if err := cf.f.Close(); err != nil {
			errs = append(errs, err)
		}
		delete(c.files, key)
	}
	return errors.Join(errs...)
}
