package gpio

import (
	"errors"
	"testing"

	"github.com/warthog618/go-gpiocdev"
)

func TestNewDriver_Mock(t *testing.T) {
	for _, backend := range []string{"", BackendMock} {
		drv, err := NewDriver(backend, "")
		if err != nil {
			t.Fatalf("NewDriver(%q): %v", backend, err)
		}
		if _, ok := drv.(*MockDriver); !ok {
			t.Errorf("NewDriver(%q) = %T, want *MockDriver", backend, drv)
		}
	}
}

func TestNewDriver_Cdev(t *testing.T) {
	drv, err := NewDriver(BackendCdev, "")
	if err != nil {
		t.Fatalf("NewDriver(cdev): %v", err)
	}
	c, ok := drv.(*CdevDriver)
	if !ok {
		t.Fatalf("NewDriver(cdev) = %T, want *CdevDriver", drv)
	}
	if c.chip != DefaultChip {
		t.Errorf("chip = %q, want %q", c.chip, DefaultChip)
	}
}

func TestNewDriver_Unknown(t *testing.T) {
	if _, err := NewDriver("arduino", ""); err == nil {
		t.Error("expected error for unknown backend")
	}
}

func TestMockDriver_RecordsState(t *testing.T) {
	m := NewMockDriver()

	if err := m.SetupPin(17, Output); err != nil {
		t.Fatal(err)
	}
	if err := m.WritePin(17, High); err != nil {
		t.Fatal(err)
	}

	if mode, ok := m.Mode(17); !ok || mode != Output {
		t.Errorf("Mode(17) = %v,%v want output,true", mode, ok)
	}
	if m.Level(17) != High {
		t.Error("pin 17 should be HIGH")
	}
	if m.Writes() != 1 {
		t.Errorf("Writes() = %d, want 1", m.Writes())
	}
	if _, ok := m.Mode(4); ok {
		t.Error("pin 4 was never set up")
	}
}

func TestMockDriver_InjectedInput(t *testing.T) {
	m := NewMockDriver()
	_ = m.SetupPin(23, Input)

	lvl, err := m.ReadPin(23)
	if err != nil || lvl != Low {
		t.Fatalf("ReadPin before injection = %v,%v want LOW,nil", lvl, err)
	}

	m.SetInput(23, High)
	lvl, _ = m.ReadPin(23)
	if lvl != High {
		t.Error("ReadPin should return injected HIGH")
	}
}

func TestMockDriver_Close(t *testing.T) {
	m := NewMockDriver()
	if err := m.Close(); err != nil {
		t.Fatal(err)
	}
	if !m.Closed() {
		t.Error("Closed() should be true after Close")
	}
}

func TestLevelAndModeString(t *testing.T) {
	if High.String() != "HIGH" || Low.String() != "LOW" {
		t.Errorf("Level strings = %s/%s", High, Low)
	}
	if Input.String() != "input" || Output.String() != "output" {
		t.Errorf("PinMode strings = %s/%s", Input, Output)
	}
	if PinMode(7).String() != "PinMode(7)" {
		t.Errorf("unknown PinMode string = %s", PinMode(7))
	}
}

// fakeLine stands in for a requested gpiocdev line.
type fakeLine struct {
	value        int
	reconfigured int
	closed       bool
	valueErr     error
}

func (f *fakeLine) SetValue(v int) error { f.value = v; return nil }

func (f *fakeLine) Value() (int, error) { return f.value, f.valueErr }

func (f *fakeLine) Reconfigure(options ...gpiocdev.LineConfigOption) error {
	f.reconfigured++
	return nil
}

func (f *fakeLine) Close() error { f.closed = true; return nil }

func stubRequestLine(t *testing.T) map[int]*fakeLine {
	t.Helper()
	lines := make(map[int]*fakeLine)
	orig := requestLine
	requestLine = func(chip string, offset int, options ...gpiocdev.LineReqOption) (cdevLine, error) {
		if offset == 99 {
			return nil, errors.New("line busy")
		}
		l := &fakeLine{}
		lines[offset] = l
		return l, nil
	}
	t.Cleanup(func() { requestLine = orig })
	return lines
}

func TestCdevDriver_WriteAndRead(t *testing.T) {
	lines := stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")

	if err := c.SetupPin(17, Output); err != nil {
		t.Fatal(err)
	}
	if err := c.WritePin(17, High); err != nil {
		t.Fatal(err)
	}
	if lines[17].value != 1 {
		t.Errorf("line 17 value = %d, want 1", lines[17].value)
	}

	if err := c.SetupPin(23, Input); err != nil {
		t.Fatal(err)
	}
	lines[23].value = 1
	lvl, err := c.ReadPin(23)
	if err != nil || lvl != High {
		t.Errorf("ReadPin(23) = %v,%v want HIGH,nil", lvl, err)
	}
}

func TestCdevDriver_WriteToInputFails(t *testing.T) {
	stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")
	_ = c.SetupPin(23, Input)

	if err := c.WritePin(23, High); err == nil {
		t.Error("expected error writing to an input line")
	}
	if err := c.WritePin(5, High); err == nil {
		t.Error("expected error writing to an unrequested line")
	}
}

func TestCdevDriver_ModeChangeReconfigures(t *testing.T) {
	lines := stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")

	_ = c.SetupPin(17, Output)
	_ = c.SetupPin(17, Output)
	if lines[17].reconfigured != 0 {
		t.Error("same mode should not reconfigure")
	}
	if err := c.SetupPin(17, Input); err != nil {
		t.Fatal(err)
	}
	if lines[17].reconfigured != 1 {
		t.Errorf("reconfigured = %d, want 1", lines[17].reconfigured)
	}
}

func TestCdevDriver_RequestError(t *testing.T) {
	stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")
	if err := c.SetupPin(99, Output); err == nil {
		t.Error("expected request error to propagate")
	}
}

func TestCdevDriver_ReadError(t *testing.T) {
	lines := stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")
	_ = c.SetupPin(23, Input)
	lines[23].valueErr = errors.New("io")

	if _, err := c.ReadPin(23); err == nil {
		t.Error("expected read error to propagate")
	}
}

func TestCdevDriver_CloseReleasesLines(t *testing.T) {
	lines := stubRequestLine(t)
	c := NewCdevDriver("gpiochip0")
	_ = c.SetupPin(17, Output)
	_ = c.WritePin(17, High)
	_ = c.SetupPin(23, Input)

	if err := c.Close(); err != nil {
		t.Fatal(err)
	}
	for pin, l := range lines {
		if !l.closed {
			t.Errorf("line %d not closed", pin)
		}
	}
	if lines[17].value != 0 {
		t.Error("output line should be driven LOW on close")
	}
	if _, err := c.ReadPin(23); err == nil {
		t.Error("lines should be forgotten after Close")
	}
}
