package testing

import (
	"context"
	"errors"
	"sync"

	"github.com/aristath/sigmaguard/internal/domain"
)

// ErrMockNotFound is returned by MockPriceProvider for symbols without configured history
var ErrMockNotFound = errors.New("mock: symbol not configured")

// MockPriceProvider is a mock implementation of domain.PriceProvider for testing
type MockPriceProvider struct {
	mu       sync.RWMutex
	history  map[string][]domain.PriceBar
	errs     map[string]error
	panics   map[string]bool
	macro    domain.MacroSnapshot
	macroErr error
	calls    map[string]int
	periods  map[string][]string
	macroHit int
}

// NewMockPriceProvider creates a new mock price provider
func NewMockPriceProvider() *MockPriceProvider {
	return &MockPriceProvider{
		history: make(map[string][]domain.PriceBar),
		errs:    make(map[string]error),
		panics:  make(map[string]bool),
		calls:   make(map[string]int),
		periods: make(map[string][]string),
	}
}

// SetHistory sets the bars returned for symbol
func (m *MockPriceProvider) SetHistory(symbol string, bars []domain.PriceBar) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.history[symbol] = bars
}

// SetError makes History fail for symbol
func (m *MockPriceProvider) SetError(symbol string, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.errs[symbol] = err
}

// SetPanic makes History panic for symbol
func (m *MockPriceProvider) SetPanic(symbol string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.panics[symbol] = true
}

// SetMacro sets the macro snapshot and error returned by Macro
func (m *MockPriceProvider) SetMacro(macro domain.MacroSnapshot, err error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macro = macro
	m.macroErr = err
}

// History returns the configured bars for symbol
func (m *MockPriceProvider) History(_ context.Context, symbol, period string) ([]domain.PriceBar, error) {
	m.mu.Lock()
	m.calls[symbol]++
	m.periods[symbol] = append(m.periods[symbol], period)
	shouldPanic := m.panics[symbol]
	err := m.errs[symbol]
	bars, ok := m.history[symbol]
	m.mu.Unlock()

	if shouldPanic {
		panic("mock: provider panic for " + symbol)
	}
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, ErrMockNotFound
	}
	out := make([]domain.PriceBar, len(bars))
	copy(out, bars)
	return out, nil
}

// Macro returns the configured macro snapshot
func (m *MockPriceProvider) Macro(_ context.Context) (domain.MacroSnapshot, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.macroHit++
	return m.macro, m.macroErr
}

// Calls returns how many times History was called for symbol
func (m *MockPriceProvider) Calls(symbol string) int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.calls[symbol]
}

// Periods returns the periods History was called with for symbol
func (m *MockPriceProvider) Periods(symbol string) []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return append([]string(nil), m.periods[symbol]...)
}

// MacroCalls returns how many times Macro was called
func (m *MockPriceProvider) MacroCalls() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.macroHit
}
