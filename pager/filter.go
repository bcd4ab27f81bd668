package pager

import (
	"sync"

	"github.com/jrwynneiii/rxcap/config"
	"github.com/jrwynneiii/rxcap/pocsag"
)

// Filter decides which packets reach the display and the log. Settings can
// change from the UI while packets arrive.
type Filter struct {
	mu       sync.Mutex
	conf     config.PagerConf
	last     uint32
	haveLast bool
}

func NewFilter(conf config.PagerConf) *Filter {
	return &Filter{conf: conf}
}

// Allow reports whether p should be shown, and remembers the address of the
// last packet it let through.
func (f *Filter) Allow(p pocsag.Packet) bool {
	f.mu.Lock()
	defer f.mu.Unlock()

	switch {
	case f.conf.EnableIgnore && p.Address == f.conf.AddressToIgnore:
		return false
	case f.conf.HideBadData && p.Degraded():
		return false
	case f.conf.HideAddrOnly && p.AddressOnly():
		return false
	}
	f.last = p.Address
	f.haveLast = true
	return true
}

// IgnoreLast starts ignoring the address of the last packet shown.
func (f *Filter) IgnoreLast() (uint32, bool) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.haveLast {
		return 0, false
	}
	f.conf.EnableIgnore = true
	f.conf.AddressToIgnore = f.last
	return f.last, true
}

func (f *Filter) Settings() config.PagerConf {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.conf
}

func (f *Filter) Update(fn func(*config.PagerConf)) {
	f.mu.Lock()
	fn(&f.conf)
	f.mu.Unlock()
}
