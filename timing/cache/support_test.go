package cache_test

import (
	"github.com/sarchlab/cachesim/memsys"
)

// fakePort is a scripted MemoryPort. Tests issue requests through the
// cache and deliver responses by hand, which gives full control over the
// handshake latency.
type fakePort struct {
	busy   bool
	rsp    *memsys.Response
	issued []memsys.Request
}

func (p *fakePort) Busy() bool {
	return p.busy
}

func (p *fakePort) Issue(req memsys.Request) {
	if p.busy {
		panic("fakePort: issue on busy port")
	}
	p.busy = true
	p.issued = append(p.issued, req)
}

func (p *fakePort) TakeResponse() (memsys.Response, bool) {
	if p.rsp == nil {
		return memsys.Response{}, false
	}
	rsp := *p.rsp
	p.rsp = nil
	p.busy = false
	return rsp, true
}

// deliver makes a response visible to the next TakeResponse.
func (p *fakePort) deliver(data []byte) {
	p.rsp = &memsys.Response{Data: data}
}

// ack delivers an empty write acknowledgment.
func (p *fakePort) ack() {
	p.rsp = &memsys.Response{}
}

// lastIssued returns the most recent request, if any.
func (p *fakePort) lastIssued() (memsys.Request, bool) {
	if len(p.issued) == 0 {
		return memsys.Request{}, false
	}
	return p.issued[len(p.issued)-1], true
}

// lineWithWords builds a line of n bytes where each aligned 32-bit word
// holds the given values, little-endian. Missing words are zero.
func lineWithWords(n int, words ...uint32) []byte {
	data := make([]byte, n)
	for i, w := range words {
		for b := 0; b < 4; b++ {
			data[i*4+b] = byte(w >> (b * 8))
		}
	}
	return data
}
