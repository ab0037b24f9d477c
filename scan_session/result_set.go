package scan_session

import (
	"memscan/process"
)

// Entry is one surviving address with the bytes seen by the latest scan and,
// after a refinement, the bytes seen by the scan before it.
type Entry struct {
	Address  process.ProcessMemoryAddress
	Current  []byte
	Previous []byte
}

// resultSet stores entries of one width in flat arrays, ascending by address.
// A set is never modified after it is published to the session.
type resultSet struct {
	width int
	addrs []process.ProcessMemoryAddress
	cur   []byte
	prev  []byte
}

func newResultSet(width int, hasPrevious bool) *resultSet {
	rs := &resultSet{width: width}
	if hasPrevious {
		rs.prev = []byte{}
	}
	return rs
}

func (rs *resultSet) len() int {
	if rs == nil {
		return 0
	}
	return len(rs.addrs)
}

func (rs *resultSet) add(addr process.ProcessMemoryAddress, cur, prev []byte) {
	rs.addrs = append(rs.addrs, addr)
	rs.cur = append(rs.cur, cur[:rs.width]...)
	if rs.prev != nil {
		rs.prev = append(rs.prev, prev[:rs.width]...)
	}
}

func (rs *resultSet) current(i int) []byte {
	return rs.cur[i*rs.width : (i+1)*rs.width]
}

func (rs *resultSet) previous(i int) []byte {
	if rs.prev == nil {
		return nil
	}
	return rs.prev[i*rs.width : (i+1)*rs.width]
}

func (rs *resultSet) entry(i int) Entry {
	e := Entry{
		Address: rs.addrs[i],
		Current: append([]byte(nil), rs.current(i)...),
	}
	if p := rs.previous(i); p != nil {
		e.Previous = append([]byte(nil), p...)
	}
	return e
}

func (rs *resultSet) entries(offset, limit int) []Entry {
	n := rs.len()
	if offset < 0 {
		offset = 0
	}
	if offset >= n {
		return nil
	}
	end := n
	if limit > 0 && offset+limit < n {
		end = offset + limit
	}

	out := make([]Entry, 0, end-offset)
	for i := offset; i < end; i++ {
		out = append(out, rs.entry(i))
	}
	return out
}
