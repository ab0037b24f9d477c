// Package hexdump renders target memory as hex and ASCII. Bytes that could not
// be read are shown as ?? so a fault is never mistaken for a zero.
package hexdump

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
	"strings"
	"unicode"

	"memscan/process"
	"memscan/process/memory_map"

	"github.com/Moonlight-Companies/gologger/coloransi"
)

// Span marks bytes to highlight, such as the addresses of scan results.
type Span struct {
	Address process.ProcessMemoryAddress
	Size    int
}

// Options defines options for customizing the hexdump output
type Options struct {
	// BytesPerLine defines the number of bytes to display per line
	BytesPerLine int

	// GroupSize adds a space between groups of this many bytes
	GroupSize int

	ShowASCII bool

	// AddressWidth is the width of the address column in hex digits
	AddressWidth int

	// Color enables ANSI colors
	Color bool

	AddressColor    coloransi.ColorCode
	HexColor        coloransi.ColorCode
	ZeroColor       coloransi.ColorCode
	UnreadableColor coloransi.ColorCode
	HighlightColor  coloransi.ColorCode

	Highlight []Span

	// MaxLines is the maximum number of lines to show (0 for no limit)
	MaxLines int

	// ShowPointers appends pointer-sized values that land in MemoryMap
	ShowPointers bool
	PointerSize  int
	MemoryMap    []memory_map.MemoryMapItem
}

func DefaultOptions() Options {
	return Options{
		BytesPerLine:    16,
		GroupSize:       8,
		ShowASCII:       true,
		AddressWidth:    12,
		AddressColor:    coloransi.Cyan,
		HexColor:        coloransi.Green,
		ZeroColor:       coloransi.BrightBlack,
		UnreadableColor: coloransi.Red,
		HighlightColor:  coloransi.Yellow,
		PointerSize:     8,
	}
}

// Dump renders the view with the given options
func Dump(view process.ReadView, options Options) string {
	var buffer bytes.Buffer
	DumpToWriter(&buffer, view, options)
	return buffer.String()
}

// DumpBytes renders fully readable data as if it were read at addr.
func DumpBytes(addr process.ProcessMemoryAddress, data []byte) string {
	readable := make([]bool, len(data))
	for i := range readable {
		readable[i] = true
	}
	return Dump(process.ReadView{Address: addr, Data: data, Readable: readable}, DefaultOptions())
}

// DumpToWriter writes the rendered view to writer
func DumpToWriter(writer io.Writer, view process.ReadView, options Options) {
	if options.BytesPerLine <= 0 {
		options.BytesPerLine = 16
	}
	if options.GroupSize <= 0 {
		options.GroupSize = options.BytesPerLine
	}
	if options.AddressWidth <= 0 {
		options.AddressWidth = 12
	}
	if options.PointerSize != 4 {
		options.PointerSize = 8
	}

	lines := 0
	for offset := 0; offset < len(view.Data); offset += options.BytesPerLine {
		if options.MaxLines > 0 && lines >= options.MaxLines {
			fmt.Fprintf(writer, "... %d more bytes\n", len(view.Data)-offset)
			break
		}

		end := min(offset+options.BytesPerLine, len(view.Data))
		formatLine(writer, view, offset, end, options)
		lines++
	}
}

type painter struct {
	on bool
}

func (p painter) paint(c coloransi.ColorCode, s string) string {
	if !p.on {
		return s
	}
	return coloransi.Foreground(c, s)
}

func formatLine(writer io.Writer, view process.ReadView, start, end int, options Options) {
	p := painter{on: options.Color}
	addr := view.Address + process.ProcessMemoryAddress(start)

	fmt.Fprint(writer, p.paint(options.AddressColor, fmt.Sprintf("%0*x", options.AddressWidth, uint64(addr))), "  ")

	for i := start; i < start+options.BytesPerLine; i++ {
		if i > start && (i-start)%options.GroupSize == 0 {
			fmt.Fprint(writer, " ")
		}
		if i >= end {
			fmt.Fprint(writer, "   ")
			continue
		}

		cell := "??"
		color := options.UnreadableColor
		if view.IsReadable(i) {
			b := view.Data[i]
			cell = fmt.Sprintf("%02x", b)
			color = options.HexColor
			if b == 0 {
				color = options.ZeroColor
			}
			if highlighted(view.Address+process.ProcessMemoryAddress(i), options.Highlight) {
				color = options.HighlightColor
			}
		}
		fmt.Fprint(writer, p.paint(color, cell), " ")
	}

	if options.ShowASCII {
		fmt.Fprint(writer, "|")
		for i := start; i < end; i++ {
			fmt.Fprint(writer, asciiCell(view, i, p, options))
		}
		fmt.Fprint(writer, "|")
	}

	if options.ShowPointers {
		formatPointers(writer, view, start, end, p, options)
	}

	fmt.Fprintln(writer)
}

func asciiCell(view process.ReadView, i int, p painter, options Options) string {
	if !view.IsReadable(i) {
		return p.paint(options.UnreadableColor, "?")
	}
	c := rune(view.Data[i])
	if c >= 0x80 || !unicode.IsPrint(c) {
		return p.paint(options.ZeroColor, ".")
	}
	return string(c)
}

// formatPointers appends every aligned pointer on the line that lands in a mapped region.
func formatPointers(writer io.Writer, view process.ReadView, start, end int, p painter, options Options) {
	size := options.PointerSize
	var found []string

	first := start + int((uint64(size)-uint64(view.Address+process.ProcessMemoryAddress(start))%uint64(size))%uint64(size))
	for i := first; i+size <= end; i += size {
		if !view.RangeReadable(i, size) {
			continue
		}
		var v uint64
		if size == 4 {
			v = uint64(binary.LittleEndian.Uint32(view.Data[i:]))
		} else {
			v = binary.LittleEndian.Uint64(view.Data[i:])
		}
		if v == 0 || memory_map.FindRegion(v, options.MemoryMap) == nil {
			continue
		}
		found = append(found, p.paint(options.HighlightColor, fmt.Sprintf("0x%x", v)))
	}
	if len(found) > 0 {
		fmt.Fprint(writer, " ", strings.Join(found, " "))
	}
}

func highlighted(addr process.ProcessMemoryAddress, spans []Span) bool {
	for _, s := range spans {
		if addr >= s.Address && addr < s.Address+process.ProcessMemoryAddress(s.Size) {
			return true
		}
	}
	return false
}
