package archivist

import (
	"github.com/nguyengg/archivist/internal/engine"
)

// ReadFormat is a container format a reader can be configured to recognise.
type ReadFormat int

const (
	ReadFormatSevenZip ReadFormat = iota + 1
	// ReadFormatAll registers every format except ReadFormatRaw.
	ReadFormatAll
	ReadFormatAr
	ReadFormatCab
	ReadFormatCpio
	// ReadFormatEmpty recognises inputs with no bytes at all as an archive without members.
	ReadFormatEmpty
	ReadFormatGnutar
	ReadFormatIso9660
	ReadFormatLha
	ReadFormatMtree
	ReadFormatRar
	// ReadFormatRaw presents any input as a single member named "data", typically combined with a filter.
	ReadFormatRaw
	ReadFormatTar
	ReadFormatXar
	ReadFormatZip
)

var readFormats = map[ReadFormat]struct {
	name string
	code engine.FormatCode
}{
	ReadFormatSevenZip: {"7zip", engine.Format7zip},
	ReadFormatAll:      {"all", 0},
	ReadFormatAr:       {"ar", engine.FormatAr},
	ReadFormatCab:      {"cab", engine.FormatCab},
	ReadFormatCpio:     {"cpio", engine.FormatCpio},
	ReadFormatEmpty:    {"empty", engine.FormatEmpty},
	ReadFormatGnutar:   {"gnutar", engine.FormatGnutar},
	ReadFormatIso9660:  {"iso9660", engine.FormatIso9660},
	ReadFormatLha:      {"lha", engine.FormatLha},
	ReadFormatMtree:    {"mtree", engine.FormatMtree},
	ReadFormatRar:      {"rar", engine.FormatRar},
	ReadFormatRaw:      {"raw", engine.FormatRaw},
	ReadFormatTar:      {"tar", engine.FormatTar},
	ReadFormatXar:      {"xar", engine.FormatXar},
	ReadFormatZip:      {"zip", engine.FormatZip},
}

func (f ReadFormat) String() string {
	if v, ok := readFormats[f]; ok {
		return v.name
	}

	return "unknown"
}

// ParseReadFormat returns the ReadFormat with the given name as returned by ReadFormat.String.
func ParseReadFormat(name string) (ReadFormat, bool) {
	for f, v := range readFormats {
		if v.name == name {
			return f, true
		}
	}

	return 0, false
}

// register issues the single engine registration of f.
func (f ReadFormat) register(a *engine.Archive) engine.Status {
	if f == ReadFormatAll {
		return a.SupportFormatAll()
	}

	v, ok := readFormats[f]
	if !ok {
		return a.SupportFormat(0)
	}

	return a.SupportFormat(v.code)
}

// ReadFilter is a decompression filter a reader can be configured to apply.
//
// The set of values is closed: use the package-level variables, FilterProgram, or FilterProgramSignature.
type ReadFilter struct {
	name      string
	code      engine.FilterCode
	all       bool
	program   string
	signature []byte
}

var (
	// FilterAll registers every filter that does not require an external program.
	FilterAll      = ReadFilter{name: "all", all: true}
	FilterBzip2    = ReadFilter{name: "bzip2", code: engine.FilterBzip2}
	FilterCompress = ReadFilter{name: "compress", code: engine.FilterCompress}
	FilterGrzip    = ReadFilter{name: "grzip", code: engine.FilterGrzip}
	FilterGzip     = ReadFilter{name: "gzip", code: engine.FilterGzip}
	FilterLrzip    = ReadFilter{name: "lrzip", code: engine.FilterLrzip}
	FilterLzip     = ReadFilter{name: "lzip", code: engine.FilterLzip}
	FilterLzma     = ReadFilter{name: "lzma", code: engine.FilterLzma}
	FilterLzop     = ReadFilter{name: "lzop", code: engine.FilterLzop}
	FilterNone     = ReadFilter{name: "none", code: engine.FilterNone}
	FilterRpm      = ReadFilter{name: "rpm", code: engine.FilterRpm}
	FilterUu       = ReadFilter{name: "uu", code: engine.FilterUu}
	FilterXz       = ReadFilter{name: "xz", code: engine.FilterXz}
	FilterZstd     = ReadFilter{name: "zstd", code: engine.FilterZstd}
	FilterLz4      = ReadFilter{name: "lz4", code: engine.FilterLz4}
	FilterBrotli   = ReadFilter{name: "brotli", code: engine.FilterBrotli}
	FilterSnappy   = ReadFilter{name: "snappy", code: engine.FilterSnappy}
)

var namedFilters = []ReadFilter{
	FilterAll, FilterBzip2, FilterCompress, FilterGrzip, FilterGzip, FilterLrzip, FilterLzip, FilterLzma, FilterLzop,
	FilterNone, FilterRpm, FilterUu, FilterXz, FilterZstd, FilterLz4, FilterBrotli, FilterSnappy,
}

// FilterProgram returns a filter that pipes any input through the external command cmd.
func FilterProgram(cmd string) ReadFilter {
	return ReadFilter{name: "program", program: cmd}
}

// FilterProgramSignature returns a filter that pipes inputs starting with signature through the external command cmd.
func FilterProgramSignature(cmd string, signature []byte) ReadFilter {
	return ReadFilter{name: "program", program: cmd, signature: append([]byte(nil), signature...)}
}

func (f ReadFilter) String() string {
	if f.program != "" {
		return f.name + ": " + f.program
	}

	return f.name
}

// ParseReadFilter returns the named ReadFilter as returned by ReadFilter.String. Program filters cannot be parsed.
func ParseReadFilter(name string) (ReadFilter, bool) {
	for _, f := range namedFilters {
		if f.name == name {
			return f, true
		}
	}

	return ReadFilter{}, false
}

func (f ReadFilter) register(a *engine.Archive) engine.Status {
	switch {
	case f.all:
		return a.SupportFilterAll()
	case f.name == "program" && f.signature == nil:
		return a.SupportFilterProgram(f.program)
	case f.name == "program":
		return a.SupportFilterProgramSignature(f.program, f.signature)
	default:
		return a.SupportFilter(f.code)
	}
}

// ReadCompression is the legacy name of the compression filters; each value registers the matching ReadFilter.
type ReadCompression struct {
	filter ReadFilter
}

var (
	CompressionAll      = ReadCompression{FilterAll}
	CompressionBzip2    = ReadCompression{FilterBzip2}
	CompressionCompress = ReadCompression{FilterCompress}
	CompressionGzip     = ReadCompression{FilterGzip}
	CompressionLzip     = ReadCompression{FilterLzip}
	CompressionLzma     = ReadCompression{FilterLzma}
	CompressionNone     = ReadCompression{FilterNone}
	CompressionRpm      = ReadCompression{FilterRpm}
	CompressionUu       = ReadCompression{FilterUu}
	CompressionXz       = ReadCompression{FilterXz}
)

// CompressionProgram returns a compression that pipes any input through the external command cmd.
func CompressionProgram(cmd string) ReadCompression {
	return ReadCompression{FilterProgram(cmd)}
}

func (c ReadCompression) String() string {
	return c.filter.String()
}

// WriteFormat is a container format a writer can produce.
type WriteFormat int

const (
	// WriteFormatTar picks the most portable of ustar, pax, and GNU tar per member.
	WriteFormatTar WriteFormat = iota + 1
	WriteFormatPax
	WriteFormatUstar
	WriteFormatGnutar
	WriteFormatZip
	// WriteFormatCpio produces SVR4 (newc) cpio archives.
	WriteFormatCpio
	// WriteFormatAr produces Unix ar archives, which can only hold regular files.
	WriteFormatAr
)

func (f WriteFormat) code() engine.WriteFormatCode {
	switch f {
	case WriteFormatPax:
		return engine.WriteFormatPax
	case WriteFormatUstar:
		return engine.WriteFormatUstar
	case WriteFormatGnutar:
		return engine.WriteFormatGnutar
	case WriteFormatZip:
		return engine.WriteFormatZip
	case WriteFormatCpio:
		return engine.WriteFormatCpio
	case WriteFormatAr:
		return engine.WriteFormatAr
	case WriteFormatTar:
		return engine.WriteFormatTar
	default:
		return 0
	}
}

func (f WriteFormat) String() string {
	return f.code().String()
}
