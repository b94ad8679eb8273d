package engine

import (
	"github.com/nguyengg/archivist/codec"
)

// FormatCode names a container format the read side can register.
type FormatCode int

const (
	Format7zip FormatCode = iota + 1
	FormatAr
	FormatCab
	FormatCpio
	FormatEmpty
	FormatGnutar
	FormatIso9660
	FormatLha
	FormatMtree
	FormatRar
	FormatRaw
	FormatTar
	FormatXar
	FormatZip
)

// FilterCode names a decompression filter the read side can register.
type FilterCode int

const (
	FilterNone FilterCode = iota + 1
	FilterBzip2
	FilterCompress
	FilterGzip
	FilterGrzip
	FilterLrzip
	FilterLz4
	FilterLzip
	FilterLzma
	FilterLzop
	FilterRpm
	FilterUu
	FilterXz
	FilterZstd
	FilterBrotli
	FilterSnappy
)

var filterNames = map[FilterCode]string{
	FilterNone:     "none",
	FilterBzip2:    "bzip2",
	FilterCompress: "compress (.Z)",
	FilterGzip:     "gzip",
	FilterGrzip:    "grzip",
	FilterLrzip:    "lrzip",
	FilterLz4:      "lz4",
	FilterLzip:     "lzip",
	FilterLzma:     "lzma",
	FilterLzop:     "lzop",
	FilterRpm:      "rpm",
	FilterUu:       "uu",
	FilterXz:       "xz",
	FilterZstd:     "zstd",
	FilterBrotli:   "brotli",
	FilterSnappy:   "snappy",
}

func (c FilterCode) String() string {
	if name, ok := filterNames[c]; ok {
		return name
	}

	return "unknown"
}

// builtinFilter returns the in-process Codec for code, or nil if there is none.
func builtinFilter(code FilterCode) codec.Codec {
	switch code {
	case FilterGzip:
		return codec.Gzip{}
	case FilterBzip2:
		return codec.Bzip2()
	case FilterXz:
		return codec.Xz{}
	case FilterLzma:
		return codec.Lzma{}
	case FilterLzip:
		return codec.Lzip()
	case FilterZstd:
		return codec.Zstd{}
	case FilterLz4:
		return codec.Lz4()
	case FilterBrotli:
		return codec.Brotli()
	case FilterSnappy:
		return codec.Snappy()
	default:
		return nil
	}
}

// externalFilters are the filters that are only available by running an external program.
var externalFilters = map[FilterCode]*codec.Program{
	FilterLzop:  {Command: "lzop -d", Signature: []byte{0x89, 'L', 'Z', 'O', 0x00, 0x0d, 0x0a, 0x1a, 0x0a}},
	FilterLrzip: {Command: "lrzip -d -q", Signature: []byte("LRZI")},
	FilterGrzip: {Command: "grzip -d", Signature: []byte("GRZipII\x00\x02\x04:)")},
}

// SupportFilter registers one decompression filter. Registering the same filter twice is a no-op.
func (a *Archive) SupportFilter(code FilterCode) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_support_filter"); st != OK {
		return st
	}

	if code == FilterNone {
		return OK
	}

	if c := builtinFilter(code); c != nil {
		a.addFilter(code.String(), c)
		return OK
	}

	if p, ok := externalFilters[code]; ok {
		a.addFilter(code.String(), &codec.Program{Command: p.Command, Signature: p.Signature})
		a.SetError(ErrnoMisc, "Using external %s program", code)
		return Warn
	}

	a.SetError(ErrnoMisc, "%s filter is not supported by this engine", code)
	return Failed
}

// SupportFilterAll registers every filter that does not require an external program.
func (a *Archive) SupportFilterAll() Status {
	if st := a.check(ModeRead, stateNew, "archive_read_support_filter_all"); st != OK {
		return st
	}

	for code := FilterNone; code <= FilterSnappy; code++ {
		if c := builtinFilter(code); c != nil {
			a.addFilter(code.String(), c)
		}
	}

	return OK
}

// SupportFilterProgram registers a filter that pipes any stream through cmd.
func (a *Archive) SupportFilterProgram(cmd string) Status {
	return a.SupportFilterProgramSignature(cmd, nil)
}

// SupportFilterProgramSignature registers a filter that pipes streams starting with signature through cmd.
func (a *Archive) SupportFilterProgramSignature(cmd string, signature []byte) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_support_filter_program_signature"); st != OK {
		return st
	}

	if cmd == "" {
		a.SetError(ErrnoProgrammer, "Program command is empty")
		return Failed
	}

	a.addFilter("program:"+cmd+":"+string(signature), &codec.Program{Command: cmd, Signature: clone(signature)})
	return OK
}

func (a *Archive) addFilter(key string, c codec.Codec) {
	if a.filterKeys == nil {
		a.filterKeys = make(map[string]bool)
	}
	if a.filterKeys[key] {
		return
	}

	a.filterKeys[key] = true
	a.filters = append(a.filters, c)
}

// SupportFormat registers one container format. Registering the same format twice is a no-op.
func (a *Archive) SupportFormat(code FormatCode) Status {
	if st := a.check(ModeRead, stateNew, "archive_read_support_format"); st != OK {
		return st
	}

	f, ok := formatsByCode[code]
	if !ok {
		a.SetError(ErrnoProgrammer, "Unknown format code %d", int(code))
		return Fatal
	}

	if f.open == nil {
		a.SetError(ErrnoMisc, "%s format is not supported by this engine", f.name)
		return Failed
	}

	if a.formatSet == nil {
		a.formatSet = make(map[*format]bool)
	}
	a.formatSet[f] = true
	return OK
}

// SupportFormatAll registers every implemented format except raw, which would otherwise match any input.
func (a *Archive) SupportFormatAll() Status {
	if st := a.check(ModeRead, stateNew, "archive_read_support_format_all"); st != OK {
		return st
	}

	for _, f := range formats {
		if f.open != nil && f.code != FormatRaw {
			if st := a.SupportFormat(f.code); st != OK {
				return st
			}
		}
	}

	return OK
}
