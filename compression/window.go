package compression

import (
	"encoding/binary"
	"hash"
	"hash/adler32"
	"io"

	"github.com/klauspost/compress/flate"
)

// zlibWindowWriter frames a flate stream with a zlib header whose CINFO
// matches a reduced history. zlib.Writer always declares a 32K window.
type zlibWindowWriter struct {
	dst         io.Writer
	fw          *flate.Writer
	digest      hash.Hash32
	header      [2]byte
	wroteHeader bool
	err         error
}

func newZlibWindowWriter(dst io.Writer, fw *flate.Writer, opts Options) *zlibWindowWriter {
	bits := max(opts.WindowBits, 8)
	cmf := byte(8 | (bits-8)<<4)
	flg := byte(levelToFLevel(opts.effectiveLevel())) << 6
	flg += byte(31 - (uint16(cmf)<<8|uint16(flg))%31)

	return &zlibWindowWriter{
		dst:    dst,
		fw:     fw,
		digest: adler32.New(),
		header: [2]byte{cmf, flg},
	}
}

func (z *zlibWindowWriter) writeHeader() error {
	if z.wroteHeader {
		return nil
	}
	z.wroteHeader = true
	_, err := z.dst.Write(z.header[:])
	return err
}

func (z *zlibWindowWriter) Write(p []byte) (int, error) {
	if z.err != nil {
		return 0, z.err
	}
	if z.err = z.writeHeader(); z.err != nil {
		return 0, z.err
	}
	n, err := z.fw.Write(p)
	if err != nil {
		z.err = err
		return n, err
	}
	z.digest.Write(p)
	return n, nil
}

// Close finishes the deflate stream and appends the Adler-32 trailer.
func (z *zlibWindowWriter) Close() error {
	if z.err != nil {
		return z.err
	}
	if z.err = z.writeHeader(); z.err != nil {
		return z.err
	}
	if z.err = z.fw.Close(); z.err != nil {
		return z.err
	}
	var trailer [4]byte
	binary.BigEndian.PutUint32(trailer[:], z.digest.Sum32())
	_, z.err = z.dst.Write(trailer[:])
	return z.err
}
