package codec

import "io"

// DecryptReader wraps an io.Reader, decrypting every byte read through
// it with AES-128/CFB8.
type DecryptReader struct {
	r    io.Reader
	cfb  *cfb8
}

// NewDecryptReader constructs a DecryptReader keyed (and IV'd) by
// secret, per spec's "key doubles as IV" invariant.
func NewDecryptReader(r io.Reader, secret []byte) (*DecryptReader, error) {
	c, err := newCFB8(secret, false)
	if err != nil {
		return nil, err
	}
	return &DecryptReader{r: r, cfb: c}, nil
}

func (d *DecryptReader) Read(p []byte) (int, error) {
	n, err := d.r.Read(p)
	if n > 0 {
		d.cfb.XORKeyStream(p[:n], p[:n])
	}
	return n, err
}

func (d *DecryptReader) ReadByte() (byte, error) {
	var buf [1]byte
	if _, err := io.ReadFull(d.r, buf[:]); err != nil {
		return 0, err
	}
	d.cfb.XORKeyStream(buf[:], buf[:])
	return buf[0], nil
}

// EncryptWriter wraps an io.Writer, encrypting every byte written
// through it with AES-128/CFB8.
type EncryptWriter struct {
	w   io.Writer
	cfb *cfb8
}

func NewEncryptWriter(w io.Writer, secret []byte) (*EncryptWriter, error) {
	c, err := newCFB8(secret, true)
	if err != nil {
		return nil, err
	}
	return &EncryptWriter{w: w, cfb: c}, nil
}

func (e *EncryptWriter) Write(p []byte) (int, error) {
	out := make([]byte, len(p))
	e.cfb.XORKeyStream(out, p)
	return e.w.Write(out)
}
