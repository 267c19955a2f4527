package pixel

// I420Size returns the byte length of a planar 4:2:0 frame.
func I420Size(width, height int) int {
	cw, ch := (width+1)/2, (height+1)/2
	return width*height + 2*cw*ch
}

// ToI420 converts to planar Y, U, V with BT.601 integer coefficients. Chroma
// is taken from the top-left pixel of each 2x2 block.
func ToI420(src Buffer) []byte {
	return AppendI420(make([]byte, 0, I420Size(src.Width, src.Height)), src)
}

// AppendI420 appends the planar conversion of src to dst.
func AppendI420(dst []byte, src Buffer) []byte {
	w, h := src.Width, src.Height
	cw, ch := (w+1)/2, (h+1)/2
	base := len(dst)
	size := I420Size(w, h)
	dst = append(dst, make([]byte, size)...)
	yPlane := dst[base : base+w*h]
	uPlane := dst[base+w*h : base+w*h+cw*ch]
	vPlane := dst[base+w*h+cw*ch : base+size]

	for j := 0; j < h; j++ {
		for i := 0; i < w; i++ {
			o := src.offset(i, j)
			r, g, b := int(src.Pix[o]), int(src.Pix[o+1]), int(src.Pix[o+2])

			yPlane[j*w+i] = clampYUV(((66*r + 129*g + 25*b + 128) >> 8) + 16)
			if j%2 == 0 && i%2 == 0 {
				ci := (j/2)*cw + i/2
				uPlane[ci] = clampYUV(((-38*r - 74*g + 112*b + 128) >> 8) + 128)
				vPlane[ci] = clampYUV(((112*r - 94*g - 18*b + 128) >> 8) + 128)
			}
		}
	}
	return dst
}

func clampYUV(v int) uint8 {
	if v < 0 {
		return 0
	}
	if v > 255 {
		return 255
	}
	return uint8(v)
}
