// Package ctv implements the differential glyph-frame codec used by .ctv
// files and in-process playback.
//
// A stream is an 8-byte header (framerate, frame count) followed by frame
// records. Each frame record is a backpatched uint32 byte length and a
// sequence of pixel-run records. A run record starts with a command byte
// whose flag bits say which fields follow; fields that are absent inherit
// their value from the previous run, including runs of earlier frames. All
// integers are little-endian.
//
//	header:  framerate u32 | frame_count u32
//	frame:   frame_length u32 | run...
//	run:     cmd u8 | [x i16 y i16] | [r g b] | [bg r g b] | [len u8 utf8...] | [count u16]
//
// [Encoder] builds a stream in memory and hands it off either raw (for a
// decoder in the same process) or zstd-compressed (for storage and
// transport). [Decoder] accepts either form and yields one
// [glyph.DiffBuffer] per call to [Decoder.Next].
//
// Neither type is safe for concurrent use.
package ctv
