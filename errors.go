package playback

// #include <errno.h>
import "C"

// Libav reports "try again" and "end of stream" through the POSIX errno
// space reinterpreted as negative AVERROR codes. The defining constants
// aren't exposed by cgo directly (they're macros), so they're
// reconstructed here the way the rest of the facade treats every other
// libav return code: a small negative int compared against a named Go
// constant.
const (
	// ErrorAgain mirrors AVERROR(EAGAIN): the codec needs more input
	// before it can produce output, not a real failure.
	ErrorAgain = -int(C.EAGAIN)
	// ErrorEOF mirrors AVERROR_EOF: the demuxer or codec has nothing
	// left to give.
	ErrorEOF = -541478725 // AVERROR_EOF, MKTAG('E','O','F',' ') negated
)

// rewindPosition clamps a signed tick count to zero or above before it
// is passed to the libav seek entry points, guarding against the rare
// negative target a caller's own rounding might produce.
func rewindPosition(ticks int64) int64 {
	if ticks < 0 {
		return 0
	}
	return ticks
}
